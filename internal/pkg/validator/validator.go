// Package validator wraps go-playground/validator v10 behind a small
// interface so usecase inputs are validated consistently and tests can stub
// validation out.
package validator

import (
	"errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

// Validator validates annotated structs.
type Validator interface {
	// Validate returns nil when in passes its struct tags, otherwise an
	// error whose message lists the violated fields.
	Validate(in any) error
}

// ErrTranslatorNotFound indicates the English translator is unavailable.
var ErrTranslatorNotFound = errors.New("validator: translator not found")

// V10 implements Validator using go-playground/validator v10.
type V10 struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewV10 constructs a V10 validator with English messages.
func NewV10() (*V10, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := entrans.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}

	return &V10{validate: v, translator: trans}, nil
}

// Validate checks in against its struct tags.
func (v *V10) Validate(in any) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(v.translator))
	}

	return &FieldError{Messages: msgs}
}

// FieldError lists per-field validation messages.
type FieldError struct {
	Messages []string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}

	out := e.Messages[0]
	for _, m := range e.Messages[1:] {
		out += "; " + m
	}
	return out
}
