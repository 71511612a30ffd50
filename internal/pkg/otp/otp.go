package otp

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Engine defines the contract for TOTP operations with a caller-chosen period.
type Engine interface {
	// GenerateSecret creates a fresh base32 TOTP secret for an account name.
	GenerateSecret(accountName string) (secret string, err error)
	// Code derives the passcode for secret at the given time and period.
	Code(secret string, at time.Time, period uint) (string, error)
	// Validate checks a candidate code at the given time and period. The
	// immediately preceding step is also accepted to tolerate clock skew;
	// older and future steps are not.
	Validate(code, secret string, at time.Time, period uint) bool
}

// TOTP implements Engine on top of github.com/pquerna/otp.
type TOTP struct {
	issuer string
	digits otp.Digits
}

// graceSteps is the number of preceding steps accepted during validation.
// Exactly one: codes from step-1 pass, codes from step-2 do not. Future
// steps never pass.
const graceSteps = 1

// NewTOTP constructs a TOTP engine. Digits other than 6 or 8 fall back to 6.
func NewTOTP(issuer string, digits otp.Digits) *TOTP {
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		digits = otp.DigitsSix
	}

	return &TOTP{issuer: issuer, digits: digits}
}

// GenerateSecret creates a fresh base32 TOTP secret for an account name.
func (e *TOTP) GenerateSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
		SecretSize:  20, // RFC 4226/6238 recommendation
		Digits:      e.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}

	return key.Secret(), nil
}

// Code derives the passcode for secret at the given time and period.
func (e *TOTP) Code(secret string, at time.Time, period uint) (string, error) {
	return totp.GenerateCodeCustom(secret, at, e.opts(period))
}

// Validate checks a candidate code at the given time and period.
//
// The library's Skew option accepts steps in both directions, so the grace
// window is applied by hand: the candidate is compared against the code of
// the current step and of each accepted preceding step, nothing else.
func (e *TOTP) Validate(code, secret string, at time.Time, period uint) bool {
	opts := e.opts(period)
	step := time.Duration(opts.Period) * time.Second

	for back := 0; back <= graceSteps; back++ {
		want, err := totp.GenerateCodeCustom(secret, at.Add(-time.Duration(back)*step), opts)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

func (e *TOTP) opts(period uint) totp.ValidateOpts {
	if period == 0 {
		period = 30
	}

	return totp.ValidateOpts{
		Period:    period,
		Digits:    e.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
