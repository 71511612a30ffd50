package usecase

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/scanwatch/credward/internal/pkg/goerror"
)

type ValidateOTPInput struct {
	UserID int64  `validate:"required,gt=0"`
	Code   string `validate:"required,numeric,min=6,max=8"`
}

// ValidateOTP checks a submitted code against the user's secret. It accepts
// the current time step and exactly one preceding step, plus the exact code
// recorded at the last issuance while that issuance is still inside its
// validity window. A well-formed but wrong code yields
// (false, ErrInvalidOTP); infrastructure failures yield their own error.
func (s *Usecase) ValidateOTP(ctx context.Context, in ValidateOTPInput) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ValidateOTP")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return false, goerror.InvalidInput(verr)
	}

	user, _, err := s.store.GetUser(ctx, in.UserID)
	if err != nil {
		return false, err
	}
	if !user.HasSecret() {
		return false, goerror.ErrInvalidOTP
	}

	secret, err := s.openSecret(user)
	if err != nil {
		slog.ErrorContext(ctx, "stored secret unreadable", "user_id", in.UserID, "error", err)
		return false, err
	}

	now := s.clock.Now()
	period := s.validityFor(user, 0)

	if s.totp.Validate(in.Code, secret, now, period) {
		return true, nil
	}

	// A code delivered earlier is honored for its whole validity window
	// even after the generator has moved past its step.
	if user.LastOTPValidAt(now) &&
		subtle.ConstantTimeCompare([]byte(user.LastOTP), []byte(in.Code)) == 1 {
		return true, nil
	}

	slog.WarnContext(ctx, "otp rejected", "user_id", in.UserID)
	return false, goerror.ErrInvalidOTP
}
