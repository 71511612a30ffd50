package usecase

import (
	"context"
	"log/slog"

	"github.com/scanwatch/credward/internal/credential/outbound/recovery"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

type RequestEmergencyInput struct {
	UserID   int64  `validate:"required,gt=0"`
	UserName string `validate:"required,max=64"`
}

// RequestEmergencyCredential mints a fresh secret for the user and publishes
// the sealed recovery document out of band. The returned handle is the only
// reference to the document; the secret itself reaches the user through the
// delivery collaborator, never through this return value.
func (s *Usecase) RequestEmergencyCredential(ctx context.Context, in RequestEmergencyInput) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "RequestEmergencyCredential")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return "", goerror.InvalidInput(verr)
	}

	handle, err := s.emergency.Request(ctx, in.UserID, in.UserName)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "emergency credential requested", "user_id", in.UserID)
	return handle, nil
}

type ResolveEmergencyInput struct {
	Handle string `validate:"required"`
	Secret string `validate:"required"`
}

// ResolveEmergencyCredential reports whether the supplied secret opens the
// published recovery document. On success the secret is adopted as the
// user's TOTP secret (sealed, through the tier chain) and the document is
// revoked, closing the emergency window.
func (s *Usecase) ResolveEmergencyCredential(ctx context.Context, in ResolveEmergencyInput) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ResolveEmergencyCredential")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return false, goerror.InvalidInput(verr)
	}

	ok, err := s.emergency.Resolve(ctx, in.Handle, in.Secret)
	if err != nil || !ok {
		return false, err
	}

	userID, err := recovery.ParseHandle(in.Handle)
	if err != nil {
		return false, err
	}

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	if err := s.adoptSecret(ctx, userID, in.Secret); err != nil {
		// Resolution stands; adoption retries on the next resolve.
		slog.WarnContext(ctx, "emergency secret adoption failed",
			"user_id", userID, "error", err)
		return true, nil
	}

	if err := s.emergency.Revoke(ctx, userID); err != nil {
		slog.WarnContext(ctx, "emergency document revoke failed",
			"user_id", userID, "error", err)
	}

	slog.InfoContext(ctx, "emergency credential resolved", "user_id", userID)
	return true, nil
}

// adoptSecret makes the emergency secret the user's stored TOTP secret.
func (s *Usecase) adoptSecret(ctx context.Context, userID int64, secret string) error {
	user, _, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	sealed, err := s.sealSecret(userID, secret)
	if err != nil {
		return err
	}

	user.TOTPSecret = sealed
	user.LastOTP = ""
	_, err = s.store.UpsertUser(ctx, user)
	return err
}
