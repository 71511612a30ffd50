package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

type IssueOTPInput struct {
	UserID          int64  `validate:"required,gt=0"`
	UserName        string `validate:"required,max=64"`
	FullName        string `validate:"max=128"`
	ValiditySeconds uint
}

type IssueOTPOutput struct {
	// Code is the derived passcode. Empty when the request fell through to
	// the emergency channel.
	Code string
	// Plan is the user's subscription tier at issuance time.
	Plan entity.SubscriptionPlan
	// Source is the tier that served the request.
	Source entity.Tier
	// RecoveryHandle is set only when Source is TierEmergency; the caller
	// resolves it out of band.
	RecoveryHandle string
	// User is the record the code was derived from; nil on the emergency path.
	User *entity.User
}

// IssueOTP derives the current passcode for a user, creating the user and
// its secret on first contact. Two calls inside the same time step return
// the same code. When neither database tier can serve the request the
// emergency channel is invoked, once, and the returned handle stands in for
// the code.
func (s *Usecase) IssueOTP(ctx context.Context, in IssueOTPInput) (_ *IssueOTPOutput, err error) {
	ctx, span := s.startSpan(ctx, "IssueOTP")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return nil, goerror.InvalidInput(verr)
	}

	s.locks.Lock(in.UserID)
	defer s.locks.Unlock(in.UserID)

	// The aggregate must be checked before the sentinels: its attempts can
	// carry a bare ErrNotFound from the cache tier, and errors.Is would
	// otherwise route a total outage into registration.
	var all *goerror.AllTiersFailed

	user, tier, err := s.store.GetUser(ctx, in.UserID)
	switch {
	case err == nil:
		// fallthrough to issuance

	case errors.As(err, &all):
		return s.issueEmergency(ctx, in, all)

	case errors.Is(err, goerror.ErrNotFound):
		// Registration on demand: the authoritative tier has never seen
		// this user, so first issuance creates the record.
		user, tier, err = s.registerUser(ctx, in)
		if err != nil {
			if errors.As(err, &all) {
				return s.issueEmergency(ctx, in, all)
			}
			return nil, err
		}

	default:
		return nil, err
	}

	if !user.HasSecret() {
		if user, err = s.attachSecret(ctx, in, user); err != nil {
			return nil, err
		}
	}

	secret, err := s.openSecret(user)
	if err != nil {
		slog.ErrorContext(ctx, "stored secret unreadable", "user_id", in.UserID, "error", err)
		return nil, err
	}

	now := s.clock.Now()
	period := s.validityFor(user, in.ValiditySeconds)

	code, err := s.totp.Code(secret, now, period)
	if err != nil {
		return nil, err
	}

	// Re-issuing the code already on record inside its window changes
	// nothing; skip the write so retries stay cheap and idempotent.
	if user.LastOTP != code {
		recTier, err := s.store.RecordOTPIssuance(ctx, in.UserID, code, now)
		if err != nil {
			var all *goerror.AllTiersFailed
			if errors.As(err, &all) {
				return s.issueEmergency(ctx, in, all)
			}
			return nil, err
		}
		tier = recTier
		user.LastOTP = code
		user.LastOTPIssuedAt = now
	}

	slog.InfoContext(ctx, "otp issued",
		"user_id", in.UserID, "source", string(tier), "plan", user.Plan.String())

	return &IssueOTPOutput{
		Code:   code,
		Plan:   user.Plan,
		Source: tier,
		User:   user,
	}, nil
}

// registerUser creates the user record with a fresh sealed secret.
func (s *Usecase) registerUser(ctx context.Context, in IssueOTPInput) (*entity.User, entity.Tier, error) {
	secret, err := s.totp.GenerateSecret(in.UserName)
	if err != nil {
		return nil, "", err
	}

	sealed, err := s.sealSecret(in.UserID, secret)
	if err != nil {
		return nil, "", err
	}

	user := &entity.User{
		ID:                 in.UserID,
		UserName:           in.UserName,
		FullName:           in.FullName,
		TOTPSecret:         sealed,
		Plan:               entity.PlanFree,
		OTPValiditySeconds: s.validityFor(nil, in.ValiditySeconds),
	}

	tier, err := s.store.UpsertUser(ctx, user)
	if err != nil {
		return nil, "", err
	}

	slog.InfoContext(ctx, "user registered on first issuance",
		"user_id", in.UserID, "tier", string(tier))
	return user, tier, nil
}

// attachSecret backfills a secret for a user row that predates enrollment.
func (s *Usecase) attachSecret(ctx context.Context, in IssueOTPInput, user *entity.User) (*entity.User, error) {
	secret, err := s.totp.GenerateSecret(user.UserName)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealSecret(user.ID, secret)
	if err != nil {
		return nil, err
	}

	user.TOTPSecret = sealed
	if _, err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// issueEmergency invokes the recovery channel after both database tiers
// failed. It runs at most once per issuance.
func (s *Usecase) issueEmergency(ctx context.Context, in IssueOTPInput, cause *goerror.AllTiersFailed) (*IssueOTPOutput, error) {
	slog.WarnContext(ctx, "both database tiers failed, invoking emergency channel",
		"user_id", in.UserID, "cause", cause.Error())

	handle, err := s.emergency.Request(ctx, in.UserID, in.UserName)
	if err != nil {
		cause.Attempts = append(cause.Attempts, goerror.TierAttempt{
			Tier: string(entity.TierEmergency),
			Err:  err,
		})
		return nil, cause
	}

	return &IssueOTPOutput{
		Source:         entity.TierEmergency,
		RecoveryHandle: handle,
	}, nil
}
