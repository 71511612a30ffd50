// Package usecase implements the credential operations: OTP issuance and
// validation, scanner subscriptions, tier synchronization, and the emergency
// recovery flow.
package usecase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/clock"
	"github.com/scanwatch/credward/internal/pkg/config"
	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/keylock"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/secrets"
	"github.com/scanwatch/credward/internal/pkg/validator"
)

// DefaultValiditySeconds applies when neither the caller nor the user record
// carries a validity interval.
const DefaultValiditySeconds = 86400

// tieredStore is the fallback-aware credential store.
type tieredStore interface {
	GetUser(ctx context.Context, id int64) (*entity.User, entity.Tier, error)
	UpsertUser(ctx context.Context, u *entity.User) (entity.Tier, error)
	RecordOTPIssuance(ctx context.Context, id int64, code string, at time.Time) (entity.Tier, error)
	AddSubscription(ctx context.Context, scannerID string, userID int64) (entity.Tier, error)
	RemoveSubscription(ctx context.Context, scannerID string, userID int64) (entity.Tier, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]string, entity.Tier, error)
}

// syncTier is the per-tier view sync checking and reconciliation work on.
type syncTier interface {
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	UpsertUser(ctx context.Context, u *entity.User) error
	ListSubscriptions(ctx context.Context, userID int64) ([]string, error)
	ReplaceSubscriptions(ctx context.Context, userID int64, scannerIDs []string) error
	CountUsers(ctx context.Context) (int64, error)
	CountSubscriptions(ctx context.Context) (int64, error)
	SampleUserIDs(ctx context.Context, limit int) ([]int64, error)
}

// syncCache adds the cache-only operations reconciliation needs.
type syncCache interface {
	syncTier
	ListDirty(ctx context.Context) ([]int64, error)
	ClearDirty(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, id int64) error
}

// emergencyChannel publishes and resolves emergency credential documents.
type emergencyChannel interface {
	Request(ctx context.Context, userID int64, accountName string) (string, error)
	Resolve(ctx context.Context, handle, secret string) (bool, error)
	Revoke(ctx context.Context, userID int64) error
}

type Usecase struct {
	store     tieredStore
	remote    syncTier
	cache     syncCache
	emergency emergencyChannel
	sealer    secrets.Encryptor
	totp      otp.Engine
	locks     *keylock.KeyLock
	validator validator.Validator
	cfg       config.Config
	clock     clock.Clocker
	ins       instrument.Instrumentation
}

type Dependency struct {
	Store      tieredStore
	Remote     syncTier
	Cache      syncCache
	Emergency  emergencyChannel
	Sealer     secrets.Encryptor
	Totp       otp.Engine
	Locks      *keylock.KeyLock
	Validator  validator.Validator
	Config     config.Config
	Clock      clock.Clocker
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	if dep.Locks == nil {
		dep.Locks = keylock.New(0)
	}
	return &Usecase{
		store:     dep.Store,
		remote:    dep.Remote,
		cache:     dep.Cache,
		emergency: dep.Emergency,
		sealer:    dep.Sealer,
		totp:      dep.Totp,
		locks:     dep.Locks,
		validator: dep.Validator,
		cfg:       dep.Config,
		clock:     dep.Clock,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("credential.usecase").Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrInvalidOTP) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// openSecret unseals the stored TOTP secret for use.
func (s *Usecase) openSecret(u *entity.User) (string, error) {
	plain, err := s.sealer.Decrypt(u.TOTPSecret, secrets.Scope{
		UserID:  u.ID,
		Purpose: secrets.PurposeTOTPSeed,
	})
	if err != nil {
		return "", goerror.Corrupt(err)
	}
	return string(plain), nil
}

// sealSecret seals a fresh TOTP secret for storage.
func (s *Usecase) sealSecret(userID int64, secret string) ([]byte, error) {
	sealed, err := s.sealer.Encrypt([]byte(secret), secrets.Scope{
		UserID:  userID,
		Purpose: secrets.PurposeTOTPSeed,
	})
	if err != nil {
		return nil, goerror.Corrupt(err)
	}
	return sealed, nil
}

func (s *Usecase) validityFor(u *entity.User, requested uint) uint {
	if requested > 0 {
		return requested
	}
	if u != nil && u.OTPValiditySeconds > 0 {
		return u.OTPValiditySeconds
	}
	v := s.cfg.GetInt("otp.validity_seconds")
	if v > 0 {
		return uint(v)
	}
	return DefaultValiditySeconds
}
