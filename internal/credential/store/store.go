// Package store chains the credential tiers into one fallback-aware store.
//
// Reads and writes go to the remote tier first. Connectivity and quota
// failures advance the chain to the local cache; writes that land only in
// the cache mark the user dirty so the next reconcile pushes them upstream.
// The emergency channel is not part of this chain; invoking it is an
// issuance-level decision.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

// DefaultCallTimeout bounds a single remote-tier call. The caller's own
// deadline still applies on top.
const DefaultCallTimeout = 5 * time.Second

// TierClient is the operation set both database tiers provide.
type TierClient interface {
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	UpsertUser(ctx context.Context, u *entity.User) error
	RecordOTPIssuance(ctx context.Context, id int64, code string, at time.Time) error
	AddSubscription(ctx context.Context, scannerID string, userID int64) error
	RemoveSubscription(ctx context.Context, scannerID string, userID int64) error
	ListSubscriptions(ctx context.Context, userID int64) ([]string, error)
	ReplaceSubscriptions(ctx context.Context, userID int64, scannerIDs []string) error
	CountUsers(ctx context.Context) (int64, error)
	CountSubscriptions(ctx context.Context) (int64, error)
	SampleUserIDs(ctx context.Context, limit int) ([]int64, error)
}

// RemoteTier is the networked database of record.
type RemoteTier interface {
	TierClient
}

// CacheTier is the file-backed cache with dirty markers and rebuild support.
type CacheTier interface {
	TierClient
	MarkDirty(ctx context.Context, userID int64) error
	ClearDirty(ctx context.Context, userID int64) error
	IsDirty(ctx context.Context, userID int64) (bool, error)
	ListDirty(ctx context.Context) ([]int64, error)
	DeleteUser(ctx context.Context, id int64) error
	Rebuild(ctx context.Context) error
}

// Store is the tiered credential store.
type Store struct {
	remote      RemoteTier
	cache       CacheTier
	callTimeout time.Duration

	// rebuildNeeded is set when the cache reports corruption; the next
	// successful remote read clears the cache before writing back.
	rebuildNeeded atomic.Bool
}

// New constructs a Store over the two database tiers.
func New(remote RemoteTier, cache CacheTier, callTimeout time.Duration) *Store {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Store{remote: remote, cache: cache, callTimeout: callTimeout}
}

// Remote exposes the remote tier for reconciliation, which bypasses the
// fallback chain on purpose.
func (s *Store) Remote() RemoteTier { return s.remote }

// Cache exposes the cache tier for reconciliation.
func (s *Store) Cache() CacheTier { return s.cache }

// GetUser reads through the chain. A remote NotFound is authoritative and
// does not consult the cache; a stale cached row, if any, is left for the
// next reconcile. Successful remote reads refresh the cache before
// returning.
func (s *Store) GetUser(ctx context.Context, id int64) (*entity.User, entity.Tier, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	user, err := s.remote.GetUser(cctx, id)
	cancel()

	if err == nil {
		s.writeBackUser(ctx, user)
		return user, entity.TierRemote, nil
	}
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, entity.TierRemote, goerror.ErrNotFound
	}
	if terr := callerExpired(ctx); terr != nil {
		return nil, "", terr
	}
	if !goerror.Fallthrough(err) {
		return nil, entity.TierRemote, err
	}
	s.logFallthrough(ctx, "GetUser", entity.TierRemote, err)
	attempts := []goerror.TierAttempt{{Tier: string(entity.TierRemote), Err: err}}

	user, err = s.cache.GetUser(ctx, id)
	if err == nil {
		return user, entity.TierLocal, nil
	}
	s.noteCacheFailure(err)
	if terr := callerExpired(ctx); terr != nil {
		return nil, "", terr
	}

	attempts = append(attempts, goerror.TierAttempt{Tier: string(entity.TierLocal), Err: err})
	return nil, "", &goerror.AllTiersFailed{Attempts: attempts}
}

// UpsertUser writes through the chain. A write that lands only in the cache
// marks the user dirty for the next reconcile.
func (s *Store) UpsertUser(ctx context.Context, u *entity.User) (entity.Tier, error) {
	return s.write(ctx, "UpsertUser", u.ID,
		func(ctx context.Context) error { return s.remote.UpsertUser(ctx, u) },
		func(ctx context.Context) error { return s.cache.UpsertUser(ctx, u) },
	)
}

// RecordOTPIssuance stamps the issued code through the chain.
func (s *Store) RecordOTPIssuance(ctx context.Context, id int64, code string, at time.Time) (entity.Tier, error) {
	return s.write(ctx, "RecordOTPIssuance", id,
		func(ctx context.Context) error { return s.remote.RecordOTPIssuance(ctx, id, code, at) },
		func(ctx context.Context) error { return s.cache.RecordOTPIssuance(ctx, id, code, at) },
	)
}

// AddSubscription registers the pair through the chain.
func (s *Store) AddSubscription(ctx context.Context, scannerID string, userID int64) (entity.Tier, error) {
	return s.write(ctx, "AddSubscription", userID,
		func(ctx context.Context) error { return s.remote.AddSubscription(ctx, scannerID, userID) },
		func(ctx context.Context) error { return s.cache.AddSubscription(ctx, scannerID, userID) },
	)
}

// RemoveSubscription drops the pair through the chain.
func (s *Store) RemoveSubscription(ctx context.Context, scannerID string, userID int64) (entity.Tier, error) {
	return s.write(ctx, "RemoveSubscription", userID,
		func(ctx context.Context) error { return s.remote.RemoveSubscription(ctx, scannerID, userID) },
		func(ctx context.Context) error { return s.cache.RemoveSubscription(ctx, scannerID, userID) },
	)
}

// ListSubscriptions reads the scanner set through the chain. Remote results
// refresh the cached set unless the user carries unpushed local changes.
func (s *Store) ListSubscriptions(ctx context.Context, userID int64) ([]string, entity.Tier, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	ids, err := s.remote.ListSubscriptions(cctx, userID)
	cancel()

	if err == nil {
		s.writeBackSubscriptions(ctx, userID, ids)
		return ids, entity.TierRemote, nil
	}
	if terr := callerExpired(ctx); terr != nil {
		return nil, "", terr
	}
	if !goerror.Fallthrough(err) {
		return nil, entity.TierRemote, err
	}
	s.logFallthrough(ctx, "ListSubscriptions", entity.TierRemote, err)
	attempts := []goerror.TierAttempt{{Tier: string(entity.TierRemote), Err: err}}

	ids, err = s.cache.ListSubscriptions(ctx, userID)
	if err == nil {
		return ids, entity.TierLocal, nil
	}
	s.noteCacheFailure(err)
	if terr := callerExpired(ctx); terr != nil {
		return nil, "", terr
	}

	attempts = append(attempts, goerror.TierAttempt{Tier: string(entity.TierLocal), Err: err})
	return nil, "", &goerror.AllTiersFailed{Attempts: attempts}
}

// write runs the remote/cache pair for one mutation. Remote success mirrors
// into the cache best effort; remote fallthrough lands the write in the
// cache and marks the user dirty.
func (s *Store) write(ctx context.Context, op string, userID int64, remote, cache func(context.Context) error) (entity.Tier, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	err := remote(cctx)
	cancel()

	if err == nil {
		if cerr := cache(ctx); cerr != nil && !errors.Is(cerr, goerror.ErrNotFound) {
			s.noteCacheFailure(cerr)
			slog.WarnContext(ctx, "cache mirror failed",
				"op", op, "user_id", userID, "error", cerr)
		}
		return entity.TierRemote, nil
	}
	if errors.Is(err, goerror.ErrNotFound) {
		return entity.TierRemote, goerror.ErrNotFound
	}
	if terr := callerExpired(ctx); terr != nil {
		return "", terr
	}
	if !goerror.Fallthrough(err) {
		return entity.TierRemote, err
	}
	s.logFallthrough(ctx, op, entity.TierRemote, err)
	attempts := []goerror.TierAttempt{{Tier: string(entity.TierRemote), Err: err}}

	if cerr := cache(ctx); cerr != nil {
		s.noteCacheFailure(cerr)
		if terr := callerExpired(ctx); terr != nil {
			return "", terr
		}
		attempts = append(attempts, goerror.TierAttempt{Tier: string(entity.TierLocal), Err: cerr})
		return "", &goerror.AllTiersFailed{Attempts: attempts}
	}

	if derr := s.cache.MarkDirty(ctx, userID); derr != nil {
		slog.WarnContext(ctx, "dirty marker write failed",
			"op", op, "user_id", userID, "error", derr)
	}
	return entity.TierLocal, nil
}

// writeBackUser refreshes the cached user row after a successful remote
// read, rebuilding the cache first when corruption was seen.
func (s *Store) writeBackUser(ctx context.Context, u *entity.User) {
	if !s.maybeRebuild(ctx) {
		return
	}
	if err := s.cache.UpsertUser(ctx, u); err != nil {
		s.noteCacheFailure(err)
		slog.WarnContext(ctx, "cache write-back failed", "user_id", u.ID, "error", err)
	}
}

func (s *Store) writeBackSubscriptions(ctx context.Context, userID int64, scannerIDs []string) {
	if !s.maybeRebuild(ctx) {
		return
	}

	// Unpushed local subscription changes win until reconcile; refreshing
	// over them would silently drop the offline writes.
	dirty, err := s.cache.IsDirty(ctx, userID)
	if err != nil {
		s.noteCacheFailure(err)
		return
	}
	if dirty {
		return
	}

	if err := s.cache.ReplaceSubscriptions(ctx, userID, scannerIDs); err != nil {
		s.noteCacheFailure(err)
		slog.WarnContext(ctx, "cache write-back failed", "user_id", userID, "error", err)
	}
}

// maybeRebuild clears a corrupted cache before the next write-back. Reports
// whether the cache is usable.
func (s *Store) maybeRebuild(ctx context.Context) bool {
	if !s.rebuildNeeded.Load() {
		return true
	}
	if err := s.cache.Rebuild(ctx); err != nil {
		slog.ErrorContext(ctx, "cache rebuild failed", "error", err)
		return false
	}
	s.rebuildNeeded.Store(false)
	slog.InfoContext(ctx, "cache rebuilt after corruption")
	return true
}

func (s *Store) noteCacheFailure(err error) {
	if errors.Is(err, goerror.ErrStorageCorrupt) {
		s.rebuildNeeded.Store(true)
	}
}

func (s *Store) logFallthrough(ctx context.Context, op string, tier entity.Tier, err error) {
	if errors.Is(err, goerror.ErrQuotaExceeded) {
		slog.WarnContext(ctx, "tier quota exceeded, falling through",
			"op", op, "tier", string(tier), "error", err)
		return
	}
	slog.WarnContext(ctx, "tier unavailable, falling through",
		"op", op, "tier", string(tier), "error", err)
}

// callerExpired reports the caller's own deadline expiring as ErrTimeout,
// distinct from a per-call timeout against one tier.
func callerExpired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", goerror.ErrTimeout, err)
	}
	return nil
}
