package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

// DefaultSyncSampleSize bounds the per-user field comparison when config
// does not say otherwise.
const DefaultSyncSampleSize = 100

type SyncStatusOutput struct {
	// NeedsSync is true when any divergence between the tiers was found.
	NeedsSync bool
	// Messages describes each divergence in human-readable form.
	Messages []string
}

// CheckSyncStatus compares the two database tiers: row counts for users and
// scanner jobs, pending dirty markers, and field-level equality over a
// bounded sample of users. It never mutates either tier.
func (s *Usecase) CheckSyncStatus(ctx context.Context) (_ *SyncStatusOutput, err error) {
	ctx, span := s.startSpan(ctx, "CheckSyncStatus")
	defer func() { endSpan(span, err) }()

	var messages []string

	remoteUsers, err := s.remote.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	localUsers, err := s.cache.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if remoteUsers != localUsers {
		messages = append(messages,
			fmt.Sprintf("user row count mismatch: remote=%d local=%d", remoteUsers, localUsers))
	}

	remoteSubs, err := s.remote.CountSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	localSubs, err := s.cache.CountSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if remoteSubs != localSubs {
		messages = append(messages,
			fmt.Sprintf("subscription row count mismatch: remote=%d local=%d", remoteSubs, localSubs))
	}

	dirty, err := s.cache.ListDirty(ctx)
	if err != nil {
		return nil, err
	}
	if len(dirty) > 0 {
		messages = append(messages,
			fmt.Sprintf("%d user(s) carry unpushed local writes", len(dirty)))
	}

	sampleMsgs, err := s.compareSample(ctx)
	if err != nil {
		return nil, err
	}
	messages = append(messages, sampleMsgs...)

	return &SyncStatusOutput{NeedsSync: len(messages) > 0, Messages: messages}, nil
}

// compareSample diff-checks a bounded sample of users field by field.
func (s *Usecase) compareSample(ctx context.Context) ([]string, error) {
	limit := s.sampleSize()

	ids, err := s.remote.SampleUserIDs(ctx, limit)
	if err != nil {
		return nil, err
	}

	var messages []string
	for _, id := range ids {
		ru, err := s.remote.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}

		lu, err := s.cache.GetUser(ctx, id)
		if errors.Is(err, goerror.ErrNotFound) {
			messages = append(messages, fmt.Sprintf("user %d missing locally", id))
			continue
		}
		if err != nil {
			return nil, err
		}

		if diff := diffUsers(ru, lu); diff != "" {
			messages = append(messages, fmt.Sprintf("user %d diverges: %s", id, diff))
		}
	}
	return messages, nil
}

type ReconcileOutput struct {
	// PushedUsers is how many dirty local users were pushed upstream.
	PushedUsers int
	// PulledUsers is how many users were refreshed from the remote tier.
	PulledUsers int
	// EvictedUsers is how many local rows were dropped because the remote
	// tier no longer has them.
	EvictedUsers int
}

// Reconcile repairs divergence between the tiers. Dirty local writes are
// pushed up first and their markers cleared; then the remote tier, being
// authoritative, overwrites the sampled local rows and local rows for users
// the remote tier no longer has are evicted. Running it twice in a row is a
// no-op the second time.
func (s *Usecase) Reconcile(ctx context.Context) (_ *ReconcileOutput, err error) {
	ctx, span := s.startSpan(ctx, "Reconcile")
	defer func() { endSpan(span, err) }()

	out := &ReconcileOutput{}

	if out.PushedUsers, err = s.pushDirty(ctx); err != nil {
		return nil, err
	}
	if out.PulledUsers, out.EvictedUsers, err = s.pullAuthoritative(ctx); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "tiers reconciled",
		"pushed", out.PushedUsers, "pulled", out.PulledUsers, "evicted", out.EvictedUsers)
	return out, nil
}

// pushDirty sends each dirty local user's state to the remote tier and
// clears the marker.
func (s *Usecase) pushDirty(ctx context.Context) (int, error) {
	dirty, err := s.cache.ListDirty(ctx)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, id := range dirty {
		s.locks.Lock(id)

		if err := s.pushUser(ctx, id); err != nil {
			s.locks.Unlock(id)
			return pushed, err
		}
		if err := s.cache.ClearDirty(ctx, id); err != nil {
			s.locks.Unlock(id)
			return pushed, err
		}

		s.locks.Unlock(id)
		pushed++
	}
	return pushed, nil
}

func (s *Usecase) pushUser(ctx context.Context, id int64) error {
	lu, err := s.cache.GetUser(ctx, id)
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		return err
	}

	// A user the remote tier has never seen was created offline; push the
	// whole record. Otherwise only the subscription set moves up, the
	// record itself stays remote-authoritative. A marker without a cached
	// row means only subscriptions were written offline.
	if lu != nil {
		_, rerr := s.remote.GetUser(ctx, id)
		if errors.Is(rerr, goerror.ErrNotFound) {
			if err := s.remote.UpsertUser(ctx, lu); err != nil {
				return err
			}
		} else if rerr != nil {
			return rerr
		}
	}

	subs, err := s.cache.ListSubscriptions(ctx, id)
	if err != nil {
		return err
	}
	return s.remote.ReplaceSubscriptions(ctx, id, subs)
}

// pullAuthoritative overwrites sampled local rows with remote state and
// evicts local rows the remote tier no longer has.
func (s *Usecase) pullAuthoritative(ctx context.Context) (pulled, evicted int, err error) {
	limit := s.sampleSize()

	remoteIDs, err := s.remote.SampleUserIDs(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range remoteIDs {
		ru, err := s.remote.GetUser(ctx, id)
		if errors.Is(err, goerror.ErrNotFound) {
			continue // deleted between sample and read
		}
		if err != nil {
			return pulled, evicted, err
		}

		subs, err := s.remote.ListSubscriptions(ctx, id)
		if err != nil {
			return pulled, evicted, err
		}

		s.locks.Lock(id)
		if err := s.cache.UpsertUser(ctx, ru); err != nil {
			s.locks.Unlock(id)
			return pulled, evicted, err
		}
		if err := s.cache.ReplaceSubscriptions(ctx, id, subs); err != nil {
			s.locks.Unlock(id)
			return pulled, evicted, err
		}
		s.locks.Unlock(id)
		pulled++
	}

	localIDs, err := s.cache.SampleUserIDs(ctx, limit)
	if err != nil {
		return pulled, evicted, err
	}

	for _, id := range lo.Without(localIDs, remoteIDs...) {
		if _, err := s.remote.GetUser(ctx, id); err == nil {
			continue // outside the sampled window, not missing
		} else if !errors.Is(err, goerror.ErrNotFound) {
			return pulled, evicted, err
		}

		s.locks.Lock(id)
		err := s.cache.DeleteUser(ctx, id)
		s.locks.Unlock(id)
		if err != nil {
			return pulled, evicted, err
		}
		evicted++
	}

	return pulled, evicted, nil
}

func (s *Usecase) sampleSize() int {
	if n := s.cfg.GetInt("sync.sample_size"); n > 0 {
		return n
	}
	return DefaultSyncSampleSize
}

// diffUsers names the fields on which the two copies of a user disagree.
func diffUsers(remote, local *entity.User) string {
	var fields []string
	if remote.UserName != local.UserName {
		fields = append(fields, "username")
	}
	if remote.FullName != local.FullName {
		fields = append(fields, "name")
	}
	if remote.Email != local.Email {
		fields = append(fields, "email")
	}
	if remote.Mobile != local.Mobile {
		fields = append(fields, "mobile")
	}
	if !bytes.Equal(remote.TOTPSecret, local.TOTPSecret) {
		fields = append(fields, "totpsecret")
	}
	if remote.Plan != local.Plan {
		fields = append(fields, "subscriptionmodel")
	}
	if remote.Balance != local.Balance {
		fields = append(fields, "balance")
	}
	if remote.LastOTP != local.LastOTP {
		fields = append(fields, "lastotp")
	}
	if remote.OTPValiditySeconds != local.OTPValiditySeconds {
		fields = append(fields, "otpvalidityseconds")
	}
	slices.Sort(fields)
	return strings.Join(fields, ",")
}
