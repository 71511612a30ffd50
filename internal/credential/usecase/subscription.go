package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

type SubscribeInput struct {
	UserID int64 `validate:"required,gt=0"`
	// Scanners is a comma-delimited list of scanner IDs, e.g. "B_12_1,A_5_0".
	Scanners string `validate:"required"`
}

type UnsubscribeInput struct {
	UserID   int64  `validate:"required,gt=0"`
	Scanners string `validate:"required"`
}

// Subscribe registers the user on every named scanner job. Already-present
// pairs are no-ops, so retries and overlapping lists are safe. Returns true
// when every pair landed in some tier.
func (s *Usecase) Subscribe(ctx context.Context, in SubscribeInput) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "Subscribe")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return false, goerror.InvalidInput(verr)
	}

	scanners := parseScannerList(in.Scanners)
	if len(scanners) == 0 {
		return false, goerror.InvalidInput(errEmptyScannerList)
	}

	s.locks.Lock(in.UserID)
	defer s.locks.Unlock(in.UserID)

	for _, sid := range scanners {
		tier, err := s.store.AddSubscription(ctx, sid, in.UserID)
		if err != nil {
			return false, err
		}
		if tier == entity.TierLocal {
			slog.WarnContext(ctx, "subscription landed in cache only",
				"user_id", in.UserID, "scanner_id", sid)
		}
	}
	return true, nil
}

// Unsubscribe removes the user from every named scanner job. Absent pairs
// are no-ops. Returns true when every removal landed in some tier.
func (s *Usecase) Unsubscribe(ctx context.Context, in UnsubscribeInput) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "Unsubscribe")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return false, goerror.InvalidInput(verr)
	}

	scanners := parseScannerList(in.Scanners)
	if len(scanners) == 0 {
		return false, goerror.InvalidInput(errEmptyScannerList)
	}

	s.locks.Lock(in.UserID)
	defer s.locks.Unlock(in.UserID)

	for _, sid := range scanners {
		tier, err := s.store.RemoveSubscription(ctx, sid, in.UserID)
		if err != nil {
			return false, err
		}
		if tier == entity.TierLocal {
			slog.WarnContext(ctx, "unsubscription landed in cache only",
				"user_id", in.UserID, "scanner_id", sid)
		}
	}
	return true, nil
}

type ListSubscriptionsInput struct {
	UserID int64 `validate:"required,gt=0"`
}

type ListSubscriptionsOutput struct {
	// ScannerIDs is the user's registrations in ascending order.
	ScannerIDs []string
	// Source is the tier that served the read.
	Source entity.Tier
}

// ListSubscriptions returns the user's scanner registrations in ascending
// order.
func (s *Usecase) ListSubscriptions(ctx context.Context, in ListSubscriptionsInput) (_ *ListSubscriptionsOutput, err error) {
	ctx, span := s.startSpan(ctx, "ListSubscriptions")
	defer func() { endSpan(span, err) }()

	if verr := s.validator.Validate(in); verr != nil {
		return nil, goerror.InvalidInput(verr)
	}

	ids, tier, err := s.store.ListSubscriptions(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return &ListSubscriptionsOutput{ScannerIDs: ids, Source: tier}, nil
}

var errEmptyScannerList = errors.New("scanner list is empty")

// parseScannerList splits a comma-delimited scanner list into a deduplicated
// uppercase slice, preserving first-seen order.
func parseScannerList(raw string) []string {
	parts := strings.Split(raw, ",")
	cleaned := lo.FilterMap(parts, func(p string, _ int) (string, bool) {
		p = strings.ToUpper(strings.TrimSpace(p))
		return p, p != ""
	})
	return lo.Uniq(cleaned)
}
