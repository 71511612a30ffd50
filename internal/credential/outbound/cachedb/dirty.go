package cachedb

import (
	"context"
	"errors"

	"github.com/scanwatch/credward/internal/pkg/goerror"
)

// MarkDirty flags the user as having writes the remote tier has not seen
// yet. The marker lives in its own table: an offline subscription write can
// land before any users row exists, and the flag must survive that too.
// Marking an already dirty user is a no-op.
func (s *Store) MarkDirty(ctx context.Context, userID int64) (err error) {
	ctx, span := s.startSpan(ctx, "MarkDirty")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dirty_users (userid) VALUES (?)
		 ON CONFLICT (userid) DO NOTHING`, userID)
	return s.mapError(err)
}

// IsDirty reports whether the user carries unpushed writes.
func (s *Store) IsDirty(ctx context.Context, userID int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "IsDirty")
	defer func() { s.endSpan(span, err) }()

	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM dirty_users WHERE userid = ?`, userID).Scan(&one)
	if err != nil {
		if mapped := s.mapError(err); !errors.Is(mapped, goerror.ErrNotFound) {
			return false, mapped
		}
		return false, nil
	}
	return true, nil
}

// ClearDirty drops the marker after the user's state has been pushed
// upstream.
func (s *Store) ClearDirty(ctx context.Context, userID int64) (err error) {
	ctx, span := s.startSpan(ctx, "ClearDirty")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM dirty_users WHERE userid = ?`, userID)
	return s.mapError(err)
}

// ListDirty returns the IDs of users carrying unpushed writes, in ascending
// order.
func (s *Store) ListDirty(ctx context.Context) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "ListDirty")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT userid FROM dirty_users ORDER BY userid`)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, s.mapError(err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}
	return ids, nil
}
