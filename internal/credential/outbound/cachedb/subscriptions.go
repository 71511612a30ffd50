package cachedb

import (
	"context"
)

// AddSubscription registers the user on a scanner job in the cache. Adding
// an existing pair is a no-op.
func (s *Store) AddSubscription(ctx context.Context, scannerID string, userID int64) (err error) {
	ctx, span := s.startSpan(ctx, "AddSubscription")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scanner_jobs (scannerid, userid)
		VALUES (?, ?)
		ON CONFLICT (scannerid, userid) DO NOTHING`,
		scannerID, userID)
	return s.mapError(err)
}

// RemoveSubscription drops the user from a scanner job in the cache.
// Removing an absent pair is a no-op.
func (s *Store) RemoveSubscription(ctx context.Context, scannerID string, userID int64) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveSubscription")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM scanner_jobs WHERE scannerid = ? AND userid = ?`,
		scannerID, userID)
	return s.mapError(err)
}

// ListSubscriptions returns the scanner IDs the cached user is registered
// on, in ascending order.
func (s *Store) ListSubscriptions(ctx context.Context, userID int64) (_ []string, err error) {
	ctx, span := s.startSpan(ctx, "ListSubscriptions")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT scannerid FROM scanner_jobs WHERE userid = ? ORDER BY scannerid`,
		userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
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

// ReplaceSubscriptions swaps the cached scanner set for the user. Used when
// pulling authoritative remote state down.
func (s *Store) ReplaceSubscriptions(ctx context.Context, userID int64, scannerIDs []string) (err error) {
	ctx, span := s.startSpan(ctx, "ReplaceSubscriptions")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.mapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM scanner_jobs WHERE userid = ?`, userID); err != nil {
		return s.mapError(err)
	}
	for _, sid := range scannerIDs {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO scanner_jobs (scannerid, userid)
			VALUES (?, ?)
			ON CONFLICT (scannerid, userid) DO NOTHING`,
			sid, userID); err != nil {
			return s.mapError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return s.mapError(err)
	}
	return nil
}

// CountSubscriptions returns the number of cached scanner job rows.
func (s *Store) CountSubscriptions(ctx context.Context) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountSubscriptions")
	defer func() { s.endSpan(span, err) }()

	var n int64
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scanner_jobs`).Scan(&n); err != nil {
		return 0, s.mapError(err)
	}
	return n, nil
}
