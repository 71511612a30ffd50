package remotedb

import (
	"context"
)

// AddSubscription registers the user on a scanner job. Adding an existing
// pair is a no-op.
func (c *Client) AddSubscription(ctx context.Context, scannerID string, userID int64) (err error) {
	ctx, span := c.startSpan(ctx, "AddSubscription")
	defer func() { c.endSpan(span, err) }()

	_, err = c.conn.Exec(ctx, `
		INSERT INTO scanner_jobs (scannerid, userid)
		VALUES ($1, $2)
		ON CONFLICT (scannerid, userid) DO NOTHING`,
		scannerID, userID)
	return c.mapError(err)
}

// RemoveSubscription drops the user from a scanner job. Removing an absent
// pair is a no-op.
func (c *Client) RemoveSubscription(ctx context.Context, scannerID string, userID int64) (err error) {
	ctx, span := c.startSpan(ctx, "RemoveSubscription")
	defer func() { c.endSpan(span, err) }()

	_, err = c.conn.Exec(ctx,
		`DELETE FROM scanner_jobs WHERE scannerid = $1 AND userid = $2`,
		scannerID, userID)
	return c.mapError(err)
}

// ListSubscriptions returns the scanner IDs the user is registered on, in
// ascending order.
func (c *Client) ListSubscriptions(ctx context.Context, userID int64) (_ []string, err error) {
	ctx, span := c.startSpan(ctx, "ListSubscriptions")
	defer func() { c.endSpan(span, err) }()

	rows, err := c.conn.Query(ctx,
		`SELECT scannerid FROM scanner_jobs WHERE userid = $1 ORDER BY scannerid`,
		userID)
	if err != nil {
		return nil, c.mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, c.mapError(err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, c.mapError(err)
	}
	return ids, nil
}

// ReplaceSubscriptions atomically swaps the user's scanner set for the given
// one. Used when pushing reconciled local state up.
func (c *Client) ReplaceSubscriptions(ctx context.Context, userID int64, scannerIDs []string) (err error) {
	ctx, span := c.startSpan(ctx, "ReplaceSubscriptions")
	defer func() { c.endSpan(span, err) }()

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return c.mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx,
		`DELETE FROM scanner_jobs WHERE userid = $1`, userID); err != nil {
		return c.mapError(err)
	}
	for _, sid := range scannerIDs {
		if _, err = tx.Exec(ctx, `
			INSERT INTO scanner_jobs (scannerid, userid)
			VALUES ($1, $2)
			ON CONFLICT (scannerid, userid) DO NOTHING`,
			sid, userID); err != nil {
			return c.mapError(err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return c.mapError(err)
	}
	return nil
}

// CountSubscriptions returns the number of scanner job rows.
func (c *Client) CountSubscriptions(ctx context.Context) (_ int64, err error) {
	ctx, span := c.startSpan(ctx, "CountSubscriptions")
	defer func() { c.endSpan(span, err) }()

	var n int64
	if err = c.conn.QueryRow(ctx, `SELECT COUNT(1) FROM scanner_jobs`).Scan(&n); err != nil {
		return 0, c.mapError(err)
	}
	return n, nil
}
