package cachedb

import (
	"context"
	"database/sql"
	"time"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

const userColumns = `userid, username, name, email, mobile, totpsecret,
	subscriptionmodel, balance, lastotp, lastotpissuedat, otpvalidityseconds`

// GetUser fetches the cached user record for id.
func (s *Store) GetUser(ctx context.Context, id int64) (_ *entity.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUser")
	defer func() { s.endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE userid = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		return nil, s.mapError(err)
	}
	return user, nil
}

// UpsertUser inserts or fully replaces the cached user record. The dirty
// marker is left as is; callers that need a push upstream follow with
// MarkDirty.
func (s *Store) UpsertUser(ctx context.Context, u *entity.User) (err error) {
	ctx, span := s.startSpan(ctx, "UpsertUser")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (userid) DO UPDATE SET
			username = excluded.username,
			name = excluded.name,
			email = excluded.email,
			mobile = excluded.mobile,
			totpsecret = excluded.totpsecret,
			subscriptionmodel = excluded.subscriptionmodel,
			balance = excluded.balance,
			lastotp = excluded.lastotp,
			lastotpissuedat = excluded.lastotpissuedat,
			otpvalidityseconds = excluded.otpvalidityseconds`,
		u.ID, u.UserName, u.FullName, u.Email, u.Mobile, u.TOTPSecret,
		int(u.Plan), u.Balance, u.LastOTP, nullableTime(u.LastOTPIssuedAt), int64(u.OTPValiditySeconds),
	)
	return s.mapError(err)
}

// RecordOTPIssuance stamps the last issued code and time on the cached row.
func (s *Store) RecordOTPIssuance(ctx context.Context, id int64, code string, at time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "RecordOTPIssuance")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET lastotp = ?, lastotpissuedat = ? WHERE userid = ?`,
		code, at, id)
	if err != nil {
		return s.mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerror.ErrNotFound
	}
	return nil
}

// DeleteUser removes the cached row and its scanner registrations. Used when
// reconciliation finds the user gone from the remote tier.
func (s *Store) DeleteUser(ctx context.Context, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteUser")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = s.db.ExecContext(ctx,
		`DELETE FROM scanner_jobs WHERE userid = ?`, id); err != nil {
		return s.mapError(err)
	}
	if _, err = s.db.ExecContext(ctx,
		`DELETE FROM users WHERE userid = ?`, id); err != nil {
		return s.mapError(err)
	}
	if _, err = s.db.ExecContext(ctx,
		`DELETE FROM dirty_users WHERE userid = ?`, id); err != nil {
		return s.mapError(err)
	}
	return nil
}

// CountUsers returns the number of cached user rows.
func (s *Store) CountUsers(ctx context.Context) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountUsers")
	defer func() { s.endSpan(span, err) }()

	var n int64
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, s.mapError(err)
	}
	return n, nil
}

// SampleUserIDs returns up to limit cached user IDs in ascending order.
func (s *Store) SampleUserIDs(ctx context.Context, limit int) (_ []int64, err error) {
	ctx, span := s.startSpan(ctx, "SampleUserIDs")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT userid FROM users ORDER BY userid LIMIT ?`, limit)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		u        entity.User
		plan     int
		validity int64
		issuedAt sql.NullTime
		email    sql.NullString
		mobile   sql.NullString
		lastOTP  sql.NullString
	)

	err := row.Scan(&u.ID, &u.UserName, &u.FullName, &email, &mobile,
		&u.TOTPSecret, &plan, &u.Balance, &lastOTP, &issuedAt, &validity)
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	u.Mobile = mobile.String
	u.LastOTP = lastOTP.String
	u.Plan = entity.PlanFromValue(plan)
	if issuedAt.Valid {
		u.LastOTPIssuedAt = issuedAt.Time
	}
	if validity > 0 {
		u.OTPValiditySeconds = uint(validity)
	}
	return &u, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
