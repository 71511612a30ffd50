package remotedb

import (
	"context"
	"database/sql"
	"time"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

const userColumns = `userid, username, name, email, mobile, totpsecret,
	subscriptionmodel, balance, lastotp, lastotpissuedat, otpvalidityseconds`

// GetUser fetches the user record for id.
func (c *Client) GetUser(ctx context.Context, id int64) (_ *entity.User, err error) {
	ctx, span := c.startSpan(ctx, "GetUser")
	defer func() { c.endSpan(span, err) }()

	row := c.conn.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE userid = $1`, id)

	user, err := scanUser(row)
	if err != nil {
		return nil, c.mapError(err)
	}
	return user, nil
}

// UpsertUser inserts or fully replaces the user record.
func (c *Client) UpsertUser(ctx context.Context, u *entity.User) (err error) {
	ctx, span := c.startSpan(ctx, "UpsertUser")
	defer func() { c.endSpan(span, err) }()

	_, err = c.conn.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (userid) DO UPDATE SET
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			mobile = EXCLUDED.mobile,
			totpsecret = EXCLUDED.totpsecret,
			subscriptionmodel = EXCLUDED.subscriptionmodel,
			balance = EXCLUDED.balance,
			lastotp = EXCLUDED.lastotp,
			lastotpissuedat = EXCLUDED.lastotpissuedat,
			otpvalidityseconds = EXCLUDED.otpvalidityseconds`,
		u.ID, u.UserName, u.FullName, u.Email, u.Mobile, u.TOTPSecret,
		int(u.Plan), u.Balance, u.LastOTP, nullableTime(u.LastOTPIssuedAt), int64(u.OTPValiditySeconds),
	)
	return c.mapError(err)
}

// RecordOTPIssuance stamps the last issued code and time on the user row.
func (c *Client) RecordOTPIssuance(ctx context.Context, id int64, code string, at time.Time) (err error) {
	ctx, span := c.startSpan(ctx, "RecordOTPIssuance")
	defer func() { c.endSpan(span, err) }()

	tag, err := c.conn.Exec(ctx,
		`UPDATE users SET lastotp = $2, lastotpissuedat = $3 WHERE userid = $1`,
		id, code, at)
	if err != nil {
		return c.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}
	return nil
}

// CountUsers returns the number of user rows.
func (c *Client) CountUsers(ctx context.Context) (_ int64, err error) {
	ctx, span := c.startSpan(ctx, "CountUsers")
	defer func() { c.endSpan(span, err) }()

	var n int64
	if err = c.conn.QueryRow(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, c.mapError(err)
	}
	return n, nil
}

// SampleUserIDs returns up to limit user IDs in ascending order, used for
// field-level sync sampling.
func (c *Client) SampleUserIDs(ctx context.Context, limit int) (_ []int64, err error) {
	ctx, span := c.startSpan(ctx, "SampleUserIDs")
	defer func() { c.endSpan(span, err) }()

	rows, err := c.conn.Query(ctx,
		`SELECT userid FROM users ORDER BY userid LIMIT $1`, limit)
	if err != nil {
		return nil, c.mapError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
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
