// Package remotedb is the client for the networked database of record. It is
// the first tier in the fallback chain and the authority during
// reconciliation.
package remotedb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/instrument"
)

// Client talks to the remote tier over a pgx connection pool.
type Client struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

// New constructs a Client over an established pool.
func New(conn *pgxpool.Pool, ins instrument.Instrumentation) *Client {
	return &Client{conn: conn, ins: ins}
}

// mapError folds pgx failures into the tier taxonomy:
//   - no rows                      → ErrNotFound
//   - SQLSTATE class 53 and 57014  → ErrQuotaExceeded (resource limits,
//     statement canceled by the backend)
//   - anything else, including dial and timeout failures → ErrUnreachable
func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if len(code) >= 2 && code[:2] == "53" || code == "57014" {
			return goerror.QuotaExceeded(err)
		}
	}

	return goerror.Unreachable(err)
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("credential.outbound.remotedb").Start(ctx, name)
}

func (c *Client) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
