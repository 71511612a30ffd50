// Package cachedb is the file-backed cache tier. It mirrors the remote
// schema into a local sqlite file so issuance keeps working while the remote
// tier is down, and carries dirty markers for writes that still have to be
// pushed upstream.
package cachedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/instrument"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	userid             INTEGER PRIMARY KEY,
	username           TEXT NOT NULL,
	name               TEXT NOT NULL,
	email              TEXT,
	mobile             TEXT,
	totpsecret         BLOB,
	subscriptionmodel  INTEGER NOT NULL DEFAULT 0,
	balance            REAL NOT NULL DEFAULT 0,
	lastotp            TEXT,
	lastotpissuedat    TIMESTAMP,
	otpvalidityseconds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scanner_jobs (
	scannerid TEXT NOT NULL,
	userid    INTEGER NOT NULL,
	PRIMARY KEY (scannerid, userid)
);

CREATE TABLE IF NOT EXISTS dirty_users (
	userid INTEGER PRIMARY KEY
);
`

// Store is the sqlite-backed cache tier. sqlite allows one writer at a time,
// so writes are serialized through mu rather than relying on busy retries.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	ins instrument.Instrumentation
}

// Open opens (creating if needed) the cache file at path and bootstraps the
// schema.
func Open(ctx context.Context, path string, ins instrument.Instrumentation) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerror.Unreachable(err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ins: ins}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, s.mapError(err)
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Verify runs an integrity check against the cache file. A failed check is
// reported as storage corruption so the caller can rebuild from the remote
// tier.
func (s *Store) Verify(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Verify")
	defer func() { s.endSpan(span, err) }()

	var result string
	if err = s.db.QueryRowContext(ctx, `PRAGMA integrity_check(1)`).Scan(&result); err != nil {
		return s.mapError(err)
	}
	if result != "ok" {
		return goerror.Corrupt(fmt.Errorf("integrity check: %s", result))
	}
	return nil
}

// Rebuild drops all cached rows. The cache repopulates through read-path
// write-backs and the next reconcile.
func (s *Store) Rebuild(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Rebuild")
	defer func() { s.endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range []string{`DELETE FROM scanner_jobs`, `DELETE FROM users`, `DELETE FROM dirty_users`} {
		if _, err = s.db.ExecContext(ctx, stmt); err != nil {
			return s.mapError(err)
		}
	}
	return nil
}

// mapError folds sqlite failures into the tier taxonomy:
//   - no rows                        → ErrNotFound
//   - SQLITE_CORRUPT, SQLITE_NOTADB  → ErrStorageCorrupt
//   - SQLITE_FULL                    → ErrQuotaExceeded
//   - anything else                  → ErrUnreachable
func (s *Store) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return goerror.Corrupt(err)
		case sqlite3.SQLITE_FULL:
			return goerror.QuotaExceeded(err)
		}
	}

	return goerror.Unreachable(err)
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("credential.outbound.cachedb").Start(ctx, name)
}

func (s *Store) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
