package remotedb

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/scanwatch/credward/internal/pkg/goerror"
)

func TestClient_mapError(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil passes through", in: nil, want: nil},
		{name: "no rows is not found", in: pgx.ErrNoRows, want: goerror.ErrNotFound},
		{
			name: "disk full is quota",
			in:   &pgconn.PgError{Code: "53100"},
			want: goerror.ErrQuotaExceeded,
		},
		{
			name: "too many connections is quota",
			in:   &pgconn.PgError{Code: "53300"},
			want: goerror.ErrQuotaExceeded,
		},
		{
			name: "statement canceled is quota",
			in:   &pgconn.PgError{Code: "57014"},
			want: goerror.ErrQuotaExceeded,
		},
		{
			name: "constraint violation is unreachable",
			in:   &pgconn.PgError{Code: "23505"},
			want: goerror.ErrUnreachable,
		},
		{
			name: "dial failure is unreachable",
			in:   errors.New("dial tcp: connection refused"),
			want: goerror.ErrUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.mapError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}
