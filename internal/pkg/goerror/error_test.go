package goerror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallthrough(t *testing.T) {
	assert.True(t, Fallthrough(Unreachable(errors.New("dial tcp: refused"))))
	assert.True(t, Fallthrough(QuotaExceeded(errors.New("too many requests"))))
	assert.True(t, Fallthrough(Corrupt(errors.New("malformed page"))))
	assert.False(t, Fallthrough(ErrNotFound))
	assert.False(t, Fallthrough(ErrTimeout))
	assert.False(t, Fallthrough(ErrInvalidOTP))
	assert.False(t, Fallthrough(nil))
}

func TestAllTiersFailedUnwrap(t *testing.T) {
	agg := &AllTiersFailed{Attempts: []TierAttempt{
		{Tier: "remote", Err: Unreachable(errors.New("refused"))},
		{Tier: "local", Err: ErrNotFound},
		{Tier: "emergency", Err: errors.New("bucket missing")},
	}}

	assert.True(t, errors.Is(agg, ErrUnreachable))
	assert.True(t, errors.Is(agg, ErrNotFound))
	assert.Contains(t, agg.Error(), "remote:")
	assert.Contains(t, agg.Error(), "emergency:")
}

func TestWrappersKeepCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unreachable(cause)

	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, Unreachable(nil))
	assert.Nil(t, QuotaExceeded(nil))
}
