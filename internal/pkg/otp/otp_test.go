package otp

import (
	"testing"
	"time"

	libotp "github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*TOTP, string) {
	t.Helper()

	e := NewTOTP("credward-test", libotp.DigitsSix)
	secret, err := e.GenerateSecret("alice")
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	return e, secret
}

func TestSameStepIsIdempotent(t *testing.T) {
	e, secret := newEngine(t)
	base := time.Unix(1_700_000_040, 0) // step-aligned for period 60

	first, err := e.Code(secret, base, 60)
	require.NoError(t, err)
	second, err := e.Code(secret, base.Add(30*time.Second), 60)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 6)
}

func TestNextStepChangesCode(t *testing.T) {
	e, secret := newEngine(t)
	base := time.Unix(1_700_000_040, 0)

	first, err := e.Code(secret, base, 60)
	require.NoError(t, err)
	later, err := e.Code(secret, base.Add(61*time.Second), 60)
	require.NoError(t, err)

	assert.NotEqual(t, first, later)
}

func TestValidateWithinWindow(t *testing.T) {
	e, secret := newEngine(t)
	base := time.Unix(1_700_000_040, 0)

	code, err := e.Code(secret, base, 60)
	require.NoError(t, err)

	assert.True(t, e.Validate(code, secret, base, 60))
	assert.True(t, e.Validate(code, secret, base.Add(59*time.Second), 60))
}

func TestValidateGraceIsExactlyOneStep(t *testing.T) {
	e, secret := newEngine(t)
	base := time.Unix(1_700_000_040, 0)

	code, err := e.Code(secret, base, 60)
	require.NoError(t, err)

	// Preceding-step grace: still valid during the next step.
	assert.True(t, e.Validate(code, secret, base.Add(60*time.Second), 60))
	// Two steps later it must be rejected.
	assert.False(t, e.Validate(code, secret, base.Add(120*time.Second), 60))
}

func TestValidateRejectsFutureStep(t *testing.T) {
	e, secret := newEngine(t)
	base := time.Unix(1_700_000_040, 0)

	future, err := e.Code(secret, base.Add(60*time.Second), 60)
	require.NoError(t, err)

	assert.False(t, e.Validate(future, secret, base, 60))
}

func TestValidateRejectsGarbage(t *testing.T) {
	e, secret := newEngine(t)
	at := time.Unix(1_700_000_000, 0)

	assert.False(t, e.Validate("000000", secret, at, 60))
	assert.False(t, e.Validate("", secret, at, 60))
	assert.False(t, e.Validate("not-a-code", secret, at, 60))
}
