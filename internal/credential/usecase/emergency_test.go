package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	pquerna "github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwatch/credward/internal/credential/outbound/recovery"
	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/goroutine"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/storage"
	"github.com/scanwatch/credward/internal/pkg/uid"
)

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjectStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Bucket: bucket, Key: key}, nil
}

func (m *memObjectStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Bucket: bucket, Key: key}, nil
}

func (m *memObjectStore) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[bucket+"/"+key]; !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Bucket: bucket, Key: key}, nil
}

func (m *memObjectStore) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memObjectStore) Close() error { return nil }

type secretSink struct {
	mu      sync.Mutex
	secrets map[int64]string
}

func (d *secretSink) Deliver(_ context.Context, userID int64, secret string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.secrets[userID] = secret
	return nil
}

// withRealChannel swaps the fake emergency channel for a real one over
// in-memory object storage.
func withRealChannel(t *testing.T, d *ucDeps) (*secretSink, *goroutine.Manager) {
	t.Helper()

	sink := &secretSink{secrets: map[int64]string{}}
	tasks := goroutine.NewManager(4)

	d.uc.emergency = recovery.NewChannel(recovery.Config{
		Store:     &memObjectStore{objects: map[string][]byte{}},
		Bucket:    "credward-recovery",
		Engine:    otp.NewTOTP("credward", pquerna.DigitsSix),
		IDs:       uid.NewUUID(),
		Tasks:     tasks,
		Deliverer: sink,
		Clock:     d.clock,
		Ins:       instrument.NewNoop(),
	})
	return sink, tasks
}

func TestResolveEmergencyCredential_AdoptsSecret(t *testing.T) {
	d := newTestUsecase(t)
	ctx := context.Background()

	// The user existed before the outage took both database tiers down.
	issued, err := d.uc.IssueOTP(ctx, IssueOTPInput{
		UserID: 1001, UserName: "trader_jane", ValiditySeconds: testPeriod,
	})
	require.NoError(t, err)
	oldSecret := d.chain.backend.users[1001].TOTPSecret

	sink, tasks := withRealChannel(t, d)

	handle, err := d.uc.RequestEmergencyCredential(ctx, RequestEmergencyInput{
		UserID: 1001, UserName: "trader_jane",
	})
	require.NoError(t, err)
	require.NoError(t, tasks.Wait())

	secret := sink.secrets[1001]
	require.NotEmpty(t, secret)

	ok, err := d.uc.ResolveEmergencyCredential(ctx, ResolveEmergencyInput{
		Handle: handle, Secret: secret,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// The emergency secret is now the stored one, sealed, and derives the
	// codes that validate; the pre-outage code is void.
	stored := d.chain.backend.users[1001]
	assert.NotEqual(t, oldSecret, stored.TOTPSecret)
	assert.Empty(t, stored.LastOTP)

	code, err := d.engine.Code(secret, d.clock.Now(), testPeriod)
	require.NoError(t, err)

	ok, err = d.uc.ValidateOTP(ctx, ValidateOTPInput{UserID: 1001, Code: code})
	require.NoError(t, err)
	assert.True(t, ok)

	if issued.Code != code {
		ok, err = d.uc.ValidateOTP(ctx, ValidateOTPInput{UserID: 1001, Code: issued.Code})
		assert.False(t, ok)
		assert.ErrorIs(t, err, goerror.ErrInvalidOTP)
	}

	// The document was revoked; the handle is spent.
	_, err = d.uc.ResolveEmergencyCredential(ctx, ResolveEmergencyInput{
		Handle: handle, Secret: secret,
	})
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestResolveEmergencyCredential_WrongSecret(t *testing.T) {
	d := newTestUsecase(t)
	ctx := context.Background()

	require.NoError(t, d.chain.backend.UpsertUser(ctx, syncUser(1001, "trader_jane")))

	_, tasks := withRealChannel(t, d)

	handle, err := d.uc.RequestEmergencyCredential(ctx, RequestEmergencyInput{
		UserID: 1001, UserName: "trader_jane",
	})
	require.NoError(t, err)
	require.NoError(t, tasks.Wait())

	ok, err := d.uc.ResolveEmergencyCredential(ctx, ResolveEmergencyInput{
		Handle: handle, Secret: "NOTTHESECRETNOTTHESECRET",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}
