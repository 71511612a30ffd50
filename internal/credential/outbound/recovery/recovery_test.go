package recovery

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	pquerna "github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwatch/credward/internal/pkg/clock"
	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/goroutine"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/storage"
	"github.com/scanwatch/credward/internal/pkg/uid"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memStorage) Close() error { return nil }

type captureDeliverer struct {
	mu      sync.Mutex
	secrets map[int64]string
}

func (d *captureDeliverer) Deliver(_ context.Context, userID int64, secret string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.secrets == nil {
		d.secrets = map[int64]string{}
	}
	d.secrets[userID] = secret
	return nil
}

func (d *captureDeliverer) secretFor(userID int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.secrets[userID]
}

func newTestChannel(t *testing.T) (*Channel, *memStorage, *captureDeliverer, *goroutine.Manager) {
	t.Helper()

	store := newMemStorage()
	deliverer := &captureDeliverer{}
	tasks := goroutine.NewManager(4)

	ch := NewChannel(Config{
		Store:     store,
		Bucket:    "credward-recovery",
		Engine:    otp.NewTOTP("credward", pquerna.DigitsSix),
		IDs:       uid.NewUUID(),
		Tasks:     tasks,
		Deliverer: deliverer,
		Clock:     clock.Fixed{At: time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)},
		Ins:       instrument.NewNoop(),
	})
	return ch, store, deliverer, tasks
}

func TestChannel_RequestThenResolve(t *testing.T) {
	ch, _, deliverer, tasks := newTestChannel(t)
	ctx := context.Background()

	handle, err := ch.Request(ctx, 1001, "trader_jane")
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	require.NoError(t, tasks.Wait()) // drain the background publish

	secret := deliverer.secretFor(1001)
	require.NotEmpty(t, secret)

	ok, err := ch.Resolve(ctx, handle, secret)
	require.NoError(t, err)
	assert.True(t, ok)

	// Resolution is repeatable; the document stays published.
	ok, err = ch.Resolve(ctx, handle, secret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChannel_ResolveWrongSecret(t *testing.T) {
	ch, _, _, tasks := newTestChannel(t)
	ctx := context.Background()

	handle, err := ch.Request(ctx, 1001, "trader_jane")
	require.NoError(t, err)
	require.NoError(t, tasks.Wait())

	ok, err := ch.Resolve(ctx, handle, "WRONGSECRETWRONGSECRET26")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannel_ResolveUnknownHandle(t *testing.T) {
	ch, _, _, _ := newTestChannel(t)
	ctx := context.Background()

	_, err := ch.Resolve(ctx, "not-base64!!", "whatever")
	assert.ErrorIs(t, err, goerror.ErrNotFound)

	_, err = ch.Resolve(ctx, encodeHandle(999, "0196b4f0-0000-7000-8000-000000000000"), "whatever")
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestChannel_NewerRequestInvalidatesOldHandle(t *testing.T) {
	ch, _, deliverer, tasks := newTestChannel(t)
	ctx := context.Background()

	oldHandle, err := ch.Request(ctx, 1001, "trader_jane")
	require.NoError(t, err)
	require.NoError(t, tasks.Wait())
	oldSecret := deliverer.secretFor(1001)

	// A fresh manager for the second request; the first was drained.
	ch.tasks = goroutine.NewManager(4)
	newHandle, err := ch.Request(ctx, 1001, "trader_jane")
	require.NoError(t, err)
	require.NoError(t, ch.tasks.Wait())
	newSecret := deliverer.secretFor(1001)

	// The old secret no longer opens the replaced document.
	ok, err := ch.Resolve(ctx, oldHandle, oldSecret)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ch.Resolve(ctx, newHandle, newSecret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChannel_Revoke(t *testing.T) {
	ch, _, deliverer, tasks := newTestChannel(t)
	ctx := context.Background()

	handle, err := ch.Request(ctx, 1001, "trader_jane")
	require.NoError(t, err)
	require.NoError(t, tasks.Wait())

	require.NoError(t, ch.Revoke(ctx, 1001))

	_, err = ch.Resolve(ctx, handle, deliverer.secretFor(1001))
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestHandleRoundTrip(t *testing.T) {
	h := encodeHandle(1001, "0196b4f0-0000-7000-8000-000000000000")
	userID, err := ParseHandle(h)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), userID)
}
