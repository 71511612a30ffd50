package store

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwatch/credward/internal/credential/entity"
	"github.com/scanwatch/credward/internal/pkg/goerror"
)

// fakeTier is an in-memory TierClient whose calls can be forced to fail.
type fakeTier struct {
	users map[int64]*entity.User
	subs  map[int64][]string

	failWith error
	dirty    map[int64]bool
	rebuilds int
}

func newFakeTier() *fakeTier {
	return &fakeTier{
		users: map[int64]*entity.User{},
		subs:  map[int64][]string{},
		dirty: map[int64]bool{},
	}
}

func (f *fakeTier) GetUser(_ context.Context, id int64) (*entity.User, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeTier) UpsertUser(_ context.Context, u *entity.User) error {
	if f.failWith != nil {
		return f.failWith
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeTier) RecordOTPIssuance(_ context.Context, id int64, code string, at time.Time) error {
	if f.failWith != nil {
		return f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return goerror.ErrNotFound
	}
	u.LastOTP = code
	u.LastOTPIssuedAt = at
	return nil
}

func (f *fakeTier) AddSubscription(_ context.Context, scannerID string, userID int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	if !slices.Contains(f.subs[userID], scannerID) {
		f.subs[userID] = append(f.subs[userID], scannerID)
		slices.Sort(f.subs[userID])
	}
	return nil
}

func (f *fakeTier) RemoveSubscription(_ context.Context, scannerID string, userID int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.subs[userID] = slices.DeleteFunc(f.subs[userID], func(s string) bool { return s == scannerID })
	return nil
}

func (f *fakeTier) ListSubscriptions(_ context.Context, userID int64) ([]string, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return slices.Clone(f.subs[userID]), nil
}

func (f *fakeTier) ReplaceSubscriptions(_ context.Context, userID int64, scannerIDs []string) error {
	if f.failWith != nil {
		return f.failWith
	}
	ids := slices.Clone(scannerIDs)
	slices.Sort(ids)
	f.subs[userID] = ids
	return nil
}

func (f *fakeTier) CountUsers(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return int64(len(f.users)), nil
}

func (f *fakeTier) CountSubscriptions(context.Context) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	var n int64
	for _, ids := range f.subs {
		n += int64(len(ids))
	}
	return n, nil
}

func (f *fakeTier) SampleUserIDs(_ context.Context, limit int) ([]int64, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	ids := make([]int64, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeTier) MarkDirty(_ context.Context, userID int64) error {
	f.dirty[userID] = true
	return nil
}

func (f *fakeTier) ClearDirty(_ context.Context, userID int64) error {
	delete(f.dirty, userID)
	return nil
}

func (f *fakeTier) IsDirty(_ context.Context, userID int64) (bool, error) {
	return f.dirty[userID], nil
}

func (f *fakeTier) ListDirty(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.dirty))
	for id := range f.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeTier) DeleteUser(_ context.Context, id int64) error {
	delete(f.users, id)
	delete(f.subs, id)
	return nil
}

func (f *fakeTier) Rebuild(context.Context) error {
	f.rebuilds++
	f.users = map[int64]*entity.User{}
	f.subs = map[int64][]string{}
	return nil
}

func newTestStore() (*Store, *fakeTier, *fakeTier) {
	remote := newFakeTier()
	cache := newFakeTier()
	return New(remote, cache, time.Second), remote, cache
}

func user1001() *entity.User {
	return &entity.User{
		ID:                 1001,
		UserName:           "trader_jane",
		FullName:           "Jane Trader",
		TOTPSecret:         []byte("JBSWY3DPEHPK3PXP"),
		Plan:               entity.PlanOneMonth,
		OTPValiditySeconds: 86400,
	}
}

func TestStore_GetUser_RemoteHitWritesBack(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.users[1001] = user1001()

	u, tier, err := s.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, entity.TierRemote, tier)
	assert.Equal(t, "trader_jane", u.UserName)

	// Remote read refreshed the cache.
	cached, ok := cache.users[1001]
	require.True(t, ok)
	assert.Equal(t, "trader_jane", cached.UserName)
}

func TestStore_GetUser_RemoteNotFoundIsAuthoritative(t *testing.T) {
	s, _, cache := newTestStore()
	ctx := context.Background()

	// A stale cached row must not resurrect a user the remote tier says is
	// gone.
	cache.users[1001] = user1001()

	_, tier, err := s.GetUser(ctx, 1001)
	assert.ErrorIs(t, err, goerror.ErrNotFound)
	assert.Equal(t, entity.TierRemote, tier)
}

func TestStore_GetUser_FallsThroughToCache(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))
	cache.users[1001] = user1001()

	u, tier, err := s.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, entity.TierLocal, tier)
	assert.Equal(t, int64(1001), u.ID)
}

func TestStore_GetUser_QuotaRoutedLikeUnreachable(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.QuotaExceeded(strErr("too many connections"))
	cache.users[1001] = user1001()

	_, tier, err := s.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, entity.TierLocal, tier)
}

func TestStore_GetUser_AllTiersFailed(t *testing.T) {
	s, remote, _ := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))

	_, _, err := s.GetUser(ctx, 1001)

	var all *goerror.AllTiersFailed
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Attempts, 2)
	assert.Equal(t, string(entity.TierRemote), all.Attempts[0].Tier)
	assert.Equal(t, string(entity.TierLocal), all.Attempts[1].Tier)
	assert.ErrorIs(t, err, goerror.ErrUnreachable)
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestStore_GetUser_CallerDeadlineSurfacesTimeout(t *testing.T) {
	s, remote, _ := newTestStore()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, _, err := s.GetUser(ctx, 1001)
	assert.ErrorIs(t, err, goerror.ErrTimeout)
}

func TestStore_Write_RemoteSuccessMirrorsToCache(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	tier, err := s.UpsertUser(ctx, user1001())
	require.NoError(t, err)
	assert.Equal(t, entity.TierRemote, tier)

	assert.Contains(t, remote.users, int64(1001))
	assert.Contains(t, cache.users, int64(1001))
	assert.False(t, cache.dirty[1001], "remote write must not mark dirty")
}

func TestStore_Write_LocalFallbackMarksDirty(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))

	tier, err := s.UpsertUser(ctx, user1001())
	require.NoError(t, err)
	assert.Equal(t, entity.TierLocal, tier)
	assert.Contains(t, cache.users, int64(1001))
	assert.True(t, cache.dirty[1001])
}

func TestStore_Write_AllTiersFailed(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))
	cache.failWith = goerror.Corrupt(strErr("malformed page"))

	_, err := s.UpsertUser(ctx, user1001())

	var all *goerror.AllTiersFailed
	require.ErrorAs(t, err, &all)
	assert.ErrorIs(t, err, goerror.ErrStorageCorrupt)
}

func TestStore_CorruptCacheRebuiltOnNextRemoteRead(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))
	cache.failWith = goerror.Corrupt(strErr("malformed page"))

	_, _, err := s.GetUser(ctx, 1001)
	require.Error(t, err)

	// Remote comes back; the poisoned cache is rebuilt before write-back.
	remote.failWith = nil
	cache.failWith = nil
	remote.users[1001] = user1001()

	_, tier, err := s.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, entity.TierRemote, tier)
	assert.Equal(t, 1, cache.rebuilds)
	assert.Contains(t, cache.users, int64(1001))
}

func TestStore_ListSubscriptions_WriteBackSkipsDirtyUser(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.subs[1001] = []string{"A_5_0", "B_12_1"}
	cache.subs[1001] = []string{"C_1_2"} // offline write awaiting reconcile
	cache.dirty[1001] = true

	ids, tier, err := s.ListSubscriptions(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, entity.TierRemote, tier)
	assert.Equal(t, []string{"A_5_0", "B_12_1"}, ids)

	// The dirty local set survives until reconcile pushes it upstream.
	assert.Equal(t, []string{"C_1_2"}, cache.subs[1001])
}

func TestStore_ListSubscriptions_WriteBackRefreshesCleanUser(t *testing.T) {
	s, remote, cache := newTestStore()
	ctx := context.Background()

	remote.subs[1001] = []string{"A_5_0", "B_12_1"}
	cache.subs[1001] = []string{"STALE"}

	_, _, err := s.ListSubscriptions(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_5_0", "B_12_1"}, cache.subs[1001])
}

func TestStore_RecordOTPIssuance_FallbackNeedsCachedRow(t *testing.T) {
	s, remote, _ := newTestStore()
	ctx := context.Background()

	remote.failWith = goerror.Unreachable(strErr("dial refused"))

	_, err := s.RecordOTPIssuance(ctx, 1001, "482913", time.Now())

	var all *goerror.AllTiersFailed
	require.ErrorAs(t, err, &all)
}

type strErr string

func (e strErr) Error() string { return string(e) }
