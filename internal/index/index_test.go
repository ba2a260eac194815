package index

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore tracks edge sets in memory and counts store hits so cache
// behavior is observable.
type fakeStore struct {
	edges      map[string]map[string]float64 // followed -> follower -> weight
	scoreCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{edges: make(map[string]map[string]float64)}
}

func (f *fakeStore) Sync(_ context.Context, followerID, _ string, weight float64, following []models.FollowedAccount) ([]string, error) {
	touched := make(map[string]struct{})
	for followed, followers := range f.edges {
		if _, ok := followers[followerID]; ok {
			touched[followed] = struct{}{}
			delete(followers, followerID)
		}
	}
	for _, acc := range following {
		if f.edges[acc.AccountID] == nil {
			f.edges[acc.AccountID] = make(map[string]float64)
		}
		f.edges[acc.AccountID][followerID] = weight
		touched[acc.AccountID] = struct{}{}
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) Score(_ context.Context, accountID string) (float64, error) {
	f.scoreCalls++
	var sum float64
	for _, w := range f.edges[accountID] {
		sum += w
	}
	return sum, nil
}

func testCache(t *testing.T) *storage.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisCacheFromClient(client)
}

func TestService_ScoreReadThrough(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testCache(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.SyncImportantAccount(ctx, "alice", "alice", 2.0, []models.FollowedAccount{
		{AccountID: "x", Username: "x"},
	}))

	score, err := svc.Score(ctx, "x")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score, 1e-9)
	assert.Equal(t, 1, store.scoreCalls)

	// Second lookup served from cache.
	score, err = svc.Score(ctx, "x")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score, 1e-9)
	assert.Equal(t, 1, store.scoreCalls, "cache hit must not reach the store")
}

func TestService_SyncInvalidatesTouchedScores(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, testCache(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.SyncImportantAccount(ctx, "alice", "alice", 1.0, []models.FollowedAccount{
		{AccountID: "x"}, {AccountID: "y"},
	}))

	// Warm the cache.
	scoreY, err := svc.Score(ctx, "y")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scoreY, 1e-9)

	// Alice drops Y for Z; Y's cached score must not survive.
	require.NoError(t, svc.SyncImportantAccount(ctx, "alice", "alice", 1.0, []models.FollowedAccount{
		{AccountID: "x"}, {AccountID: "z"},
	}))

	scoreY, err = svc.Score(ctx, "y")
	require.NoError(t, err)
	assert.Zero(t, scoreY)

	scoreZ, err := svc.Score(ctx, "z")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scoreZ, 1e-9)
}

func TestService_UnknownAccountScoresZero(t *testing.T) {
	svc := NewService(newFakeStore(), testCache(t), time.Minute)

	score, err := svc.Score(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestService_NilCachePassthrough(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, 0)
	ctx := context.Background()

	require.NoError(t, svc.SyncImportantAccount(ctx, "alice", "alice", 3.0, []models.FollowedAccount{
		{AccountID: "x"},
	}))

	for i := 0; i < 2; i++ {
		score, err := svc.Score(ctx, "x")
		require.NoError(t, err)
		assert.InDelta(t, 3.0, score, 1e-9)
	}
	assert.Equal(t, 2, store.scoreCalls)
}
