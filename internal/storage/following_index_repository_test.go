package storage

import (
	"testing"

	"github.com/engagement-monitor/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowingIndexRepository_SyncAndScore(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "following_edges", "following_index")
	repo := NewFollowingIndexRepository(db)
	ctx := testContext(t)

	alice := uuid.New().String()
	bob := uuid.New().String()
	x := uuid.New().String()
	y := uuid.New().String()

	_, err := repo.Sync(ctx, alice, "alice", 2.0, []models.FollowedAccount{
		{AccountID: x, Username: "x"},
		{AccountID: y, Username: "y"},
	})
	require.NoError(t, err)
	_, err = repo.Sync(ctx, bob, "bob", 1.5, []models.FollowedAccount{
		{AccountID: x, Username: "x"},
	})
	require.NoError(t, err)

	scoreX, err := repo.Score(ctx, x)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, scoreX, 1e-9)

	scoreY, err := repo.Score(ctx, y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, scoreY, 1e-9)
}

func TestFollowingIndexRepository_ResyncReplacesEdgeSet(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "following_edges", "following_index")
	repo := NewFollowingIndexRepository(db)
	ctx := testContext(t)

	alice := uuid.New().String()
	x := uuid.New().String()
	y := uuid.New().String()
	z := uuid.New().String()

	_, err := repo.Sync(ctx, alice, "alice", 1.0, []models.FollowedAccount{
		{AccountID: x, Username: "x"},
		{AccountID: y, Username: "y"},
	})
	require.NoError(t, err)

	// Alice unfollows Y and follows Z. Y's score must drop, Z's must rise,
	// and X's must hold steady.
	touched, err := repo.Sync(ctx, alice, "alice", 1.0, []models.FollowedAccount{
		{AccountID: x, Username: "x"},
		{AccountID: z, Username: "z"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{x, y, z}, touched)

	scoreX, err := repo.Score(ctx, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scoreX, 1e-9)

	scoreY, err := repo.Score(ctx, y)
	require.NoError(t, err)
	assert.Zero(t, scoreY, "removed edge must stop contributing")

	scoreZ, err := repo.Score(ctx, z)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scoreZ, 1e-9)
}

func TestFollowingIndexRepository_SyncIdempotent(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "following_edges", "following_index")
	repo := NewFollowingIndexRepository(db)
	ctx := testContext(t)

	alice := uuid.New().String()
	x := uuid.New().String()

	following := []models.FollowedAccount{{AccountID: x, Username: "x"}}
	for i := 0; i < 3; i++ {
		_, err := repo.Sync(ctx, alice, "alice", 1.0, following)
		require.NoError(t, err)
	}

	score, err := repo.Score(ctx, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9, "repeated syncs must not inflate the score")

	entry, err := repo.GetEntry(ctx, x)
	require.NoError(t, err)
	assert.Len(t, entry.FollowedBy, 1)
	assert.Equal(t, alice, entry.FollowedBy[0].AccountID)
}

func TestFollowingIndexRepository_ScoreUnknownAccount(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "following_edges", "following_index")
	repo := NewFollowingIndexRepository(db)

	score, err := repo.Score(testContext(t), uuid.New().String())
	require.NoError(t, err)
	assert.Zero(t, score)
}
