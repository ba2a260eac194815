package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTestCampaign(t *testing.T, db *PostgresDB, id string, intervalMins int) {
	t.Helper()
	_, err := db.Pool().Exec(testContext(t), `
		INSERT INTO campaigns (id, name, alert_threshold, frequency_window_minutes, schedule_interval_minutes)
		VALUES ($1, $2, 2.0, 1440, $3)
	`, id, "campaign-"+id[:8], intervalMins)
	require.NoError(t, err)
}

func TestCampaignRepository_GetDefaultSpacing(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "campaigns")
	repo := NewCampaignRepository(db)
	ctx := testContext(t)

	// Spacing left unset: campaign writers outside the pipeline create
	// rows like this and expect spacing to derive from the interval.
	campaignID := uuid.New().String()
	insertTestCampaign(t, db, campaignID, 30)

	campaign, err := repo.Get(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, campaign.SpacingMinutes)
	assert.Equal(t, 24, campaign.EffectiveSpacingMinutes())
	assert.True(t, campaign.Active)
}

func TestCampaignRepository_GetLegacyNullSpacing(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "campaigns")
	repo := NewCampaignRepository(db)
	ctx := testContext(t)

	campaignID := uuid.New().String()
	insertTestCampaign(t, db, campaignID, 30)

	// Rows from before spacing_minutes became NOT NULL can hold NULL.
	// Get must read them as 0 instead of failing the scan.
	_, err := db.Pool().Exec(ctx, `ALTER TABLE campaigns ALTER COLUMN spacing_minutes DROP NOT NULL`)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx := testContext(t)
		_, err := db.Pool().Exec(cleanupCtx, `UPDATE campaigns SET spacing_minutes = 0 WHERE spacing_minutes IS NULL`)
		require.NoError(t, err)
		_, err = db.Pool().Exec(cleanupCtx, `ALTER TABLE campaigns ALTER COLUMN spacing_minutes SET NOT NULL`)
		require.NoError(t, err)
	})
	_, err = db.Pool().Exec(ctx, `UPDATE campaigns SET spacing_minutes = NULL WHERE id = $1`, campaignID)
	require.NoError(t, err)

	campaign, err := repo.Get(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, campaign.SpacingMinutes)
	assert.Equal(t, 24, campaign.EffectiveSpacingMinutes())
}

func TestCampaignRepository_GetExplicitSpacing(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "campaigns")
	repo := NewCampaignRepository(db)
	ctx := testContext(t)

	campaignID := uuid.New().String()
	insertTestCampaign(t, db, campaignID, 30)
	_, err := db.Pool().Exec(ctx, `UPDATE campaigns SET spacing_minutes = 10 WHERE id = $1`, campaignID)
	require.NoError(t, err)

	campaign, err := repo.Get(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, 10, campaign.SpacingMinutes)
	assert.Equal(t, 10, campaign.EffectiveSpacingMinutes())
}

func TestCampaignRepository_GetNotFound(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "campaigns")
	repo := NewCampaignRepository(db)

	_, err := repo.Get(testContext(t), uuid.New().String())
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestCampaignRepository_Targets(t *testing.T) {
	db := testPostgres(t)
	truncateTables(t, db, "campaigns", "targets")
	repo := NewCampaignRepository(db)
	ctx := testContext(t)

	campaignID := uuid.New().String()
	insertTestCampaign(t, db, campaignID, 30)

	targetIDs := []string{uuid.New().String(), uuid.New().String()}
	for i, id := range targetIDs {
		_, err := db.Pool().Exec(ctx, `
			INSERT INTO targets (id, campaign_id, post_id, category, created_at)
			VALUES ($1, $2, $3, 'launch', NOW() + make_interval(secs => $4))
		`, id, campaignID, "post-"+id[:8], i)
		require.NoError(t, err)
	}

	targets, err := repo.ListTargets(ctx, campaignID)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, targetIDs[0], targets[0].ID, "targets should list oldest first")

	target, err := repo.GetTarget(ctx, targetIDs[1])
	require.NoError(t, err)
	assert.Equal(t, campaignID, target.CampaignID)

	_, err = repo.GetTarget(ctx, uuid.New().String())
	assert.Error(t, err)
}
