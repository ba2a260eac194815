package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/engagement-monitor/internal/models"
	"github.com/jackc/pgx/v5"
)

// FollowingIndexRepository persists the reverse social-graph importance
// index: one node per followed account plus a weighted edge per important
// account following it.
type FollowingIndexRepository struct {
	db *PostgresDB
}

// NewFollowingIndexRepository creates a new following index repository
func NewFollowingIndexRepository(db *PostgresDB) *FollowingIndexRepository {
	return &FollowingIndexRepository{db: db}
}

// Sync replaces an important account's edge set with its current following
// list and recomputes every node score, all in one transaction:
// teardown of the account's existing edges, bulk set-union upsert of the
// new edges, then a single aggregate recompute pass. The recompute must
// run after all edge mutations, never interleaved. Returns the ids of
// every node whose edge set was touched, for cache invalidation.
func (r *FollowingIndexRepository) Sync(ctx context.Context, importantAccountID, importantUsername string, weight float64, following []models.FollowedAccount) ([]string, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin index sync: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	touched := make(map[string]struct{})

	// Collect the nodes this account currently points at, then tear the
	// edges down.
	rows, err := tx.Query(ctx,
		`SELECT followed_account_id FROM following_edges WHERE follower_account_id = $1`,
		importantAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing edges: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan existing edge: %w", err)
		}
		touched[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating existing edges: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM following_edges WHERE follower_account_id = $1`,
		importantAccountID); err != nil {
		return nil, fmt.Errorf("failed to tear down edges: %w", err)
	}

	for _, followed := range following {
		if followed.AccountID == "" {
			continue
		}
		touched[followed.AccountID] = struct{}{}

		if _, err := tx.Exec(ctx, `
			INSERT INTO following_index (followed_account_id, followed_username, importance_score)
			VALUES ($1, $2, 0)
			ON CONFLICT (followed_account_id)
			DO UPDATE SET followed_username = EXCLUDED.followed_username
		`, followed.AccountID, followed.Username); err != nil {
			return nil, fmt.Errorf("failed to upsert index node %s: %w", followed.AccountID, err)
		}

		// Set semantics: re-adding an existing edge is a no-op.
		if _, err := tx.Exec(ctx, `
			INSERT INTO following_edges (followed_account_id, follower_account_id, follower_username, weight)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (followed_account_id, follower_account_id) DO NOTHING
		`, followed.AccountID, importantAccountID, importantUsername, weight); err != nil {
			return nil, fmt.Errorf("failed to upsert edge to %s: %w", followed.AccountID, err)
		}
	}

	// Recompute importance_score = sum of edge weights for every node.
	if _, err := tx.Exec(ctx, `
		UPDATE following_index fi
		SET importance_score = COALESCE((
			SELECT SUM(weight) FROM following_edges fe
			WHERE fe.followed_account_id = fi.followed_account_id
		), 0)
	`); err != nil {
		return nil, fmt.Errorf("failed to recompute importance scores: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit index sync: %w", err)
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	return ids, nil
}

// Score returns the importance score for an account, or 0 when the
// account is absent from the index.
func (r *FollowingIndexRepository) Score(ctx context.Context, accountID string) (float64, error) {
	var score float64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT importance_score FROM following_index WHERE followed_account_id = $1`,
		accountID).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to look up importance score: %w", err)
	}
	return score, nil
}

// GetEntry retrieves one index node with its full edge set.
func (r *FollowingIndexRepository) GetEntry(ctx context.Context, accountID string) (*models.FollowingIndexEntry, error) {
	entry := &models.FollowingIndexEntry{}
	err := r.db.Pool().QueryRow(ctx, `
		SELECT followed_account_id, followed_username, importance_score
		FROM following_index
		WHERE followed_account_id = $1
	`, accountID).Scan(&entry.FollowedAccountID, &entry.FollowedUsername, &entry.ImportanceScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("index entry not found: %s", accountID)
		}
		return nil, fmt.Errorf("failed to get index entry: %w", err)
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT follower_account_id, follower_username, weight
		FROM following_edges
		WHERE followed_account_id = $1
		ORDER BY follower_account_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list index edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var edge models.FollowerEdge
		if err := rows.Scan(&edge.AccountID, &edge.Username, &edge.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan index edge: %w", err)
		}
		entry.FollowedBy = append(entry.FollowedBy, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index edges: %w", err)
	}
	return entry, nil
}
