// Package index maintains the social-graph importance index and serves
// score lookups through a Redis read-through cache.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/engagement-monitor/internal/logging"
	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultScoreTTL bounds staleness of cached scores between syncs.
const DefaultScoreTTL = 10 * time.Minute

// ScoreStore is the persistent side of the index.
type ScoreStore interface {
	Sync(ctx context.Context, importantAccountID, importantUsername string, weight float64, following []models.FollowedAccount) ([]string, error)
	Score(ctx context.Context, accountID string) (float64, error)
}

// Service answers "how important is this account" for the enrichment and
// alert paths. Lookups hit Redis first; the Postgres index is
// authoritative.
type Service struct {
	store ScoreStore
	cache *storage.RedisCache
	ttl   time.Duration
}

// NewService creates an index service. A nil cache disables the fast path
// and every lookup goes to the store.
func NewService(store ScoreStore, cache *storage.RedisCache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultScoreTTL
	}
	return &Service{store: store, cache: cache, ttl: ttl}
}

func scoreKey(accountID string) string {
	return "score:" + accountID
}

// Score returns the importance score for an account, 0 when unindexed.
func (s *Service) Score(ctx context.Context, accountID string) (float64, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, scoreKey(accountID))
		if err == nil {
			score, parseErr := strconv.ParseFloat(cached, 64)
			if parseErr == nil {
				return score, nil
			}
			// Unparseable entry: fall through to the store and rewrite.
		} else if !errors.Is(err, redis.Nil) {
			// Redis being down must not stall scoring.
			logging.FromContext(ctx).WithError(err).Warn("score cache read failed, falling back to store")
		}
	}

	score, err := s.store.Score(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up score: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, scoreKey(accountID), strconv.FormatFloat(score, 'f', -1, 64), s.ttl); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("score cache write failed")
		}
	}
	return score, nil
}

// SyncImportantAccount replaces one important account's following edges
// and invalidates cached scores for every node the sync touched.
func (s *Service) SyncImportantAccount(ctx context.Context, accountID, username string, weight float64, following []models.FollowedAccount) error {
	touched, err := s.store.Sync(ctx, accountID, username, weight, following)
	if err != nil {
		return fmt.Errorf("failed to sync importance index: %w", err)
	}

	if s.cache != nil && len(touched) > 0 {
		keys := make([]string, len(touched))
		for i, id := range touched {
			keys[i] = scoreKey(id)
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			// Stale entries age out via TTL; log and move on.
			logging.FromContext(ctx).WithError(err).Warn("score cache invalidation failed")
		}
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"account_id": accountID,
		"edges":      len(following),
		"touched":    len(touched),
	}).Info("importance index synced")
	return nil
}
