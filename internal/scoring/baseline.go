package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

// CachedBaselines serves entity amount baselines from cache, falling back to
// the repository's aggregate query and writing the result back with a TTL.
// A cache failure degrades to a repository read, never to an error.
type CachedBaselines struct {
	repo   domain.Repository
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedBaselines builds the provider. cache may be nil; every lookup then
// hits the repository.
func NewCachedBaselines(repo domain.Repository, cache domain.Cache, cfg domain.ScoringConfig, logger *slog.Logger) *CachedBaselines {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedBaselines{
		repo:   repo,
		cache:  cache,
		ttl:    cfg.BaselineTTL,
		logger: logger,
	}
}

// Baseline implements BaselineProvider.
func (b *CachedBaselines) Baseline(ctx context.Context, tenantID, entityKey string, docType domain.DocumentType) (*domain.AmountStats, error) {
	key := baselineKey(entityKey, docType)

	if b.cache != nil {
		cached, err := b.cache.GetBaseline(ctx, tenantID, key)
		if err != nil {
			b.logger.Warn("baseline cache read failed", "key", key, "error", err)
		} else if cached != nil {
			return &domain.AmountStats{
				Count:  cached.Count,
				Mean:   cached.Mean,
				StdDev: cached.StdDev,
			}, nil
		}
	}

	stats, err := b.repo.AmountStats(ctx, tenantID, entityKey, docType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("baseline lookup: %w", err)
	}

	if b.cache != nil && stats != nil {
		entry := &domain.AmountBaseline{
			Count:  stats.Count,
			Mean:   stats.Mean,
			StdDev: stats.StdDev,
		}
		if err := b.cache.SetBaseline(ctx, tenantID, key, entry, b.ttl); err != nil {
			b.logger.Warn("baseline cache write failed", "key", key, "error", err)
		}
	}
	return stats, nil
}

func baselineKey(entityKey string, docType domain.DocumentType) string {
	return "baseline:" + string(docType) + ":" + entityKey
}
