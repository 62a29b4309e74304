// Package history tracks per-entity decision outcomes. Classification reads
// run before the current document's decision exists; the write-back happens
// only after the decision is made, so a document never influences its own
// classification.
package history

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

const lockStripes = 64

// Store mediates entity history access. Same-entity writes are serialized
// in-process with striped locks; the underlying counter updates are atomic
// SQL increments, so concurrent processes remain correct too.
type Store struct {
	repo   domain.Repository
	logger *slog.Logger
	locks  [lockStripes]sync.Mutex
}

// NewStore builds the history store.
func NewStore(repo domain.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger}
}

// Classify resolves the entity class for a document's entity name. An empty
// name is NEW by definition. A degraded lookup (store error other than
// not-found) classifies as NEW and returns a warning instead of failing the
// document.
func (s *Store) Classify(ctx context.Context, tenantID, name string) (domain.EntityClass, *domain.EntityRecord, string) {
	key := domain.NormalizeEntityName(name)
	if key == "" {
		return domain.ClassNew, nil, ""
	}

	record, err := s.repo.GetEntityByName(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ClassNew, nil, ""
		}
		s.logger.Warn("entity history lookup degraded",
			"tenant_id", tenantID, "entity", key, "error", err)
		return domain.ClassNew, nil,
			fmt.Sprintf("entity history degraded, classified as NEW: %v", err)
	}
	return record.Class(), record, ""
}

// Apply records a decision outcome against the entity, creating the record
// on first sight. The returned record reflects the post-update counters.
func (s *Store) Apply(ctx context.Context, tenantID, name string, rec domain.Recommendation, at time.Time) (*domain.EntityRecord, error) {
	key := domain.NormalizeEntityName(name)
	if key == "" {
		return nil, nil
	}

	lock := &s.locks[s.stripe(tenantID, key)]
	lock.Lock()
	defer lock.Unlock()

	record, err := s.repo.ApplyDecision(ctx, tenantID, key, rec, at)
	if err != nil {
		return nil, fmt.Errorf("apply decision to entity history: %w", err)
	}
	return record, nil
}

func (s *Store) stripe(tenantID, key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return h.Sum32() % lockStripes
}
