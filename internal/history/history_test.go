package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

// fakeRepo implements the entity subset of domain.Repository backed by a map,
// mirroring the repository's create-or-increment semantics.
type fakeRepo struct {
	domain.Repository

	mu       sync.Mutex
	entities map[string]*domain.EntityRecord
	failGet  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entities: make(map[string]*domain.EntityRecord)}
}

func (f *fakeRepo) GetEntityByName(ctx context.Context, tenantID, normalizedName string) (*domain.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	e, ok := f.entities[tenantID+"/"+normalizedName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (f *fakeRepo) ApplyDecision(ctx context.Context, tenantID, name string, rec domain.Recommendation, at time.Time) (*domain.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tenantID + "/" + name
	e, ok := f.entities[key]
	if !ok {
		e = &domain.EntityRecord{
			ID: "e-" + name, TenantID: tenantID,
			Name: name, NormalizedName: name,
			CreatedAt: at,
		}
		f.entities[key] = e
	}
	switch rec {
	case domain.RecommendReject:
		e.FraudCount++
		e.HasFraudHistory = true
	case domain.RecommendEscalate:
		e.EscalateCount++
	}
	e.LastRecommendation = rec
	e.LastAnalysisDate = at
	e.UpdatedAt = at
	clone := *e
	return &clone, nil
}

func TestClassifyUnknownEntityIsNew(t *testing.T) {
	s := NewStore(newFakeRepo(), nil)

	class, record, warning := s.Classify(context.Background(), "t1", "Jane Smith")
	if class != domain.ClassNew {
		t.Errorf("expected NEW, got %s", class)
	}
	if record != nil {
		t.Error("unknown entity must not have a record")
	}
	if warning != "" {
		t.Errorf("unexpected warning: %q", warning)
	}
}

func TestClassifyEmptyNameIsNew(t *testing.T) {
	s := NewStore(newFakeRepo(), nil)
	if class, _, _ := s.Classify(context.Background(), "t1", "   "); class != domain.ClassNew {
		t.Errorf("expected NEW for empty name, got %s", class)
	}
}

func TestClassifyTransitions(t *testing.T) {
	repo := newFakeRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// First sight: NEW. An approval creates the record without fraud marks.
	if class, _, _ := s.Classify(ctx, "t1", "Jane Smith"); class != domain.ClassNew {
		t.Fatalf("expected NEW, got %s", class)
	}
	if _, err := s.Apply(ctx, "t1", "Jane Smith", domain.RecommendApprove, at); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if class, _, _ := s.Classify(ctx, "t1", "Jane Smith"); class != domain.ClassRepeatClean {
		t.Fatalf("after approval expected REPEAT_CLEAN, got %s", class)
	}

	// An escalation flips the entity to REPEAT_FRAUD.
	if _, err := s.Apply(ctx, "t1", "Jane Smith", domain.RecommendEscalate, at.Add(time.Hour)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if class, record, _ := s.Classify(ctx, "t1", "Jane Smith"); class != domain.ClassRepeatFraud {
		t.Fatalf("after escalation expected REPEAT_FRAUD, got %s (record %+v)", class, record)
	}

	// Counters only grow; a later approval does not clear fraud history.
	if _, err := s.Apply(ctx, "t1", "Jane Smith", domain.RecommendApprove, at.Add(2*time.Hour)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if class, _, _ := s.Classify(ctx, "t1", "Jane Smith"); class != domain.ClassRepeatFraud {
		t.Fatalf("fraud history must persist, got %s", class)
	}
}

func TestClassifyNameNormalization(t *testing.T) {
	repo := newFakeRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()

	if _, err := s.Apply(ctx, "t1", "  JANE   smith ", domain.RecommendReject, time.Now()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if class, _, _ := s.Classify(ctx, "t1", "Jane Smith"); class != domain.ClassRepeatFraud {
		t.Errorf("case and whitespace variants must resolve to the same entity, got %s", class)
	}
}

func TestClassifyTenantIsolation(t *testing.T) {
	repo := newFakeRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()

	if _, err := s.Apply(ctx, "t1", "jane smith", domain.RecommendReject, time.Now()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if class, _, _ := s.Classify(ctx, "t2", "jane smith"); class != domain.ClassNew {
		t.Errorf("entity history must not leak across tenants, got %s", class)
	}
}

func TestClassifyDegradedLookup(t *testing.T) {
	repo := newFakeRepo()
	repo.failGet = errors.New("connection refused")
	s := NewStore(repo, nil)

	class, _, warning := s.Classify(context.Background(), "t1", "jane smith")
	if class != domain.ClassNew {
		t.Errorf("degraded lookup must classify NEW, got %s", class)
	}
	if warning == "" {
		t.Error("degraded lookup must surface a warning")
	}
}

func TestApplyEmptyNameIsNoop(t *testing.T) {
	repo := newFakeRepo()
	s := NewStore(repo, nil)

	record, err := s.Apply(context.Background(), "t1", "", domain.RecommendReject, time.Now())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if record != nil {
		t.Error("empty entity name must not create a record")
	}
	if len(repo.entities) != 0 {
		t.Error("no record should be written")
	}
}

func TestApplyConcurrent(t *testing.T) {
	repo := newFakeRepo()
	s := NewStore(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Apply(ctx, "t1", "jane smith", domain.RecommendReject, time.Now()); err != nil {
				t.Errorf("Apply failed: %v", err)
			}
		}()
	}
	wg.Wait()

	record, err := repo.GetEntityByName(ctx, "t1", "jane smith")
	if err != nil {
		t.Fatalf("GetEntityByName failed: %v", err)
	}
	if record.FraudCount != 50 {
		t.Errorf("expected 50 fraud increments, got %d", record.FraudCount)
	}
}
