package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// countingRepo tracks how many count queries hit the database.
type countingRepo struct {
	domain.Repository

	pairCount  int64
	giverCount int64
	dupCount   int64
	queries    int
	err        error
}

func (r *countingRepo) CountPair(ctx context.Context, tenantID, giverID, recipientID string, since time.Time) (int64, error) {
	r.queries++
	return r.pairCount, r.err
}

func (r *countingRepo) CountByGiver(ctx context.Context, tenantID, giverID string, since time.Time) (int64, error) {
	r.queries++
	return r.giverCount, r.err
}

func (r *countingRepo) CountDuplicateReason(ctx context.Context, tenantID, giverID, normalizedReason string, since time.Time) (int64, error) {
	r.queries++
	return r.dupCount, r.err
}

// memCache is a minimal in-process Cache for tests.
type memCache struct {
	counts     map[string]int64
	increments map[string]int64
}

func newMemCache() *memCache {
	return &memCache{
		counts:     make(map[string]int64),
		increments: make(map[string]int64),
	}
}

func (c *memCache) Get(ctx context.Context, tenantID, key string) ([]byte, error) { return nil, nil }
func (c *memCache) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (c *memCache) Delete(ctx context.Context, tenantID, key string) error { return nil }

func (c *memCache) GetCount(ctx context.Context, tenantID, key string) (int64, bool, error) {
	count, ok := c.counts[tenantID+":"+key]
	return count, ok, nil
}

func (c *memCache) SetCount(ctx context.Context, tenantID, key string, count int64, ttl time.Duration) error {
	c.counts[tenantID+":"+key] = count
	return nil
}

func (c *memCache) DeleteCount(ctx context.Context, tenantID, key string) error {
	delete(c.counts, tenantID+":"+key)
	return nil
}

func (c *memCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	c.increments[tenantID+":"+key]++
	return c.increments[tenantID+":"+key], nil
}

func (c *memCache) Ping(ctx context.Context) error { return nil }
func (c *memCache) Close() error                   { return nil }

func TestPairCountQueriesRepository(t *testing.T) {
	repo := &countingRepo{pairCount: 4}
	svc := NewService(repo, nil, domain.DefaultDetectionConfig())

	got, err := svc.PairCount(context.Background(), "tenant-001", "giver", "recipient", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if repo.queries != 1 {
		t.Errorf("expected 1 repository query, got %d", repo.queries)
	}
}

func TestPairCountCachesResult(t *testing.T) {
	repo := &countingRepo{pairCount: 4}
	svc := NewService(repo, newMemCache(), domain.DefaultDetectionConfig())

	for i := 0; i < 3; i++ {
		got, err := svc.PairCount(context.Background(), "tenant-001", "giver", "recipient", 7*24*time.Hour)
		if err != nil {
			t.Fatalf("pair count failed: %v", err)
		}
		if got != 4 {
			t.Errorf("expected 4, got %d", got)
		}
	}

	if repo.queries != 1 {
		t.Errorf("expected repeated reads to hit the cache, got %d queries", repo.queries)
	}
}

func TestMutualCountReversesDirection(t *testing.T) {
	repo := &countingRepo{pairCount: 2}
	cache := newMemCache()
	svc := NewService(repo, cache, domain.DefaultDetectionConfig())

	if _, err := svc.PairCount(context.Background(), "tenant-001", "alice", "bob", 7*24*time.Hour); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if _, err := svc.MutualCount(context.Background(), "tenant-001", "alice", "bob", 7*24*time.Hour); err != nil {
		t.Fatalf("mutual count failed: %v", err)
	}

	// alice→bob and bob→alice are distinct cache entries.
	if repo.queries != 2 {
		t.Errorf("expected 2 queries for the two directions, got %d", repo.queries)
	}

	// mutual(alice, bob) shares the pair(bob, alice) cache entry.
	if _, err := svc.PairCount(context.Background(), "tenant-001", "bob", "alice", 7*24*time.Hour); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if repo.queries != 2 {
		t.Errorf("expected reversed pair to reuse the mutual entry, got %d queries", repo.queries)
	}
}

func TestGiverCountSeparatesWindows(t *testing.T) {
	repo := &countingRepo{giverCount: 7}
	svc := NewService(repo, newMemCache(), domain.DefaultDetectionConfig())

	if _, err := svc.GiverCount(context.Background(), "tenant-001", "giver", 24*time.Hour); err != nil {
		t.Fatalf("giver count failed: %v", err)
	}
	if _, err := svc.GiverCount(context.Background(), "tenant-001", "giver", 7*24*time.Hour); err != nil {
		t.Fatalf("giver count failed: %v", err)
	}

	if repo.queries != 2 {
		t.Errorf("daily and weekly windows must cache separately, got %d queries", repo.queries)
	}
}

func TestDuplicateReasonCountNormalizes(t *testing.T) {
	repo := &countingRepo{dupCount: 3}
	svc := NewService(repo, newMemCache(), domain.DefaultDetectionConfig())

	if _, err := svc.DuplicateReasonCount(context.Background(), "tenant-001", "giver", "Great Work!", 30*24*time.Hour); err != nil {
		t.Fatalf("duplicate count failed: %v", err)
	}
	// Same reason modulo case and surrounding space shares the cache entry.
	if _, err := svc.DuplicateReasonCount(context.Background(), "tenant-001", "giver", "  great work!  ", 30*24*time.Hour); err != nil {
		t.Fatalf("duplicate count failed: %v", err)
	}

	if repo.queries != 1 {
		t.Errorf("expected normalized reasons to share a cache entry, got %d queries", repo.queries)
	}
}

func TestCountsRequireTenant(t *testing.T) {
	svc := NewService(&countingRepo{}, nil, domain.DefaultDetectionConfig())

	if _, err := svc.PairCount(context.Background(), "", "giver", "recipient", time.Hour); err == nil {
		t.Error("expected error for missing tenant")
	}
}

func TestCountErrorPropagates(t *testing.T) {
	repo := &countingRepo{err: errors.New("db down")}
	svc := NewService(repo, newMemCache(), domain.DefaultDetectionConfig())

	if _, err := svc.GiverCount(context.Background(), "tenant-001", "giver", time.Hour); err == nil {
		t.Error("expected repository error to propagate")
	}
}

func TestTenantsCacheSeparately(t *testing.T) {
	repo := &countingRepo{pairCount: 1}
	svc := NewService(repo, newMemCache(), domain.DefaultDetectionConfig())

	if _, err := svc.PairCount(context.Background(), "tenant-a", "giver", "recipient", time.Hour); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if _, err := svc.PairCount(context.Background(), "tenant-b", "giver", "recipient", time.Hour); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}

	if repo.queries != 2 {
		t.Errorf("expected per-tenant cache entries, got %d queries", repo.queries)
	}
}

func TestInvalidateCountsDropsStaleEntries(t *testing.T) {
	cfg := domain.DefaultDetectionConfig()
	repo := &countingRepo{pairCount: 4, giverCount: 2}
	svc := NewService(repo, newMemCache(), cfg)
	ctx := context.Background()

	reciprocityWindow := time.Duration(cfg.ReciprocityWindowDays) * 24 * time.Hour

	// Warm the cache with the windows an evaluation reads.
	if _, err := svc.PairCount(ctx, "tenant-001", "giver", "recipient", reciprocityWindow); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if _, err := svc.GiverCount(ctx, "tenant-001", "giver", 24*time.Hour); err != nil {
		t.Fatalf("giver count failed: %v", err)
	}
	warmQueries := repo.queries

	svc.InvalidateCounts(ctx, "tenant-001", &domain.Recognition{
		GiverID:     "giver",
		RecipientID: "recipient",
		Reason:      "Covered the pager during the holiday change freeze",
	})

	// Both reads now miss the cache and hit the repository again.
	if _, err := svc.PairCount(ctx, "tenant-001", "giver", "recipient", reciprocityWindow); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if _, err := svc.GiverCount(ctx, "tenant-001", "giver", 24*time.Hour); err != nil {
		t.Fatalf("giver count failed: %v", err)
	}
	if repo.queries != warmQueries+2 {
		t.Errorf("expected 2 fresh queries after invalidation, got %d", repo.queries-warmQueries)
	}

	// Another giver's entries are untouched.
	if _, err := svc.PairCount(ctx, "tenant-001", "giver", "recipient", reciprocityWindow); err != nil {
		t.Fatalf("pair count failed: %v", err)
	}
	if repo.queries != warmQueries+2 {
		t.Errorf("expected the re-cached entry to serve the repeat read, got %d extra queries", repo.queries-warmQueries)
	}
}

func TestRecordSubmission(t *testing.T) {
	cache := newMemCache()
	svc := NewService(&countingRepo{}, cache, domain.DefaultDetectionConfig())

	for want := int64(1); want <= 3; want++ {
		got, err := svc.RecordSubmission(context.Background(), "tenant-001", "giver")
		if err != nil {
			t.Fatalf("record submission failed: %v", err)
		}
		if got != want {
			t.Errorf("expected counter %d, got %d", want, got)
		}
	}
}

func TestRecordSubmissionWithoutCache(t *testing.T) {
	svc := NewService(&countingRepo{}, nil, domain.DefaultDetectionConfig())

	got, err := svc.RecordSubmission(context.Background(), "tenant-001", "giver")
	if err != nil {
		t.Fatalf("record submission failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 without cache, got %d", got)
	}
}
