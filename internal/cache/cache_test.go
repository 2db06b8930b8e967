package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-001", "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "tenant-001", "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("value1")) {
		t.Errorf("expected value1, got %s", got)
	}
}

func TestLRUCacheMiss(t *testing.T) {
	c := NewLRUCache(100)

	got, err := c.Get(context.Background(), "tenant-001", "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing key, got %s", got)
	}
}

func TestLRUCacheTenantIsolation(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-a", "shared-key", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "tenant-b", "shared-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss for other tenant, got %s", got)
	}
}

func TestLRUCacheRequiresTenant(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if _, err := c.Get(ctx, "", "key"); err == nil {
		t.Error("expected error for empty tenantID")
	}
	if err := c.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
		t.Error("expected error for empty tenantID")
	}
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-001", "expiring", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	got, err := c.Get(ctx, "tenant-001", "expiring")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired entry to be gone, got %s", got)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("key%d", i)
		if err := c.Set(ctx, "tenant-001", key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	// key0 is the oldest and should have been evicted.
	got, _ := c.Get(ctx, "tenant-001", "key0")
	if got != nil {
		t.Error("expected oldest entry to be evicted")
	}
	got, _ = c.Get(ctx, "tenant-001", "key3")
	if got == nil {
		t.Error("expected newest entry to survive")
	}

	if size, capacity := c.Stats(); size != 3 || capacity != 3 {
		t.Errorf("expected size 3/capacity 3, got %d/%d", size, capacity)
	}
}

func TestLRUCacheEvictionRespectsRecency(t *testing.T) {
	c := NewLRUCache(2)
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "a", []byte("1"), time.Minute)
	c.Set(ctx, "tenant-001", "b", []byte("2"), time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, err := c.Get(ctx, "tenant-001", "a"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	c.Set(ctx, "tenant-001", "c", []byte("3"), time.Minute)

	if got, _ := c.Get(ctx, "tenant-001", "a"); got == nil {
		t.Error("recently used entry must survive eviction")
	}
	if got, _ := c.Get(ctx, "tenant-001", "b"); got != nil {
		t.Error("least recently used entry must be evicted")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "key1", []byte("v"), time.Minute)

	if err := c.Delete(ctx, "tenant-001", "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := c.Get(ctx, "tenant-001", "key1"); got != nil {
		t.Error("expected deleted key to be gone")
	}

	// Deleting a missing key is not an error.
	if err := c.Delete(ctx, "tenant-001", "missing"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

func TestLRUCacheCounts(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	_, ok, err := c.GetCount(ctx, "tenant-001", "pair:a:b:604800")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if ok {
		t.Error("expected miss before SetCount")
	}

	if err := c.SetCount(ctx, "tenant-001", "pair:a:b:604800", 7, time.Minute); err != nil {
		t.Fatalf("SetCount failed: %v", err)
	}

	count, ok, err := c.GetCount(ctx, "tenant-001", "pair:a:b:604800")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after SetCount")
	}
	if count != 7 {
		t.Errorf("expected 7, got %d", count)
	}
}

func TestLRUCacheZeroCountIsHit(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if err := c.SetCount(ctx, "tenant-001", "giver:u:86400", 0, time.Minute); err != nil {
		t.Fatalf("SetCount failed: %v", err)
	}

	count, ok, err := c.GetCount(ctx, "tenant-001", "giver:u:86400")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if !ok {
		t.Error("a stored zero must be a hit, not a miss")
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestLRUCacheIncrementCounter(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "tenant-001", "submissions:giver", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestLRUCacheCounterWindowReset(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if _, err := c.IncrementCounter(ctx, "tenant-001", "burst", 10*time.Millisecond); err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	got, err := c.IncrementCounter(ctx, "tenant-001", "burst", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected counter to reset after window, got %d", got)
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache for memory type, got %T", c)
	}
}

func TestNewFactoryUnknownType(t *testing.T) {
	_, err := New(domain.CacheConfig{Type: "memcached"})
	if err == nil {
		t.Error("expected error for unknown cache type")
	}
}
