package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tiercache/pkg/cache"
	"tiercache/pkg/cache/mock"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_RejectsUnknownEvictionPolicy(t *testing.T) {
	_, err := New(Config{EvictionPolicy: "arc"})
	if err == nil {
		t.Error("Expected error for unsupported eviction policy")
	}

	if _, err := New(Config{EvictionPolicy: "LRU"}); err != nil {
		t.Errorf("Expected case-insensitive lru accepted, got %v", err)
	}
}

// With no external tiers configured, the tiered cache is just the in-process
// LRU behind a different signature.
func TestCache_Tier1Only(t *testing.T) {
	c := newTestCache(t, Config{Tier1MaxSize: 10})
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	if err := c.Set(ctx, "key", "value", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "value" {
		t.Errorf("Expected 'value', got %v", value)
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "key"); !cache.IsNotFound(err) {
		t.Error("Expected miss after delete")
	}

	stats := c.Stats()
	if stats.Tier2.Configured || stats.Tier3.Configured {
		t.Error("External tiers should report unconfigured")
	}
	if stats.Tier2.Available || stats.Tier3.Available {
		t.Error("Unconfigured tiers should report unavailable")
	}
}

func TestCache_Tier1OnlyMatchesBareLRU(t *testing.T) {
	c := newTestCache(t, Config{Tier1MaxSize: 2})
	ctx := context.Background()

	// Same touch-then-evict sequence the bare tier-1 cache guarantees.
	c.Set(ctx, "x", float64(1), 0)
	c.Set(ctx, "y", float64(2), 0)
	if v, err := c.Get(ctx, "x"); err != nil || v != float64(1) {
		t.Fatalf("Expected x=1, got %v (%v)", v, err)
	}
	c.Set(ctx, "z", float64(3), 0)

	if _, err := c.Get(ctx, "y"); !cache.IsNotFound(err) {
		t.Error("Expected 'y' evicted")
	}
	if v, _ := c.Get(ctx, "x"); v != float64(1) {
		t.Errorf("Expected x=1, got %v", v)
	}
	if v, _ := c.Get(ctx, "z"); v != float64(3) {
		t.Errorf("Expected z=3, got %v", v)
	}
	if size := c.Stats().Tier1.Size; size != 2 {
		t.Errorf("Expected tier-1 size 2, got %d", size)
	}
}

func TestCache_PromotionOnTier2Hit(t *testing.T) {
	remote := mock.NewRemoteStore()
	remote.Seed("key", `"remote-value"`, time.Minute)

	c := newTestCache(t, Config{Tier2: remote})
	ctx := context.Background()

	value, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "remote-value" {
		t.Errorf("Expected 'remote-value', got %v", value)
	}
	if remote.GetCalls() != 1 {
		t.Errorf("Expected 1 tier-2 get, got %d", remote.GetCalls())
	}

	// Second read must be served from tier 1 without another tier-2 call.
	tier1HitsBefore := c.Stats().Tier1.Hits
	if _, err := c.Get(ctx, "key"); err != nil {
		t.Fatalf("Second get failed: %v", err)
	}
	if remote.GetCalls() != 1 {
		t.Errorf("Expected tier 2 untouched on second get, got %d calls", remote.GetCalls())
	}
	if hits := c.Stats().Tier1.Hits; hits != tier1HitsBefore+1 {
		t.Errorf("Expected tier-1 hit counter to advance, got %d -> %d", tier1HitsBefore, hits)
	}

	if c.Stats().Tier2.Hits != 1 {
		t.Errorf("Expected 1 tier-2 hit recorded, got %d", c.Stats().Tier2.Hits)
	}
}

func TestCache_PromotionOnTier3Hit(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()
	durable.Seed("key", `"durable-value"`, time.Time{})

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	value, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "durable-value" {
		t.Errorf("Expected 'durable-value', got %v", value)
	}

	// Tier-3 hit must be copied into both faster tiers.
	if !remote.Contains("key") {
		t.Error("Expected tier-3 hit promoted into tier 2")
	}
	if remote.SetCalls() != 1 {
		t.Errorf("Expected 1 tier-2 promotion write, got %d", remote.SetCalls())
	}

	if _, err := c.Get(ctx, "key"); err != nil {
		t.Fatalf("Second get failed: %v", err)
	}
	if durable.GetCalls() != 1 {
		t.Errorf("Expected tier 3 untouched on second get, got %d calls", durable.GetCalls())
	}

	if c.Stats().Tier3.Hits != 1 {
		t.Errorf("Expected 1 tier-3 hit recorded, got %d", c.Stats().Tier3.Hits)
	}
}

func TestCache_FailOpenOnTier2Error(t *testing.T) {
	remote := mock.NewRemoteStore()
	remote.GetFunc = func(ctx context.Context, key string) (string, error) {
		return "", errors.New("connection refused")
	}

	durable := mock.NewDurableStore()
	durable.Seed("key", `"from-tier3"`, time.Time{})

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	// The tier-2 failure must not prevent the tier-3 hit.
	value, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get failed despite healthy tier 3: %v", err)
	}
	if value != "from-tier3" {
		t.Errorf("Expected 'from-tier3', got %v", value)
	}

	if c.Stats().Tier2.Available {
		t.Error("Expected tier 2 latched unavailable after failure")
	}

	// Subsequent lookups must skip tier 2 entirely.
	callsAfterFailure := remote.GetCalls()
	c.Get(ctx, "another-key")
	if remote.GetCalls() != callsAfterFailure {
		t.Errorf("Expected no further tier-2 calls, got %d -> %d", callsAfterFailure, remote.GetCalls())
	}
}

func TestCache_Tier2MissIsNotAFailure(t *testing.T) {
	remote := mock.NewRemoteStore()

	c := newTestCache(t, Config{Tier2: remote})
	ctx := context.Background()

	if _, err := c.Get(ctx, "absent"); !cache.IsNotFound(err) {
		t.Fatalf("Expected miss, got %v", err)
	}

	if !c.Stats().Tier2.Available {
		t.Error("A tier-2 miss must not latch the tier unavailable")
	}
}

func TestCache_FailOpenOnTier3Error(t *testing.T) {
	durable := mock.NewDurableStore()
	durable.GetFunc = func(ctx context.Context, key string) (string, error) {
		return "", errors.New("pq: connection reset")
	}

	c := newTestCache(t, Config{Tier3: durable})
	ctx := context.Background()

	if _, err := c.Get(ctx, "key"); !cache.IsNotFound(err) {
		t.Fatalf("Expected degraded miss, got %v", err)
	}
	if c.Stats().Tier3.Available {
		t.Error("Expected tier 3 latched unavailable")
	}

	calls := durable.GetCalls()
	c.Get(ctx, "key")
	if durable.GetCalls() != calls {
		t.Error("Expected no further tier-3 calls after latch")
	}
}

func TestCache_SetDemotesToAllTiers(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	if err := c.Set(ctx, "key", map[string]interface{}{"answer": float64(42)}, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if !remote.Contains("key") {
		t.Error("Expected write demoted to tier 2")
	}
	if !durable.Contains("key") {
		t.Error("Expected write demoted to tier 3")
	}

	// The value must round-trip through the serialized tiers.
	c.tier1.Delete("key")
	value, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get after tier-1 eviction failed: %v", err)
	}
	m, ok := value.(map[string]interface{})
	if !ok || m["answer"] != float64(42) {
		t.Errorf("Expected decoded map with answer=42, got %#v", value)
	}
}

func TestCache_SetSurvivesDeepTierFailures(t *testing.T) {
	remote := mock.NewRemoteStore()
	remote.SetFunc = func(ctx context.Context, key, value string, ttl time.Duration) error {
		return errors.New("redis write failed")
	}
	durable := mock.NewDurableStore()
	durable.UpsertFunc = func(ctx context.Context, key, value string, expiresAt time.Time) error {
		return errors.New("pq write failed")
	}

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	if err := c.Set(ctx, "key", "value", 0); err != nil {
		t.Fatalf("Set must not fail on deep-tier errors: %v", err)
	}

	// Tier 1 has the value even though both demotions failed.
	if value, err := c.Get(ctx, "key"); err != nil || value != "value" {
		t.Errorf("Expected tier-1 hit, got %v (%v)", value, err)
	}

	stats := c.Stats()
	if stats.Tier2.Available || stats.Tier3.Available {
		t.Error("Expected both tiers latched after write failures")
	}
}

func TestCache_GetOrCompute(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	var calls int32
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "computed", nil
	}

	value, err := c.GetOrCompute(ctx, "key", compute, time.Minute)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if value != "computed" {
		t.Errorf("Expected 'computed', got %v", value)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 compute call, got %d", n)
	}

	// Cached now: compute must not run again.
	value, err = c.GetOrCompute(ctx, "key", compute, time.Minute)
	if err != nil {
		t.Fatalf("Second GetOrCompute failed: %v", err)
	}
	if value != "computed" {
		t.Errorf("Expected cached 'computed', got %v", value)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected compute not re-invoked, got %d calls", n)
	}
}

func TestCache_GetOrCompute_ErrorNotCached(t *testing.T) {
	c := newTestCache(t, Config{})
	ctx := context.Background()

	wantErr := errors.New("producer failed")
	_, err := c.GetOrCompute(ctx, "key", func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	}, 0)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected producer error surfaced, got %v", err)
	}

	// The failure must not have been cached.
	if _, err := c.Get(ctx, "key"); !cache.IsNotFound(err) {
		t.Error("Expected no entry cached after compute failure")
	}
}

func TestCache_GetOrCompute_SingleFlight(t *testing.T) {
	c := newTestCache(t, Config{SingleFlight: true})
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make([]interface{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			v, err := c.GetOrCompute(ctx, "hot-key", compute, time.Minute)
			if err != nil {
				t.Errorf("racer %d: %v", n, err)
				return
			}
			results[n] = v
		}(i)
	}

	// Give the racers time to pile onto the flight group, then release.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected exactly 1 shared computation, got %d", n)
	}
	for i, v := range results {
		if v != "shared" {
			t.Errorf("racer %d got %v", i, v)
		}
	}
}

func TestCache_Delete(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	c.Set(ctx, "key", "value", 0)
	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := c.Get(ctx, "key"); !cache.IsNotFound(err) {
		t.Error("Expected miss after delete")
	}
	if remote.Contains("key") || durable.Contains("key") {
		t.Error("Expected key removed from all tiers")
	}

	// Deleting an absent key is a no-op everywhere.
	if err := c.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of absent key must not fail: %v", err)
	}
}

func TestCache_Clear_PreservesTier2(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable})
	ctx := context.Background()

	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if size := c.Stats().Tier1.Size; size != 0 {
		t.Errorf("Expected tier 1 emptied, got size %d", size)
	}
	if durable.DeleteAllCalls() != 1 {
		t.Errorf("Expected 1 tier-3 delete-all, got %d", durable.DeleteAllCalls())
	}

	// Tier 2 is shared; Clear must leave it alone.
	if !remote.Contains("a") || !remote.Contains("b") {
		t.Error("Clear must not flush the shared tier-2 store")
	}
}

func TestCache_Reenable(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	remote := mock.NewRemoteStore()
	remote.GetFunc = func(ctx context.Context, key string) (string, error) {
		if failing.Load() {
			return "", errors.New("down")
		}
		return "", cache.ErrKeyNotFound
	}

	c := newTestCache(t, Config{Tier2: remote})
	ctx := context.Background()

	c.Get(ctx, "key")
	if c.Stats().Tier2.Available {
		t.Fatal("Expected tier 2 latched")
	}

	failing.Store(false)
	c.ReenableTier2()
	if !c.Stats().Tier2.Available {
		t.Fatal("Expected tier 2 available after re-enable")
	}

	calls := remote.GetCalls()
	c.Get(ctx, "key")
	if remote.GetCalls() != calls+1 {
		t.Error("Expected tier 2 probed again after re-enable")
	}
}

func TestCache_AsyncDemotion(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{
		Tier2:         remote,
		Tier3:         durable,
		AsyncDemotion: true,
	})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		c.Set(ctx, fmt.Sprintf("key-%d", i), i, 0)
	}

	if err := c.Flush(2 * time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	// Flush empties the queue; workers may still be applying the last op.
	deadline := time.Now().Add(2 * time.Second)
	for durable.Len() < 20 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key-%d", i)
		if !remote.Contains(key) {
			t.Errorf("Expected %s demoted to tier 2", key)
		}
		if !durable.Contains(key) {
			t.Errorf("Expected %s demoted to tier 3", key)
		}
	}
}

func TestCache_Tier3BloomSkipsUnwrittenKeys(t *testing.T) {
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{
		Tier3:      durable,
		Tier3Bloom: true,
	})
	ctx := context.Background()

	// Nothing demoted yet: probes for unseen keys must skip the store.
	for i := 0; i < 10; i++ {
		c.Get(ctx, fmt.Sprintf("cold-key-%d", i))
	}
	if durable.GetCalls() != 0 {
		t.Errorf("Expected bloom guard to skip all tier-3 probes, got %d", durable.GetCalls())
	}

	// A demoted key must always be probed.
	c.Set(ctx, "warm-key", "v", 0)
	c.tier1.Delete("warm-key")
	if v, err := c.Get(ctx, "warm-key"); err != nil || v != "v" {
		t.Errorf("Expected tier-3 hit for demoted key, got %v (%v)", v, err)
	}
	if durable.GetCalls() == 0 {
		t.Error("Expected guard to allow probe for demoted key")
	}
}

func TestCache_TTLDefaultsPerTier(t *testing.T) {
	var tier2TTL time.Duration
	remote := mock.NewRemoteStore()
	remote.SetFunc = func(ctx context.Context, key, value string, ttl time.Duration) error {
		tier2TTL = ttl
		return nil
	}

	var tier3Expiry time.Time
	durable := mock.NewDurableStore()
	durable.UpsertFunc = func(ctx context.Context, key, value string, expiresAt time.Time) error {
		tier3Expiry = expiresAt
		return nil
	}

	c := newTestCache(t, Config{
		Tier2:    remote,
		Tier3:    durable,
		Tier2TTL: time.Minute,
		Tier3TTL: time.Hour,
	})
	ctx := context.Background()

	before := time.Now()
	c.Set(ctx, "key", "value", 0)

	if tier2TTL != time.Minute {
		t.Errorf("Expected tier-2 default TTL 1m, got %v", tier2TTL)
	}
	wantMin := before.Add(time.Hour)
	if tier3Expiry.Before(wantMin.Add(-time.Second)) || tier3Expiry.After(wantMin.Add(5*time.Second)) {
		t.Errorf("Expected tier-3 expiry ~1h out, got %v", tier3Expiry)
	}

	// Explicit TTL overrides the per-tier defaults.
	c.Set(ctx, "key", "value", 30*time.Second)
	if tier2TTL != 30*time.Second {
		t.Errorf("Expected explicit TTL passed to tier 2, got %v", tier2TTL)
	}
}

func TestCache_StatsSnapshot(t *testing.T) {
	remote := mock.NewRemoteStore()
	remote.Seed("deep", `"v"`, time.Minute)

	c := newTestCache(t, Config{Tier2: remote, Tier2TTL: time.Minute})
	ctx := context.Background()

	c.Set(ctx, "local", 1, 0)
	c.Get(ctx, "local") // tier-1 hit
	c.Get(ctx, "deep")  // tier-2 hit
	c.Get(ctx, "gone")  // full miss

	stats := c.Stats()
	if stats.Tier1.Hits != 1 {
		t.Errorf("Expected 1 tier-1 hit, got %d", stats.Tier1.Hits)
	}
	if stats.Tier2.Hits != 1 {
		t.Errorf("Expected 1 tier-2 hit, got %d", stats.Tier2.Hits)
	}
	if !stats.Tier2.Configured || !stats.Tier2.Available {
		t.Error("Expected tier 2 configured and available")
	}
	if stats.Tier2.TTL != time.Minute {
		t.Errorf("Expected tier-2 TTL 1m, got %v", stats.Tier2.TTL)
	}
}

func TestCache_ConcurrentMixedOps(t *testing.T) {
	remote := mock.NewRemoteStore()
	durable := mock.NewDurableStore()

	c := newTestCache(t, Config{Tier2: remote, Tier3: durable, Tier1MaxSize: 64})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", (n*100+j)%32)
				switch j % 4 {
				case 0:
					c.Set(ctx, key, j, time.Minute)
				case 1, 2:
					c.Get(ctx, key)
				case 3:
					c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	if size := c.Stats().Tier1.Size; size > 64 {
		t.Errorf("Tier-1 capacity exceeded: %d", size)
	}
}
