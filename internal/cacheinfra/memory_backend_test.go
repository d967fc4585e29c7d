package cacheinfra

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 24*time.Hour {
		t.Errorf("expected TTL to be 24 hours, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{
			name: "valid default config",
			cfg:  DefaultConfig(),
		},
		{
			name:      "invalid capacity - zero",
			cfg:       Config{Capacity: 0, NumShards: 256, TTL: time.Minute, EvictionPercentage: 10},
			wantField: "Capacity",
		},
		{
			name:      "invalid num shards - zero",
			cfg:       Config{Capacity: 1000, NumShards: 0, TTL: time.Minute, EvictionPercentage: 10},
			wantField: "NumShards",
		},
		{
			name:      "invalid TTL - zero",
			cfg:       Config{Capacity: 1000, NumShards: 256, TTL: 0, EvictionPercentage: 10},
			wantField: "TTL",
		},
		{
			name:      "invalid eviction percentage - too low",
			cfg:       Config{Capacity: 1000, NumShards: 256, TTL: time.Minute, EvictionPercentage: 0},
			wantField: "EvictionPercentage",
		},
		{
			name:      "invalid eviction percentage - too high",
			cfg:       Config{Capacity: 1000, NumShards: 256, TTL: time.Minute, EvictionPercentage: 101},
			wantField: "EvictionPercentage",
		},
		{
			name:      "invalid eviction interval - negative",
			cfg:       Config{Capacity: 1000, NumShards: 256, TTL: time.Minute, EvictionPercentage: 10, EvictionInterval: -time.Second},
			wantField: "EvictionInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, cfgErr.Field)
			}
		})
	}
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryBackend(t *testing.T, clock *fakeClock) *MemoryBackend {
	t.Helper()
	cfg := Config{Capacity: 100, NumShards: 4, TTL: time.Hour, EvictionPercentage: 10}
	backend, err := NewMemoryBackend(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewMemoryBackend() failed: %v", err)
	}
	return backend
}

func TestNewMemoryBackend_InvalidConfig(t *testing.T) {
	_, err := NewMemoryBackend(Config{})
	if err == nil {
		t.Fatal("expected error for zero config")
	}
}

func TestMemoryBackend_PutGet(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	if _, ok, err := backend.Get(ctx, "k", nil); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	if err := backend.Put(ctx, "k", []byte("v"), time.Minute, nil); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, ok, err := backend.Get(ctx, "k", nil)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("expected %q, got %q", "v", got)
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := newTestMemoryBackend(t, clock)

	if err := backend.Put(ctx, "k", []byte("v"), time.Minute, nil); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := backend.Get(ctx, "k", nil); !ok {
		t.Fatal("expected entry to be alive before its TTL")
	}

	clock.Advance(time.Second)
	if _, ok, _ := backend.Get(ctx, "k", nil); ok {
		t.Fatal("expected entry to expire after its TTL")
	}
}

func TestMemoryBackend_PutForeverIgnoresClock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := newTestMemoryBackend(t, clock)

	if err := backend.PutForever(ctx, "k", []byte("v"), nil); err != nil {
		t.Fatalf("PutForever() failed: %v", err)
	}

	clock.Advance(365 * 24 * time.Hour)
	if _, ok, _ := backend.Get(ctx, "k", nil); !ok {
		t.Fatal("expected forever entry to survive clock advance")
	}
}

func TestMemoryBackend_NonPositiveTTLRemovesEntry(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	if err := backend.PutForever(ctx, "k", []byte("v"), nil); err != nil {
		t.Fatalf("PutForever() failed: %v", err)
	}
	if err := backend.Put(ctx, "k", []byte("v2"), 0, nil); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if _, ok, _ := backend.Get(ctx, "k", nil); ok {
		t.Fatal("expected zero TTL write to leave no entry")
	}
}

func TestMemoryBackend_TagScopedLookup(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	if err := backend.Put(ctx, "k", []byte("tagged"), time.Minute, []string{"users"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if _, ok, _ := backend.Get(ctx, "k", nil); ok {
		t.Error("untagged lookup should not see a tagged entry")
	}
	if _, ok, _ := backend.Get(ctx, "k", []string{"posts"}); ok {
		t.Error("lookup with other tags should not see the entry")
	}
	if _, ok, _ := backend.Get(ctx, "k", []string{"users"}); !ok {
		t.Error("lookup with the same tags should hit")
	}
}

func TestMemoryBackend_TagOrderSelectsNamespace(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	if err := backend.Put(ctx, "k", []byte("ab"), time.Minute, []string{"a", "b"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if _, ok, _ := backend.Get(ctx, "k", []string{"b", "a"}); ok {
		t.Error("reordered tags should miss")
	}
	if err := backend.Put(ctx, "k", []byte("ba"), time.Minute, []string{"b", "a"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if got, ok, _ := backend.Get(ctx, "k", []string{"a", "b"}); !ok || string(got) != "ab" {
		t.Errorf("Get(a, b) = %q, %v, want ab", got, ok)
	}

	if ok, err := backend.DeleteByTags(ctx, []string{"a"}); err != nil || !ok {
		t.Fatalf("DeleteByTags() = %v, %v", ok, err)
	}
	for _, tags := range [][]string{{"a", "b"}, {"b", "a"}} {
		if _, ok, _ := backend.Get(ctx, "k", tags); ok {
			t.Errorf("Get(%v) should miss after flushing a", tags)
		}
	}
}

func TestMemoryBackend_DeleteByTags(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	mustPut := func(key string, tags []string) {
		t.Helper()
		if err := backend.PutForever(ctx, key, []byte(key), tags); err != nil {
			t.Fatalf("PutForever(%s) failed: %v", key, err)
		}
	}

	mustPut("a", []string{"users"})
	mustPut("b", []string{"users", "posts"})
	mustPut("c", []string{"posts"})
	mustPut("d", nil)

	ok, err := backend.DeleteByTags(ctx, []string{"users"})
	if err != nil || !ok {
		t.Fatalf("DeleteByTags() = %v, %v", ok, err)
	}

	if _, hit, _ := backend.Get(ctx, "a", []string{"users"}); hit {
		t.Error("entry a should be flushed")
	}
	if _, hit, _ := backend.Get(ctx, "b", []string{"users", "posts"}); hit {
		t.Error("entry b should be flushed")
	}
	if _, hit, _ := backend.Get(ctx, "c", []string{"posts"}); !hit {
		t.Error("entry c should survive")
	}
	if _, hit, _ := backend.Get(ctx, "d", nil); !hit {
		t.Error("untagged entry d should survive")
	}

	if size := backend.Size(); size != 2 {
		t.Errorf("expected stale entries to be removed, size = %d", size)
	}
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	backend := newTestMemoryBackend(t, newFakeClock())

	value := []byte("abc")
	if err := backend.PutForever(ctx, "k", value, nil); err != nil {
		t.Fatalf("PutForever() failed: %v", err)
	}
	value[0] = 'x'

	got, _, _ := backend.Get(ctx, "k", nil)
	got[1] = 'y'

	again, _, _ := backend.Get(ctx, "k", nil)
	if string(again) != "abc" {
		t.Errorf("stored value was mutated: %q", again)
	}
}
