package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

const taggedKeyPrefix = "tagged:"

// memoryEntry is what the sturdyc client stores. A zero expiresAt means the
// entry only expires through the client's own TTL.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend stores entries in a sharded sturdyc client.
//
// Tags are implemented with namespaces: every tag owns a random version ID and
// tagged entries live under a key that embeds the IDs of their tags. Flushing a
// tag rotates its ID, which makes every entry written under the old ID
// unreachable; the stale entries are then deleted from the client. The IDs are
// joined in the order the tags are given, so the same tags in another order
// name another namespace.
type MemoryBackend struct {
	client *sturdyc.Client[memoryEntry]
	tagIDs *xsync.MapOf[string, string]
	logger log.Interface
	now    func() time.Time
}

// NewMemoryBackend creates a new sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
func NewMemoryBackend(cfg Config, opts ...Option) (*MemoryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var sturdycOpts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		sturdycOpts = append(sturdycOpts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		sturdycOpts...,
	)

	o := applyOptions(opts)
	return &MemoryBackend{
		client: client,
		tagIDs: xsync.NewMapOf[string, string](),
		logger: o.logger.WithField("backend", "memory"),
		now:    o.now,
	}, nil
}

// Get returns the entry stored under key in the namespace of tags.
func (b *MemoryBackend) Get(_ context.Context, key string, tags []string) ([]byte, bool, error) {
	scoped := b.scopedKey(key, tags)

	entry, ok := b.client.Get(scoped)
	if !ok {
		return nil, false, nil
	}

	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		b.client.Delete(scoped)
		return nil, false, nil
	}

	return append([]byte(nil), entry.value...), true, nil
}

// Put stores value for ttl. A non-positive ttl removes any existing entry
// instead of storing one.
func (b *MemoryBackend) Put(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	scoped := b.scopedKey(key, tags)

	if ttl <= 0 {
		b.client.Delete(scoped)
		return nil
	}

	b.client.Set(scoped, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: b.now().Add(ttl),
	})
	return nil
}

// PutForever stores value until it is flushed or evicted by the client.
func (b *MemoryBackend) PutForever(_ context.Context, key string, value []byte, tags []string) error {
	b.client.Set(b.scopedKey(key, tags), memoryEntry{
		value: append([]byte(nil), value...),
	})
	return nil
}

// DeleteByTags rotates the namespace of every tag and drops the entries that
// belonged to the previous namespaces.
func (b *MemoryBackend) DeleteByTags(_ context.Context, tags []string) (bool, error) {
	stale := make([]string, 0, len(tags))
	for _, tag := range tags {
		if old, ok := b.tagIDs.Load(tag); ok {
			stale = append(stale, old)
		}
		b.tagIDs.Store(tag, uuid.NewString())
	}

	if len(stale) == 0 {
		return true, nil
	}

	removed := 0
	for _, key := range b.client.ScanKeys() {
		if !strings.HasPrefix(key, taggedKeyPrefix) {
			continue
		}
		namespace := strings.TrimPrefix(key, taggedKeyPrefix)
		if idx := strings.Index(namespace, ":"); idx >= 0 {
			namespace = namespace[:idx]
		}
		for _, id := range stale {
			if strings.Contains(namespace, id) {
				b.client.Delete(key)
				removed++
				break
			}
		}
	}

	b.logger.WithFields(log.Fields{"tags": tags, "removed": removed}).Debug("flushed tags")
	return true, nil
}

// Size returns the number of entries held by the client.
func (b *MemoryBackend) Size() int {
	return b.client.Size()
}

func (b *MemoryBackend) scopedKey(key string, tags []string) string {
	if len(tags) == 0 {
		return key
	}

	ids := make([]string, len(tags))
	for i, tag := range tags {
		ids[i], _ = b.tagIDs.LoadOrCompute(tag, uuid.NewString)
	}
	return taggedKeyPrefix + strings.Join(ids, "|") + ":" + key
}
