package cacheinfra

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores entries as plain string keys. Tag membership is tracked
// in one set per tag so a flush can delete every member.
// The caller owns the client lifecycle.
type RedisBackend struct {
	client    redis.UniversalClient
	namespace string
	logger    log.Interface
}

// NewRedisBackend returns a backend that writes under namespace (may be empty).
func NewRedisBackend(client redis.UniversalClient, namespace string, opts ...Option) *RedisBackend {
	o := applyOptions(opts)
	return &RedisBackend{
		client:    client,
		namespace: namespace,
		logger:    o.logger.WithField("backend", "redis"),
	}
}

func (b *RedisBackend) key(k string) string {
	if b.namespace == "" {
		return k
	}
	return b.namespace + ":" + k
}

func (b *RedisBackend) tagKey(tag string) string {
	return b.key("tag:" + tag)
}

// Get ignores tags: membership only matters when flushing.
func (b *RedisBackend) Get(ctx context.Context, key string, _ []string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put stores value with ttl. A non-positive ttl deletes the key instead.
func (b *RedisBackend) Put(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if ttl <= 0 {
		return b.client.Del(ctx, b.key(key)).Err()
	}
	return b.write(ctx, key, value, ttl, tags)
}

// PutForever stores value without expiry.
func (b *RedisBackend) PutForever(ctx context.Context, key string, value []byte, tags []string) error {
	return b.write(ctx, key, value, 0, tags)
}

func (b *RedisBackend) write(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	k := b.key(key)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, b.tagKey(tag), k)
		}
		return nil
	})
	return err
}

// DeleteByTags deletes every key recorded under the tags, then the tag sets.
func (b *RedisBackend) DeleteByTags(ctx context.Context, tags []string) (bool, error) {
	if len(tags) == 0 {
		return true, nil
	}

	toDelete := make([]string, 0, len(tags))
	for _, tag := range tags {
		tk := b.tagKey(tag)
		members, err := b.client.SMembers(ctx, tk).Result()
		if err != nil {
			return false, err
		}
		toDelete = append(toDelete, members...)
		toDelete = append(toDelete, tk)
	}

	removed, err := b.client.Del(ctx, toDelete...).Result()
	if err != nil {
		return false, err
	}

	b.logger.WithFields(log.Fields{"tags": tags, "removed": removed}).Debug("flushed tags")
	return true, nil
}
