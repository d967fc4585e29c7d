package cache

import (
	"time"

	"github.com/apex/log"
	"github.com/goliatone/go-rememberable/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

var (
	_ Backend = (*cacheinfra.MemoryBackend)(nil)
	_ Backend = (*cacheinfra.RedisBackend)(nil)
	_ Backend = (*cacheinfra.SQLBackend)(nil)
)

// Config exposes memory backend configuration options for consumers of the cache package.
type Config struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// BackendOption customizes a built-in backend.
type BackendOption = cacheinfra.Option

// WithBackendLogger sets the logger a built-in backend writes to.
func WithBackendLogger(logger log.Interface) BackendOption {
	return cacheinfra.WithLogger(logger)
}

// WithBackendClock overrides the time source a built-in backend uses for expiry.
func WithBackendClock(now func() time.Time) BackendOption {
	return cacheinfra.WithClock(now)
}

// NewMemoryBackend constructs the in-process backend. It supports tag-scoped
// lookups and tag flushes.
func NewMemoryBackend(cfg Config, opts ...BackendOption) (*cacheinfra.MemoryBackend, error) {
	return cacheinfra.NewMemoryBackend(cfg.toInternal(), opts...)
}

// NewRedisBackend constructs a Redis backend. Tags are recorded as sets and can
// be flushed; they do not scope lookups.
func NewRedisBackend(client redis.UniversalClient, namespace string, opts ...BackendOption) *cacheinfra.RedisBackend {
	return cacheinfra.NewRedisBackend(client, namespace, opts...)
}

// NewSQLBackend constructs a database backend over bun. It does not support
// tags; call CreateSchema before first use.
func NewSQLBackend(db bun.IDB, opts ...BackendOption) *cacheinfra.SQLBackend {
	return cacheinfra.NewSQLBackend(db, opts...)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
