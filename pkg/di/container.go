package di

import (
	"context"
	"database/sql"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-rememberable/cache"
	"github.com/goliatone/go-rememberable/internal/cacheinfra"
	"github.com/goliatone/go-rememberable/querycache"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// Container opens the configured cache backends and builds query caches on
// top of them. It owns the connections it opens; call Close when done.
type Container struct {
	config   Config
	logger   log.Interface
	registry *cache.Registry

	memory *cacheinfra.MemoryBackend
	redis  redis.UniversalClient
	db     *bun.DB
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to backends and query caches.
func WithLogger(logger log.Interface) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContainer validates config and opens every backend it names. The memory
// backend is always registered; redis and sql only when configured. The SQL
// cache table is created if missing.
func NewContainer(ctx context.Context, config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid cache config")
	}

	c := &Container{
		config: config,
		logger: log.Log,
	}
	for _, opt := range opts {
		opt(c)
	}

	backendOpts := []cache.BackendOption{cache.WithBackendLogger(c.logger)}

	memory, err := cache.NewMemoryBackend(config.Memory, backendOpts...)
	if err != nil {
		return nil, err
	}
	c.memory = memory
	c.registry = cache.NewRegistry(config.DefaultBackend).Register(BackendMemory, memory)

	if config.Redis != nil {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		c.registry.Register(BackendRedis, cache.NewRedisBackend(c.redis, config.Redis.Namespace, backendOpts...))
	}

	if config.SQL != nil {
		db, err := openDB(*config.SQL)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.db = db

		backend := cache.NewSQLBackend(db, backendOpts...)
		if err := backend.CreateSchema(ctx); err != nil {
			_ = c.Close()
			return nil, errors.Wrap(err, "create cache table")
		}
		c.registry.Register(BackendSQL, backend)
	}

	c.logger.WithFields(log.Fields{
		"default":  config.DefaultBackend,
		"backends": c.registry.Names(),
	}).Debug("cache container ready")

	return c, nil
}

// NewContainerWithDefaults creates a memory-only container.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(context.Background(), DefaultConfig())
}

func openDB(cfg SQLConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		if strings.Contains(cfg.DSN, ":memory:") {
			// every connection gets its own in-memory database
			sqldb.SetMaxOpenConns(1)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, errors.Newf("unsupported sql driver %q", cfg.Driver)
	}
}

// Registry returns the backend registry shared by every query cache built
// from this container.
func (c *Container) Registry() *cache.Registry {
	return c.registry
}

// Config returns the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// MemoryBackend returns the in-process backend.
func (c *Container) MemoryBackend() *cacheinfra.MemoryBackend {
	return c.memory
}

// DB returns the database opened for the sql backend, or nil.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Close releases the redis client and the database, if any.
func (c *Container) Close() error {
	var err error
	if c.redis != nil {
		err = errors.CombineErrors(err, c.redis.Close())
		c.redis = nil
	}
	if c.db != nil {
		err = errors.CombineErrors(err, c.db.Close())
		c.db = nil
	}
	return err
}

// NewQueryCache creates a query cache bound to the container's backends,
// logger and key prefix.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewQueryCache[[]User](container, querycache.Raw("default", sql, args...))
func NewQueryCache[T any](container *Container, query cache.Query, opts ...querycache.Option) *querycache.QueryResultCache[T] {
	opts = append([]querycache.Option{querycache.WithLogger(container.logger)}, opts...)
	return querycache.New[T](container.registry, query, opts...).WithPrefix(container.config.Prefix)
}

// NewRawQueryCache pairs a query cache with an executor that runs sql through
// repo. It is the usual entry point for go-repository-bun repositories.
func NewRawQueryCache[T any](container *Container, repo querycache.RawQuerier[T], connection, sql string, args ...any) (*querycache.QueryResultCache[[]T], querycache.ExecuteFn[[]T]) {
	identity, exec := querycache.RepositoryRaw(repo, connection, sql, args...)
	return NewQueryCache[[]T](container, identity), exec
}
