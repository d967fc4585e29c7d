package querycache

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-rememberable/cache"
)

// ErrNilExecutor is returned by Fetch when no execute function is given.
var ErrNilExecutor = errors.New("querycache: nil execute function")

// ExecuteFn runs the underlying query. Its error is returned to the caller unchanged.
type ExecuteFn[T any] func(ctx context.Context) (T, error)

// Spec is the caching intent recorded on a QueryResultCache.
type Spec struct {
	// TTL is nil until Remember is called; a nil TTL means pass-through.
	TTL         *cache.TTL
	ExplicitKey string
	Tags        []string
	Prefix      string
	// Backend selects a registry entry; empty means the registry default.
	Backend string
}

// Armed reports whether the next Fetch goes through the cache.
func (s Spec) Armed() bool {
	return s.TTL != nil
}

func (s Spec) clone() Spec {
	out := s
	if s.TTL != nil {
		ttl := *s.TTL
		out.TTL = &ttl
	}
	out.Tags = append([]string(nil), s.Tags...)
	return out
}

type options struct {
	serializer cache.BindingSerializer
	codec      cache.Codec
	logger     log.Interface
	now        func() time.Time
}

// Option customizes a QueryResultCache.
type Option func(*options)

// WithSerializer sets the serializer used for bound parameters.
func WithSerializer(s cache.BindingSerializer) Option {
	return func(o *options) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithCodec sets the codec used to store result sets.
func WithCodec(c cache.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for hit, miss and flush events.
func WithLogger(l log.Interface) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used to resolve absolute TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// QueryResultCache puts a read-through cache in front of a query.
//
// It is a builder: Remember, WithTags, WithBackend and WithPrefix record
// intent, Fetch consumes it. A QueryResultCache is meant to be used by one
// goroutine, typically for the lifetime of a single request.
type QueryResultCache[T any] struct {
	backends   cache.BackendResolver
	query      cache.Query
	serializer cache.BindingSerializer
	codec      cache.Codec
	logger     log.Interface
	now        func() time.Time
	spec       Spec

	results  T
	resolved bool
}

// New creates a QueryResultCache for query. Backends are resolved by name on
// every Fetch and Flush.
func New[T any](backends cache.BackendResolver, query cache.Query, opts ...Option) *QueryResultCache[T] {
	o := options{
		serializer: cache.NewMsgpackSerializer(),
		codec:      cache.NewMsgpackCodec(),
		logger:     log.Log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &QueryResultCache[T]{
		backends:   backends,
		query:      query,
		serializer: o.serializer,
		codec:      o.codec,
		logger:     o.logger,
		now:        o.now,
		spec:       Spec{Prefix: cache.DefaultPrefix},
	}
}

// NewWithBackend is New with a single backend registered as the default.
func NewWithBackend[T any](backend cache.Backend, query cache.Query, opts ...Option) *QueryResultCache[T] {
	registry := cache.NewRegistry("default").Register("default", backend)
	return New[T](registry, query, opts...)
}

// Remember arms caching for the next Fetch. An optional explicit key replaces
// the derived one; omitting it clears any previous explicit key.
func (c *QueryResultCache[T]) Remember(ttl cache.TTL, key ...string) *QueryResultCache[T] {
	c.spec.TTL = &ttl
	c.spec.ExplicitKey = ""
	if len(key) > 0 {
		c.spec.ExplicitKey = key[0]
	}
	return c
}

// WithTags replaces the tags used for writes, tag-scoped lookups and Flush.
// Order matters on backends that scope reads by tags, such as memory:
// WithTags("a", "b") and WithTags("b", "a") address different entries.
// Flushing any one of the tags invalidates both.
func (c *QueryResultCache[T]) WithTags(tags ...string) *QueryResultCache[T] {
	c.spec.Tags = append([]string(nil), tags...)
	return c
}

// WithBackend selects a named backend instead of the registry default.
func (c *QueryResultCache[T]) WithBackend(name string) *QueryResultCache[T] {
	c.spec.Backend = name
	return c
}

// WithPrefix overrides the key namespace.
func (c *QueryResultCache[T]) WithPrefix(prefix string) *QueryResultCache[T] {
	c.spec.Prefix = prefix
	return c
}

// Spec returns a copy of the current caching intent.
func (c *QueryResultCache[T]) Spec() Spec {
	return c.spec.clone()
}

// Key returns the key the next cached Fetch will use.
func (c *QueryResultCache[T]) Key() (string, error) {
	return c.keyFor(c.spec)
}

func (c *QueryResultCache[T]) keyFor(spec Spec) (string, error) {
	if spec.ExplicitKey != "" {
		return cache.PrefixedKey(spec.Prefix, spec.ExplicitKey), nil
	}
	return cache.DeriveKey(spec.Prefix, c.query, c.serializer)
}

// Fetch returns the query results.
//
// Without a prior Remember it calls exec directly and memoizes the result on
// c, never touching a backend. Otherwise it looks the key up, returning the
// stored value on a hit; on a miss it calls exec, stores the result and
// returns it. A successful Fetch disarms c. When exec or the backend fails the
// intent is kept, so retrying Fetch goes through the cache again.
func (c *QueryResultCache[T]) Fetch(ctx context.Context, exec ExecuteFn[T]) (T, error) {
	var zero T
	if exec == nil {
		return zero, ErrNilExecutor
	}

	if !c.spec.Armed() {
		return c.passThrough(ctx, exec)
	}

	spec := c.spec.clone()
	tags := mergeTags(spec.Tags, cacheTagsFromContext(ctx))

	key, err := c.keyFor(spec)
	if err != nil {
		return zero, err
	}

	backend, err := c.backends.Backend(spec.Backend)
	if err != nil {
		return zero, err
	}

	logger := c.logger.WithFields(log.Fields{
		"key":     key,
		"backend": spec.Backend,
		"tags":    tags,
	})

	raw, hit, err := backend.Get(ctx, key, tags)
	if err != nil {
		return zero, cache.BackendError(err, "get")
	}

	if hit {
		value, err := cache.Decode[T](c.codec, raw)
		if err != nil {
			return zero, errors.Mark(err, cache.ErrBackend)
		}
		logger.Debug("query cache hit")
		c.disarm()
		return value, nil
	}

	value, err := exec(ctx)
	if err != nil {
		return zero, err
	}

	data, err := cache.Encode(c.codec, value)
	if err != nil {
		return zero, err
	}

	if spec.TTL.IsForever() {
		err = backend.PutForever(ctx, key, data, tags)
	} else {
		err = backend.Put(ctx, key, data, spec.TTL.Resolve(c.now()), tags)
	}
	if err != nil {
		return zero, cache.BackendError(err, "put")
	}

	logger.WithField("ttl", spec.TTL.String()).Debug("query cache miss, stored")
	c.disarm()
	return value, nil
}

func (c *QueryResultCache[T]) passThrough(ctx context.Context, exec ExecuteFn[T]) (T, error) {
	if c.resolved {
		return c.results, nil
	}

	value, err := exec(ctx)
	if err != nil {
		return value, err
	}

	c.results = value
	c.resolved = true
	return value, nil
}

func (c *QueryResultCache[T]) disarm() {
	c.spec.TTL = nil
}

// Flush invalidates every entry written with the given tags, or with the
// configured tags (plus any context tags) when none are given. It returns
// false without an error when the backend does not support tags. With no
// tags at all it also returns false and leaves the backend untouched, even
// one that supports tags; there is no flush-everything form.
func (c *QueryResultCache[T]) Flush(ctx context.Context, tags ...string) (bool, error) {
	if len(tags) == 0 {
		tags = mergeTags(c.spec.Tags, cacheTagsFromContext(ctx))
	}

	logger := c.logger.WithFields(log.Fields{"backend": c.spec.Backend, "tags": tags})
	if len(tags) == 0 {
		logger.Warn("query cache flush without tags")
		return false, nil
	}

	backend, err := c.backends.Backend(c.spec.Backend)
	if err != nil {
		return false, err
	}

	ok, err := backend.DeleteByTags(ctx, tags)
	if err != nil {
		return false, cache.BackendError(err, "delete by tags")
	}
	if !ok {
		logger.Warn("query cache backend does not support tags")
		return false, nil
	}

	logger.Debug("query cache flushed")
	return true, nil
}
