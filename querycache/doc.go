// Package querycache puts a read-through cache in front of SQL queries.
//
// # Overview
//
// A QueryResultCache wraps one query. By default it behaves like the query
// itself: Fetch runs the execute function and memoizes the result on the
// object. Calling Remember arms caching for the next Fetch, which then looks
// the result up in a cache backend and only runs the query on a miss.
//
// # Basic Usage
//
//	registry := cache.NewRegistry("memory").Register("memory", memoryBackend)
//
//	identity, exec := querycache.RepositoryRaw[User](repo, "default",
//		"SELECT * FROM users WHERE active = ?", true)
//
//	users, err := querycache.New[[]User](registry, identity).
//		WithTags("users").
//		Remember(cache.Minutes(60)).
//		Fetch(ctx, exec)
//
// Bun select queries can be used directly:
//
//	sel := db.NewSelect().Model((*User)(nil)).Where("active = ?", true)
//	users, err := querycache.New[[]User](registry, querycache.BunQuery(sel)).
//		Remember(cache.Forever).
//		Fetch(ctx, querycache.BunScan[User](sel))
//
// # Lifecycle
//
// A QueryResultCache starts idle. Remember arms it; a successful Fetch (hit or
// miss) disarms it again, so the next Fetch passes through unless Remember is
// called again. Tags, backend and prefix stick across fetches. When the query
// or the backend fails the object stays armed.
//
// # Keys
//
// Unless Remember is given an explicit key, the key is derived from the
// connection name, the SQL text and the bound parameters (see
// cache.DeriveKey). Explicit keys are still prefixed.
//
// # Tags and Invalidation
//
// Tags are attached to writes and, on backends that support it, scope lookups.
// Flush invalidates every entry written under the given tags. Extra tags can
// travel on the context:
//
//	ctx = querycache.WithCacheTags(ctx, "tenant:42")
//
// Backends without tag support make Flush return false; entries are left
// untouched and expire through their TTL.
//
// # Errors
//
// Errors returned by the execute function reach the caller unchanged and
// nothing is cached. Backend failures match cache.ErrBackend, key failures
// match cache.ErrKeyDerivation and unknown backend names match
// cache.ErrUnknownBackend.
package querycache
