// Package cache provides the contracts and key derivation used to cache SQL query results.
//
// # Overview
//
// This package exports the pieces a query result cache is built from:
//
//   - Backend: a byte store with TTLs and optional tag support
//   - Registry: named backends, one of them the default
//   - Query: the identity of a result set (connection, SQL text, bindings)
//   - BindingSerializer: stable bytes for bound parameters
//   - Codec: result set encoding for storage
//   - TTL: a duration, an absolute deadline, or Forever
//
// The querycache package composes them into a read-through cache.
//
// # Key Derivation
//
// A derived key is the prefix, a colon, and the hex SHA-256 of the connection
// name, the SQL text and the serialized bindings concatenated in that order:
//
//	key, err := cache.DeriveKey("dt", cache.Identity{
//		Connection: "default",
//		Statement:  "SELECT * FROM users WHERE id = ?",
//		Args:       []any{42},
//	}, cache.NewMsgpackSerializer())
//
// The default serializer encodes bindings as a msgpack array with sorted map
// keys. NewTextSerializer produces readable output instead, which is handy in
// fixtures. Both reject values with no stable representation (functions,
// channels) and the failure is reported as ErrKeyDerivation.
//
// # Backends
//
// Three backends ship with the package:
//
//   - NewMemoryBackend: sturdyc sharded cache; tags scope lookups and can be flushed
//   - NewRedisBackend: go-redis; tags are tracked as sets and can be flushed
//   - NewSQLBackend: a bun table; no tag support, DeleteByTags reports false
//
// All built-in backends treat a non-positive TTL as "do not retain".
//
// # Error Handling
//
// Backend failures are marked ErrBackend; callers can test with errors.Is
// and still reach the original cause.
package cache
