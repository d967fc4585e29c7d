package cache

import "github.com/cockroachdb/errors"

var (
	// ErrBackend marks failures raised by a cache backend, including stored
	// entries that can no longer be decoded.
	ErrBackend = errors.New("cache backend error")

	// ErrKeyDerivation marks failures to build a cache key, typically because a
	// bound parameter could not be serialized.
	ErrKeyDerivation = errors.New("cache key derivation error")

	// ErrUnknownBackend is returned when a named backend is not registered.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrCodec marks results that cannot be encoded for storage.
	ErrCodec = errors.New("cache codec error")
)

// BackendError wraps err and marks it as ErrBackend, keeping the original cause
// reachable through errors.Is.
func BackendError(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "cache backend %s", op), ErrBackend)
}
