// Package storage defines the durable keyed byte store the persistence layer
// is built on, plus its filesystem and PostgreSQL implementations.
//
// The contract is deliberately small: Read, Write, Create, Exists over
// opaque keys, where Write has atomic replace semantics: a concurrent reader
// observes either the previous or the new value in full, never a partial
// write. Create additionally refuses to replace, atomically with respect to
// concurrent Creates, so callers can claim a key without racing. The
// serialization of concurrent writers to the same key is the responsibility
// of the layer above (see the voicebank package); the store itself only
// guarantees that individual writes are atomic.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// ErrExists indicates a Create found the key already stored.
var ErrExists = errors.New("storage: key already exists")

// BlobStore is durable keyed byte storage with atomic replace.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Read returns the value stored at key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write durably stores data at key, atomically replacing any previous
	// value.
	Write(ctx context.Context, key string, data []byte) error

	// Create durably stores data at key only if the key has no stored
	// value, failing with ErrExists otherwise. The existence check and the
	// write are a single atomic step with respect to concurrent Creates.
	Create(ctx context.Context, key string, data []byte) error

	// Exists reports whether key has a stored value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the value stored at key. Deleting an absent key is a
	// no-op.
	Delete(ctx context.Context, key string) error
}
