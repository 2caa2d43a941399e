// Package kvstore provides the durable key-value storage shared by the
// fieldsync components: a small KV interface with SQLite and in-memory
// implementations, and a generic keyed JSON store that mirrors persisted
// blobs in an in-memory cache so synchronous reads never touch I/O.
package kvstore

import "context"

// KV is the persistent key-value store every component writes its state
// through. One JSON blob per key; keys are namespaced by component prefix.
type KV interface {
	// GetItem returns the value stored under key, or nil if absent.
	GetItem(ctx context.Context, key string) ([]byte, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key string, value []byte) error

	// DeleteItem removes key. Deleting an absent key is not an error.
	DeleteItem(ctx context.Context, key string) error

	// Items returns every stored key with the given prefix and its value.
	Items(ctx context.Context, prefix string) (map[string][]byte, error)
}
