package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wasteops/fieldsync/internal/common"
)

// Keyed is a generic keyed store of JSON blobs with an in-memory cache.
// It implements the load / get / mutate / persist pattern shared by the
// per-order stores: Load preloads everything under the store prefix,
// Get serves the cache only, and Mutate is a serialized per-key
// read-modify-write written through to the underlying KV.
type Keyed[V any] struct {
	kv     KV
	prefix string

	mu    sync.RWMutex
	cache map[string]V
	locks map[string]*sync.Mutex
}

// NewKeyed returns a Keyed store namespacing its blobs under prefix.
// Call Load before serving reads.
func NewKeyed[V any](kv KV, prefix string) *Keyed[V] {
	return &Keyed[V]{
		kv:     kv,
		prefix: prefix,
		cache:  make(map[string]V),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Load populates the cache with every persisted value under the store prefix.
func (s *Keyed[V]) Load(ctx context.Context) error {
	items, err := s.kv.Items(ctx, s.prefix)
	if err != nil {
		return fmt.Errorf("failed to load keyed store %q: %w", s.prefix, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range items {
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		s.cache[strings.TrimPrefix(key, s.prefix)] = v
	}
	return nil
}

// Get returns the cached value for key. It never touches storage.
func (s *Keyed[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

// Keys returns the cached keys in sorted order.
func (s *Keyed[V]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.cache))
	for key := range s.cache {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Mutate applies fn to the current value for key (the zero value when
// absent), persists the result and refreshes the cache. Mutations for the
// same key are serialized; different keys proceed independently. An error
// from fn aborts the mutation. A storage write failure keeps the mutated
// value in the cache and returns an error wrapping common.ErrPersistence.
func (s *Keyed[V]) Mutate(ctx context.Context, key string, fn func(V) (V, error)) (V, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.cache[key]
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		var zero V
		return zero, err
	}

	s.mu.Lock()
	s.cache[key] = next
	s.mu.Unlock()

	raw, err := json.Marshal(next)
	if err != nil {
		return next, fmt.Errorf("failed to encode %s%s: %w", s.prefix, key, err)
	}
	if err := s.kv.SetItem(ctx, s.prefix+key, raw); err != nil {
		return next, fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return next, nil
}

// Delete removes the value for key from both cache and storage.
func (s *Keyed[V]) Delete(ctx context.Context, key string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if err := s.kv.DeleteItem(ctx, s.prefix+key); err != nil {
		return fmt.Errorf("%w: %v", common.ErrPersistence, err)
	}
	return nil
}

func (s *Keyed[V]) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}
