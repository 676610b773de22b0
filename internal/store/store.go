package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Namespaces used by the harness. Keys in different namespaces never collide
// even when their names match.
const (
	NamespaceHandle     = "handle"
	NamespaceDeployment = "deployment"
	NamespaceAddress    = "address"
	NamespaceListener   = "listener"
)

// Key identifies a value in a Store.
type Key struct {
	Namespace string
	Name      string
}

// String renders the key as namespace/name.
func (k Key) String() string {
	return k.Namespace + "/" + k.Name
}

// DeploymentKey is the key of a group's deployment record.
func DeploymentKey(group string) Key { return Key{Namespace: NamespaceDeployment, Name: group} }

// AddressKey is the key of a group's resolved address for the given node
// qualifier. An empty node is the default address.
func AddressKey(group, node string) Key {
	if node == "" {
		return Key{Namespace: NamespaceAddress, Name: group}
	}
	return Key{Namespace: NamespaceAddress, Name: group + "@" + node}
}

// Closer is implemented by stored values that hold resources. Scope.Close
// closes them in reverse insertion order.
type Closer interface {
	Close(ctx context.Context) error
}

// Store is a concurrency-safe key/value map with single-flight
// compute-if-absent semantics.
type Store struct {
	mu     sync.RWMutex
	values map[Key]any
	order  []Key

	group singleflight.Group
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[Key]any)}
}

// Get returns the value stored under key.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, value)
}

func (s *Store) putLocked(key Key, value any) {
	if _, exists := s.values[key]; !exists {
		s.order = append(s.order, key)
	}
	s.values[key] = value
}

// Remove deletes key and returns the value it held. Removing an absent key
// is a no-op.
func (s *Store) Remove(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	delete(s.values, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return v, true
}

// RemoveNamespace deletes every key in namespace and returns how many were
// removed.
func (s *Store) RemoveNamespace(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, k := range s.order {
		if k.Namespace == namespace {
			delete(s.values, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return removed
}

// ComputeIfAbsent returns the value stored under key, calling factory to
// create it when absent. The factory runs at most once per key even under
// concurrent first access; concurrent callers wait and receive the same
// value. A factory error is returned to every waiting caller and nothing is
// stored, so a later call retries.
func (s *Store) ComputeIfAbsent(key Key, factory func() (any, error)) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		// Double-check after winning the flight: a previous flight for the
		// same key may have completed between our miss and now.
		if v, ok := s.Get(key); ok {
			return v, nil
		}

		created, err := factory()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.putLocked(key, created)
		s.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// closeValues removes every value and closes the ones implementing Closer,
// newest first.
func (s *Store) closeValues(ctx context.Context) error {
	s.mu.Lock()
	keys := s.order
	values := s.values
	s.order = nil
	s.values = make(map[Key]any)
	s.mu.Unlock()

	var errs []error
	for i := len(keys) - 1; i >= 0; i-- {
		if c, ok := values[keys[i]].(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", keys[i], err))
			}
		}
	}
	return errors.Join(errs...)
}

// GetAs returns the value under key if present and of type T.
func GetAs[T any](s *Store, key Key) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ComputeAs is the typed form of Store.ComputeIfAbsent. It fails if a value
// of another type is already stored under key.
func ComputeAs[T any](s *Store, key Key, factory func() (T, error)) (T, error) {
	var zero T
	v, err := s.ComputeIfAbsent(key, func() (any, error) {
		return factory()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("value under %s has type %T, expected %T", key, v, zero)
	}
	return typed, nil
}
