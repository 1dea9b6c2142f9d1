package cache

import (
	"errors"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store provides a persistent namespaced KV cache backed by Bolt buckets.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex
}

var (
	ErrNotFound    = errors.New("cache: not found")
	ErrNoNamespace = errors.New("cache: no such namespace")
)

// Open initializes or opens a Store at the given path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureNamespace creates the namespace bucket if it does not exist.
func (s *Store) EnsureNamespace(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
}

// Put stores value under key in the given namespace, creating the namespace
// if needed.
func (s *Store) Put(namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Get returns the value stored under key in the given namespace.
func (s *Store) Get(namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return ErrNoNamespace
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// Delete removes a key from a namespace. Deleting an absent key is a no-op.
func (s *Store) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Match searches all namespaces for key and returns the first value found.
// Namespaces are visited in Bolt's bucket order.
func (s *Store) Match(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			if out != nil {
				return nil
			}
			if v := b.Get([]byte(key)); v != nil {
				out = append([]byte(nil), v...)
			}
			return nil
		})
	}); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// Namespaces lists every existing namespace.
func (s *Store) Namespaces() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return names, nil
}

// DropNamespace deletes a namespace and all entries in it. Dropping an absent
// namespace is a no-op.
func (s *Store) DropNamespace(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(namespace))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
