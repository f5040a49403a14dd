// Package cachestore provides versioned, persistent request/response cache
// stores backed by a single bbolt database. Each store is a named top-level
// bucket; keys are canonical request URLs and values are serialized
// StoredResponse records. Exactly one store name is "current" at any time
// (the configured cache version); activation prunes the rest.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a key has no entry in a store.
var ErrNotFound = errors.New("cachestore: not found")

// Key canonicalizes a request URL into a store key. Fragments never reach
// the server, so they are dropped; the query string is significant and kept.
func Key(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

// StoredResponse is the cached form of an HTTP response.
type StoredResponse struct {
	Status    int         `json:"status"`
	Header    http.Header `json:"header"`
	Body      []byte      `json:"body"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// DB is a handle to the cache database holding all named stores.
// It is safe for concurrent use by multiple goroutines.
type DB struct {
	db *bolt.DB
}

// Open opens (creating if absent) the cache database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Names lists all existing store names.
func (d *DB) Names() ([]string, error) {
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Store opens (creating if absent) the named store.
func (d *DB) Store(name string) (*Store, error) {
	if name == "" {
		return nil, errors.New("cachestore: store name must not be empty")
	}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	}); err != nil {
		return nil, err
	}
	return &Store{db: d.db, name: []byte(name)}, nil
}

// DeleteStore removes the named store and all its entries. Deleting a store
// that does not exist is not an error.
func (d *DB) DeleteStore(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Store is one named cache store. Writes to a single key are atomic; a
// multi-key precache round is not atomic as a whole.
type Store struct {
	db   *bolt.DB
	name []byte
}

// Name returns the store's name.
func (s *Store) Name() string {
	return string(s.name)
}

// Put stores a response under the given request URL key.
func (s *Store) Put(key string, resp *StoredResponse) error {
	buf, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding cached response: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return fmt.Errorf("cachestore: store %q deleted", s.name)
		}
		return b.Put([]byte(key), buf)
	})
}

// Get returns the cached response for key, or ErrNotFound.
func (s *Store) Get(key string) (*StoredResponse, error) {
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	resp := &StoredResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("decoding cached response: %w", err)
	}
	return resp, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Keys lists all request URL keys in the store.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Len returns the number of entries in the store.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.name)
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
