// Package boltstore persists cached credentials in a bbolt file so that
// tokens survive a gateway restart. Each cache namespace is one bucket.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"

	bolt "go.etcd.io/bbolt"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("credential store is closed")

type record struct {
	Credential domain.CachedCredential `json:"credential"`
	// EvictAtMs is the store-level TTL, independent of the token's own expiry.
	EvictAtMs int64 `json:"evictAtMs"`
}

// Store implements port.CredentialStore on top of bbolt.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	bucket []byte
	closed bool
}

// Open opens (or creates) the bolt file at path and ensures the namespace bucket exists.
func Open(path, namespace string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("credential store path is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("cache namespace is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure credential store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	bucket := []byte(namespace)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create namespace %q: %w", namespace, err)
	}
	return &Store{db: db, bucket: bucket}, nil
}

// Close releases the bolt file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Get returns the credential for identity, or nil when absent or evicted.
func (s *Store) Get(_ context.Context, identity string) (*domain.CachedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var rec *record
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(identity))
		if raw == nil {
			return nil
		}
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode credential %q: %w", identity, err)
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil || time.Now().UnixMilli() >= rec.EvictAtMs {
		return nil, nil
	}
	cred := rec.Credential
	return &cred, nil
}

// Put replaces the credential for identity in a single transaction.
func (s *Store) Put(_ context.Context, identity string, cred domain.CachedCredential, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	raw, err := json.Marshal(record{
		Credential: cred,
		EvictAtMs:  time.Now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode credential %q: %w", identity, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(identity), raw)
	})
}
