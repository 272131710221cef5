// Package token owns cart addressing. A cart is reached either through an
// anonymous guest token held in durable client storage, or implicitly via
// the authenticated session. Exactly one mode is active at a time; the
// identity coordinator performs the switch.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StorageKey is the fixed slot the guest token lives under, mirroring the
// localStorage key used by the web storefront.
const StorageKey = "nexora.cart.token"

// ErrNotFound is returned by Storage.Load when the slot is empty.
var ErrNotFound = errors.New("token not found")

// Storage is durable client-side storage for the guest token.
type Storage interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store manages the guest cart token over a Storage backend. It never
// fabricates a token outside guest mode; Ensure is only called while the
// user is anonymous.
type Store struct {
	mu      sync.Mutex
	storage Storage
	key     string
}

func NewStore(storage Storage) *Store {
	return &Store{storage: storage, key: StorageKey}
}

// Restore reads the persisted guest token. The second return is false when
// no token is stored (authenticated mode, or a first visit).
func (s *Store) Restore(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.storage.Load(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("restore token: %w", err)
	}
	return v, v != "", nil
}

// Ensure returns the stored guest token, allocating and persisting a fresh
// one when the slot is empty.
func (s *Store) Ensure(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.storage.Load(ctx, s.key)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("ensure token: %w", err)
	}

	v = uuid.NewString()
	if err := s.storage.Save(ctx, s.key, v); err != nil {
		return "", fmt.Errorf("persist new token: %w", err)
	}
	return v, nil
}

// Persist stores a server-assigned token, replacing whatever was there.
func (s *Store) Persist(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" {
		return errors.New("refusing to persist empty token")
	}
	if err := s.storage.Save(ctx, s.key, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// Clear drops the guest token, e.g. after attach or when the server no
// longer recognises it.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
