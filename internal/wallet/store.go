package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nostr-core/internal/cache"
	"nostr-core/internal/storage"
)

// ErrNoConnection is returned by Store.Load when nothing is saved.
var ErrNoConnection = errors.New("no wallet connection saved")

// Store persists connection URIs per user, encrypted through the storage
// gateway before they reach the backend.
type Store struct {
	backend cache.Backend
	gateway *storage.Gateway
	ttl     time.Duration
}

// NewStore creates a store. ttl <= 0 keeps entries until deleted.
func NewStore(backend cache.Backend, gateway *storage.Gateway, ttl time.Duration) *Store {
	return &Store{backend: backend, gateway: gateway, ttl: ttl}
}

func storeKey(userPubKey string) string {
	return "nwc:" + userPubKey
}

// Save stores conn for userPubKey.
func (s *Store) Save(ctx context.Context, userPubKey string, conn *Connection) error {
	blob, err := s.gateway.Encrypt(ctx, conn.URI())
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, storeKey(userPubKey), []byte(blob), s.ttl)
}

// Load returns the saved connection for userPubKey.
func (s *Store) Load(ctx context.Context, userPubKey string) (*Connection, error) {
	data, found, err := s.backend.Get(ctx, storeKey(userPubKey))
	if err != nil {
		return nil, fmt.Errorf("load wallet connection: %w", err)
	}
	if !found {
		return nil, ErrNoConnection
	}

	var uri string
	if err := s.gateway.Decrypt(ctx, string(data), &uri); err != nil {
		return nil, err
	}
	return ParseConnectionURI(uri)
}

// Delete forgets the connection for userPubKey.
func (s *Store) Delete(ctx context.Context, userPubKey string) error {
	return s.backend.Delete(ctx, storeKey(userPubKey))
}
