// Package signer defines the signing capability the client layer depends on
// and a local secret-key implementation of it.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"nostr-core/internal/nips"
	"nostr-core/internal/types"
)

// Signer is the minimal signing capability: who am I, and sign this event.
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, evt *types.Event) error
}

// Nip44Cipher is implemented by signers that can do NIP-44 v2 encryption.
type Nip44Cipher interface {
	Nip44Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error)
	Nip44Decrypt(ctx context.Context, peerPubKey, payload string) (string, error)
}

// Nip04Cipher is implemented by signers that can do legacy NIP-04 encryption.
type Nip04Cipher interface {
	Nip04Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error)
	Nip04Decrypt(ctx context.Context, peerPubKey, payload string) (string, error)
}

// LocalSigner holds a secret key in memory and implements every capability.
type LocalSigner struct {
	secret []byte
	pubKey string
}

var _ interface {
	Signer
	Nip44Cipher
	Nip04Cipher
} = (*LocalSigner)(nil)

// NewLocalSigner creates a signer from a raw 32-byte secret key.
func NewLocalSigner(secret []byte) (*LocalSigner, error) {
	pub, err := nips.GetPublicKey(secret)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		secret: append([]byte(nil), secret...),
		pubKey: hex.EncodeToString(pub),
	}, nil
}

// NewLocalSignerHex creates a signer from a hex-encoded secret key.
func NewLocalSignerHex(secretHex string) (*LocalSigner, error) {
	secret, err := hex.DecodeString(secretHex)
	if err != nil || len(secret) != 32 {
		return nil, errors.New("invalid secret: must be 64 hex characters")
	}
	return NewLocalSigner(secret)
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	secret, err := nips.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(secret)
}

func (s *LocalSigner) PublicKey(ctx context.Context) (string, error) {
	return s.pubKey, nil
}

func (s *LocalSigner) SignEvent(ctx context.Context, evt *types.Event) error {
	return nips.SignEvent(s.secret, evt)
}

func (s *LocalSigner) conversationKey(peerPubKey string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer pubkey: %w", err)
	}
	return nips.GetConversationKey(s.secret, peer)
}

func (s *LocalSigner) sharedSecret(peerPubKey string) ([]byte, error) {
	peer, err := hex.DecodeString(peerPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer pubkey: %w", err)
	}
	return nips.GetNip04SharedSecret(s.secret, peer)
}

func (s *LocalSigner) Nip44Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error) {
	key, err := s.conversationKey(peerPubKey)
	if err != nil {
		return "", err
	}
	return nips.Nip44Encrypt(plaintext, key)
}

func (s *LocalSigner) Nip44Decrypt(ctx context.Context, peerPubKey, payload string) (string, error) {
	key, err := s.conversationKey(peerPubKey)
	if err != nil {
		return "", err
	}
	return nips.Nip44Decrypt(payload, key)
}

func (s *LocalSigner) Nip04Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error) {
	key, err := s.sharedSecret(peerPubKey)
	if err != nil {
		return "", err
	}
	return nips.Nip04Encrypt(plaintext, key)
}

func (s *LocalSigner) Nip04Decrypt(ctx context.Context, peerPubKey, payload string) (string, error) {
	key, err := s.sharedSecret(peerPubKey)
	if err != nil {
		return "", err
	}
	return nips.Nip04Decrypt(payload, key)
}
