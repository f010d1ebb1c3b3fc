// Package storage wraps and unwraps private payloads with the best cipher the
// current signer supports, falling back to plaintext JSON when none is usable.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"nostr-core/internal/metrics"
	"nostr-core/internal/signer"
)

// Gateway is the encrypted-storage fallback chain.
type Gateway struct {
	signer  signer.Signer
	ciphers []Cipher
}

// NewGateway builds the default chain for s: NIP-44 v2 first, then NIP-04.
// A nil signer is allowed and means the caller is not authenticated.
func NewGateway(s signer.Signer) *Gateway {
	return NewGatewayWithCiphers(s, Nip44SelfCipher{Signer: s}, Nip04SelfCipher{Signer: s})
}

// NewGatewayWithCiphers builds a gateway with an explicit strategy order.
func NewGatewayWithCiphers(s signer.Signer, ciphers ...Cipher) *Gateway {
	return &Gateway{signer: s, ciphers: ciphers}
}

// Authenticated reports whether a signer is present.
func (g *Gateway) Authenticated() bool {
	return g.signer != nil
}

// IsAvailable reports whether any cipher is usable, without attempting one.
func (g *Gateway) IsAvailable() bool {
	return len(g.Available()) > 0
}

// Available lists the names of the usable ciphers in chain order.
func (g *Gateway) Available() []string {
	if g.signer == nil {
		return nil
	}
	var names []string
	for _, c := range g.ciphers {
		if c.Available() {
			names = append(names, c.Name())
		}
	}
	return names
}

// Encrypt serializes data and encrypts it with the first cipher that works.
// If none does, the plaintext JSON is returned. Only serialization errors are
// reported.
func (g *Gateway) Encrypt(ctx context.Context, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	plaintext := string(raw)

	if g.signer == nil {
		slog.Debug("storage: not authenticated, storing plaintext")
		metrics.StorageCipherOps.WithLabelValues("plaintext", "encrypt", "fallback").Inc()
		return plaintext, nil
	}

	for _, c := range g.ciphers {
		if !c.Available() {
			continue
		}
		ciphertext, err := c.Encrypt(ctx, plaintext)
		if err != nil {
			slog.Warn("storage: cipher failed, trying next", "cipher", c.Name(), "error", err)
			metrics.StorageCipherOps.WithLabelValues(c.Name(), "encrypt", "error").Inc()
			continue
		}
		metrics.StorageCipherOps.WithLabelValues(c.Name(), "encrypt", "ok").Inc()
		return ciphertext, nil
	}

	slog.Warn("storage: no cipher succeeded, storing plaintext")
	metrics.StorageCipherOps.WithLabelValues("plaintext", "encrypt", "fallback").Inc()
	return plaintext, nil
}

// Decrypt opens blob into out. Plain JSON is accepted as-is without touching
// any cipher. On exhaustion a *DecryptError is returned whose Reason tells
// not-authenticated, no-compatible-cipher and garbled-ciphertext apart.
func (g *Gateway) Decrypt(ctx context.Context, blob string, out any) error {
	if json.Valid([]byte(blob)) {
		if err := json.Unmarshal([]byte(blob), out); err == nil {
			metrics.StorageCipherOps.WithLabelValues("plaintext", "decrypt", "ok").Inc()
			return nil
		}
	}

	if g.signer == nil {
		return &DecryptError{Reason: ErrNotAuthenticated}
	}

	var attempts []error
	recognized := false
	for _, c := range g.ciphers {
		if !c.Available() || !c.Recognizes(blob) {
			continue
		}
		recognized = true

		plaintext, err := c.Decrypt(ctx, blob)
		if err != nil {
			slog.Debug("storage: decrypt failed, trying next", "cipher", c.Name(), "error", err)
			metrics.StorageCipherOps.WithLabelValues(c.Name(), "decrypt", "error").Inc()
			attempts = append(attempts, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		if err := json.Unmarshal([]byte(plaintext), out); err != nil {
			metrics.StorageCipherOps.WithLabelValues(c.Name(), "decrypt", "error").Inc()
			attempts = append(attempts, fmt.Errorf("%s: decrypted payload is not JSON: %w", c.Name(), err))
			continue
		}
		metrics.StorageCipherOps.WithLabelValues(c.Name(), "decrypt", "ok").Inc()
		return nil
	}

	if !recognized {
		return &DecryptError{Reason: ErrNoCompatibleCipher}
	}
	return &DecryptError{Reason: ErrGarbledCiphertext, Attempts: attempts}
}
