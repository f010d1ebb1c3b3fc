package storage

import (
	"context"
	"errors"

	"nostr-core/internal/nips"
	"nostr-core/internal/signer"
)

// Cipher is one strategy in the gateway's fallback chain.
type Cipher interface {
	Name() string
	// Available reports whether the cipher can be used at all right now.
	Available() bool
	// Recognizes reports whether payload looks like this cipher's output.
	Recognizes(payload string) bool
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, payload string) (string, error)
}

var errCipherUnavailable = errors.New("cipher unavailable")

// Nip44SelfCipher encrypts to the signer's own public key with NIP-44 v2.
type Nip44SelfCipher struct {
	Signer signer.Signer
}

func (c Nip44SelfCipher) Name() string { return "nip44" }

func (c Nip44SelfCipher) impl() (signer.Nip44Cipher, bool) {
	if c.Signer == nil {
		return nil, false
	}
	impl, ok := c.Signer.(signer.Nip44Cipher)
	return impl, ok
}

func (c Nip44SelfCipher) Available() bool {
	_, ok := c.impl()
	return ok
}

func (c Nip44SelfCipher) Recognizes(payload string) bool {
	return nips.LooksLikeNip44(payload)
}

func (c Nip44SelfCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	impl, ok := c.impl()
	if !ok {
		return "", errCipherUnavailable
	}
	self, err := c.Signer.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return impl.Nip44Encrypt(ctx, self, plaintext)
}

func (c Nip44SelfCipher) Decrypt(ctx context.Context, payload string) (string, error) {
	impl, ok := c.impl()
	if !ok {
		return "", errCipherUnavailable
	}
	self, err := c.Signer.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return impl.Nip44Decrypt(ctx, self, payload)
}

// Nip04SelfCipher encrypts to the signer's own public key with legacy NIP-04.
type Nip04SelfCipher struct {
	Signer signer.Signer
}

func (c Nip04SelfCipher) Name() string { return "nip04" }

func (c Nip04SelfCipher) impl() (signer.Nip04Cipher, bool) {
	if c.Signer == nil {
		return nil, false
	}
	impl, ok := c.Signer.(signer.Nip04Cipher)
	return impl, ok
}

func (c Nip04SelfCipher) Available() bool {
	_, ok := c.impl()
	return ok
}

func (c Nip04SelfCipher) Recognizes(payload string) bool {
	return nips.LooksLikeNip04(payload)
}

func (c Nip04SelfCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	impl, ok := c.impl()
	if !ok {
		return "", errCipherUnavailable
	}
	self, err := c.Signer.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return impl.Nip04Encrypt(ctx, self, plaintext)
}

func (c Nip04SelfCipher) Decrypt(ctx context.Context, payload string) (string, error) {
	impl, ok := c.impl()
	if !ok {
		return "", errCipherUnavailable
	}
	self, err := c.Signer.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return impl.Nip04Decrypt(ctx, self, payload)
}
