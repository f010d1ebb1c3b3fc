package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-core/internal/nips"
	"nostr-core/internal/signer"
	"nostr-core/internal/types"
)

type journalEntry struct {
	Title string   `json:"title"`
	Mood  int      `json:"mood"`
	Tags  []string `json:"tags"`
}

var sample = journalEntry{Title: "Morning pages", Mood: 7, Tags: []string{"gratitude", "sleep"}}

// signOnly can sign but has no encryption capability.
type signOnly struct{ pub string }

func (s signOnly) PublicKey(ctx context.Context) (string, error) { return s.pub, nil }
func (s signOnly) SignEvent(ctx context.Context, evt *types.Event) error { return nil }

// nip04Only wraps a LocalSigner but only exposes NIP-04.
type nip04Only struct{ inner *signer.LocalSigner }

func (s nip04Only) PublicKey(ctx context.Context) (string, error) { return s.inner.PublicKey(ctx) }
func (s nip04Only) SignEvent(ctx context.Context, evt *types.Event) error {
	return s.inner.SignEvent(ctx, evt)
}
func (s nip04Only) Nip04Encrypt(ctx context.Context, peer, plaintext string) (string, error) {
	return s.inner.Nip04Encrypt(ctx, peer, plaintext)
}
func (s nip04Only) Nip04Decrypt(ctx context.Context, peer, payload string) (string, error) {
	return s.inner.Nip04Decrypt(ctx, peer, payload)
}

func newSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	return s
}

func TestRoundTripWithNip44(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(newSigner(t))
	assert.True(t, g.IsAvailable())
	assert.Equal(t, []string{"nip44", "nip04"}, g.Available())

	blob, err := g.Encrypt(ctx, sample)
	require.NoError(t, err)
	assert.True(t, nips.LooksLikeNip44(blob))
	assert.False(t, json.Valid([]byte(blob)))

	var got journalEntry
	require.NoError(t, g.Decrypt(ctx, blob, &got))
	assert.Equal(t, sample, got)
}

func TestFallsBackToNip04(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(nip04Only{inner: newSigner(t)})
	assert.Equal(t, []string{"nip04"}, g.Available())

	blob, err := g.Encrypt(ctx, sample)
	require.NoError(t, err)
	assert.True(t, nips.LooksLikeNip04(blob))

	var got journalEntry
	require.NoError(t, g.Decrypt(ctx, blob, &got))
	assert.Equal(t, sample, got)
}

func TestPlaintextWhenNoCipherAvailable(t *testing.T) {
	ctx := context.Background()

	for name, g := range map[string]*Gateway{
		"unauthenticated": NewGateway(nil),
		"no-capability":   NewGateway(signOnly{pub: "ab"}),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, g.IsAvailable())

			blob, err := g.Encrypt(ctx, sample)
			require.NoError(t, err)
			assert.True(t, json.Valid([]byte(blob)))

			var got journalEntry
			require.NoError(t, g.Decrypt(ctx, blob, &got))
			assert.Equal(t, sample, got)
		})
	}
}

// failingCipher recognizes everything and fails every call, counting them.
type failingCipher struct{ calls *int }

func (f failingCipher) Name() string { return "failing" }
func (f failingCipher) Available() bool { return true }
func (f failingCipher) Recognizes(string) bool { return true }
func (f failingCipher) Encrypt(context.Context, string) (string, error) {
	*f.calls++
	return "", errors.New("encrypt failed")
}
func (f failingCipher) Decrypt(context.Context, string) (string, error) {
	*f.calls++
	return "", errors.New("decrypt failed")
}

func TestPlaintextDecryptSkipsCiphers(t *testing.T) {
	calls := 0
	g := NewGatewayWithCiphers(newSigner(t), failingCipher{calls: &calls})

	var got journalEntry
	require.NoError(t, g.Decrypt(context.Background(), `{"title":"Morning pages","mood":7,"tags":["gratitude","sleep"]}`, &got))
	assert.Equal(t, sample, got)
	assert.Equal(t, 0, calls)
}

func TestEncryptFailuresFallThroughToPlaintext(t *testing.T) {
	calls := 0
	g := NewGatewayWithCiphers(newSigner(t), failingCipher{calls: &calls})

	blob, err := g.Encrypt(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, json.Valid([]byte(blob)))
}

func TestDecryptErrorKinds(t *testing.T) {
	ctx := context.Background()
	owner := NewGateway(newSigner(t))
	blob, err := owner.Encrypt(ctx, sample)
	require.NoError(t, err)

	var out journalEntry

	err = NewGateway(nil).Decrypt(ctx, blob, &out)
	var de *DecryptError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	err = NewGateway(signOnly{pub: "ab"}).Decrypt(ctx, blob, &out)
	assert.ErrorIs(t, err, ErrNoCompatibleCipher)

	err = owner.Decrypt(ctx, "definitely not ciphertext", &out)
	assert.ErrorIs(t, err, ErrNoCompatibleCipher)

	// a different key recognizes the format but cannot open it
	err = NewGateway(newSigner(t)).Decrypt(ctx, blob, &out)
	assert.ErrorIs(t, err, ErrGarbledCiphertext)
	require.ErrorAs(t, err, &de)
	assert.NotEmpty(t, de.Attempts)
	assert.Contains(t, err.Error(), "no decryption method available")
}
