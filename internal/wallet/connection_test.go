package wallet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWalletPub = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	testSecret    = "71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c"
)

func TestParseConnectionURI(t *testing.T) {
	for _, scheme := range []string{"nostr+walletconnect://", "nostrwalletconnect://"} {
		conn, err := ParseConnectionURI(scheme + testWalletPub +
			"?relay=wss%3A%2F%2Frelay.getalby.com%2Fv1&secret=" + testSecret + "&lud16=alice%40getalby.com")
		require.NoError(t, err, scheme)

		assert.Equal(t, testWalletPub, conn.WalletPubKey)
		assert.Equal(t, "wss://relay.getalby.com/v1", conn.RelayURL)
		assert.Equal(t, "alice@getalby.com", conn.LUD16)
		assert.Equal(t, EncryptionNip04, conn.Encryption)
		assert.Len(t, conn.ClientPubKey(), 64)
		assert.Len(t, conn.conversationKey, 32)
		assert.Len(t, conn.nip04SharedKey, 32)
	}
}

func TestParseConnectionURIEncryptionOption(t *testing.T) {
	conn, err := ParseConnectionURI("nostr+walletconnect://" + testWalletPub +
		"?relay=wss://relay.example.com&secret=" + testSecret + "&encryption=nip44_v2")
	require.NoError(t, err)
	assert.Equal(t, EncryptionNip44, conn.Encryption)
}

func TestParseConnectionURIFailures(t *testing.T) {
	cases := map[string]string{
		"wrong scheme":   "https://" + testWalletPub + "?relay=wss://r.example&secret=" + testSecret,
		"missing relay":  "nostr+walletconnect://" + testWalletPub + "?secret=" + testSecret,
		"missing secret": "nostr+walletconnect://" + testWalletPub + "?relay=wss://r.example",
		"short pubkey":   "nostr+walletconnect://abcd?relay=wss://r.example&secret=" + testSecret,
		"non-hex pubkey": "nostr+walletconnect://" + strings.Repeat("z", 64) + "?relay=wss://r.example&secret=" + testSecret,
		"http relay":     "nostr+walletconnect://" + testWalletPub + "?relay=https://r.example&secret=" + testSecret,
		"short secret":   "nostr+walletconnect://" + testWalletPub + "?relay=wss://r.example&secret=abcd",
		"zero secret":    "nostr+walletconnect://" + testWalletPub + "?relay=wss://r.example&secret=" + strings.Repeat("0", 64),
	}
	for name, uri := range cases {
		t.Run(name, func(t *testing.T) {
			conn, err := ParseConnectionURI(uri)
			assert.Nil(t, conn)
			assert.ErrorIs(t, err, ErrInvalidURI)
		})
	}
}

func TestConnectionURIRoundTrip(t *testing.T) {
	conn, err := ParseConnectionURI("nostr+walletconnect://" + testWalletPub +
		"?relay=wss://relay.example.com&secret=" + testSecret + "&lud16=bob@example.com&encryption=nip44_v2")
	require.NoError(t, err)

	again, err := ParseConnectionURI(conn.URI())
	require.NoError(t, err)
	assert.Equal(t, conn, again)
}
