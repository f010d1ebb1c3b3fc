// Package wallet is a Nostr Wallet Connect (NIP-47) client: encrypted
// request/reply RPC with a remote Lightning wallet over a single relay, plus
// Lightning address payments layered on top.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"nostr-core/internal/nips"
)

const (
	uriScheme      = "nostr+walletconnect://"
	uriSchemeAlias = "nostrwalletconnect://"
)

// Encryption selects the scheme used for request payloads.
type Encryption string

const (
	EncryptionNip04 Encryption = "nip04"
	EncryptionNip44 Encryption = "nip44_v2"
)

// ErrInvalidURI wraps every connection URI parse failure.
var ErrInvalidURI = errors.New("invalid wallet connection URI")

// Connection holds wallet connection parameters extracted from the URI. It is
// immutable once parsed.
type Connection struct {
	WalletPubKey string // hex
	RelayURL     string
	Secret       []byte
	LUD16        string
	Encryption   Encryption

	clientPubKey    string
	conversationKey []byte // NIP-44
	nip04SharedKey  []byte // NIP-04
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidURI, fmt.Sprintf(format, args...))
}

// ParseConnectionURI parses nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<hex>[&lud16=<addr>].
// The nostrwalletconnect:// spelling is accepted too. Relay and secret are
// mandatory; client keys are derived here once.
func ParseConnectionURI(uri string) (*Connection, error) {
	uri = strings.TrimSpace(uri)
	var rest string
	switch {
	case strings.HasPrefix(uri, uriScheme):
		rest = strings.TrimPrefix(uri, uriScheme)
	case strings.HasPrefix(uri, uriSchemeAlias):
		rest = strings.TrimPrefix(uri, uriSchemeAlias)
	default:
		return nil, invalid("must start with %s", uriScheme)
	}

	// url.Parse doesn't like the custom scheme
	u, err := url.Parse("https://" + rest)
	if err != nil {
		return nil, invalid("%v", err)
	}

	walletPubKey := strings.ToLower(u.Host)
	if len(walletPubKey) != 64 {
		return nil, invalid("wallet pubkey must be 64 hex characters")
	}
	walletPubKeyBytes, err := hex.DecodeString(walletPubKey)
	if err != nil {
		return nil, invalid("wallet pubkey is not valid hex")
	}

	q := u.Query()
	relay := q.Get("relay")
	if relay == "" {
		return nil, invalid("missing relay parameter")
	}
	if !strings.HasPrefix(relay, "wss://") && !strings.HasPrefix(relay, "ws://") {
		return nil, invalid("relay must start with wss:// or ws://")
	}

	secretHex := q.Get("secret")
	if secretHex == "" {
		return nil, invalid("missing secret parameter")
	}
	if len(secretHex) != 64 {
		return nil, invalid("secret must be 64 hex characters")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, invalid("secret is not valid hex")
	}

	conn := &Connection{
		WalletPubKey: walletPubKey,
		RelayURL:     relay,
		Secret:       secret,
		LUD16:        q.Get("lud16"),
		Encryption:   EncryptionNip04,
	}
	if Encryption(q.Get("encryption")) == EncryptionNip44 {
		conn.Encryption = EncryptionNip44
	}

	clientPub, err := nips.GetPublicKey(secret)
	if err != nil {
		return nil, invalid("derive client key: %v", err)
	}
	conn.clientPubKey = hex.EncodeToString(clientPub)

	if conn.conversationKey, err = nips.GetConversationKey(secret, walletPubKeyBytes); err != nil {
		return nil, invalid("compute conversation key: %v", err)
	}
	if conn.nip04SharedKey, err = nips.GetNip04SharedSecret(secret, walletPubKeyBytes); err != nil {
		return nil, invalid("compute shared secret: %v", err)
	}

	return conn, nil
}

// ClientPubKey is the hex public key derived from the connection secret.
func (c *Connection) ClientPubKey() string {
	return c.clientPubKey
}

// URI renders the connection back to its canonical URI form.
func (c *Connection) URI() string {
	q := url.Values{}
	q.Set("relay", c.RelayURL)
	q.Set("secret", hex.EncodeToString(c.Secret))
	if c.LUD16 != "" {
		q.Set("lud16", c.LUD16)
	}
	if c.Encryption == EncryptionNip44 {
		q.Set("encryption", string(EncryptionNip44))
	}
	return uriScheme + c.WalletPubKey + "?" + q.Encode()
}

func (c *Connection) encrypt(plaintext string) (string, error) {
	if c.Encryption == EncryptionNip44 {
		return nips.Nip44Encrypt(plaintext, c.conversationKey)
	}
	return nips.Nip04Encrypt(plaintext, c.nip04SharedKey)
}

// decrypt detects the scheme from the payload shape; wallets may answer
// with either.
func (c *Connection) decrypt(payload string) (string, error) {
	if nips.LooksLikeNip04(payload) {
		return nips.Nip04Decrypt(payload, c.nip04SharedKey)
	}
	return nips.Nip44Decrypt(payload, c.conversationKey)
}
