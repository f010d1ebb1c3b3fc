package nips

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-core/internal/types"
)

// SerializeEvent returns the NIP-01 commitment [0,pubkey,created_at,kind,tags,content].
// HTML escaping is disabled so <, > and & hash the same way relays see them.
func SerializeEvent(evt *types.Event) ([]byte, error) {
	tags := evt.Tags
	if tags == nil {
		tags = [][]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{0, evt.PubKey, evt.CreatedAt, evt.Kind, tags, evt.Content}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CalculateEventID computes the sha256 event id in hex.
func CalculateEventID(evt *types.Event) (string, error) {
	serialized, err := SerializeEvent(evt)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:]), nil
}

// SignEvent sets PubKey, ID and Sig on evt using the given private key.
func SignEvent(privKeyBytes []byte, evt *types.Event) error {
	if !validPrivKey(privKeyBytes) {
		return ErrInvalidPrivateKey
	}
	privKey, pubKey := btcec.PrivKeyFromBytes(privKeyBytes)
	evt.PubKey = hex.EncodeToString(pubKey.SerializeCompressed()[1:])
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}

	id, err := CalculateEventID(evt)
	if err != nil {
		return err
	}
	idBytes, _ := hex.DecodeString(id)

	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return err
	}

	evt.ID = id
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// ErrInvalidSignature is returned when the id or schnorr signature doesn't check out.
var ErrInvalidSignature = errors.New("invalid event signature")

// VerifyEvent recomputes the id and verifies the Schnorr signature.
func VerifyEvent(evt *types.Event) error {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return ErrInvalidSignature
	}

	id, err := CalculateEventID(evt)
	if err != nil || id != evt.ID {
		return ErrInvalidSignature
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return ErrInvalidSignature
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return ErrInvalidSignature
	}
	idBytes, _ := hex.DecodeString(id)

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrInvalidSignature
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return ErrInvalidSignature
	}
	if !sig.Verify(idBytes, pubKey) {
		return ErrInvalidSignature
	}
	return nil
}
