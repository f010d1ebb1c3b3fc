// Package nips implements the protocol-level pieces of the NIPs this client
// speaks: key handling, event ids and signatures (NIP-01), payload
// encryption (NIP-04, NIP-44) and BOLT11 amount decoding (NIP-57 receipts).
package nips

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// GeneratePrivateKey generates a new random secp256k1 private key
func GeneratePrivateKey() ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return privKey.Serialize(), nil
}

// validPrivKey reports whether b is a scalar in [1, N-1].
func validPrivKey(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	var s btcec.ModNScalar
	overflow := s.SetByteSlice(b)
	return !overflow && !s.IsZero()
}

// GetPublicKey derives the x-only (BIP-340) public key from a private key
func GetPublicKey(privKeyBytes []byte) ([]byte, error) {
	if !validPrivKey(privKeyBytes) {
		return nil, ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return privKey.PubKey().SerializeCompressed()[1:], nil
}

// GetPublicKeyHex is GetPublicKey for hex-encoded keys.
func GetPublicKeyHex(privKeyHex string) (string, error) {
	privKey, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", ErrInvalidPrivateKey
	}
	pub, err := GetPublicKey(privKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub), nil
}

// parseXOnlyPubKey lifts a 32-byte x-only key to a full point, trying the
// even-y encoding first.
func parseXOnlyPubKey(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	if len(pubKeyBytes) != 32 {
		return nil, ErrInvalidPublicKey
	}
	withPrefix := append([]byte{0x02}, pubKeyBytes...)
	pubKey, err := btcec.ParsePubKey(withPrefix)
	if err != nil {
		withPrefix[0] = 0x03
		pubKey, err = btcec.ParsePubKey(withPrefix)
		if err != nil {
			return nil, ErrInvalidPublicKey
		}
	}
	return pubKey, nil
}

// sharedX returns the 32-byte x coordinate of the ECDH point.
func sharedX(privKeyBytes, pubKeyBytes []byte) ([]byte, error) {
	if !validPrivKey(privKeyBytes) {
		return nil, ErrInvalidPrivateKey
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	pubKey, err := parseXOnlyPubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}

	x := btcec.GenerateSharedSecret(privKey, pubKey)
	// x.Bytes() style encodings may drop leading zero bytes
	if len(x) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(x):], x)
		return padded, nil
	}
	return x, nil
}
