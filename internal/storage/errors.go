package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated means there is no signer to encrypt or decrypt with.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoCompatibleCipher means no usable cipher understands the payload.
	ErrNoCompatibleCipher = errors.New("no compatible cipher")
	// ErrGarbledCiphertext means a cipher recognized the payload but could not open it.
	ErrGarbledCiphertext = errors.New("garbled ciphertext")
)

// DecryptError is returned when every decryption method has been exhausted.
// Reason is one of the sentinel errors above; Attempts holds the per-cipher failures.
type DecryptError struct {
	Reason   error
	Attempts []error
}

func (e *DecryptError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no decryption method available: %v", e.Reason)
	}
	msgs := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("no decryption method available: %v (%s)", e.Reason, strings.Join(msgs, "; "))
}

func (e *DecryptError) Unwrap() error {
	return e.Reason
}
