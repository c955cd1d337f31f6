package seal

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const magic = "BTENV1"

// Seal wraps payload in randomized authenticated encryption. label binds the
// envelope to one kind of artifact.
func Seal(key []byte, label string, payload []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	out := make([]byte, len(magic)+aead.NonceSize(), len(magic)+aead.NonceSize()+len(payload)+aead.Overhead())
	copy(out, magic)
	nonce := out[len(magic):]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, nonce, payload, associated(label)), nil
}

// Open reverses Seal.
func Open(key []byte, label string, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(data) < len(magic)+aead.NonceSize()+aead.Overhead() || !bytes.HasPrefix(data, []byte(magic)) {
		return nil, fmt.Errorf("%w: not a %s envelope", ErrMalformed, label)
	}

	nonce := data[len(magic) : len(magic)+aead.NonceSize()]
	payload, err := aead.Open(nil, nonce, data[len(magic)+aead.NonceSize():], associated(label))
	if err != nil {
		return nil, ErrAuthentication
	}
	return payload, nil
}

func associated(label string) []byte {
	return []byte(magic + "/" + label)
}
