// Package seal implements the encoding layer: deterministic and
// order-preserving per-field encryption of Correlation Map tokens, a keyed
// one-way hash of the reserved category vocabulary, and the authenticated
// envelope wrapping every artifact.
//
// Two passwords are involved. The secret password, known only to the client,
// keys the reversible per-field transforms and the identifier legend. The
// shared password, known to client and auditor, keys the vocabulary hash and
// the artifact envelope.
package seal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrEmptyPassword is returned when a password is empty.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrAuthentication is returned when a ciphertext fails authentication:
	// a wrong password or a tampered artifact.
	ErrAuthentication = errors.New("authentication failed: wrong password or corrupted data")
	// ErrMalformed is returned for ciphertexts that cannot be parsed.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrOutOfRange is returned for integers outside the order-preserving domain.
	ErrOutOfRange = errors.New("value out of range")
)

const keySize = 32

// Argon2id cost parameters.
const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	secretSalt = []byte("blindtaint/secret/v1")
	sharedSalt = []byte("blindtaint/shared/v1")
)

// SharedKeys are derived from the shared password.
type SharedKeys struct {
	Vocab    []byte
	Envelope []byte
}

// Keys holds every key the client needs.
type Keys struct {
	SSE      []byte
	SSENonce []byte
	OPE      []byte
	Legend   []byte

	Shared *SharedKeys
}

// DeriveKeys derives the client keys from both passwords.
func DeriveKeys(secret, shared string) (*Keys, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret %w", ErrEmptyPassword)
	}
	sk, err := DeriveSharedKeys(shared)
	if err != nil {
		return nil, err
	}

	master := argon2.IDKey([]byte(secret), secretSalt, argonTime, argonMemory, argonThreads, keySize)
	subs, err := expand(master, "sse", "sse-nonce", "ope", "legend")
	if err != nil {
		return nil, err
	}
	return &Keys{
		SSE:      subs[0],
		SSENonce: subs[1],
		OPE:      subs[2],
		Legend:   subs[3],
		Shared:   sk,
	}, nil
}

// DeriveSharedKeys derives the keys available to the auditor.
func DeriveSharedKeys(shared string) (*SharedKeys, error) {
	if shared == "" {
		return nil, fmt.Errorf("shared %w", ErrEmptyPassword)
	}
	master := argon2.IDKey([]byte(shared), sharedSalt, argonTime, argonMemory, argonThreads, keySize)
	subs, err := expand(master, "vocab", "envelope")
	if err != nil {
		return nil, err
	}
	return &SharedKeys{Vocab: subs[0], Envelope: subs[1]}, nil
}

func expand(master []byte, labels ...string) ([][]byte, error) {
	out := make([][]byte, len(labels))
	for i, label := range labels {
		r := hkdf.New(sha256.New, master, nil, []byte("blindtaint/"+label))
		key := make([]byte, keySize)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("deriving %s key: %w", label, err)
		}
		out[i] = key
	}
	return out, nil
}
