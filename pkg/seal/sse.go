package seal

import (
	"bytes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/l3aro/blindtaint/pkg/cache"
)

// padBlock hides the exact length of short identifiers.
const padBlock = 16

// SSE is deterministic authenticated encryption of strings. The nonce is a
// keyed hash of the padded plaintext, so equal plaintexts give equal
// ciphertexts and nothing else about them is revealed.
type SSE struct {
	aead     cipher.AEAD
	nonceKey []byte
	memo     *cache.LRU[string, string]
}

// NewSSE creates a deterministic cipher from an encryption key and a nonce key.
func NewSSE(key, nonceKey []byte) (*SSE, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &SSE{
		aead:     aead,
		nonceKey: nonceKey,
		memo:     cache.New(cache.Options[string, string]{MaxSize: 1 << 16}),
	}, nil
}

// Encrypt returns the deterministic ciphertext of plain as unpadded
// base64url text.
func (s *SSE) Encrypt(plain string) (string, error) {
	return s.memo.GetOrCompute(plain, func() (string, error) {
		padded := pad([]byte(plain))
		nonce, err := s.nonce(padded)
		if err != nil {
			return "", err
		}
		out := s.aead.Seal(nonce, nonce, padded, nil)
		return base64.RawURLEncoding.EncodeToString(out), nil
	})
}

// Decrypt reverses Encrypt.
func (s *SSE) Decrypt(text string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX+s.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrMalformed)
	}

	nonce, ct := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	padded, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	want, err := s.nonce(padded)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(want, nonce) != 1 {
		return "", ErrAuthentication
	}

	plain, ok := unpad(padded)
	if !ok {
		return "", fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	return string(plain), nil
}

func (s *SSE) nonce(padded []byte) ([]byte, error) {
	h, err := blake2b.New(chacha20poly1305.NonceSizeX, s.nonceKey)
	if err != nil {
		return nil, fmt.Errorf("creating nonce hash: %w", err)
	}
	h.Write(padded)
	return h.Sum(nil), nil
}

// pad appends 0x80 and zeros up to the next block boundary.
func pad(b []byte) []byte {
	n := padBlock - len(b)%padBlock
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	out = append(out, 0x80)
	return append(out, make([]byte, n-1)...)
}

func unpad(b []byte) ([]byte, bool) {
	i := bytes.LastIndexByte(b, 0x80)
	if i < 0 || len(b)-i > padBlock {
		return nil, false
	}
	for _, c := range b[i+1:] {
		if c != 0 {
			return nil, false
		}
	}
	return b[:i], true
}
