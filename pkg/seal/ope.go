package seal

import (
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/l3aro/blindtaint/pkg/cache"
)

// Order-preserving domain and range.
const (
	DomainMin int64 = -1 << 31
	DomainMax int64 = 1<<31 - 1
	RangeMin  int64 = 0
	RangeMax  int64 = 1<<62 - 1
)

// OPE is a keyed, deterministic, strictly monotone map from the domain
// [DomainMin, DomainMax] into [RangeMin, RangeMax].
//
// Encryption descends a binary split of the domain. At every node the range
// split point is drawn by a keyed PRF of the node bounds, uniformly among the
// points that leave each half a range at least as large as its domain; a
// leaf maps its single value to a PRF-drawn point of its range. Decryption
// repeats the descent guided by the ciphertext.
type OPE struct {
	key []byte
	enc *cache.LRU[int64, int64]
	dec *cache.LRU[int64, int64]
}

// NewOPE creates an order-preserving cipher.
func NewOPE(key []byte) (*OPE, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("invalid ope key size %d", len(key))
	}
	return &OPE{
		key: key,
		enc: cache.New(cache.Options[int64, int64]{MaxSize: 1 << 16}),
		dec: cache.New(cache.Options[int64, int64]{MaxSize: 1 << 16}),
	}, nil
}

type node struct {
	dlo, dhi int64
	rlo, rhi int64
}

// Encrypt returns the ciphertext of v.
func (o *OPE) Encrypt(v int64) (int64, error) {
	if v < DomainMin || v > DomainMax {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
	}
	return o.enc.GetOrCompute(v, func() (int64, error) {
		h, err := o.prf()
		if err != nil {
			return 0, err
		}
		n := node{DomainMin, DomainMax, RangeMin, RangeMax}
		for n.dlo < n.dhi {
			dm, rm := n.split(h)
			if v <= dm {
				n.dhi, n.rhi = dm, rm
			} else {
				n.dlo, n.rlo = dm+1, rm+1
			}
		}
		c := n.leaf(h)
		o.dec.Set(c, v)
		return c, nil
	})
}

// Decrypt reverses Encrypt. A value that no plaintext encrypts to is
// reported as ErrAuthentication.
func (o *OPE) Decrypt(c int64) (int64, error) {
	if c < RangeMin || c > RangeMax {
		return 0, fmt.Errorf("%w: ciphertext %d", ErrOutOfRange, c)
	}
	return o.dec.GetOrCompute(c, func() (int64, error) {
		h, err := o.prf()
		if err != nil {
			return 0, err
		}
		n := node{DomainMin, DomainMax, RangeMin, RangeMax}
		for n.dlo < n.dhi {
			dm, rm := n.split(h)
			if c <= rm {
				n.dhi, n.rhi = dm, rm
			} else {
				n.dlo, n.rlo = dm+1, rm+1
			}
		}
		if n.leaf(h) != c {
			return 0, ErrAuthentication
		}
		return n.dlo, nil
	})
}

func (o *OPE) prf() (hash.Hash, error) {
	h, err := blake2b.New(8, o.key)
	if err != nil {
		return nil, fmt.Errorf("creating ope prf: %w", err)
	}
	return h, nil
}

// split returns the domain midpoint and the range point closing the left half.
func (n node) split(h hash.Hash) (int64, int64) {
	dm := n.dlo + (n.dhi-n.dlo)/2
	lo := n.rlo + (dm - n.dlo)
	hi := n.rhi - (n.dhi - dm)
	return dm, lo + draw(h, 's', n, hi-lo+1)
}

func (n node) leaf(h hash.Hash) int64 {
	return n.rlo + draw(h, 'l', n, n.rhi-n.rlo+1)
}

// draw returns a PRF value in [0, size) bound to the node.
func draw(h hash.Hash, tag byte, n node, size int64) int64 {
	if size <= 1 {
		return 0
	}
	var buf [33]byte
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:], uint64(n.dlo))
	binary.BigEndian.PutUint64(buf[9:], uint64(n.dhi))
	binary.BigEndian.PutUint64(buf[17:], uint64(n.rlo))
	binary.BigEndian.PutUint64(buf[25:], uint64(n.rhi))

	h.Reset()
	h.Write(buf[:])
	r := binary.BigEndian.Uint64(h.Sum(nil))
	return int64(r % uint64(size))
}
