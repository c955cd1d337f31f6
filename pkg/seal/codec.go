package seal

import (
	"fmt"
	"strings"

	"github.com/l3aro/blindtaint/pkg/cache"
	"github.com/l3aro/blindtaint/pkg/token"
)

// Encoder encodes Correlation Maps field by field. It is safe for
// concurrent use.
//
// Identifiers, scope parts, lines and call targets are encrypted with SSE;
// position, depth, order, flow type and split with OPE; reserved categories
// are replaced by their vocabulary hash.
type Encoder struct {
	sse   *SSE
	ope   *OPE
	vocab *Vocabulary
}

// Decoder reverses an Encoder built from the same keys.
type Decoder struct {
	sse   *SSE
	ope   *OPE
	vocab *Vocabulary
}

func ciphers(keys *Keys) (*SSE, *OPE, *Vocabulary, error) {
	sse, err := NewSSE(keys.SSE, keys.SSENonce)
	if err != nil {
		return nil, nil, nil, err
	}
	ope, err := NewOPE(keys.OPE)
	if err != nil {
		return nil, nil, nil, err
	}
	vocab, err := NewVocabulary(keys.Shared.Vocab)
	if err != nil {
		return nil, nil, nil, err
	}
	return sse, ope, vocab, nil
}

// NewEncoder creates an Encoder.
func NewEncoder(keys *Keys) (*Encoder, error) {
	sse, ope, vocab, err := ciphers(keys)
	if err != nil {
		return nil, err
	}
	return &Encoder{sse: sse, ope: ope, vocab: vocab}, nil
}

// NewDecoder creates a Decoder.
func NewDecoder(keys *Keys) (*Decoder, error) {
	sse, ope, vocab, err := ciphers(keys)
	if err != nil {
		return nil, err
	}
	return &Decoder{sse: sse, ope: ope, vocab: vocab}, nil
}

// MemoStats reports the encryption memos of an Encoder.
type MemoStats struct {
	SSE cache.Stats
	OPE cache.Stats
}

// MemoStats returns the usage of the SSE and OPE memos.
func (e *Encoder) MemoStats() MemoStats {
	return MemoStats{SSE: e.sse.memo.Stats(), OPE: e.ope.enc.Stats()}
}

// Vocabulary returns the vocabulary of encoded maps.
func (e *Encoder) Vocabulary() *Vocabulary {
	return e.vocab
}

// EncodeMap returns the encoded copy of m.
func (e *Encoder) EncodeMap(m token.Map) (token.Map, error) {
	out := make(token.Map, len(m))
	for name, scope := range m {
		encName, err := e.scope(name)
		if err != nil {
			return nil, err
		}
		encScope := make(token.Scope, len(scope))
		for cat, list := range scope {
			encCat, err := e.category(cat)
			if err != nil {
				return nil, err
			}
			encList, err := e.tokens(list)
			if err != nil {
				return nil, fmt.Errorf("encoding %s/%s: %w", name, cat, err)
			}
			encScope[encCat] = encList
		}
		out[encName] = encScope
	}
	return out, nil
}

func (e *Encoder) tokens(list []token.Token) ([]token.Token, error) {
	out := make([]token.Token, len(list))
	for i, t := range list {
		enc, err := e.EncodeToken(t)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// EncodeToken returns the encoded copy of t.
func (e *Encoder) EncodeToken(t token.Token) (token.Token, error) {
	var (
		out token.Token
		err error
	)
	if out.Category, err = e.category(t.Category); err != nil {
		return out, err
	}
	if out.Line, err = e.sse.Encrypt(t.Line); err != nil {
		return out, err
	}
	if out.Scope, err = e.scope(t.Scope); err != nil {
		return out, err
	}
	for _, f := range []struct {
		dst *int64
		v   int64
	}{
		{&out.Position, t.Position},
		{&out.Depth, t.Depth},
		{&out.Order, t.Order},
		{&out.FlowType, t.FlowType},
		{&out.Split, t.Split},
	} {
		if *f.dst, err = e.ope.Encrypt(f.v); err != nil {
			return out, err
		}
	}

	if t.Call != nil {
		call := &token.Call{Args: make([][]token.Token, len(t.Call.Args))}
		if call.Unit, err = e.sse.Encrypt(t.Call.Unit); err != nil {
			return out, err
		}
		if call.Function, err = e.sse.Encrypt(t.Call.Function); err != nil {
			return out, err
		}
		for i, arg := range t.Call.Args {
			if call.Args[i], err = e.tokens(arg); err != nil {
				return out, err
			}
		}
		out.Call = call
	}
	return out, nil
}

func (e *Encoder) category(c string) (string, error) {
	if k := token.Plain.Classify(c); k != token.Identifier {
		return e.vocab.Category(k), nil
	}
	return e.sse.Encrypt(c)
}

// scope encrypts every part of a scope name so that joined names stay
// joinable over ciphertext.
func (e *Encoder) scope(name string) (string, error) {
	parts := strings.Split(name, token.ScopeSeparator)
	for i, p := range parts {
		enc, err := e.sse.Encrypt(p)
		if err != nil {
			return "", err
		}
		parts[i] = enc
	}
	return strings.Join(parts, token.ScopeSeparator), nil
}

// DecodeMap returns the plaintext copy of an encoded map.
func (d *Decoder) DecodeMap(m token.Map) (token.Map, error) {
	out := make(token.Map, len(m))
	for name, scope := range m {
		plainName, err := d.scope(name)
		if err != nil {
			return nil, err
		}
		plainScope := make(token.Scope, len(scope))
		for cat, list := range scope {
			plainCat, err := d.category(cat)
			if err != nil {
				return nil, err
			}
			plainList, err := d.tokens(list)
			if err != nil {
				return nil, err
			}
			plainScope[plainCat] = plainList
		}
		out[plainName] = plainScope
	}
	return out, nil
}

// DecodePath returns the plaintext copy of an encoded path.
func (d *Decoder) DecodePath(p token.Path) (token.Path, error) {
	out, err := d.tokens(p)
	if err != nil {
		return nil, err
	}
	return token.Path(out), nil
}

// DecodePaths decodes every path.
func (d *Decoder) DecodePaths(paths []token.Path) ([]token.Path, error) {
	out := make([]token.Path, len(paths))
	for i, p := range paths {
		dec, err := d.DecodePath(p)
		if err != nil {
			return nil, fmt.Errorf("decoding path %d: %w", i+1, err)
		}
		out[i] = dec
	}
	return out, nil
}

func (d *Decoder) tokens(list []token.Token) ([]token.Token, error) {
	out := make([]token.Token, len(list))
	for i, t := range list {
		dec, err := d.DecodeToken(t)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// DecodeToken returns the plaintext copy of an encoded token.
func (d *Decoder) DecodeToken(t token.Token) (token.Token, error) {
	var (
		out token.Token
		err error
	)
	if out.Category, err = d.category(t.Category); err != nil {
		return out, err
	}
	if out.Line, err = d.sse.Decrypt(t.Line); err != nil {
		return out, err
	}
	if out.Scope, err = d.scope(t.Scope); err != nil {
		return out, err
	}
	for _, f := range []struct {
		dst *int64
		c   int64
	}{
		{&out.Position, t.Position},
		{&out.Depth, t.Depth},
		{&out.Order, t.Order},
		{&out.FlowType, t.FlowType},
		{&out.Split, t.Split},
	} {
		if *f.dst, err = d.ope.Decrypt(f.c); err != nil {
			return out, err
		}
	}

	if t.Call != nil {
		call := &token.Call{Args: make([][]token.Token, len(t.Call.Args))}
		if call.Unit, err = d.sse.Decrypt(t.Call.Unit); err != nil {
			return out, err
		}
		if call.Function, err = d.sse.Decrypt(t.Call.Function); err != nil {
			return out, err
		}
		for i, arg := range t.Call.Args {
			if call.Args[i], err = d.tokens(arg); err != nil {
				return out, err
			}
		}
		out.Call = call
	}
	return out, nil
}

// category recognizes reserved categories by recomputing their hashes; any
// other category is decrypted.
func (d *Decoder) category(c string) (string, error) {
	if k := d.vocab.Classify(c); k != token.Identifier {
		return k.String(), nil
	}
	return d.sse.Decrypt(c)
}

func (d *Decoder) scope(name string) (string, error) {
	parts := strings.Split(name, token.ScopeSeparator)
	for i, p := range parts {
		plain, err := d.sse.Decrypt(p)
		if err != nil {
			return "", err
		}
		parts[i] = plain
	}
	return strings.Join(parts, token.ScopeSeparator), nil
}
