package seal

import (
	"encoding/base64"
	"fmt"

	"github.com/minio/highwayhash"

	"github.com/l3aro/blindtaint/pkg/token"
)

// Vocabulary names the reserved categories by their keyed HighwayHash. It
// can only recognize the fixed vocabulary: an arbitrary identifier cannot be
// hashed into a usable lookup key without also knowing its encryption.
type Vocabulary struct {
	*token.Table
}

var _ token.Vocabulary = (*Vocabulary)(nil)

// NewVocabulary builds the hashed vocabulary for a shared vocab key.
func NewVocabulary(key []byte) (*Vocabulary, error) {
	if len(key) != highwayhash.Size {
		return nil, fmt.Errorf("invalid vocabulary key size %d", len(key))
	}
	table := token.NewTable(func(k token.Kind) string {
		sum := highwayhash.Sum([]byte("blindtaint/category/"+k.String()), key)
		return base64.RawURLEncoding.EncodeToString(sum[:])
	})
	return &Vocabulary{Table: table}, nil
}
