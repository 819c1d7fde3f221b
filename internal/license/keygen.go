package license

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

// keyEncoding is Crockford base32: no I, L, O or U.
var keyEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

const (
	keyGroups    = 4
	keyGroupSize = 5
)

// NewKeyID generates a random key id of the form XXXXX-XXXXX-XXXXX-XXXXX.
func NewKeyID() string {
	id := uuid.New()
	// 16 random bytes encode to 26 symbols; the first 20 are used.
	encoded := keyEncoding.EncodeToString(id[:])[:keyGroups*keyGroupSize]

	groups := make([]string, 0, keyGroups)
	for i := 0; i < len(encoded); i += keyGroupSize {
		groups = append(groups, encoded[i:i+keyGroupSize])
	}
	return strings.Join(groups, "-")
}
