package keys

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// CacheKey returns a deterministic key for an artifact: the kind prefix plus
// a short hash over its location identifiers, in canonical spec order
// (outputs first, then sources). Two specs differing in any location get
// distinct keys; re-deriving for the same spec always yields the same key.
func CacheKey(prefix string, locations []string) string {
	joined := strings.Join(locations, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+16] // prefix + ":" + first 16 hex chars
}
