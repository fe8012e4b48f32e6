package datanorm

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key is the dedup key of one record: a SHA-256 digest over its ordered
// dimension values. Metrics must never be passed in, so a re-exported slice
// with revised counts still collides with the row already stored.
func Key(dims ...string) string {
	h := sha256.Sum256([]byte(strings.Join(dims, "|")))
	return hex.EncodeToString(h[:])
}

// Deref renders an optional dimension for Key, treating nil as empty.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DerefInt renders an optional numeric dimension for Key.
func DerefInt(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}
