// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hasher implements scrape.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// KeyHash derives a stable dedup key from a project ID and record fields.
// Field names are sorted so the digest does not depend on map order.
func (h *Hasher) KeyHash(projectID string, fields map[string]string, keyFields []string) (string, error) {
	names := keyFields
	if len(names) == 0 {
		names = make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
	} else {
		names = append([]string(nil), names...)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(projectID)
	for _, name := range names {
		b.WriteByte(0)
		b.WriteString(name)
		b.WriteByte(0)
		b.WriteString(strings.TrimSpace(fields[name]))
	}
	return h.Hash([]byte(b.String()))
}
