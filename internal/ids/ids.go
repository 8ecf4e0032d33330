// Package ids generates the node's opaque prefixed identifiers.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// New returns an id of the form "<prefix>_<uuid-without-dashes>".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewEthAddress returns a random lowercase 0x-prefixed 20-byte address,
// used as the auto-generated deposit address on agent registration.
func NewEthAddress() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}
