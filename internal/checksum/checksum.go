// Package checksum fingerprints resolved modules for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Parts returns the hex-encoded SHA-256 digest of the given parts. Each part
// is length-prefixed, so moving bytes between adjacent parts changes the sum.
func Parts(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
