package block

import (
	"crypto/sha256"
	"encoding/hex"

	"civicledger/core/state"
)

// MerkleRoot computes the Merkle root of a list of hashes (as hex strings).
// If the list is empty, returns an empty string.
func MerkleRoot(hashes []string) string {
	n := len(hashes)
	if n == 0 {
		return ""
	}
	for n > 1 {
		var nextLevel []string
		for i := 0; i < n; i += 2 {
			h := sha256.New()
			h.Write([]byte(hashes[i]))
			if i+1 < n {
				h.Write([]byte(hashes[i+1]))
			} else {
				// Odd node: hash with itself
				h.Write([]byte(hashes[i]))
			}
			nextLevel = append(nextLevel, hex.EncodeToString(h.Sum(nil)))
		}
		hashes = nextLevel
		n = len(hashes)
	}
	return hashes[0]
}

// HashWrite returns the hex SHA-256 of a single write set entry.
func HashWrite(w state.Write) string {
	h := sha256.New()
	h.Write([]byte(w.Namespace))
	h.Write([]byte{0})
	h.Write([]byte(w.Key))
	h.Write([]byte{0})
	if w.IsDelete {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
		h.Write(w.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DataHash is the Merkle root over a write set, in write order.
func DataHash(writes []state.Write) string {
	hashes := make([]string, 0, len(writes))
	for _, w := range writes {
		hashes = append(hashes, HashWrite(w))
	}
	return MerkleRoot(hashes)
}
