package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ID is a 32-byte array.
type ID [32]byte

// Empty is the zero-value ID (all zeros)
var Empty ID

// NewID generates a new ID by hashing input bytes
func NewID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// Derive hashes the parts joined with a separator that cannot appear in
// ledger keys.
func Derive(parts ...string) ID {
	return NewID([]byte(strings.Join(parts, "\x00")))
}

// FromString parses a hex string into an ID
func FromString(s string) (ID, error) {
	var id ID
	bytes, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	copy(id[:], bytes)
	return id, nil
}

// String converts an ID back to a hex string
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Token returns the first n hex characters of the ID in upper case.
func (id ID) Token(n int) string {
	s := id.String()
	if n > 0 && n < len(s) {
		s = s[:n]
	}
	return strings.ToUpper(s)
}

// IDFromString creates an ID from a string (using SHA-256)
func IDFromString(s string) ID {
	return NewID([]byte(s))
}

// MarshalText encodes the ID as hex so JSON documents stay readable.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
