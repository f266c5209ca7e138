package verification

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"civicledger/core/errs"
)

// Hash algorithm names.
const (
	SHA256     = "sha256"
	SHA512     = "sha512"
	SHA3_256   = "sha3-256"
	BLAKE2b256 = "blake2b-256"
)

var hashers = map[string]func() hash.Hash{
	SHA256:   sha256.New,
	SHA512:   sha512.New,
	SHA3_256: sha3.New256,
	BLAKE2b256: func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Sum returns the lower-case hex digest of content.
func Sum(algorithm string, content []byte) (string, error) {
	newHash, ok := hashers[algorithm]
	if !ok {
		return "", errs.Newf(errs.CodeInvalidArgument, "unsupported hash algorithm %q", algorithm)
	}
	h := newHash()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
