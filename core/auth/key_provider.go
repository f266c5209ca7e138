package auth

import (
	"errors"
)

type KeyProvider interface {
	GetVerificationKey(kid string) (interface{}, error)
}

// StaticKeyProvider serves a single HMAC secret regardless of kid.
type StaticKeyProvider struct {
	Secret []byte
}

func (s *StaticKeyProvider) GetVerificationKey(kid string) (interface{}, error) {
	if len(s.Secret) > 0 {
		return s.Secret, nil
	}
	return nil, errors.New("no signing secret set")
}
