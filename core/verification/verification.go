// Package verification implements short-lived verification codes and
// hash challenges against documents in the registry.
package verification

import (
	"time"
)

const ContractName = "verification"

const (
	docType      = "verification"
	settingsKey  = "VERIFICATION_SETTINGS"
	directPrefix = "DIRECT_"

	// CodeTTL is how long a verification code stays usable.
	CodeTTL    = time.Hour
	// CodeLength is the number of hex characters in a verification code.
	CodeLength = 12
)

// Record statuses.
const (
	StatusActive = "ACTIVE"
	StatusDirect = "DIRECT"
)

// Attempt results.
const (
	ResultSuccess = "SUCCESS"
	ResultPartial = "PARTIAL"
	ResultFailed  = "FAILED"

	ReasonHashMismatch = "HASH_MISMATCH"
	ReasonNotApproved  = "DOCUMENT_NOT_APPROVED"
)

// Attempt is one entry of a record's append-only audit list.
type Attempt struct {
	Timestamp  string `json:"timestamp"`
	Result     string `json:"result"`
	Reason     string `json:"reason,omitempty"`
	VerifierID string `json:"verifierId"`
}

type Record struct {
	DocType          string    `json:"docType"`
	VerificationCode string    `json:"verificationCode"`
	DocumentID       string    `json:"documentId"`
	DocumentHash     string    `json:"documentHash"`
	Status           string    `json:"status"`
	CreatedAt        string    `json:"createdAt"`
	ExpiresAt        string    `json:"expiresAt,omitempty"`
	CreatedBy        string    `json:"createdBy"`
	Verifications    []Attempt `json:"verifications"`
}

// Summary is the projection returned by history.
type Summary struct {
	VerificationCode string `json:"verificationCode"`
	CreatedAt        string `json:"createdAt"`
	ExpiresAt        string `json:"expiresAt,omitempty"`
	Status           string `json:"status"`
	Attempts         int    `json:"attempts"`
}

// Result is returned by verifyWithCode and verifyDirect.
type Result struct {
	Verified         bool   `json:"verified"`
	IsAuthentic      bool   `json:"isAuthentic"`
	IsValid          bool   `json:"isValid"`
	Result           string `json:"result"`
	Reason           string `json:"reason,omitempty"`
	DocumentID       string `json:"documentId"`
	DocumentState    string `json:"documentState,omitempty"`
	VerificationCode string `json:"verificationCode,omitempty"`
	VerifiedAt       string `json:"verifiedAt"`
	Message          string `json:"message"`
}

// Issued is returned by generateCode.
type Issued struct {
	VerificationCode string `json:"verificationCode"`
	DocumentID       string `json:"documentId"`
	ExpiresAt        string `json:"expiresAt"`
}

// HashResult is returned by calculateHash.
type HashResult struct {
	Hash      string `json:"hash"`
	Algorithm string `json:"algorithm"`
}

type Settings struct {
	SupportedHashAlgorithms []string `json:"supportedHashAlgorithms"`
	DefaultHashAlgorithm    string   `json:"defaultHashAlgorithm"`
}

func DefaultSettings() Settings {
	return Settings{
		SupportedHashAlgorithms: []string{SHA256, SHA512, SHA3_256, BLAKE2b256},
		DefaultHashAlgorithm:    SHA256,
	}
}

// Resolve returns algorithm when supported, otherwise the default.
func (s Settings) Resolve(algorithm string) string {
	for _, a := range s.SupportedHashAlgorithms {
		if a == algorithm {
			return a
		}
	}
	return s.DefaultHashAlgorithm
}
