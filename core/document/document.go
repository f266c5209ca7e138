// Package document implements the document registry contract: the
// lifecycle of administrative documents from draft to approval or
// revocation.
package document

import (
	"strings"
)

// ContractName is the name the registry is deployed under.
const ContractName = "document"

const docType = "document"

type State string

const (
	Draft    State = "DRAFT"
	Pending  State = "PENDING"
	Approved State = "APPROVED"
	Rejected State = "REJECTED"
	Revoked  State = "REVOKED"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Draft, Pending, Approved, Rejected, Revoked:
		return true
	}
	return false
}

// Approval is one sign-off recorded on a document.
type Approval struct {
	ApproverID string `json:"approverId"`
	Role       string `json:"role"`
	Timestamp  string `json:"timestamp"`
	Comments   string `json:"comments,omitempty"`
}

// HistoryEntry is an application-level audit entry kept inside the record.
type HistoryEntry struct {
	TxID      string `json:"txId"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Reason    string `json:"reason,omitempty"`
}

type Document struct {
	DocType            string         `json:"docType"`
	DocumentID         string         `json:"documentId"`
	DocumentType       string         `json:"documentType"`
	CitizenID          string         `json:"citizenId"`
	OfficerID          string         `json:"officerId"`
	Metadata           map[string]any `json:"metadata"`
	ContentHash        string         `json:"contentHash"`
	State              State          `json:"state"`
	CreatedAt          string         `json:"createdAt"`
	UpdatedAt          string         `json:"updatedAt"`
	Approvals          []Approval     `json:"approvals"`
	TransactionHistory []HistoryEntry `json:"transactionHistory"`
	RejectionReason    string         `json:"rejectionReason,omitempty"`
	RejectedBy         string         `json:"rejectedBy,omitempty"`
	RevocationReason   string         `json:"revocationReason,omitempty"`
	RevokedBy          string         `json:"revokedBy,omitempty"`
}

// RequiresChairmanApproval reads the metadata flag, accepting a boolean or
// the string "true".
func (d *Document) RequiresChairmanApproval() bool {
	switch v := d.Metadata["requiresChairmanApproval"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// transitions lists the only legal state changes.
var transitions = map[string]struct {
	from State
	to   State
}{
	"SUBMIT":  {Draft, Pending},
	"APPROVE": {Pending, Approved},
	"REJECT":  {Pending, Rejected},
	"REVOKE":  {Approved, Revoked},
}

// VerifyResult is returned by the read-only verify operation.
type VerifyResult struct {
	DocumentID  string `json:"documentId"`
	IsAuthentic bool   `json:"isAuthentic"`
	IsValid     bool   `json:"isValid"`
	State       State  `json:"state"`
}

// Revision is one version of a document from the ledger's key history.
type Revision struct {
	TxID      string    `json:"txId"`
	Timestamp string    `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     *Document `json:"value,omitempty"`
}

// NormalizeHash lower-cases a hex digest.
func NormalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
