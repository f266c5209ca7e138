// Package approval implements the approval flow contract. It layers
// approval policy over the document registry and drives documents to
// APPROVED or REJECTED once a request is decided.
package approval

import (
	"civicledger/core/auth"
	"civicledger/core/errs"
)

const ContractName = "approval"

const (
	docType     = "approvalRequest"
	settingsKey = "APPROVAL_SETTINGS"
)

type Type string

const (
	Standard   Type = "STANDARD"
	Important  Type = "IMPORTANT"
	MultiLevel Type = "MULTI_LEVEL"
)

type State string

const (
	Pending  State = "PENDING"
	Approved State = "APPROVED"
	Rejected State = "REJECTED"
	Revoked  State = "REVOKED"
)

func (s State) Valid() bool {
	switch s {
	case Pending, Approved, Rejected, Revoked:
		return true
	}
	return false
}

type Approver struct {
	ApproverID string `json:"approverId"`
	Role       string `json:"role"`
	Timestamp  string `json:"timestamp"`
	Comments   string `json:"comments,omitempty"`
}

type HistoryEntry struct {
	TxID      string `json:"txId"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Reason    string `json:"reason,omitempty"`
}

type Request struct {
	DocType         string         `json:"docType"`
	RequestID       string         `json:"requestId"`
	DocumentID      string         `json:"documentId"`
	DocumentType    string         `json:"documentType"`
	RequesterID     string         `json:"requesterId"`
	RequesterRole   string         `json:"requesterRole"`
	ApprovalType    Type           `json:"approvalType"`
	State           State          `json:"state"`
	Approvers       []Approver     `json:"approvers"`
	History         []HistoryEntry `json:"history"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	RejectedBy      string         `json:"rejectedBy,omitempty"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

// hasApprover reports whether id already signed the request.
func (r *Request) hasApprover(id string) bool {
	for _, a := range r.Approvers {
		if a.ApproverID == id {
			return true
		}
	}
	return false
}

func (r *Request) approvedRoles() map[string]bool {
	roles := make(map[string]bool, len(r.Approvers))
	for _, a := range r.Approvers {
		roles[a.Role] = true
	}
	return roles
}

// satisfied reports whether the distinct approver roles cover required.
func (r *Request) satisfied(required []string) bool {
	have := r.approvedRoles()
	for _, role := range required {
		if !have[role] {
			return false
		}
	}
	return true
}

// Settings configures which roles must sign off each approval type.
type Settings struct {
	ApprovalRoles          map[Type][]string `json:"approvalRoles"`
	ImportantDocumentTypes []string          `json:"importantDocumentTypes"`
	DefaultApprovalType    Type              `json:"defaultApprovalType"`
}

// DefaultSettings is used until the contract is initialized.
func DefaultSettings() Settings {
	return Settings{
		ApprovalRoles: map[Type][]string{
			Standard:   {auth.RoleOfficer},
			Important:  {auth.RoleChairman},
			MultiLevel: {auth.RoleOfficer, auth.RoleChairman},
		},
		ImportantDocumentTypes: []string{"BIRTH_CERTIFICATE", "LAND_USE_CERTIFICATE", "BUSINESS_LICENSE"},
		DefaultApprovalType:    Standard,
	}
}

func checkSettings(s Settings) error {
	if len(s.ApprovalRoles[s.DefaultApprovalType]) == 0 {
		return errs.Newf(errs.CodeInvalidArgument, "default approval type %s has no required roles", s.DefaultApprovalType)
	}
	return nil
}

// RequiredRoles returns the roles that must approve t.
func (s Settings) RequiredRoles(t Type) ([]string, error) {
	roles, ok := s.ApprovalRoles[t]
	if !ok || len(roles) == 0 {
		return nil, errs.Newf(errs.CodeInvalidArgument, "approval type %s is not configured", t)
	}
	return roles, nil
}

// TypeFor infers the approval type of a document type.
func (s Settings) TypeFor(documentType string) Type {
	for _, t := range s.ImportantDocumentTypes {
		if t == documentType {
			return Important
		}
	}
	return s.DefaultApprovalType
}

// Progress is returned by approve.
type Progress struct {
	RequestID         string   `json:"requestId"`
	State             State    `json:"state"`
	ApprovalsReceived int      `json:"approvalsReceived"`
	ApprovalsRequired int      `json:"approvalsRequired"`
	RequiredRoles     []string `json:"requiredRoles"`
	DocumentApproved  bool     `json:"documentApproved"`
}
