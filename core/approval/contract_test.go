package approval_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/core/approval"
	"civicledger/core/document"
	"civicledger/core/errs"
	"civicledger/core/ledger/ledgertest"
)

const hashA = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

var (
	officer1 = ledgertest.Officer("O1")
	officer2 = ledgertest.Officer("O2")
	chairman = ledgertest.Chairman("CH1")
	citizen  = ledgertest.Citizen("C1")
)

func newHarness(t *testing.T) *ledgertest.Harness {
	h := ledgertest.New(t, document.NewContract(), approval.NewContract())
	h.MustSubmit(ledgertest.Admin(), approval.ContractName, "init")
	return h
}

// pendingDocument creates and submits a document.
func pendingDocument(t *testing.T, h *ledgertest.Harness, id, docType, metadata string) {
	t.Helper()
	h.MustSubmit(officer1, document.ContractName, "create", id, docType, "C1", "O1", metadata, hashA)
	h.MustSubmit(officer1, document.ContractName, "submit", id)
}

func readRequest(t *testing.T, h *ledgertest.Harness, id string) approval.Request {
	t.Helper()
	var req approval.Request
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "read", id), &req))
	return req
}

func documentState(t *testing.T, h *ledgertest.Harness, id string) document.State {
	t.Helper()
	var doc document.Document
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "read", id), &doc))
	return doc.State
}

func TestCreateRequestInfersType(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "BIRTH_CERTIFICATE", "")
	pendingDocument(t, h, "D2", "RESIDENCE_CONFIRMATION", "")

	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R2", "D2", "C1")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R3", "D2", "C1", "MULTI_LEVEL")

	r1 := readRequest(t, h, "R1")
	assert.Equal(t, approval.Important, r1.ApprovalType)
	assert.Equal(t, approval.Pending, r1.State)
	assert.Empty(t, r1.Approvers)
	require.Len(t, r1.History, 1)
	assert.Equal(t, "CREATE", r1.History[0].Action)
	assert.Equal(t, "citizen", r1.RequesterRole)

	assert.Equal(t, approval.Standard, readRequest(t, h, "R2").ApprovalType)
	assert.Equal(t, approval.MultiLevel, readRequest(t, h, "R3").ApprovalType)
}

func TestCreateRequestFailures(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "BIRTH_CERTIFICATE", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")

	_, err := h.Submit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")
	assert.Equal(t, errs.CodeAlreadyExists, errs.CodeOf(err))

	_, err = h.Submit(citizen, approval.ContractName, "createRequest", "R2", "missing", "C1")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))

	_, err = h.Submit(citizen, approval.ContractName, "createRequest", "R2", "D1", "C1", "URGENT")
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestMultiLevelNeedsDistinctRoles(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1", "MULTI_LEVEL")

	var p approval.Progress
	require.NoError(t, json.Unmarshal(h.MustSubmit(officer1, approval.ContractName, "approve", "R1", "O1", "first"), &p))
	assert.Equal(t, approval.Pending, p.State)
	assert.Equal(t, 1, p.ApprovalsReceived)
	assert.Equal(t, 2, p.ApprovalsRequired)

	require.NoError(t, json.Unmarshal(h.MustSubmit(officer2, approval.ContractName, "approve", "R1", "O2", "second"), &p))
	assert.Equal(t, approval.Pending, p.State)
	assert.False(t, p.DocumentApproved)
	assert.Equal(t, document.Pending, documentState(t, h, "D1"))

	require.NoError(t, json.Unmarshal(h.MustSubmit(chairman, approval.ContractName, "approve", "R1", "CH1", "final"), &p))
	assert.Equal(t, approval.Approved, p.State)
	assert.True(t, p.DocumentApproved)
	assert.Equal(t, 3, p.ApprovalsReceived)

	assert.Equal(t, approval.Approved, readRequest(t, h, "R1").State)
	assert.Equal(t, document.Approved, documentState(t, h, "D1"))

	// the document moved in the same block as the final approval
	tip, err := h.Node.Journal().Get(h.Height() - 1)
	require.NoError(t, err)
	assert.Equal(t, "approve", tip.Function)
	assert.Contains(t, tip.Events, "document.DocumentApproved")
	assert.Contains(t, tip.Events, "approval.ApprovalRequestApproved")

	_, err = h.Submit(officer1, approval.ContractName, "approve", "R1", "O3", "")
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestDuplicateApproverAlreadyActioned(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1", "MULTI_LEVEL")
	h.MustSubmit(officer1, approval.ContractName, "approve", "R1", "O1", "")

	_, err := h.Submit(officer1, approval.ContractName, "approve", "R1", "O1", "again")
	require.Error(t, err)
	assert.Equal(t, errs.CodeAlreadyActioned, errs.CodeOf(err))
	assert.Len(t, readRequest(t, h, "R1").Approvers, 1)

	_, err = h.Submit(officer1, approval.ContractName, "reject", "R1", "O1", "changed my mind")
	assert.Equal(t, errs.CodeAlreadyActioned, errs.CodeOf(err))
}

func TestApproverRoleMustBeRequired(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "BIRTH_CERTIFICATE", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")

	_, err := h.Submit(officer1, approval.ContractName, "approve", "R1", "O1", "")
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))
	_, err = h.Submit(citizen, approval.ContractName, "reject", "R1", "C1", "no")
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))

	h.MustSubmit(chairman, approval.ContractName, "approve", "R1", "CH1", "")
	assert.Equal(t, document.Approved, documentState(t, h, "D1"))
}

func TestFailedDocumentApprovalRollsBackRequest(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", `{"requiresChairmanApproval":true}`)
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1", "STANDARD")
	height := h.Height()

	_, err := h.Submit(officer1, approval.ContractName, "approve", "R1", "O1", "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeCrossContractFailure, errs.CodeOf(err))

	assert.Equal(t, height, h.Height())
	req := readRequest(t, h, "R1")
	assert.Equal(t, approval.Pending, req.State)
	assert.Empty(t, req.Approvers)
	assert.Len(t, req.History, 1)
	assert.Equal(t, document.Pending, documentState(t, h, "D1"))
}

func TestDraftDocumentBlocksApproval(t *testing.T) {
	h := newHarness(t)
	h.MustSubmit(officer1, document.ContractName, "create", "D1", "RESIDENCE_CONFIRMATION", "C1", "O1", "", hashA)
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")

	_, err := h.Submit(officer1, approval.ContractName, "approve", "R1", "O1", "")
	assert.Equal(t, errs.CodeCrossContractFailure, errs.CodeOf(err))
	assert.Equal(t, approval.Pending, readRequest(t, h, "R1").State)
	assert.Equal(t, document.Draft, documentState(t, h, "D1"))
}

func TestRejectMovesDocument(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")
	h.MustSubmit(officer1, approval.ContractName, "reject", "R1", "O1", "blurry scan")

	req := readRequest(t, h, "R1")
	assert.Equal(t, approval.Rejected, req.State)
	assert.Equal(t, "blurry scan", req.RejectionReason)
	assert.Equal(t, "O1", req.RejectedBy)
	assert.Equal(t, document.Rejected, documentState(t, h, "D1"))

	_, err := h.Submit(officer2, approval.ContractName, "approve", "R1", "O2", "")
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestRacingApprovalsOneInvalidated(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1", "MULTI_LEVEL")

	txOfficer, err := h.Simulate(officer1, approval.ContractName, "approve", "R1", "O1", "")
	require.NoError(t, err)
	txChair, err := h.Simulate(chairman, approval.ContractName, "approve", "R1", "CH1", "")
	require.NoError(t, err)

	_, err = h.Commit(txOfficer)
	require.NoError(t, err)
	_, err = h.Commit(txChair)
	require.Error(t, err)
	assert.Equal(t, errs.CodeMVCCConflict, errs.CodeOf(err))

	req := readRequest(t, h, "R1")
	require.Len(t, req.Approvers, 1)
	assert.Equal(t, "O1", req.Approvers[0].ApproverID)
	assert.Equal(t, document.Pending, documentState(t, h, "D1"))

	// resubmission against fresh state succeeds
	h.MustSubmit(chairman, approval.ContractName, "approve", "R1", "CH1", "")
	assert.Equal(t, document.Approved, documentState(t, h, "D1"))
}

func TestRevokeRequest(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")

	_, err := h.Submit(officer1, approval.ContractName, "revokeRequest", "R1", "duplicate")
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))

	h.MustSubmit(chairman, approval.ContractName, "revokeRequest", "R1", "duplicate")
	assert.Equal(t, approval.Revoked, readRequest(t, h, "R1").State)
	assert.Equal(t, document.Pending, documentState(t, h, "D1"))

	_, err = h.Submit(chairman, approval.ContractName, "revokeRequest", "R1", "again")
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	pendingDocument(t, h, "D2", "BIRTH_CERTIFICATE", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1", "MULTI_LEVEL")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R2", "D2", "C1")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R3", "D1", "C1", "STANDARD")
	h.MustSubmit(officer1, approval.ContractName, "approve", "R1", "O1", "")

	var reqs []approval.Request
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "byDocument", "D1"), &reqs))
	assert.Len(t, reqs, 2)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "byState", "PENDING"), &reqs))
	assert.Len(t, reqs, 3)
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "byState", "PENDING", "1"), &reqs))
	assert.Len(t, reqs, 1)

	ids := func(rs []approval.Request) []string {
		out := []string{}
		for _, r := range rs {
			out = append(out, r.RequestID)
		}
		return out
	}
	require.NoError(t, json.Unmarshal(h.MustEvaluate(officer1, approval.ContractName, "pendingForRole", "officer"), &reqs))
	assert.ElementsMatch(t, []string{"R3"}, ids(reqs))
	require.NoError(t, json.Unmarshal(h.MustEvaluate(chairman, approval.ContractName, "pendingForRole", "chairman"), &reqs))
	assert.ElementsMatch(t, []string{"R1", "R2"}, ids(reqs))
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "pendingForRole", "citizen"), &reqs))
	assert.Empty(t, reqs)
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	var rec struct {
		Version  int               `json:"version"`
		Settings approval.Settings `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "getSettings"), &rec))
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, []string{"officer", "chairman"}, rec.Settings.ApprovalRoles[approval.MultiLevel])

	_, err := h.Submit(officer1, approval.ContractName, "updateSettings", `{"defaultApprovalType":"MULTI_LEVEL"}`)
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))

	h.MustSubmit(chairman, approval.ContractName, "updateSettings",
		`{"defaultApprovalType":"MULTI_LEVEL","approvalRoles":{"STANDARD":["chairman"]}}`)
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, approval.ContractName, "getSettings"), &rec))
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, approval.MultiLevel, rec.Settings.DefaultApprovalType)
	assert.Equal(t, []string{"chairman"}, rec.Settings.ApprovalRoles[approval.Standard])
	assert.Equal(t, []string{"chairman"}, rec.Settings.ApprovalRoles[approval.Important])

	pendingDocument(t, h, "D1", "RESIDENCE_CONFIRMATION", "")
	h.MustSubmit(citizen, approval.ContractName, "createRequest", "R1", "D1", "C1")
	assert.Equal(t, approval.MultiLevel, readRequest(t, h, "R1").ApprovalType)
}
