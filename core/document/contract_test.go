package document_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/core/document"
	"civicledger/core/errs"
	"civicledger/core/ledger/ledgertest"
)

const hashA = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
const hashB = "60303ae22b998861bce3b28f33eec1be758a213c86c93c076dbe9f558c11c752"

var (
	officer  = ledgertest.Officer("O1")
	chairman = ledgertest.Chairman("CH1")
	citizen  = ledgertest.Citizen("C1")
)

func newHarness(t *testing.T) *ledgertest.Harness {
	return ledgertest.New(t, document.NewContract())
}

func create(t *testing.T, h *ledgertest.Harness, id, metadata string) {
	t.Helper()
	h.MustSubmit(officer, document.ContractName, "create", id, "BIRTH_CERTIFICATE", "C1", "O1", metadata, hashA)
}

func read(t *testing.T, h *ledgertest.Harness, id string) document.Document {
	t.Helper()
	var doc document.Document
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "read", id), &doc))
	return doc
}

// driveTo creates a document and moves it into state.
func driveTo(t *testing.T, h *ledgertest.Harness, id string, state document.State) {
	t.Helper()
	create(t, h, id, "")
	if state == document.Draft {
		return
	}
	h.MustSubmit(officer, document.ContractName, "submit", id)
	switch state {
	case document.Approved:
		h.MustSubmit(officer, document.ContractName, "approve", id, "O1", "ok")
	case document.Rejected:
		h.MustSubmit(officer, document.ContractName, "reject", id, "O1", "incomplete")
	case document.Revoked:
		h.MustSubmit(officer, document.ContractName, "approve", id, "O1", "ok")
		h.MustSubmit(chairman, document.ContractName, "revoke", id, "CH1", "fraud")
	}
}

func opArgs(op, id string) []string {
	switch op {
	case "submit":
		return []string{id}
	case "approve":
		return []string{id, "CH1", "fine"}
	default:
		return []string{id, "CH1", "reason"}
	}
}

func TestOnlyLegalTransitionsSucceed(t *testing.T) {
	legal := map[document.State]map[string]document.State{
		document.Draft:    {"submit": document.Pending},
		document.Pending:  {"approve": document.Approved, "reject": document.Rejected},
		document.Approved: {"revoke": document.Revoked},
		document.Rejected: {},
		document.Revoked:  {},
	}
	ops := []string{"submit", "approve", "reject", "revoke"}

	h := newHarness(t)
	for from, allowed := range legal {
		for _, op := range ops {
			id := fmt.Sprintf("DOC-%s-%s", from, op)
			driveTo(t, h, id, from)

			_, err := h.Submit(chairman, document.ContractName, op, opArgs(op, id)...)
			got := read(t, h, id)
			if to, ok := allowed[op]; ok {
				require.NoError(t, err, "%s from %s", op, from)
				assert.Equal(t, to, got.State, "%s from %s", op, from)
			} else {
				require.Error(t, err, "%s from %s", op, from)
				assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err), "%s from %s", op, from)
				assert.Equal(t, from, got.State, "%s from %s", op, from)
			}
		}
	}
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	create(t, h, "D1", `{"issuer":"district 1"}`)

	doc := read(t, h, "D1")
	assert.Equal(t, document.Draft, doc.State)
	assert.Equal(t, "BIRTH_CERTIFICATE", doc.DocumentType)
	assert.Equal(t, "district 1", doc.Metadata["issuer"])
	assert.Equal(t, "2024-01-15T09:00:00.000Z", doc.CreatedAt)
	assert.Empty(t, doc.Approvals)
	require.Len(t, doc.TransactionHistory, 1)
	assert.Equal(t, "CREATE", doc.TransactionHistory[0].Action)
	assert.Equal(t, "O1", doc.TransactionHistory[0].UserID)
	assert.Equal(t, "officer", doc.TransactionHistory[0].Role)

	recent := h.Node.Events().Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "DocumentCreated", recent[0].Name)
}

func TestDuplicateCreateFailsWithoutWrite(t *testing.T) {
	h := newHarness(t)
	create(t, h, "D1", "")
	height := h.Height()

	_, err := h.Submit(chairman, document.ContractName, "create", "D1", "BUSINESS_LICENSE", "C2", "O2", "", hashB)
	require.Error(t, err)
	assert.Equal(t, errs.CodeAlreadyExists, errs.CodeOf(err))
	assert.Equal(t, height, h.Height())

	doc := read(t, h, "D1")
	assert.Equal(t, "BIRTH_CERTIFICATE", doc.DocumentType)
	assert.Equal(t, hashA, doc.ContentHash)
}

func TestCreateRequiresOfficerOrChairman(t *testing.T) {
	h := newHarness(t)
	_, err := h.Submit(citizen, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "", hashA)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = h.Submit(officer, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "[1,2]", hashA)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = h.Submit(officer, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "", "zz")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestChairmanApprovalRequired(t *testing.T) {
	for _, flag := range []string{`{"requiresChairmanApproval":true}`, `{"requiresChairmanApproval":"true"}`} {
		h := newHarness(t)
		create(t, h, "D1", flag)
		h.MustSubmit(officer, document.ContractName, "submit", "D1")

		_, err := h.Submit(officer, document.ContractName, "approve", "D1", "O1", "")
		require.Error(t, err)
		assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))
		assert.Equal(t, document.Pending, read(t, h, "D1").State)

		h.MustSubmit(chairman, document.ContractName, "approve", "D1", "CH1", "signed")
		doc := read(t, h, "D1")
		assert.Equal(t, document.Approved, doc.State)
		require.Len(t, doc.Approvals, 1)
		assert.Equal(t, "chairman", doc.Approvals[0].Role)
	}
}

func TestScenarioCreateSubmitApproveResubmit(t *testing.T) {
	h := newHarness(t)
	create(t, h, "D1", `{"requiresChairmanApproval":false}`)
	assert.Equal(t, document.Draft, read(t, h, "D1").State)

	h.MustSubmit(officer, document.ContractName, "submit", "D1")
	assert.Equal(t, document.Pending, read(t, h, "D1").State)

	h.Clock.Advance(time.Minute)
	h.MustSubmit(officer, document.ContractName, "approve", "D1", "O1", "looks good")
	doc := read(t, h, "D1")
	assert.Equal(t, document.Approved, doc.State)
	require.Len(t, doc.Approvals, 1)
	assert.Equal(t, "O1", doc.Approvals[0].ApproverID)
	assert.Equal(t, "looks good", doc.Approvals[0].Comments)
	assert.Equal(t, "2024-01-15T09:01:00.000Z", doc.UpdatedAt)

	_, err := h.Submit(officer, document.ContractName, "submit", "D1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.CodeOf(err))
}

func TestRejectAndRevokeRecordReason(t *testing.T) {
	h := newHarness(t)
	driveTo(t, h, "D1", document.Pending)
	h.MustSubmit(officer, document.ContractName, "reject", "D1", "O1", "missing stamp")
	doc := read(t, h, "D1")
	assert.Equal(t, "missing stamp", doc.RejectionReason)
	assert.Equal(t, "O1", doc.RejectedBy)
	last := doc.TransactionHistory[len(doc.TransactionHistory)-1]
	assert.Equal(t, "REJECT", last.Action)
	assert.Equal(t, "missing stamp", last.Reason)

	driveTo(t, h, "D2", document.Approved)
	_, err := h.Submit(officer, document.ContractName, "revoke", "D2", "O1", "nope")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	h.MustSubmit(chairman, document.ContractName, "revoke", "D2", "CH1", "forged")
	doc = read(t, h, "D2")
	assert.Equal(t, document.Revoked, doc.State)
	assert.Equal(t, "CH1", doc.RevokedBy)
	assert.Equal(t, "forged", doc.RevocationReason)
}

func TestVerifyAndExists(t *testing.T) {
	h := newHarness(t)
	driveTo(t, h, "D1", document.Approved)

	var res document.VerifyResult
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "verify", "D1", hashA), &res))
	assert.True(t, res.IsAuthentic)
	assert.True(t, res.IsValid)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "verify", "D1", hashB), &res))
	assert.False(t, res.IsAuthentic)

	assert.Equal(t, "true", string(h.MustEvaluate(citizen, document.ContractName, "exists", "D1")))
	assert.Equal(t, "false", string(h.MustEvaluate(citizen, document.ContractName, "exists", "D9")))

	_, err := h.Evaluate(citizen, document.ContractName, "read", "D9")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListQueries(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 3; i++ {
		create(t, h, fmt.Sprintf("D%d", i), "")
		h.Clock.Advance(time.Minute)
	}
	h.MustSubmit(chairman, document.ContractName, "create", "X1", "BUSINESS_LICENSE", "C2", "O2", "", hashB)
	h.MustSubmit(officer, document.ContractName, "submit", "D2")

	var docs []document.Document
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "byCitizen", "C1"), &docs))
	require.Len(t, docs, 3)
	assert.Equal(t, "D3", docs[0].DocumentID)
	assert.Equal(t, "D2", docs[1].DocumentID)
	assert.Equal(t, "D1", docs[2].DocumentID)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "byCitizen", "C1", "2"), &docs))
	assert.Len(t, docs, 2)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "byState", "PENDING"), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "D2", docs[0].DocumentID)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "byOfficer", "O2"), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "X1", docs[0].DocumentID)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "byCitizen", "nobody"), &docs))
	assert.Empty(t, docs)

	_, err := h.Evaluate(citizen, document.ContractName, "byState", "LOST")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestHistoryReturnsEveryRevision(t *testing.T) {
	h := newHarness(t)
	driveTo(t, h, "D1", document.Revoked)

	var revs []document.Revision
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "history", "D1"), &revs))
	require.Len(t, revs, 4)
	states := make([]document.State, 0, len(revs))
	for _, r := range revs {
		assert.False(t, r.IsDelete)
		require.NotNil(t, r.Value)
		states = append(states, r.Value.State)
	}
	assert.Equal(t, []document.State{document.Draft, document.Pending, document.Approved, document.Revoked}, states)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, document.ContractName, "history", "none"), &revs))
	assert.Empty(t, revs)
}
