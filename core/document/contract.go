package document

import (
	"encoding/json"
	"fmt"

	"civicledger/core/auth"
	"civicledger/core/errs"
	"civicledger/core/ledger"
	"civicledger/core/validation"
)

// policy is the per-operation allow-list. Read operations are open.
var policy = auth.Policy{
	"create":  {auth.RoleOfficer, auth.RoleChairman},
	"submit":  {auth.RoleOfficer, auth.RoleChairman},
	"approve": {auth.RoleOfficer, auth.RoleChairman},
	"reject":  {auth.RoleOfficer, auth.RoleChairman},
	"revoke":  {auth.RoleChairman},
}

type Contract struct {
	router *ledger.Router
}

func NewContract() *Contract {
	c := &Contract{router: ledger.NewRouter(ContractName)}
	c.router.Handle("init", 0, -1, c.init)
	c.router.Handle("create", 6, 6, c.create)
	c.router.Handle("submit", 1, 1, c.submit)
	c.router.Handle("approve", 2, 3, c.approve)
	c.router.Handle("reject", 3, 3, c.reject)
	c.router.Handle("revoke", 3, 3, c.revoke)
	c.router.Handle("verify", 2, 2, c.verify)
	c.router.Handle("read", 1, 1, c.read)
	c.router.Handle("exists", 1, 1, c.exists)
	c.router.Handle("byCitizen", 1, 2, c.byCitizen)
	c.router.Handle("byState", 1, 2, c.byState)
	c.router.Handle("byOfficer", 1, 2, c.byOfficer)
	c.router.Handle("history", 1, 1, c.history)
	return c
}

func (c *Contract) Name() string { return ContractName }

func (c *Contract) Invoke(ctx ledger.Context, function string, args []string) ([]byte, error) {
	return c.router.Dispatch(ctx, function, args)
}

func (c *Contract) init(ctx ledger.Context, args []string) ([]byte, error) {
	return nil, nil
}

func (c *Contract) load(stub ledger.Stub, id string) (*Document, error) {
	doc := &Document{}
	found, err := ledger.GetJSON(stub, id, doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.Newf(errs.CodeNotFound, "document %s does not exist", id).WithMetadata("documentId", id)
	}
	return doc, nil
}

// create args: documentId, documentType, citizenId, officerId, metadata JSON, contentHash.
func (c *Contract) create(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("create", caller); err != nil {
		return nil, err
	}
	metadata := map[string]any{}
	if args[4] != "" {
		if err := json.Unmarshal([]byte(args[4]), &metadata); err != nil {
			return nil, errs.Wrap(errs.CodeInvalidArgument, "metadata must be a JSON object", err)
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
	}
	doc := &Document{
		DocType:      docType,
		DocumentID:   args[0],
		DocumentType: args[1],
		CitizenID:    args[2],
		OfficerID:    args[3],
		Metadata:     metadata,
		ContentHash:  NormalizeHash(args[5]),
		State:        Draft,
	}
	err := validation.ValidateValue(validation.DocumentCreate, map[string]any{
		"documentId":   doc.DocumentID,
		"documentType": doc.DocumentType,
		"citizenId":    doc.CitizenID,
		"officerId":    doc.OfficerID,
		"metadata":     doc.Metadata,
		"contentHash":  doc.ContentHash,
	})
	if err != nil {
		return nil, err
	}

	stub := ctx.GetStub()
	existing, err := stub.GetState(doc.DocumentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.CodeAlreadyExists, "document %s already exists", doc.DocumentID).
			WithMetadata("documentId", doc.DocumentID)
	}

	now := ledger.TxTime(stub)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Approvals = []Approval{}
	doc.TransactionHistory = []HistoryEntry{{
		TxID:      stub.GetTxID(),
		Action:    "CREATE",
		Timestamp: now,
		UserID:    caller.ID(),
		Role:      caller.Role(),
	}}
	if err := ledger.PutJSON(stub, doc.DocumentID, doc); err != nil {
		return nil, err
	}
	if err := c.emit(stub, "DocumentCreated", doc); err != nil {
		return nil, err
	}
	return ledger.Marshal(doc)
}

// transition moves doc along one legal edge and appends the history entry.
func (c *Contract) transition(stub ledger.Stub, caller auth.Caller, doc *Document, action, reason string) error {
	t, ok := transitions[action]
	if !ok {
		return errs.Newf(errs.CodeInternal, "unknown action %s", action)
	}
	if doc.State != t.from {
		return errs.Newf(errs.CodeInvalidState, "cannot %s document %s in state %s", action, doc.DocumentID, doc.State).
			WithMetadata("state", string(doc.State))
	}
	now := ledger.TxTime(stub)
	doc.State = t.to
	doc.UpdatedAt = now
	doc.TransactionHistory = append(doc.TransactionHistory, HistoryEntry{
		TxID:      stub.GetTxID(),
		Action:    action,
		Timestamp: now,
		UserID:    caller.ID(),
		Role:      caller.Role(),
		Reason:    reason,
	})
	return nil
}

func (c *Contract) save(stub ledger.Stub, doc *Document, event string) ([]byte, error) {
	if err := ledger.PutJSON(stub, doc.DocumentID, doc); err != nil {
		return nil, err
	}
	if err := c.emit(stub, event, doc); err != nil {
		return nil, err
	}
	return ledger.Marshal(doc)
}

func (c *Contract) emit(stub ledger.Stub, name string, doc *Document) error {
	return ledger.EmitJSON(stub, name, map[string]any{
		"documentId": doc.DocumentID,
		"state":      doc.State,
		"citizenId":  doc.CitizenID,
		"txId":       stub.GetTxID(),
		"timestamp":  doc.UpdatedAt,
	})
}

func (c *Contract) submit(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("submit", caller); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	doc, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	if err := c.transition(stub, caller, doc, "SUBMIT", ""); err != nil {
		return nil, err
	}
	return c.save(stub, doc, "DocumentSubmitted")
}

// approve args: documentId, approverId, comments.
func (c *Contract) approve(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	stub := ctx.GetStub()
	doc, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	if doc.State != Pending {
		return nil, errs.Newf(errs.CodeInvalidState, "cannot APPROVE document %s in state %s", doc.DocumentID, doc.State).
			WithMetadata("state", string(doc.State))
	}
	if doc.RequiresChairmanApproval() {
		if !auth.HasRole(caller, auth.RoleChairman) {
			return nil, errs.Newf(errs.CodeUnauthorized, "document %s requires chairman approval", doc.DocumentID)
		}
	} else if err := policy.Check("approve", caller); err != nil {
		return nil, err
	}
	comments := ledger.Arg(args, 2)
	if err := c.transition(stub, caller, doc, "APPROVE", ""); err != nil {
		return nil, err
	}
	doc.Approvals = append(doc.Approvals, Approval{
		ApproverID: args[1],
		Role:       caller.Role(),
		Timestamp:  doc.UpdatedAt,
		Comments:   comments,
	})
	return c.save(stub, doc, "DocumentApproved")
}

// reject args: documentId, rejectorId, reason.
func (c *Contract) reject(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("reject", caller); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	doc, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	if err := c.transition(stub, caller, doc, "REJECT", args[2]); err != nil {
		return nil, err
	}
	doc.RejectedBy = args[1]
	doc.RejectionReason = args[2]
	return c.save(stub, doc, "DocumentRejected")
}

// revoke args: documentId, revokerId, reason.
func (c *Contract) revoke(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("revoke", caller); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	doc, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	if err := c.transition(stub, caller, doc, "REVOKE", args[2]); err != nil {
		return nil, err
	}
	doc.RevokedBy = args[1]
	doc.RevocationReason = args[2]
	return c.save(stub, doc, "DocumentRevoked")
}

func (c *Contract) verify(ctx ledger.Context, args []string) ([]byte, error) {
	doc, err := c.load(ctx.GetStub(), args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(VerifyResult{
		DocumentID:  doc.DocumentID,
		IsAuthentic: doc.ContentHash == NormalizeHash(args[1]),
		IsValid:     doc.State == Approved,
		State:       doc.State,
	})
}

func (c *Contract) read(ctx ledger.Context, args []string) ([]byte, error) {
	doc, err := c.load(ctx.GetStub(), args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(doc)
}

func (c *Contract) exists(ctx ledger.Context, args []string) ([]byte, error) {
	raw, err := ctx.GetStub().GetState(args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(raw != nil)
}

func (c *Contract) list(ctx ledger.Context, field, value string, limitArg []string) ([]byte, error) {
	limit, err := ledger.LimitArg(limitArg, 1)
	if err != nil {
		return nil, err
	}
	query, err := ledger.BuildQuery(
		map[string]any{"docType": docType, field: value},
		[]ledger.SortField{{Field: "createdAt", Desc: true}},
		limit,
	)
	if err != nil {
		return nil, err
	}
	docs, err := ledger.QueryValues[Document](ctx.GetStub(), query, 0)
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(docs)
}

func (c *Contract) byCitizen(ctx ledger.Context, args []string) ([]byte, error) {
	return c.list(ctx, "citizenId", args[0], args)
}

func (c *Contract) byOfficer(ctx ledger.Context, args []string) ([]byte, error) {
	return c.list(ctx, "officerId", args[0], args)
}

func (c *Contract) byState(ctx ledger.Context, args []string) ([]byte, error) {
	if !State(args[0]).Valid() {
		return nil, errs.Newf(errs.CodeInvalidArgument, "unknown document state %q", args[0])
	}
	return c.list(ctx, "state", args[0], args)
}

func (c *Contract) history(ctx ledger.Context, args []string) ([]byte, error) {
	it, err := ctx.GetStub().GetHistoryForKey(args[0])
	if err != nil {
		return nil, err
	}
	defer it.Close()
	revisions := make([]Revision, 0)
	for it.HasNext() {
		mod, err := it.Next()
		if err != nil {
			return nil, err
		}
		rev := Revision{
			TxID:      mod.TxID,
			Timestamp: mod.Timestamp.UTC().Format(ledger.ISOTimestamp),
			IsDelete:  mod.IsDelete,
		}
		if !mod.IsDelete && len(mod.Value) > 0 {
			rev.Value = &Document{}
			if err := json.Unmarshal(mod.Value, rev.Value); err != nil {
				return nil, errs.Wrap(errs.CodeInternal, fmt.Sprintf("decode revision %s", mod.TxID), err)
			}
		}
		revisions = append(revisions, rev)
	}
	return ledger.Marshal(revisions)
}
