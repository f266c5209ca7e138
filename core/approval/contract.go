package approval

import (
	"civicledger/core/auth"
	"civicledger/core/document"
	"civicledger/core/errs"
	"civicledger/core/ledger"
	"civicledger/core/settings"
	"civicledger/core/validation"
)

var policy = auth.Policy{
	"createRequest":  {auth.RoleCitizen, auth.RoleOfficer, auth.RoleChairman},
	"revokeRequest":  {auth.RoleChairman},
	"updateSettings": {auth.RoleChairman},
}

type Contract struct {
	router   *ledger.Router
	settings *settings.Store[Settings]
}

func NewContract() *Contract {
	c := &Contract{
		router: ledger.NewRouter(ContractName),
		settings: &settings.Store[Settings]{
			Key:      settingsKey,
			Defaults: DefaultSettings,
			Schema:   validation.ApprovalSettings,
			Check:    checkSettings,
			Policy:   policy,
		},
	}
	c.router.Handle("init", 0, 1, c.init)
	c.router.Handle("createRequest", 3, 4, c.createRequest)
	c.router.Handle("approve", 2, 3, c.approve)
	c.router.Handle("reject", 3, 3, c.reject)
	c.router.Handle("revokeRequest", 2, 2, c.revokeRequest)
	c.router.Handle("read", 1, 1, c.read)
	c.router.Handle("byDocument", 1, 2, c.byDocument)
	c.router.Handle("byState", 1, 2, c.byState)
	c.router.Handle("pendingForRole", 1, 2, c.pendingForRole)
	c.router.Handle("getSettings", 0, 0, c.getSettings)
	c.router.Handle("updateSettings", 1, 1, c.updateSettings)
	return c
}

func (c *Contract) Name() string { return ContractName }

func (c *Contract) Invoke(ctx ledger.Context, function string, args []string) ([]byte, error) {
	return c.router.Dispatch(ctx, function, args)
}

func (c *Contract) init(ctx ledger.Context, args []string) ([]byte, error) {
	rec, err := c.settings.Init(ctx.GetStub(), []byte(ledger.Arg(args, 0)))
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(rec)
}

func (c *Contract) load(stub ledger.Stub, id string) (*Request, error) {
	req := &Request{}
	found, err := ledger.GetJSON(stub, id, req)
	if err != nil {
		return nil, err
	}
	if !found || req.DocType != docType {
		return nil, errs.Newf(errs.CodeNotFound, "approval request %s does not exist", id).WithMetadata("requestId", id)
	}
	return req, nil
}

func (c *Contract) appendHistory(stub ledger.Stub, caller auth.Caller, req *Request, action, reason string) {
	now := ledger.TxTime(stub)
	req.UpdatedAt = now
	req.History = append(req.History, HistoryEntry{
		TxID:      stub.GetTxID(),
		Action:    action,
		Timestamp: now,
		UserID:    caller.ID(),
		Role:      caller.Role(),
		Reason:    reason,
	})
}

func (c *Contract) emit(stub ledger.Stub, name string, req *Request) error {
	return ledger.EmitJSON(stub, name, map[string]any{
		"requestId":    req.RequestID,
		"documentId":   req.DocumentID,
		"approvalType": req.ApprovalType,
		"state":        req.State,
		"approvals":    len(req.Approvers),
		"txId":         stub.GetTxID(),
	})
}

// createRequest args: requestId, documentId, requesterId, approvalType (optional).
func (c *Contract) createRequest(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("createRequest", caller); err != nil {
		return nil, err
	}
	err := validation.ValidateValue(validation.ApprovalRequest, map[string]any{
		"requestId":    args[0],
		"documentId":   args[1],
		"requesterId":  args[2],
		"approvalType": ledger.Arg(args, 3),
	})
	if err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	existing, err := stub.GetState(args[0])
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.CodeAlreadyExists, "approval request %s already exists", args[0]).
			WithMetadata("requestId", args[0])
	}
	doc, err := document.Lookup(ctx, args[1])
	if err != nil {
		return nil, err
	}
	cfg, err := c.settings.Load(stub)
	if err != nil {
		return nil, err
	}
	approvalType := Type(ledger.Arg(args, 3))
	if approvalType == "" {
		approvalType = cfg.Settings.TypeFor(doc.DocumentType)
	}
	if _, err := cfg.Settings.RequiredRoles(approvalType); err != nil {
		return nil, err
	}

	now := ledger.TxTime(stub)
	req := &Request{
		DocType:       docType,
		RequestID:     args[0],
		DocumentID:    doc.DocumentID,
		DocumentType:  doc.DocumentType,
		RequesterID:   args[2],
		RequesterRole: caller.Role(),
		ApprovalType:  approvalType,
		State:         Pending,
		Approvers:     []Approver{},
		CreatedAt:     now,
	}
	c.appendHistory(stub, caller, req, "CREATE", "")
	if err := ledger.PutJSON(stub, req.RequestID, req); err != nil {
		return nil, err
	}
	if err := c.emit(stub, "ApprovalRequestCreated", req); err != nil {
		return nil, err
	}
	return ledger.Marshal(req)
}

// authorize loads a pending request and checks the caller holds one of its
// required roles.
func (c *Contract) authorize(ctx ledger.Context, id, actorID string) (*Request, []string, error) {
	stub := ctx.GetStub()
	req, err := c.load(stub, id)
	if err != nil {
		return nil, nil, err
	}
	if req.State != Pending {
		return nil, nil, errs.Newf(errs.CodeInvalidState, "approval request %s is %s", req.RequestID, req.State).
			WithMetadata("state", string(req.State))
	}
	cfg, err := c.settings.Load(stub)
	if err != nil {
		return nil, nil, err
	}
	required, err := cfg.Settings.RequiredRoles(req.ApprovalType)
	if err != nil {
		return nil, nil, err
	}
	caller := ctx.GetClientIdentity()
	allowed := auth.Policy{"decide": required}
	if err := allowed.Check("decide", caller); err != nil {
		return nil, nil, err
	}
	if req.hasApprover(actorID) {
		return nil, nil, errs.Newf(errs.CodeAlreadyActioned, "%s already acted on request %s", actorID, req.RequestID).
			WithMetadata("approverId", actorID)
	}
	return req, required, nil
}

// approve args: requestId, approverId, comments (optional).
func (c *Contract) approve(ctx ledger.Context, args []string) ([]byte, error) {
	req, required, err := c.authorize(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	caller := ctx.GetClientIdentity()
	comments := ledger.Arg(args, 2)

	c.appendHistory(stub, caller, req, "APPROVE", "")
	req.Approvers = append(req.Approvers, Approver{
		ApproverID: args[1],
		Role:       caller.Role(),
		Timestamp:  req.UpdatedAt,
		Comments:   comments,
	})
	progress := Progress{
		RequestID:         req.RequestID,
		ApprovalsReceived: len(req.Approvers),
		ApprovalsRequired: len(required),
		RequiredRoles:     required,
	}
	event := "ApprovalGranted"
	if req.satisfied(required) {
		req.State = Approved
		event = "ApprovalRequestApproved"
		err := ledger.Invoke(ctx, document.ContractName, "approve", []string{req.DocumentID, args[1], comments}, nil)
		if err != nil {
			return nil, err
		}
		progress.DocumentApproved = true
	}
	progress.State = req.State
	if err := ledger.PutJSON(stub, req.RequestID, req); err != nil {
		return nil, err
	}
	if err := c.emit(stub, event, req); err != nil {
		return nil, err
	}
	return ledger.Marshal(progress)
}

// reject args: requestId, rejectorId, reason.
func (c *Contract) reject(ctx ledger.Context, args []string) ([]byte, error) {
	req, _, err := c.authorize(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	req.State = Rejected
	req.RejectedBy = args[1]
	req.RejectionReason = args[2]
	c.appendHistory(stub, ctx.GetClientIdentity(), req, "REJECT", args[2])
	err = ledger.Invoke(ctx, document.ContractName, "reject", []string{req.DocumentID, args[1], args[2]}, nil)
	if err != nil {
		return nil, err
	}
	if err := ledger.PutJSON(stub, req.RequestID, req); err != nil {
		return nil, err
	}
	if err := c.emit(stub, "ApprovalRequestRejected", req); err != nil {
		return nil, err
	}
	return ledger.Marshal(req)
}

// revokeRequest withdraws a pending request without touching the document.
// args: requestId, reason.
func (c *Contract) revokeRequest(ctx ledger.Context, args []string) ([]byte, error) {
	caller := ctx.GetClientIdentity()
	if err := policy.Check("revokeRequest", caller); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	req, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	if req.State != Pending {
		return nil, errs.Newf(errs.CodeInvalidState, "approval request %s is %s", req.RequestID, req.State).
			WithMetadata("state", string(req.State))
	}
	req.State = Revoked
	c.appendHistory(stub, caller, req, "REVOKE", args[1])
	if err := ledger.PutJSON(stub, req.RequestID, req); err != nil {
		return nil, err
	}
	if err := c.emit(stub, "ApprovalRequestRevoked", req); err != nil {
		return nil, err
	}
	return ledger.Marshal(req)
}

func (c *Contract) read(ctx ledger.Context, args []string) ([]byte, error) {
	req, err := c.load(ctx.GetStub(), args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(req)
}

func (c *Contract) query(stub ledger.Stub, selector map[string]any, limit int) ([]Request, error) {
	selector["docType"] = docType
	q, err := ledger.BuildQuery(selector, []ledger.SortField{{Field: "createdAt", Desc: true}}, limit)
	if err != nil {
		return nil, err
	}
	return ledger.QueryValues[Request](stub, q, 0)
}

func (c *Contract) byDocument(ctx ledger.Context, args []string) ([]byte, error) {
	limit, err := ledger.LimitArg(args, 1)
	if err != nil {
		return nil, err
	}
	reqs, err := c.query(ctx.GetStub(), map[string]any{"documentId": args[0]}, limit)
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(reqs)
}

func (c *Contract) byState(ctx ledger.Context, args []string) ([]byte, error) {
	if !State(args[0]).Valid() {
		return nil, errs.Newf(errs.CodeInvalidArgument, "unknown request state %q", args[0])
	}
	limit, err := ledger.LimitArg(args, 1)
	if err != nil {
		return nil, err
	}
	reqs, err := c.query(ctx.GetStub(), map[string]any{"state": args[0]}, limit)
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(reqs)
}

// pendingForRole lists pending requests whose approval type needs role and
// that no holder of role has approved yet.
func (c *Contract) pendingForRole(ctx ledger.Context, args []string) ([]byte, error) {
	role := args[0]
	limit, err := ledger.LimitArg(args, 1)
	if err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	cfg, err := c.settings.Load(stub)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0)
	for t, roles := range cfg.Settings.ApprovalRoles {
		for _, r := range roles {
			if r == role {
				types = append(types, string(t))
				break
			}
		}
	}
	out := make([]Request, 0)
	if len(types) == 0 {
		return ledger.Marshal(out)
	}
	reqs, err := c.query(stub, map[string]any{
		"state":        string(Pending),
		"approvalType": map[string]any{"$in": types},
	}, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if r.approvedRoles()[role] {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return ledger.Marshal(out)
}

func (c *Contract) getSettings(ctx ledger.Context, args []string) ([]byte, error) {
	rec, err := c.settings.Load(ctx.GetStub())
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(rec)
}

func (c *Contract) updateSettings(ctx ledger.Context, args []string) ([]byte, error) {
	rec, err := c.settings.Update(ctx, []byte(args[0]))
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(rec)
}
