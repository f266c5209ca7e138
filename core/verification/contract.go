package verification

import (
	"encoding/hex"
	"time"

	"civicledger/core/auth"
	"civicledger/core/document"
	"civicledger/core/errs"
	"civicledger/core/ledger"
	"civicledger/core/settings"
	"civicledger/core/validation"
	"civicledger/types/ids"
)

var policy = auth.Policy{
	"updateSettings": {auth.RoleChairman},
}

type Contract struct {
	router        *ledger.Router
	settings      *settings.Store[Settings]
	defaultLocale string
}

type Option func(*Contract)

// WithDefaultLocale sets the message locale for callers without a locale attribute.
func WithDefaultLocale(locale string) Option {
	return func(c *Contract) { c.defaultLocale = locale }
}

func NewContract(opts ...Option) *Contract {
	c := &Contract{
		router: ledger.NewRouter(ContractName),
		settings: &settings.Store[Settings]{
			Key:      settingsKey,
			Defaults: DefaultSettings,
			Schema:   validation.VerificationSettings,
			Check:    checkSettings,
			Policy:   policy,
		},
		defaultLocale: "en",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.router.Handle("init", 0, 1, c.init)
	c.router.Handle("generateCode", 2, 2, c.generateCode)
	c.router.Handle("verifyWithCode", 2, 2, c.verifyWithCode)
	c.router.Handle("verifyDirect", 2, 2, c.verifyDirect)
	c.router.Handle("calculateHash", 1, 2, c.calculateHash)
	c.router.Handle("history", 1, 2, c.history)
	c.router.Handle("read", 1, 1, c.read)
	c.router.Handle("getSettings", 0, 0, c.getSettings)
	c.router.Handle("updateSettings", 1, 1, c.updateSettings)
	return c
}

func (c *Contract) Name() string { return ContractName }

func (c *Contract) Invoke(ctx ledger.Context, function string, args []string) ([]byte, error) {
	return c.router.Dispatch(ctx, function, args)
}

func checkSettings(s Settings) error {
	for _, a := range s.SupportedHashAlgorithms {
		if a == s.DefaultHashAlgorithm {
			return nil
		}
	}
	return errs.Newf(errs.CodeInvalidArgument, "default algorithm %s is not in the supported list", s.DefaultHashAlgorithm)
}

func (c *Contract) init(ctx ledger.Context, args []string) ([]byte, error) {
	rec, err := c.settings.Init(ctx.GetStub(), []byte(ledger.Arg(args, 0)))
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(rec)
}

func (c *Contract) locale(caller auth.Caller) string {
	if caller != nil {
		if l, ok := caller.Attribute("locale"); ok && l != "" {
			return l
		}
	}
	return c.defaultLocale
}

func (c *Contract) load(stub ledger.Stub, code string) (*Record, error) {
	rec := &Record{}
	found, err := ledger.GetJSON(stub, code, rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.DocType != docType {
		return nil, errs.Newf(errs.CodeNotFound, "verification code %s does not exist", code)
	}
	return rec, nil
}

// generateCode args: documentId, documentHash.
func (c *Contract) generateCode(ctx ledger.Context, args []string) ([]byte, error) {
	stub := ctx.GetStub()
	doc, err := document.Lookup(ctx, args[0])
	if err != nil {
		return nil, err
	}
	now := stub.GetTxTimestamp().UTC()
	createdAt := now.Format(ledger.ISOTimestamp)
	hash := document.NormalizeHash(args[1])
	code := ids.Derive(doc.DocumentID, hash, createdAt, hex.EncodeToString(stub.GetNonce())).Token(CodeLength)

	existing, err := stub.GetState(code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.CodeAlreadyExists, "verification code collision for %s", doc.DocumentID)
	}
	rec := &Record{
		DocType:          docType,
		VerificationCode: code,
		DocumentID:       doc.DocumentID,
		DocumentHash:     hash,
		Status:           StatusActive,
		CreatedAt:        createdAt,
		ExpiresAt:        now.Add(CodeTTL).Format(ledger.ISOTimestamp),
		CreatedBy:        ctx.GetClientIdentity().ID(),
		Verifications:    []Attempt{},
	}
	if err := ledger.PutJSON(stub, code, rec); err != nil {
		return nil, err
	}
	issued := Issued{VerificationCode: code, DocumentID: doc.DocumentID, ExpiresAt: rec.ExpiresAt}
	if err := ledger.EmitJSON(stub, "VerificationCodeGenerated", issued); err != nil {
		return nil, err
	}
	return ledger.Marshal(issued)
}

// check compares hash with the document and builds the attempt and result.
func (c *Contract) check(ctx ledger.Context, doc *document.Document, expected, presented string) (Attempt, Result) {
	stub := ctx.GetStub()
	caller := ctx.GetClientIdentity()
	p := printer(c.locale(caller), c.defaultLocale)
	now := ledger.TxTime(stub)
	attempt := Attempt{Timestamp: now, VerifierID: caller.ID()}
	res := Result{DocumentID: doc.DocumentID, VerifiedAt: now}

	if document.NormalizeHash(presented) != expected {
		attempt.Result, attempt.Reason = ResultFailed, ReasonHashMismatch
		res.Result, res.Reason = ResultFailed, ReasonHashMismatch
		res.Message = p.Sprintf(msgMismatch, doc.DocumentID)
		return attempt, res
	}
	res.Verified = true
	res.IsAuthentic = true
	res.DocumentState = string(doc.State)
	if doc.State == document.Approved {
		res.IsValid = true
		attempt.Result, res.Result = ResultSuccess, ResultSuccess
		res.Message = p.Sprintf(msgAuthentic, doc.DocumentID)
	} else {
		attempt.Result, res.Result = ResultPartial, ResultPartial
		attempt.Reason, res.Reason = ReasonNotApproved, ReasonNotApproved
		res.Message = p.Sprintf(msgPartial, doc.DocumentID, doc.State)
	}
	return attempt, res
}

// verifyWithCode args: verificationCode, documentHash.
func (c *Contract) verifyWithCode(ctx ledger.Context, args []string) ([]byte, error) {
	stub := ctx.GetStub()
	rec, err := c.load(stub, args[0])
	if err != nil {
		return nil, err
	}
	// direct verification records are audit entries, not issued codes
	if rec.Status != StatusActive || rec.ExpiresAt == "" {
		return nil, errs.Newf(errs.CodeNotFound, "verification code %s does not exist", args[0])
	}
	expires, err := time.Parse(ledger.ISOTimestamp, rec.ExpiresAt)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "corrupt expiry on "+rec.VerificationCode, err)
	}
	if stub.GetTxTimestamp().After(expires) {
		return nil, errs.Newf(errs.CodeExpired, "verification code %s expired at %s", rec.VerificationCode, rec.ExpiresAt).
			WithMetadata("expiresAt", rec.ExpiresAt)
	}

	var attempt Attempt
	var res Result
	if document.NormalizeHash(args[1]) != rec.DocumentHash {
		// the document is not consulted on a mismatch
		attempt, res = c.check(ctx, &document.Document{DocumentID: rec.DocumentID}, rec.DocumentHash, args[1])
	} else {
		doc, err := document.Lookup(ctx, rec.DocumentID)
		if err != nil {
			return nil, err
		}
		attempt, res = c.check(ctx, doc, rec.DocumentHash, args[1])
	}
	res.VerificationCode = rec.VerificationCode
	rec.Verifications = append(rec.Verifications, attempt)
	if err := ledger.PutJSON(stub, rec.VerificationCode, rec); err != nil {
		return nil, err
	}
	if err := ledger.EmitJSON(stub, "DocumentVerified", res); err != nil {
		return nil, err
	}
	return ledger.Marshal(res)
}

// verifyDirect args: documentId, documentHash.
func (c *Contract) verifyDirect(ctx ledger.Context, args []string) ([]byte, error) {
	stub := ctx.GetStub()
	doc, err := document.Lookup(ctx, args[0])
	if err != nil {
		return nil, err
	}
	attempt, res := c.check(ctx, doc, doc.ContentHash, args[1])
	rec := &Record{
		DocType:          docType,
		VerificationCode: directPrefix + stub.GetTxID(),
		DocumentID:       doc.DocumentID,
		DocumentHash:     document.NormalizeHash(args[1]),
		Status:           StatusDirect,
		CreatedAt:        attempt.Timestamp,
		CreatedBy:        attempt.VerifierID,
		Verifications:    []Attempt{attempt},
	}
	if err := ledger.PutJSON(stub, rec.VerificationCode, rec); err != nil {
		return nil, err
	}
	if err := ledger.EmitJSON(stub, "DocumentVerified", res); err != nil {
		return nil, err
	}
	return ledger.Marshal(res)
}

// calculateHash args: content, algorithm (optional).
func (c *Contract) calculateHash(ctx ledger.Context, args []string) ([]byte, error) {
	cfg, err := c.settings.Load(ctx.GetStub())
	if err != nil {
		return nil, err
	}
	algorithm := cfg.Settings.Resolve(ledger.Arg(args, 1))
	sum, err := Sum(algorithm, []byte(args[0]))
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(HashResult{Hash: sum, Algorithm: algorithm})
}

// history args: documentId, limit (optional).
func (c *Contract) history(ctx ledger.Context, args []string) ([]byte, error) {
	limit, err := ledger.LimitArg(args, 1)
	if err != nil {
		return nil, err
	}
	q, err := ledger.BuildQuery(
		map[string]any{"docType": docType, "documentId": args[0]},
		[]ledger.SortField{{Field: "createdAt", Desc: true}},
		limit,
	)
	if err != nil {
		return nil, err
	}
	recs, err := ledger.QueryValues[Record](ctx.GetStub(), q, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Summary{
			VerificationCode: r.VerificationCode,
			CreatedAt:        r.CreatedAt,
			ExpiresAt:        r.ExpiresAt,
			Status:           r.Status,
			Attempts:         len(r.Verifications),
		})
	}
	return ledger.Marshal(out)
}

func (c *Contract) read(ctx ledger.Context, args []string) ([]byte, error) {
	rec, err := c.load(ctx.GetStub(), args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Marshal(rec)
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
