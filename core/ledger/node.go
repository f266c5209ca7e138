package ledger

import (
	"context"
	"crypto/rand"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civicledger/core/audit"
	"civicledger/core/auth"
	"civicledger/core/block"
	"civicledger/core/errs"
	"civicledger/core/events"
	"civicledger/core/state"
	"civicledger/core/storage"
	"civicledger/types/ids"
)

const nonceSize = 24

// Proposal asks the node to run one contract function.
type Proposal struct {
	Contract string
	Function string
	Args     []string
	Caller   auth.Caller
	// Nonce is generated by the node when empty.
	Nonce []byte
}

// Transaction is a simulated proposal: its result plus the read/write set
// that must still pass validation before it is committed.
type Transaction struct {
	TxID       string
	Channel    string
	Contract   string
	Function   string
	Creator    string
	CreatorMSP string
	Timestamp  time.Time
	Payload    []byte
	Reads      []Read
	Writes     []state.Write
	Events     []TxEvent
}

// TxResult is returned once a transaction has been ordered.
type TxResult struct {
	TxID           string               `json:"txId"`
	BlockNumber    uint64               `json:"blockNumber"`
	ValidationCode block.ValidationCode `json:"validationCode"`
	Payload        []byte               `json:"payload,omitempty"`
}

// Node hosts the contracts of one channel.
type Node struct {
	channel string
	store   *storage.Storage
	state   *state.WorldState
	journal *block.Journal
	hub     *events.Hub
	log     *zap.Logger
	audit   audit.AuditLogger
	clock   func() time.Time
	nonces  io.Reader
	newTxID func(creator string) string

	mu        sync.RWMutex
	contracts map[string]Contract

	// commitMu serializes validation and commit; it stands in for ordering.
	commitMu sync.Mutex
}

type Option func(*Node)

// WithClock sets the source of transaction timestamps.
func WithClock(clock func() time.Time) Option {
	return func(n *Node) { n.clock = clock }
}

func WithLogger(log *zap.Logger) Option {
	return func(n *Node) { n.log = log }
}

func WithAuditLogger(a audit.AuditLogger) Option {
	return func(n *Node) { n.audit = a }
}

func WithEventHub(h *events.Hub) Option {
	return func(n *Node) { n.hub = h }
}

// WithNonceSource replaces crypto/rand as the proposal nonce source.
func WithNonceSource(r io.Reader) Option {
	return func(n *Node) { n.nonces = r }
}

func WithTxIDGenerator(gen func(creator string) string) Option {
	return func(n *Node) { n.newTxID = gen }
}

// NewNode opens the channel ledger held by store.
func NewNode(channel string, store *storage.Storage, opts ...Option) (*Node, error) {
	if channel == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "channel name is required")
	}
	journal, err := block.OpenJournal(store)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "open journal", err)
	}
	n := &Node{
		channel:   channel,
		store:     store,
		state:     state.New(store),
		journal:   journal,
		clock:     time.Now,
		nonces:    rand.Reader,
		contracts: make(map[string]Contract),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = zap.NewNop()
	}
	n.log = n.log.With(zap.String("component", "ledger"), zap.String("channel", channel))
	if n.audit == nil {
		n.audit = audit.NewZapAuditLogger(n.log)
	}
	if n.hub == nil {
		n.hub = events.NewHub(1000)
	}
	if n.newTxID == nil {
		n.newTxID = func(creator string) string {
			return ids.Derive(uuid.NewString(), creator).String()
		}
	}
	return n, nil
}

// Register deploys a contract on the channel.
func (n *Node) Register(c Contract) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	name := c.Name()
	if err := state.ValidateKey(name, "probe"); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "contract name", err)
	}
	if _, ok := n.contracts[name]; ok {
		return errs.Newf(errs.CodeAlreadyExists, "contract %q already deployed", name)
	}
	n.contracts[name] = c
	n.log.Info("contract deployed", zap.String("contract", name))
	return nil
}

func (n *Node) contract(name string) (Contract, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.contracts[name]
	return c, ok
}

// Contracts lists deployed contract names.
func (n *Node) Contracts() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.contracts))
	for name := range n.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) Channel() string          { return n.channel }
func (n *Node) Journal() *block.Journal  { return n.journal }
func (n *Node) Events() *events.Hub      { return n.hub }
func (n *Node) State() *state.WorldState { return n.state }

// Bootstrap writes the genesis block of an empty ledger. It reports whether
// a new genesis block was created.
func (n *Node) Bootstrap(ctx context.Context, configHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n.commitMu.Lock()
	defer n.commitMu.Unlock()
	if n.journal.Height() > 0 {
		return false, nil
	}
	blk := block.Genesis(n.channel, configHash)
	blk.Timestamp = n.clock().UTC()
	batch := n.store.NewBatch()
	if err := n.journal.Append(batch, blk); err != nil {
		return false, errs.Wrap(errs.CodeInternal, "append genesis", err)
	}
	if err := n.store.Write(batch); err != nil {
		return false, errs.Wrap(errs.CodeInternal, "write genesis", err)
	}
	n.journal.Advance(blk)
	n.log.Info("genesis block written", zap.String("hash", blk.BlockID.String()))
	return true, nil
}

// Simulate executes a proposal against current state without committing.
func (n *Node) Simulate(ctx context.Context, p Proposal) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Caller == nil || p.Caller.ID() == "" {
		return nil, errs.New(errs.CodeUnauthorized, "proposal has no creator")
	}
	c, ok := n.contract(p.Contract)
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "contract %q is not deployed", p.Contract)
	}
	nonce := p.Nonce
	if len(nonce) == 0 {
		nonce = make([]byte, nonceSize)
		if _, err := io.ReadFull(n.nonces, nonce); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "generate nonce", err)
		}
	}
	sim := &simulator{
		node:      n,
		txID:      n.newTxID(p.Caller.ID()),
		channel:   n.channel,
		timestamp: n.clock().UTC(),
		nonce:     nonce,
		creator:   p.Caller,
		reads:     make(map[string]readVersion),
		writes:    make(map[string]state.Write),
	}
	payload, err := safeInvoke(c, NewContext(&stub{sim: sim, ns: c.Name()}, p.Caller), p.Function, p.Args)
	if err == nil && sim.abort != nil {
		err = sim.abort
	}
	if err != nil {
		n.log.Debug("simulation failed",
			zap.String("txId", sim.txID),
			zap.String("contract", p.Contract),
			zap.String("function", p.Function),
			zap.String("code", string(errs.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}
	return &Transaction{
		TxID:       sim.txID,
		Channel:    n.channel,
		Contract:   p.Contract,
		Function:   p.Function,
		Creator:    p.Caller.ID(),
		CreatorMSP: p.Caller.MSPID(),
		Timestamp:  sim.timestamp,
		Payload:    payload,
		Reads:      sim.readSet(),
		Writes:     sim.writeSet(),
		Events:     sim.events,
	}, nil
}

// Evaluate runs a proposal and discards its writes.
func (n *Node) Evaluate(ctx context.Context, p Proposal) ([]byte, error) {
	tx, err := n.Simulate(ctx, p)
	if err != nil {
		return nil, err
	}
	return tx.Payload, nil
}

// Submit simulates a proposal and commits it.
func (n *Node) Submit(ctx context.Context, p Proposal) (*TxResult, error) {
	tx, err := n.Simulate(ctx, p)
	if err != nil {
		return nil, err
	}
	return n.Commit(ctx, tx)
}

// Commit orders tx after every previously committed transaction and
// validates its read set. A stale read records the transaction as
// MVCC_READ_CONFLICT with no state change and returns an MVCC_CONFLICT error.
func (n *Node) Commit(ctx context.Context, tx *Transaction) (*TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.commitMu.Lock()
	defer n.commitMu.Unlock()

	dup, err := n.journal.HasTx(tx.TxID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "tx index lookup", err)
	}
	if dup {
		return nil, errs.Newf(errs.CodeAlreadyExists, "transaction %s already committed", tx.TxID)
	}

	code := block.Valid
	var conflict *Read
	for i := range tx.Reads {
		r := tx.Reads[i]
		_, version, found, err := n.state.Get(r.Namespace, r.Key)
		if err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "validate read set", err)
		}
		if found != r.Found || version != r.Version {
			code = block.MVCCReadConflict
			conflict = &r
			break
		}
	}

	blk := &block.Block{
		Timestamp:      tx.Timestamp,
		Channel:        tx.Channel,
		TxID:           tx.TxID,
		Contract:       tx.Contract,
		Function:       tx.Function,
		Creator:        tx.Creator,
		CreatorMSP:     tx.CreatorMSP,
		ValidationCode: code,
	}
	batch := n.store.NewBatch()
	if code == block.Valid {
		blk.DataHash = block.DataHash(tx.Writes)
		blk.WriteCount = len(tx.Writes)
		for _, e := range tx.Events {
			blk.Events = append(blk.Events, e.Contract+"."+e.Name)
		}
		err = n.state.Apply(batch, state.Commit{
			BlockNum:  n.journal.NextNumber(),
			TxID:      tx.TxID,
			Timestamp: tx.Timestamp,
			Writes:    tx.Writes,
		})
		if err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "apply write set", err)
		}
	}
	if err := n.journal.Append(batch, blk); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "append block", err)
	}
	if err := n.store.Write(batch); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "write block", err)
	}
	n.journal.Advance(blk)

	fields := []zap.Field{
		zap.String("txId", tx.TxID),
		zap.Uint64("block", blk.Number),
		zap.String("contract", tx.Contract),
		zap.String("function", tx.Function),
		zap.String("validationCode", string(code)),
	}
	result := &TxResult{TxID: tx.TxID, BlockNumber: blk.Number, ValidationCode: code}
	if code != block.Valid {
		n.log.Warn("transaction invalidated", append(fields, zap.Stringer("staleRead", conflict))...)
		n.auditCommit(tx, blk, "failure", "stale read "+conflict.String())
		return result, errs.Newf(errs.CodeMVCCConflict, "transaction %s read a stale version of %s", tx.TxID, conflict.String()).
			WithMetadata("block", blk.BlockID.String())
	}

	n.log.Info("transaction committed", append(fields, zap.Int("writes", len(tx.Writes)))...)
	n.auditCommit(tx, blk, "success", "")
	published := make([]events.Event, 0, len(tx.Events))
	for _, e := range tx.Events {
		published = append(published, events.Event{
			TxID:      tx.TxID,
			BlockNum:  blk.Number,
			Contract:  e.Contract,
			Name:      e.Name,
			Payload:   e.Payload,
			Timestamp: tx.Timestamp,
		})
	}
	n.hub.Publish(published...)
	result.Payload = tx.Payload
	return result, nil
}

func (n *Node) auditCommit(tx *Transaction, blk *block.Block, result, reason string) {
	n.audit.LogEvent(audit.AuditEvent{
		Timestamp: tx.Timestamp,
		EventType: "Commit",
		EntityID:  tx.TxID,
		Result:    result,
		Reason:    reason,
		Metadata: map[string]string{
			"contract": tx.Contract,
			"function": tx.Function,
			"creator":  tx.Creator,
			"block":    blk.BlockID.String(),
		},
	})
}
