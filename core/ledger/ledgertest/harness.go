// Package ledgertest boots an in-memory node for contract tests.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"civicledger/core/audit"
	"civicledger/core/auth"
	"civicledger/core/events"
	"civicledger/core/ledger"
	"civicledger/core/storage"
)

// Org is the MSP id given to harness identities.
const Org = "Org1MSP"

// Start is the initial harness time.
var Start = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

// Clock is a manually driven time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type Harness struct {
	t     testing.TB
	Node  *ledger.Node
	Clock *Clock
	Store *storage.Storage
	Audit *audit.MemoryAuditLogger
}

// New starts a node on an in-memory LevelDB with the given contracts deployed.
func New(t testing.TB, contracts ...ledger.Contract) *Harness {
	t.Helper()
	store, err := storage.NewMemStorage(nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &Harness{
		t:     t,
		Clock: NewClock(Start),
		Store: store,
		Audit: &audit.MemoryAuditLogger{},
	}
	h.Node, err = ledger.NewNode("testchannel", store,
		ledger.WithClock(h.Clock.Now),
		ledger.WithAuditLogger(h.Audit),
		ledger.WithEventHub(events.NewHub(100)),
	)
	require.NoError(t, err)
	for _, c := range contracts {
		require.NoError(t, h.Node.Register(c))
	}
	_, err = h.Node.Bootstrap(context.Background(), "test-genesis")
	require.NoError(t, err)
	return h
}

func Citizen(id string) *auth.Identity  { return auth.NewIdentity(id, Org, auth.RoleCitizen) }
func Officer(id string) *auth.Identity  { return auth.NewIdentity(id, Org, auth.RoleOfficer) }
func Chairman(id string) *auth.Identity { return auth.NewIdentity(id, Org, auth.RoleChairman) }

// Admin is the identity genesis uses to initialize contracts.
func Admin() *auth.Identity { return auth.NewIdentity("admin", Org, "admin") }

func proposal(caller auth.Caller, contract, function string, args []string) ledger.Proposal {
	return ledger.Proposal{Contract: contract, Function: function, Args: args, Caller: caller}
}

// Submit simulates and commits, returning the payload.
func (h *Harness) Submit(caller auth.Caller, contract, function string, args ...string) ([]byte, error) {
	res, err := h.Node.Submit(context.Background(), proposal(caller, contract, function, args))
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}

// MustSubmit fails the test when the submission fails.
func (h *Harness) MustSubmit(caller auth.Caller, contract, function string, args ...string) []byte {
	h.t.Helper()
	payload, err := h.Submit(caller, contract, function, args...)
	require.NoError(h.t, err, "%s.%s", contract, function)
	return payload
}

func (h *Harness) Evaluate(caller auth.Caller, contract, function string, args ...string) ([]byte, error) {
	return h.Node.Evaluate(context.Background(), proposal(caller, contract, function, args))
}

func (h *Harness) MustEvaluate(caller auth.Caller, contract, function string, args ...string) []byte {
	h.t.Helper()
	payload, err := h.Evaluate(caller, contract, function, args...)
	require.NoError(h.t, err, "%s.%s", contract, function)
	return payload
}

// Simulate endorses a proposal without committing it.
func (h *Harness) Simulate(caller auth.Caller, contract, function string, args ...string) (*ledger.Transaction, error) {
	return h.Node.Simulate(context.Background(), proposal(caller, contract, function, args))
}

func (h *Harness) Commit(tx *ledger.Transaction) (*ledger.TxResult, error) {
	return h.Node.Commit(context.Background(), tx)
}

// Height returns the journal height.
func (h *Harness) Height() uint64 {
	return h.Node.Journal().Height()
}
