// Package ledger runs contracts against the versioned world state. It plays
// the role of the peer: it simulates proposals into read/write sets,
// serializes them, validates their reads and commits them into the journal.
package ledger

import (
	"time"

	"civicledger/core/auth"
)

// Stub is the ledger access facade handed to contract code. Keys are scoped
// to the namespace of the contract that owns the stub.
type Stub interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	// GetQueryResult runs a selector query over committed state. query is a
	// JSON document {"selector": {...}, "sort": [...], "limit": n}.
	GetQueryResult(query string) (Iterator, error)
	GetHistoryForKey(key string) (HistoryIterator, error)
	GetTxID() string
	GetChannelID() string
	GetTxTimestamp() time.Time
	// GetNonce returns the random bytes attached to the proposal.
	GetNonce() []byte
	SetEvent(name string, payload []byte) error
	// InvokeContract calls function on another contract of the channel
	// inside the current unit of work. A non-200 response has already
	// doomed the transaction; callers should return an error.
	InvokeContract(contract, function string, args []string, channel string) Response
}

// Context is what every contract function receives.
type Context interface {
	GetStub() Stub
	GetClientIdentity() auth.Caller
}

// Contract is a named unit of chaincode.
type Contract interface {
	Name() string
	Invoke(ctx Context, function string, args []string) ([]byte, error)
}

// Response is the outcome of a contract invocation.
type Response struct {
	Status  int    `json:"status"`
	Payload []byte `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// KV is one query result.
type KV struct {
	Key   string
	Value []byte
}

// KeyModification is one entry of a key's version chain.
type KeyModification struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     []byte    `json:"value,omitempty"`
}

// Iterator is a finite, forward-only sequence of query results.
type Iterator interface {
	HasNext() bool
	Next() (*KV, error)
	Close() error
}

// HistoryIterator walks a key's version chain, oldest first.
type HistoryIterator interface {
	HasNext() bool
	Next() (*KeyModification, error)
	Close() error
}

type txContext struct {
	stub   Stub
	caller auth.Caller
}

func (c *txContext) GetStub() Stub                  { return c.stub }
func (c *txContext) GetClientIdentity() auth.Caller { return c.caller }

// NewContext builds a Context, mainly for tests of contract helpers.
func NewContext(stub Stub, caller auth.Caller) Context {
	return &txContext{stub: stub, caller: caller}
}
