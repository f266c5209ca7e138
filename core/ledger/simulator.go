package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"civicledger/core/auth"
	"civicledger/core/errs"
	"civicledger/core/state"
)

const maxInvokeDepth = 8

type readVersion struct {
	Found   bool
	Version uint64
}

// Read is one entry of a transaction's read set.
type Read struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Found     bool   `json:"found"`
	Version   uint64 `json:"version"`
}

// TxEvent is a chaincode event buffered until commit.
type TxEvent struct {
	Contract string
	Name     string
	Payload  []byte
}

// simulator accumulates the read/write set of one transaction. Every
// contract touched by the transaction, including callees of
// InvokeContract, shares the same simulator.
type simulator struct {
	node      *Node
	txID      string
	channel   string
	timestamp time.Time
	nonce     []byte
	creator   auth.Caller

	reads      map[string]readVersion
	writes     map[string]state.Write
	writeOrder []string
	events     []TxEvent
	depth      int
	// abort is set when a nested invocation fails; the transaction can no
	// longer succeed even if the caller ignores the response.
	abort error
}

func compositeKey(ns, key string) string {
	return ns + "\x00" + key
}

// stub is the simulator seen through one contract namespace.
type stub struct {
	sim *simulator
	ns  string
}

func (s *stub) GetState(key string) ([]byte, error) {
	if err := state.ValidateKey(s.ns, key); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidArgument, "get state", err)
	}
	ck := compositeKey(s.ns, key)
	if w, ok := s.sim.writes[ck]; ok {
		if w.IsDelete {
			return nil, nil
		}
		return cloneBytes(w.Value), nil
	}
	value, version, found, err := s.sim.node.state.Get(s.ns, key)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "read world state", err)
	}
	if _, seen := s.sim.reads[ck]; !seen {
		s.sim.reads[ck] = readVersion{Found: found, Version: version}
	}
	if !found {
		return nil, nil
	}
	return value, nil
}

func (s *stub) PutState(key string, value []byte) error {
	if err := state.ValidateKey(s.ns, key); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "put state", err)
	}
	if value == nil {
		value = []byte{}
	}
	ck := compositeKey(s.ns, key)
	if _, ok := s.sim.writes[ck]; !ok {
		s.sim.writeOrder = append(s.sim.writeOrder, ck)
	}
	s.sim.writes[ck] = state.Write{Namespace: s.ns, Key: key, Value: cloneBytes(value)}
	return nil
}

// GetQueryResult evaluates against committed state only; like a rich query
// on a real peer it neither sees pending writes nor joins the read set.
func (s *stub) GetQueryResult(query string) (Iterator, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}
	var candidates []KV
	err = s.sim.node.state.Scan(s.ns, func(key string, value []byte, _ uint64) bool {
		candidates = append(candidates, KV{Key: key, Value: cloneBytes(value)})
		return true
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "scan world state", err)
	}
	return &resultsIterator{results: q.Run(candidates)}, nil
}

func (s *stub) GetHistoryForKey(key string) (HistoryIterator, error) {
	if err := state.ValidateKey(s.ns, key); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidArgument, "history", err)
	}
	entries, err := s.sim.node.state.History(s.ns, key)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "read history", err)
	}
	mods := make([]KeyModification, 0, len(entries))
	for _, e := range entries {
		mods = append(mods, KeyModification{TxID: e.TxID, Timestamp: e.Timestamp, IsDelete: e.IsDelete, Value: e.Value})
	}
	return &historyIterator{entries: mods}, nil
}

func (s *stub) GetTxID() string           { return s.sim.txID }
func (s *stub) GetChannelID() string      { return s.sim.channel }
func (s *stub) GetTxTimestamp() time.Time { return s.sim.timestamp }
func (s *stub) GetNonce() []byte          { return cloneBytes(s.sim.nonce) }

func (s *stub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errs.New(errs.CodeInvalidArgument, "event name is empty")
	}
	s.sim.events = append(s.sim.events, TxEvent{Contract: s.ns, Name: name, Payload: cloneBytes(payload)})
	return nil
}

func (s *stub) InvokeContract(contract, function string, args []string, channel string) Response {
	resp := s.sim.invoke(contract, function, args, channel)
	if resp.Status != 200 && s.sim.abort == nil {
		s.sim.abort = errs.Newf(errs.CodeCrossContractFailure, "%s.%s: %s", contract, function, resp.Message).
			WithMetadata("calleeCode", resp.Code)
	}
	return resp
}

// invoke runs function of contract inside this simulator.
func (sim *simulator) invoke(contract, function string, args []string, channel string) Response {
	if channel != "" && channel != sim.channel {
		return errorResponse(errs.Newf(errs.CodeInvalidArgument, "channel %q is not served by this node", channel))
	}
	c, ok := sim.node.contract(contract)
	if !ok {
		return errorResponse(errs.Newf(errs.CodeNotFound, "contract %q is not deployed", contract))
	}
	if sim.depth >= maxInvokeDepth {
		return errorResponse(errs.New(errs.CodeInternal, "contract invocation depth exceeded"))
	}
	sim.depth++
	defer func() { sim.depth-- }()

	payload, err := safeInvoke(c, NewContext(&stub{sim: sim, ns: c.Name()}, sim.creator), function, args)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Status: 200, Payload: payload}
}

func safeInvoke(c Contract, ctx Context, function string, args []string) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.CodeInternal, "%s.%s panicked: %v", c.Name(), function, r)
		}
	}()
	return c.Invoke(ctx, function, args)
}

func errorResponse(err error) Response {
	code := errs.CodeOf(err)
	return Response{Status: errs.Status(code), Message: err.Error(), Code: string(code)}
}

// ResponseError rebuilds the error carried by a failed response.
func ResponseError(resp Response) error {
	if resp.Status == 200 {
		return nil
	}
	code := errs.Code(resp.Code)
	if code == "" {
		code = errs.FromStatus(resp.Status)
	}
	return errs.New(code, resp.Message)
}

func (sim *simulator) readSet() []Read {
	out := make([]Read, 0, len(sim.reads))
	for ck, rv := range sim.reads {
		ns, key := splitComposite(ck)
		out = append(out, Read{Namespace: ns, Key: key, Found: rv.Found, Version: rv.Version})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (sim *simulator) writeSet() []state.Write {
	out := make([]state.Write, 0, len(sim.writeOrder))
	for _, ck := range sim.writeOrder {
		out = append(out, sim.writes[ck])
	}
	return out
}

func splitComposite(ck string) (string, string) {
	for i := 0; i < len(ck); i++ {
		if ck[i] == 0 {
			return ck[:i], ck[i+1:]
		}
	}
	return ck, ""
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// IsCrossContractFailure reports whether err came from a failed dependent call.
func IsCrossContractFailure(err error) bool {
	return errors.Is(err, errs.ErrCrossContractFailure)
}

func (r Read) String() string {
	return fmt.Sprintf("%s/%s@%d", r.Namespace, r.Key, r.Version)
}
