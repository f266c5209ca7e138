package ledger

import (
	"encoding/json"
	"strconv"

	"civicledger/core/errs"
)

// Handler implements one exported contract function.
type Handler func(ctx Context, args []string) ([]byte, error)

// Router dispatches function names to handlers and is the usual way a
// contract implements Invoke.
type Router struct {
	contract string
	routes   map[string]route
}

type route struct {
	handler Handler
	minArgs int
	maxArgs int
}

func NewRouter(contract string) *Router {
	return &Router{contract: contract, routes: make(map[string]route)}
}

// Handle registers h for function. maxArgs < 0 means unbounded.
func (r *Router) Handle(function string, minArgs, maxArgs int, h Handler) {
	r.routes[function] = route{handler: h, minArgs: minArgs, maxArgs: maxArgs}
}

func (r *Router) Dispatch(ctx Context, function string, args []string) ([]byte, error) {
	rt, ok := r.routes[function]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "%s has no function %q", r.contract, function)
	}
	if len(args) < rt.minArgs || (rt.maxArgs >= 0 && len(args) > rt.maxArgs) {
		return nil, errs.Newf(errs.CodeInvalidArgument, "%s.%s: unexpected argument count %d", r.contract, function, len(args))
	}
	return rt.handler(ctx, args)
}

// Functions lists the registered function names.
func (r *Router) Functions() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	return out
}

// Arg returns args[i] or "" when absent.
func Arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// LimitArg parses an optional trailing result limit. Absent or empty is 0,
// meaning unbounded.
func LimitArg(args []string, i int) (int, error) {
	s := Arg(args, i)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errs.Newf(errs.CodeInvalidArgument, "limit %q is not a non-negative integer", s)
	}
	return n, nil
}

// GetJSON loads key into v. It reports false when the key is absent.
func GetJSON(stub Stub, key string, v any) (bool, error) {
	raw, err := stub.GetState(key)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errs.Wrap(errs.CodeInternal, "decode "+key, err)
	}
	return true, nil
}

func PutJSON(stub Stub, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "encode "+key, err)
	}
	return stub.PutState(key, raw)
}

// EmitJSON sets a chaincode event with a JSON payload.
func EmitJSON(stub Stub, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "encode event "+name, err)
	}
	return stub.SetEvent(name, raw)
}

// Invoke calls another contract and decodes its payload into out (which may
// be nil). A failed call is returned as CROSS_CONTRACT_FAILURE carrying the
// callee's code.
func Invoke(ctx Context, contract, function string, args []string, out any) error {
	stub := ctx.GetStub()
	resp := stub.InvokeContract(contract, function, args, stub.GetChannelID())
	if resp.Status != 200 {
		return errs.Wrap(errs.CodeCrossContractFailure, contract+"."+function, ResponseError(resp)).
			WithMetadata("calleeCode", resp.Code)
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return errs.Wrap(errs.CodeInternal, "decode "+contract+"."+function+" payload", err)
	}
	return nil
}

// QueryValues runs a selector query and decodes each result as a T.
func QueryValues[T any](stub Stub, query string, limit int) ([]T, error) {
	it, err := stub.GetQueryResult(query)
	if err != nil {
		return nil, err
	}
	values, err := CollectValues(it, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, raw := range values {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errs.Wrap(errs.CodeInternal, "decode query result", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Marshal encodes a handler result.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "encode result", err)
	}
	return raw, nil
}

// ISOTimestamp is the fixed-width UTC layout used for record timestamps, so
// that lexical order matches time order.
const ISOTimestamp = "2006-01-02T15:04:05.000Z"

// TxTime returns the transaction timestamp in ISOTimestamp layout.
func TxTime(stub Stub) string {
	return stub.GetTxTimestamp().UTC().Format(ISOTimestamp)
}
