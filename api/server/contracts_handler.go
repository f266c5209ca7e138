package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"civicledger/core/auth"
	"civicledger/core/errs"
	"civicledger/core/ledger"
)

const maxBodyBytes = 1 << 20

// InvokeRequest is the body of submit and evaluate calls.
type InvokeRequest struct {
	Args []string `json:"args"`
}

// SubmitResponse reports an ordered transaction.
type SubmitResponse struct {
	TxID           string `json:"txId"`
	BlockNumber    uint64 `json:"blockNumber"`
	ValidationCode string `json:"validationCode"`
	Result         any    `json:"result,omitempty"`
}

// EvaluateResponse carries the result of a query.
type EvaluateResponse struct {
	Result any `json:"result"`
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// authenticated resolves the bearer token into an identity before calling next.
func (s *Server) authenticated(action string, next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := s.authorizer.Authenticate(r.Header.Get("Authorization"), action)
		if !res.Authorized {
			writeProblem(w, http.StatusUnauthorized, "UNAUTHENTICATED", res.Reason)
			return
		}
		next(w, r, res.Identity)
	}
}

func decodeInvoke(w http.ResponseWriter, r *http.Request) (*InvokeRequest, error) {
	var req InvokeRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Wrap(errs.CodeInvalidArgument, "invalid request body", err)
	}
	return &req, nil
}

func (s *Server) proposal(w http.ResponseWriter, r *http.Request, id *auth.Identity) (ledger.Proposal, error) {
	req, err := decodeInvoke(w, r)
	if err != nil {
		return ledger.Proposal{}, err
	}
	return ledger.Proposal{
		Contract: r.PathValue("contract"),
		Function: r.PathValue("fn"),
		Args:     req.Args,
		Caller:   id,
	}, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	p, err := s.proposal(w, r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.node.Submit(r.Context(), p)
	if err != nil {
		fields := []zap.Field{
			zap.String("contract", p.Contract),
			zap.String("function", p.Function),
			zap.String("creator", id.ID()),
			zap.Error(err),
		}
		if res != nil {
			fields = append(fields, zap.String("txId", res.TxID), zap.String("validationCode", string(res.ValidationCode)))
		}
		s.log.Info("submit rejected", fields...)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		TxID:           res.TxID,
		BlockNumber:    res.BlockNumber,
		ValidationCode: string(res.ValidationCode),
		Result:         rawOrString(res.Payload),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	p, err := s.proposal(w, r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := s.node.Evaluate(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{Result: rawOrString(payload)})
}

func (s *Server) handleContracts(w http.ResponseWriter, _ *http.Request, _ *auth.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":   s.node.Channel(),
		"contracts": s.node.Contracts(),
	})
}
