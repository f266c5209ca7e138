package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"civicledger/core/errs"
)

// Problem is the error body of every failed API call.
type Problem struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Problem{Code: code, Message: message})
}

// writeError renders a domain error with the status mapped from its code.
func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	p := Problem{Code: string(code), Message: err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		p.Metadata = e.Metadata
	}
	writeJSON(w, errs.Status(code), p)
}

// rawOrString keeps JSON payloads as JSON and wraps anything else as a string.
func rawOrString(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	return string(payload)
}
