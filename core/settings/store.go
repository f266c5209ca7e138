// Package settings keeps a contract's singleton configuration record.
package settings

import (
	"encoding/json"

	"civicledger/core/auth"
	"civicledger/core/errs"
	"civicledger/core/ledger"
	"civicledger/core/validation"
)

// Record is the persisted form of a settings object.
type Record[T any] struct {
	DocType   string `json:"docType"`
	Version   int    `json:"version"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	Settings  T      `json:"settings"`
}

// Store reads and updates one settings record under a well-known key.
type Store[T any] struct {
	Key      string
	Defaults func() T
	// Schema validates patches before they are merged.
	Schema string
	// Check validates the merged result.
	Check  func(T) error
	Policy auth.Policy
}

const docType = "settings"

// Load returns the stored record, or the defaults at version 0 when the
// contract has not been initialized.
func (s *Store[T]) Load(stub ledger.Stub) (*Record[T], error) {
	rec := &Record[T]{}
	found, err := ledger.GetJSON(stub, s.Key, rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Record[T]{DocType: docType, Settings: s.Defaults()}, nil
	}
	return rec, nil
}

// Init persists the defaults, optionally merged with patch, unless a record
// already exists. It is idempotent.
func (s *Store[T]) Init(stub ledger.Stub, patch []byte) (*Record[T], error) {
	existing := &Record[T]{}
	found, err := ledger.GetJSON(stub, s.Key, existing)
	if err != nil {
		return nil, err
	}
	if found {
		return existing, nil
	}
	rec := &Record[T]{DocType: docType, Version: 1, Settings: s.Defaults()}
	if len(patch) > 0 {
		if err := s.merge(&rec.Settings, patch); err != nil {
			return nil, err
		}
	}
	now := ledger.TxTime(stub)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := ledger.PutJSON(stub, s.Key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch into the current settings. Only roles allowed for
// "updateSettings" by the store policy may call it.
func (s *Store[T]) Update(ctx ledger.Context, patch []byte) (*Record[T], error) {
	if err := s.Policy.Check("updateSettings", ctx.GetClientIdentity()); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	rec, err := s.Load(stub)
	if err != nil {
		return nil, err
	}
	if err := s.merge(&rec.Settings, patch); err != nil {
		return nil, err
	}
	now := ledger.TxTime(stub)
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.Version++
	rec.UpdatedAt = now
	rec.UpdatedBy = ctx.GetClientIdentity().ID()
	if err := ledger.PutJSON(stub, s.Key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store[T]) merge(dst *T, patch []byte) error {
	if s.Schema != "" {
		if err := validation.Validate(s.Schema, patch); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(patch, dst); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "decode settings patch", err)
	}
	if s.Check != nil {
		return s.Check(*dst)
	}
	return nil
}
