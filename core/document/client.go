package document

import (
	"errors"

	"civicledger/core/errs"
	"civicledger/core/ledger"
)

// Lookup reads a document from another contract through the registry. A
// missing document is reported as NOT_FOUND rather than as a dependency
// failure.
func Lookup(ctx ledger.Context, id string) (*Document, error) {
	doc := &Document{}
	err := ledger.Invoke(ctx, ContractName, "read", []string{id}, doc)
	if err == nil {
		return doc, nil
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Metadata["calleeCode"] == string(errs.CodeNotFound) {
		return nil, errs.Newf(errs.CodeNotFound, "document %s does not exist", id).WithMetadata("documentId", id)
	}
	return nil, err
}
