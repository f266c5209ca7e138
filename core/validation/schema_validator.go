package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"civicledger/core/errs"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names.
const (
	DocumentCreate       = "document_create"
	ApprovalRequest      = "approval_request"
	ApprovalSettings     = "approval_settings"
	VerificationSettings = "verification_settings"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	schemas = make(map[string]*gojsonschema.Schema)
	for _, name := range []string{DocumentCreate, ApprovalRequest, ApprovalSettings, VerificationSettings} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			schemasErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		schemas[name] = s
	}
}

// Validate checks a JSON payload against the named embedded schema.
func Validate(schema string, payload []byte) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return errs.Wrap(errs.CodeInternal, "load schemas", schemasErr)
	}
	s, ok := schemas[schema]
	if !ok {
		return errs.Newf(errs.CodeInternal, "unknown schema %q", schema)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "payload is not valid JSON", err)
	}
	if !result.Valid() {
		// Aggregate schema validation errors
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errs.Newf(errs.CodeInvalidArgument, "payload failed schema validation: %s", strings.Join(msgs, "; ")).
			WithMetadata("schema", schema)
	}
	return nil
}

// ValidateValue marshals v and validates it.
func ValidateValue(schema string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "encode payload", err)
	}
	return Validate(schema, raw)
}
