package settings_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/core/auth"
	"civicledger/core/errs"
	"civicledger/core/ledger"
	"civicledger/core/ledger/ledgertest"
	"civicledger/core/settings"
	"civicledger/core/validation"
)

type hashSettings struct {
	Supported []string `json:"supportedHashAlgorithms"`
	Default   string   `json:"defaultHashAlgorithm"`
}

type configContract struct {
	store *settings.Store[hashSettings]
}

func newConfigContract() *configContract {
	return &configContract{store: &settings.Store[hashSettings]{
		Key:    "SETTINGS",
		Schema: validation.VerificationSettings,
		Defaults: func() hashSettings {
			return hashSettings{Supported: []string{"sha256", "sha512"}, Default: "sha256"}
		},
		Check: func(s hashSettings) error {
			for _, a := range s.Supported {
				if a == s.Default {
					return nil
				}
			}
			return errs.New(errs.CodeInvalidArgument, "default algorithm must be supported")
		},
		Policy: auth.Policy{"updateSettings": {auth.RoleChairman}},
	}}
}

func (c *configContract) Name() string { return "config" }

func (c *configContract) Invoke(ctx ledger.Context, function string, args []string) ([]byte, error) {
	var rec any
	var err error
	switch function {
	case "init":
		rec, err = c.store.Init(ctx.GetStub(), []byte(ledger.Arg(args, 0)))
	case "get":
		rec, err = c.store.Load(ctx.GetStub())
	case "update":
		rec, err = c.store.Update(ctx, []byte(ledger.Arg(args, 0)))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func load(t *testing.T, h *ledgertest.Harness) settings.Record[hashSettings] {
	t.Helper()
	var rec settings.Record[hashSettings]
	require.NoError(t, json.Unmarshal(h.MustEvaluate(ledgertest.Citizen("c"), "config", "get"), &rec))
	return rec
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	h := ledgertest.New(t, newConfigContract())
	rec := load(t, h)
	assert.Equal(t, 0, rec.Version)
	assert.Equal(t, "sha256", rec.Settings.Default)
}

func TestInitIsIdempotent(t *testing.T) {
	h := ledgertest.New(t, newConfigContract())
	h.MustSubmit(ledgertest.Admin(), "config", "init", `{"defaultHashAlgorithm":"sha512"}`)
	h.MustSubmit(ledgertest.Admin(), "config", "init", `{"defaultHashAlgorithm":"sha256"}`)
	rec := load(t, h)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "sha512", rec.Settings.Default)
	assert.Equal(t, "settings", rec.DocType)
}

func TestUpdateMergesAndBumpsVersion(t *testing.T) {
	h := ledgertest.New(t, newConfigContract())
	h.MustSubmit(ledgertest.Admin(), "config", "init")
	h.Clock.Advance(time.Hour)

	h.MustSubmit(ledgertest.Chairman("chair"), "config", "update", `{"defaultHashAlgorithm":"sha512"}`)
	rec := load(t, h)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, "sha512", rec.Settings.Default)
	assert.Equal(t, []string{"sha256", "sha512"}, rec.Settings.Supported)
	assert.Equal(t, "chair", rec.UpdatedBy)
	assert.Equal(t, "2024-01-15T10:00:00.000Z", rec.UpdatedAt)
	assert.Equal(t, "2024-01-15T09:00:00.000Z", rec.CreatedAt)
}

func TestUpdateRejections(t *testing.T) {
	h := ledgertest.New(t, newConfigContract())
	h.MustSubmit(ledgertest.Admin(), "config", "init")

	_, err := h.Submit(ledgertest.Officer("o"), "config", "update", `{"defaultHashAlgorithm":"sha512"}`)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = h.Submit(ledgertest.Chairman("chair"), "config", "update", `{"defaultHashAlgorithm":"md5"}`)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = h.Submit(ledgertest.Chairman("chair"), "config", "update", `{"supportedHashAlgorithms":["sha3-256"]}`)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	assert.Equal(t, 1, load(t, h).Version)
}
