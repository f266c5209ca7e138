package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/core/audit"
	"civicledger/core/auth"
	"civicledger/core/document"
	"civicledger/core/ledger/ledgertest"
)

const (
	secret = "gateway-test-secret"
	issuer = "civicledger-test"
	hashA  = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
)

type fixture struct {
	h   *ledgertest.Harness
	srv *Server
	log *audit.MemoryAuditLogger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	h := ledgertest.New(t, document.NewContract())
	log := &audit.MemoryAuditLogger{}
	authorizer := &auth.Authorizer{
		Verifier:    auth.NewVerifier([]byte(secret), issuer),
		AuditLogger: log,
	}
	return &fixture{h: h, srv: NewServer(h.Node, authorizer, ":0", opts...), log: log}
}

func token(t *testing.T, id *auth.Identity) string {
	t.Helper()
	tok, err := auth.IssueToken([]byte(secret), issuer, id, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createArgs(id string) InvokeRequest {
	return InvokeRequest{Args: []string{id, "BIRTH_CERTIFICATE", "C1", "O1", "", hashA}}
}

func TestSubmitAndEvaluate(t *testing.T) {
	f := newFixture(t)
	officer := token(t, ledgertest.Officer("O1"))

	rec := f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", officer, createArgs("D1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[SubmitResponse](t, rec)
	assert.NotEmpty(t, res.TxID)
	assert.Equal(t, "VALID", res.ValidationCode)
	assert.Equal(t, uint64(1), res.BlockNumber)

	rec = f.do(t, http.MethodPost, "/api/v1/contracts/document/evaluate/read", token(t, ledgertest.Citizen("C1")), InvokeRequest{Args: []string{"D1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Result document.Document `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "D1", out.Result.DocumentID)
	assert.Equal(t, document.Draft, out.Result.State)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	officer := token(t, ledgertest.Officer("O1"))
	citizen := token(t, ledgertest.Citizen("C1"))

	rec := f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", citizen, createArgs("D1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[Problem](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/contracts/document/evaluate/read", citizen, InvokeRequest{Args: []string{"D404"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[Problem](t, rec).Code)

	f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", officer, createArgs("D1"))
	rec = f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", officer, createArgs("D1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decode[Problem](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/contracts/nope/evaluate/read", officer, InvokeRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/contracts/document/evaluate/read", officer, InvokeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[Problem](t, rec).Code)
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/document/submit/create", strings.NewReader("{not json"))
	req.Header.Set("Authorization", token(t, ledgertest.Officer("O1")))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", "", createArgs("D1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode[Problem](t, rec).Code)

	forged, err := auth.IssueToken([]byte("other-secret"), issuer, ledgertest.Officer("O1"), time.Hour, time.Now())
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/v1/blocks", "Bearer "+forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	events := f.log.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "failure", e.Result)
	}
	assert.Equal(t, uint64(1), f.h.Height())
}

func TestBlocksAndEvents(t *testing.T) {
	f := newFixture(t)
	officer := token(t, ledgertest.Officer("O1"))
	f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/create", officer, createArgs("D1"))
	f.do(t, http.MethodPost, "/api/v1/contracts/document/submit/submit", officer, InvokeRequest{Args: []string{"D1"}})

	rec := f.do(t, http.MethodGet, "/api/v1/blocks?limit=2", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Height uint64            `json:"height"`
		Blocks []json.RawMessage `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, uint64(3), list.Height)
	assert.Len(t, list.Blocks, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/blocks/1", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var blk struct {
		Number   uint64 `json:"number"`
		Function string `json:"function"`
		Creator  string `json:"creator"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blk))
	assert.Equal(t, uint64(1), blk.Number)
	assert.Equal(t, "create", blk.Function)
	assert.Equal(t, "O1", blk.Creator)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/blocks/99", officer, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/blocks/abc", officer, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/blocks?limit=-1", officer, nil).Code)

	rec = f.do(t, http.MethodGet, "/api/v1/events", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evts := decode[[]EventView](t, rec)
	require.Len(t, evts, 2)
	assert.Equal(t, "DocumentCreated", evts[0].Name)
	assert.Equal(t, "DocumentSubmitted", evts[1].Name)
	assert.True(t, json.Valid(evts[0].Payload))

	rec = f.do(t, http.MethodGet, "/api/v1/events?since=1", officer, nil)
	evts = decode[[]EventView](t, rec)
	require.Len(t, evts, 1)
	assert.Equal(t, uint64(2), evts[0].BlockNumber)

	rec = f.do(t, http.MethodGet, "/api/v1/events?contract=approval", officer, nil)
	assert.Empty(t, decode[[]EventView](t, rec))
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health/liveness", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[LivenessResponse](t, rec).Alive)

	rec = f.do(t, http.MethodGet, "/health/readiness", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ReadinessResponse](t, rec).Ready)

	rec = f.do(t, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "testchannel", status.Channel)
	assert.Equal(t, []string{document.ContractName}, status.Contracts)
	assert.Equal(t, uint64(1), status.BlockHeight)
	assert.Equal(t, APIVersion(), status.APIVersion)

	rec = f.do(t, http.MethodGet, "/nodehealth", "", nil)
	assert.Equal(t, "healthy", decode[NodeHealthResponse](t, rec).Status)
}

func TestRateLimitBansClient(t *testing.T) {
	limiter := NewRateLimiter(2)
	f := newFixture(t, WithRateLimiter(limiter))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/liveness", "", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/health/liveness", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/health/liveness", "", nil).Code)
}

func TestRateLimiterProgressiveBans(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.IsBanned("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(banDurations[0] + time.Second)
	assert.False(t, l.IsBanned("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	now = now.Add(banDurations[0] + time.Second)
	assert.True(t, l.IsBanned("10.0.0.1"), "second violation is banned for longer")
	now = now.Add(banDurations[1])
	assert.False(t, l.IsBanned("10.0.0.1"))
}
