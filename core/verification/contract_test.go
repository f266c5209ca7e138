package verification_test

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicledger/core/document"
	"civicledger/core/errs"
	"civicledger/core/ledger/ledgertest"
	"civicledger/core/verification"
)

var (
	officer  = ledgertest.Officer("O1")
	citizen  = ledgertest.Citizen("C1")
	verifier = ledgertest.Citizen("V1")
)

const content = "test"

func newHarness(t *testing.T) *ledgertest.Harness {
	h := ledgertest.New(t, document.NewContract(), verification.NewContract())
	h.MustSubmit(ledgertest.Admin(), verification.ContractName, "init")
	return h
}

func hashOf(t *testing.T, h *ledgertest.Harness, algorithm string) verification.HashResult {
	t.Helper()
	var res verification.HashResult
	require.NoError(t, json.Unmarshal(
		h.MustEvaluate(citizen, verification.ContractName, "calculateHash", content, algorithm), &res))
	return res
}

// approvedDocument creates D1 with the sha256 of content and approves it.
func approvedDocument(t *testing.T, h *ledgertest.Harness) string {
	t.Helper()
	sum := hashOf(t, h, "sha256").Hash
	h.MustSubmit(officer, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "", sum)
	h.MustSubmit(officer, document.ContractName, "submit", "D1")
	h.MustSubmit(officer, document.ContractName, "approve", "D1", "O1", "")
	return sum
}

func generate(t *testing.T, h *ledgertest.Harness, hash string) verification.Issued {
	t.Helper()
	var issued verification.Issued
	require.NoError(t, json.Unmarshal(
		h.MustSubmit(citizen, verification.ContractName, "generateCode", "D1", hash), &issued))
	return issued
}

func readRecord(t *testing.T, h *ledgertest.Harness, code string) verification.Record {
	t.Helper()
	var rec verification.Record
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "read", code), &rec))
	return rec
}

func TestCalculateHash(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"sha256":      "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"sha512":      "ee26b0dd4af7e749aa1a8ee3c10ae9923f618980772e473f8819a5d4940e0db27ac185f8a0e1d5f84f88bc887fd67b143732c304cc5fa9ad8e6f57f50028a8ff",
		"sha3-256":    "36f028580bb02cc8272a9a020f4200e346e276ae664e45ee80745574e2f5ab80",
		"blake2b-256": "928b20366943e2afd11ebc0eae2e53a93bf177a4fcf35bcc64d503704e65e202",
	}
	for algorithm, want := range cases {
		res := hashOf(t, h, algorithm)
		assert.Equal(t, algorithm, res.Algorithm)
		assert.Equal(t, want, res.Hash, algorithm)
	}

	fallback := hashOf(t, h, "md5")
	assert.Equal(t, "sha256", fallback.Algorithm)
	assert.Equal(t, cases["sha256"], fallback.Hash)
}

func TestGenerateCode(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)
	issued := generate(t, h, sum)

	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{12}$`), issued.VerificationCode)
	assert.Equal(t, "2024-01-15T10:00:00.000Z", issued.ExpiresAt)

	rec := readRecord(t, h, issued.VerificationCode)
	assert.Equal(t, verification.StatusActive, rec.Status)
	assert.Equal(t, "2024-01-15T09:00:00.000Z", rec.CreatedAt)
	assert.Equal(t, sum, rec.DocumentHash)
	assert.Empty(t, rec.Verifications)

	other := generate(t, h, sum)
	assert.NotEqual(t, issued.VerificationCode, other.VerificationCode)

	_, err := h.Submit(citizen, verification.ContractName, "generateCode", "D404", sum)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestCodeExpiresAfterOneHour(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)

	late := generate(t, h, sum)
	h.Clock.Advance(61 * time.Minute)
	height := h.Height()
	_, err := h.Submit(verifier, verification.ContractName, "verifyWithCode", late.VerificationCode, sum)
	require.Error(t, err)
	assert.Equal(t, errs.CodeExpired, errs.CodeOf(err))
	assert.Equal(t, height, h.Height())
	assert.Empty(t, readRecord(t, h, late.VerificationCode).Verifications)

	onTime := generate(t, h, sum)
	h.Clock.Advance(59 * time.Minute)
	var res verification.Result
	require.NoError(t, json.Unmarshal(
		h.MustSubmit(verifier, verification.ContractName, "verifyWithCode", onTime.VerificationCode, sum), &res))
	assert.True(t, res.Verified)
	assert.True(t, res.IsValid)
	assert.Equal(t, verification.ResultSuccess, res.Result)
	assert.Equal(t, "Document D1 is authentic and valid.", res.Message)

	rec := readRecord(t, h, onTime.VerificationCode)
	require.Len(t, rec.Verifications, 1)
	assert.Equal(t, verification.ResultSuccess, rec.Verifications[0].Result)
	assert.Equal(t, "V1", rec.Verifications[0].VerifierID)
}

func TestHashMismatchRecordsFailure(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)
	issued := generate(t, h, sum)
	wrong := hashOf(t, h, "sha3-256").Hash

	var res verification.Result
	require.NoError(t, json.Unmarshal(
		h.MustSubmit(verifier, verification.ContractName, "verifyWithCode", issued.VerificationCode, wrong), &res))
	assert.False(t, res.Verified)
	assert.False(t, res.IsAuthentic)
	assert.Equal(t, verification.ResultFailed, res.Result)
	assert.Equal(t, verification.ReasonHashMismatch, res.Reason)

	rec := readRecord(t, h, issued.VerificationCode)
	require.Len(t, rec.Verifications, 1)
	assert.Equal(t, verification.ResultFailed, rec.Verifications[0].Result)
	assert.Equal(t, verification.ReasonHashMismatch, rec.Verifications[0].Reason)
	assert.Equal(t, verification.StatusActive, rec.Status)

	// the code stays usable after a mismatch
	h.MustSubmit(verifier, verification.ContractName, "verifyWithCode", issued.VerificationCode, sum)
	assert.Len(t, readRecord(t, h, issued.VerificationCode).Verifications, 2)
}

func TestPartialWhenNotApproved(t *testing.T) {
	h := newHarness(t)
	sum := hashOf(t, h, "sha256").Hash
	h.MustSubmit(officer, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "", sum)
	issued := generate(t, h, sum)

	var res verification.Result
	require.NoError(t, json.Unmarshal(
		h.MustSubmit(verifier, verification.ContractName, "verifyWithCode", issued.VerificationCode, sum), &res))
	assert.True(t, res.IsAuthentic)
	assert.False(t, res.IsValid)
	assert.Equal(t, verification.ResultPartial, res.Result)
	assert.Equal(t, "DRAFT", res.DocumentState)
}

func TestCalculateHashThenVerifyDirect(t *testing.T) {
	h := newHarness(t)
	sum := hashOf(t, h, "sha256").Hash
	h.MustSubmit(officer, document.ContractName, "create", "D1", "BIRTH_CERTIFICATE", "C1", "O1", "", sum)

	var res verification.Result
	require.NoError(t, json.Unmarshal(
		h.MustSubmit(verifier, verification.ContractName, "verifyDirect", "D1", sum), &res))
	assert.True(t, res.Verified)
	assert.Empty(t, res.VerificationCode)

	var summaries []verification.Summary
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "history", "D1"), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, verification.StatusDirect, summaries[0].Status)
	assert.Equal(t, 1, summaries[0].Attempts)

	_, err := h.Submit(verifier, verification.ContractName, "verifyDirect", "D404", sum)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestLocalizedMessage(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)
	vi := verifier.WithAttribute("locale", "vi-VN")

	var res verification.Result
	require.NoError(t, json.Unmarshal(h.MustSubmit(vi, verification.ContractName, "verifyDirect", "D1", sum), &res))
	assert.Equal(t, "Tài liệu D1 là xác thực và hợp lệ.", res.Message)
}

func TestUnsupportedLocaleUsesNodeDefault(t *testing.T) {
	h := ledgertest.New(t, document.NewContract(), verification.NewContract(verification.WithDefaultLocale("vi")))
	h.MustSubmit(ledgertest.Admin(), verification.ContractName, "init")
	sum := approvedDocument(t, h)

	var res verification.Result
	fr := verifier.WithAttribute("locale", "fr-FR")
	require.NoError(t, json.Unmarshal(h.MustSubmit(fr, verification.ContractName, "verifyDirect", "D1", sum), &res))
	assert.Equal(t, "Tài liệu D1 là xác thực và hợp lệ.", res.Message)

	en := verifier.WithAttribute("locale", "en-US")
	require.NoError(t, json.Unmarshal(h.MustSubmit(en, verification.ContractName, "verifyDirect", "D1", sum), &res))
	assert.Equal(t, "Document D1 is authentic and valid.", res.Message)
}

func TestHistoryNewestFirst(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)
	first := generate(t, h, sum)
	h.Clock.Advance(time.Minute)
	second := generate(t, h, sum)
	h.MustSubmit(verifier, verification.ContractName, "verifyWithCode", second.VerificationCode, sum)

	var summaries []verification.Summary
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "history", "D1"), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, second.VerificationCode, summaries[0].VerificationCode)
	assert.Equal(t, 1, summaries[0].Attempts)
	assert.Equal(t, first.VerificationCode, summaries[1].VerificationCode)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "history", "D1", "1"), &summaries))
	assert.Len(t, summaries, 1)

	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "history", "nothing"), &summaries))
	assert.Empty(t, summaries)
}

func TestUnknownCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.Submit(verifier, verification.ContractName, "verifyWithCode", "ABCDEF012345", "00")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestDirectRecordIsNotAVerificationCode(t *testing.T) {
	h := newHarness(t)
	sum := approvedDocument(t, h)
	h.MustSubmit(verifier, verification.ContractName, "verifyDirect", "D1", sum)

	var summaries []verification.Summary
	require.NoError(t, json.Unmarshal(h.MustEvaluate(citizen, verification.ContractName, "history", "D1"), &summaries))
	require.Len(t, summaries, 1)
	direct := summaries[0].VerificationCode
	assert.True(t, strings.HasPrefix(direct, "DIRECT_"))

	height := h.Height()
	_, err := h.Submit(verifier, verification.ContractName, "verifyWithCode", direct, sum)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
	assert.Equal(t, height, h.Height())
	assert.Len(t, readRecord(t, h, direct).Verifications, 1)
}

func TestSettingsUpdate(t *testing.T) {
	h := newHarness(t)
	h.MustSubmit(ledgertest.Chairman("CH1"), verification.ContractName, "updateSettings", `{"defaultHashAlgorithm":"blake2b-256"}`)
	assert.Equal(t, "blake2b-256", hashOf(t, h, "md5").Algorithm)

	_, err := h.Submit(officer, verification.ContractName, "updateSettings", `{"defaultHashAlgorithm":"sha512"}`)
	assert.Equal(t, errs.CodeUnauthorized, errs.CodeOf(err))
}
