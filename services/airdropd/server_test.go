package airdropd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"refdrop/native/airdrop"
	api "refdrop/sdk/airdrop"
	"refdrop/storage"
)

const (
	testSecret   = "test-hmac-secret"
	testIssuer   = "refdrop-test"
	testAudience = "airdropd"
	testAdmin    = airdrop.Principal("admin-1")
	testManager  = airdrop.Principal("manager-1")
)

type harness struct {
	t      *testing.T
	engine *airdrop.Engine
	server *httptest.Server
}

func newHarness(t *testing.T, limit RateLimitConfig) *harness {
	t.Helper()
	resolver := airdrop.ResolverFunc(func(_ context.Context, p airdrop.Principal) (airdrop.Address, error) {
		return airdrop.Address("addr-" + string(p)), nil
	})
	engine, err := airdrop.NewEngine(airdrop.DefaultParams(), resolver, airdrop.WithState(airdrop.NewState(testAdmin)))
	require.NoError(t, err)
	engine.Seed(nil, map[airdrop.Principal]string{testManager: "ops"})

	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: testIssuer, Audience: testAudience}, nil)
	srv := httptest.NewServer(NewServer(engine, auth, NewRateLimiter(limit), nil).Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, engine: engine, server: srv}
}

func (h *harness) token(principal airdrop.Principal) string {
	h.t.Helper()
	token, err := IssueToken(testSecret, testIssuer, testAudience, principal, time.Hour, time.Now())
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path string, principal airdrop.Principal, body any, out any) int {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	if principal != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(principal))
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRedeemFlowOverHTTP(t *testing.T) {
	h := newHarness(t, RateLimitConfig{RequestsPerMinute: 600, Burst: 50})

	var added api.AddCodesResponse
	status := h.do(http.MethodPost, "/v1/admin/codes", testAdmin, api.AddCodesRequest{Codes: []airdrop.Code{"c1", "c2", "c3", "c4", "c5"}}, &added)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 5, added.Added)
	require.Equal(t, 5, added.Remaining)

	var generated airdrop.CodeInfo
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/codes", testManager, nil, &generated))
	require.Equal(t, airdrop.Code("c1"), generated.Code)
	require.Equal(t, uint64(1), generated.CodesGenerated)

	var info airdrop.Info
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "c1"}, &info))
	require.Equal(t, airdrop.Address("addr-alice"), info.Address)
	require.Len(t, info.Children, 3)

	var again api.ErrorResponse
	require.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "c2"}, &again))
	require.Equal(t, "CannotRegisterMultipleTimes", again.Error)

	var mine airdrop.Info
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/code", "alice", nil, &mine))
	require.Equal(t, airdrop.Code("c1"), mine.Code)

	var redeemed api.RedeemedResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/redeemed", "alice", nil, &redeemed))
	require.True(t, redeemed.Redeemed)

	var export api.ExportResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/admin/airdrop?index=0", testAdmin, nil, &export))
	require.Len(t, export.Entries, 1)
	require.Equal(t, airdrop.Index(0), export.Cursor)
	require.Equal(t, uint64(100), export.Entries[0].Amount)
	require.Equal(t, []airdrop.Index{0}, export.Indices)

	ack := api.AcknowledgeRequest{Index: 0, Entry: export.Entries[0]}
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPut, "/v1/admin/airdrop", testAdmin, ack, nil))

	var stats airdrop.Stats
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/admin/stats", testAdmin, nil, &stats))
	require.Equal(t, 0, stats.PendingEntries)
	require.Equal(t, uint64(airdrop.DefaultInitialTokens-airdrop.DefaultTokenPerPerson), stats.SupplyRemaining)
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	h := newHarness(t, RateLimitConfig{})
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/v1/admin/kill", "mallory", nil, &errResp))
	require.Equal(t, "Unauthorized", errResp.Error)
	require.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/v1/admin/stats", "mallory", nil, &errResp))
	require.False(t, h.engine.Killed())
}

func TestKillBlocksRedemption(t *testing.T) {
	h := newHarness(t, RateLimitConfig{RequestsPerMinute: 600, Burst: 50})
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/admin/codes", testAdmin, api.AddCodesRequest{Codes: []airdrop.Code{"c1"}}, nil))

	var stop api.EmergencyStopResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/admin/kill", testAdmin, nil, &stop))
	require.True(t, stop.Killed)

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "c1"}, &errResp))
	require.Equal(t, "CanisterKilled", errResp.Error)

	var generated airdrop.CodeInfo
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/codes", testManager, nil, &generated))
	require.Equal(t, airdrop.Code("c1"), generated.Code)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/admin/revive", testAdmin, nil, &stop))
	require.False(t, stop.Killed)
}

func TestMissingTokenIsRejected(t *testing.T) {
	h := newHarness(t, RateLimitConfig{})
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/manager", "", nil, &errResp))
	require.Equal(t, "Unauthorized", errResp.Error)

	var manager api.ManagerResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/manager", testManager, nil, &manager))
	require.True(t, manager.Manager)
}

func TestUnknownCodeMapsToNotFound(t *testing.T) {
	h := newHarness(t, RateLimitConfig{RequestsPerMinute: 600, Burst: 50})
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "nope"}, &errResp))
	require.Equal(t, "CodeNotFound", errResp.Error)
	require.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/code", "alice", nil, &errResp))
}

func TestMalformedBodyIsGeneralError(t *testing.T) {
	h := newHarness(t, RateLimitConfig{})
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/admin/codes", testAdmin, map[string]any{"bogus": true}, &errResp))
	require.Equal(t, "GeneralError", errResp.Error)
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/v1/admin/airdrop?index=-1", testAdmin, nil, &errResp))
}

func TestRedeemIsRateLimitedPerPrincipal(t *testing.T) {
	h := newHarness(t, RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "x"}, &errResp))
	require.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/v1/redeem", "alice", api.RedeemRequest{Code: "x"}, &errResp))
	require.Equal(t, "RateLimited", errResp.Error)
	require.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/redeem", "bob", api.RedeemRequest{Code: "x"}, &errResp))
}

func TestHealthAndRequestID(t *testing.T) {
	h := newHarness(t, RateLimitConfig{})
	resp, err := h.server.Client().Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestRecovererReturnsJSON(t *testing.T) {
	handler := recoverer(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "GeneralError", errResp.Error)
}

func TestBuildEnginePersistsAndRestores(t *testing.T) {
	db := storage.NewMemDB()
	resolver := airdrop.ResolverFunc(func(_ context.Context, p airdrop.Principal) (airdrop.Address, error) {
		return airdrop.Address("addr-" + string(p)), nil
	})
	params := defaultParamsFile()
	cfg := Config{BootstrapAdmins: []string{string(testAdmin)}, Managers: map[string]string{string(testManager): "ops"}}

	engine, err := buildEngine(params, cfg, resolver, db, testLogger())
	require.NoError(t, err)
	require.NoError(t, engine.AddCodes(testAdmin, []airdrop.Code{"c1", "c2", "c3", "c4"}))
	_, err = engine.GenerateCode(testManager)
	require.NoError(t, err)
	_, err = engine.RedeemCode(context.Background(), "alice", "c1")
	require.NoError(t, err)

	restored, err := buildEngine(params, cfg, resolver, db, testLogger())
	require.NoError(t, err)
	require.Equal(t, engine.Stats(), restored.Stats())
	info, err := restored.GetCode("alice")
	require.NoError(t, err)
	require.Len(t, info.Children, 3)
}
