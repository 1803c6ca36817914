package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"refdrop/native/airdrop"
	api "refdrop/sdk/airdrop"
	"refdrop/services/airdropd"
)

func newTestCLI(env map[string]string) (*cli, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &cli{
		stdout: out,
		stderr: &bytes.Buffer{},
		getenv: func(key string) string { return env[key] },
		now:    time.Now,
	}, out
}

func TestTokenRoundTripsThroughAuthenticator(t *testing.T) {
	c, out := newTestCLI(nil)
	require.NoError(t, c.run([]string{"token", "--secret", "s3cret", "--issuer", "ops", "--principal", "admin-1", "--ttl", "1h"}))

	auth := airdropd.NewAuthenticator(airdropd.AuthConfig{HMACSecret: "s3cret", Issuer: "ops"}, nil)
	principal, err := auth.Authenticate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, airdrop.Principal("admin-1"), principal)
}

func TestTokenRejectsAnonymousPrincipal(t *testing.T) {
	c, _ := newTestCLI(nil)
	err := c.run([]string{"token", "--secret", "s3cret", "--principal", string(airdrop.AnonymousPrincipal)})
	require.ErrorIs(t, err, airdrop.ErrAnonymousCaller)
}

func TestKeygenThenDerive(t *testing.T) {
	t.Setenv("AIRDROPCTL_TEST_PASS", "correct horse")
	path := filepath.Join(t.TempDir(), "signer.keystore")

	c, out := newTestCLI(nil)
	require.NoError(t, c.run([]string{"keygen", "--out", path, "--pass-env", "AIRDROPCTL_TEST_PASS", "--light"}))
	require.Contains(t, out.String(), "Master address: 0x")
	require.Error(t, c.run([]string{"keygen", "--out", path, "--pass-env", "AIRDROPCTL_TEST_PASS", "--light"}))

	var first, second bytes.Buffer
	c.stdout = &first
	require.NoError(t, c.run([]string{"derive", "--keystore", path, "--pass-env", "AIRDROPCTL_TEST_PASS", "--principal", "alice"}))
	c.stdout = &second
	require.NoError(t, c.run([]string{"derive", "--keystore", path, "--pass-env", "AIRDROPCTL_TEST_PASS", "--principal", "alice"}))
	require.Equal(t, first.String(), second.String())
	require.True(t, strings.HasPrefix(first.String(), "0x"))
}

func TestAddCodesMergesArgumentsAndFile(t *testing.T) {
	var received api.AddCodesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/admin/codes", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(api.AddCodesResponse{Added: len(received.Codes), Remaining: len(received.Codes)})
	}))
	defer server.Close()

	file := filepath.Join(t.TempDir(), "codes.txt")
	require.NoError(t, os.WriteFile(file, []byte("# batch 1\nc2\n\nc3\n"), 0o600))

	c, out := newTestCLI(map[string]string{endpointEnv: server.URL, tokenEnv: "tok"})
	require.NoError(t, c.run([]string{"add-codes", "--file", file, "c1"}))
	require.Equal(t, []airdrop.Code{"c1", "c2", "c3"}, received.Codes)
	require.Contains(t, out.String(), "Added 3 codes")
}

func TestRemoteErrorsSurfaceKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Unauthorized", Message: "not an admin"})
	}))
	defer server.Close()

	c, _ := newTestCLI(nil)
	err := c.run([]string{"kill", "--endpoint", server.URL, "--token", "tok"})
	require.ErrorIs(t, err, airdrop.ErrUnauthorized)
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newTestCLI(nil)
	require.Error(t, c.run([]string{"bogus"}))
	require.Error(t, c.run(nil))
}
