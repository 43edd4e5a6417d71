package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTenants(t *testing.T, endpoint string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tenants.yaml")
	data := fmt.Sprintf(`tenants:
  - id: default
    name: Default
    endpoint: %[1]s
  - id: acme
    name: Acme
    endpoint: %[1]s/acme
    caching_enabled: true
    cache_ttl_ms: 60000
`, endpoint)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	cmd := newRootCommand(&stdout, io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

func TestGet_PrintsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/users/me", r.URL.Path)
		assert.Equal(t, "acme", r.Header.Get("X-Tenant-ID"))
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u-1"}`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "get", "/users/me",
		"--tenants", writeTenants(t, srv.URL),
		"--tenant", "acme",
		"--access-token", "A1",
	)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": \"u-1\"\n}\n", out)
}

func TestPost_SendsBodyAndReadsTokenFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer ENV", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ada"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TENANTCTL_ACCESS_TOKEN", "ENV")
	t.Setenv("TENANTCTL_TENANTS", writeTenants(t, srv.URL))

	out, err := run(t, "post", "/users", `{"name":"Ada"}`)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPost_RejectsInvalidJSON(t *testing.T) {
	_, err := run(t, "post", "/users", `{name`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestGet_SurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such user"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := run(t, "get", "/users/42", "--tenants", writeTenants(t, srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such user")
}

func TestTenants_ListsTableAndMarksCurrent(t *testing.T) {
	out, err := run(t, "tenants", "--tenants", writeTenants(t, "https://api.example.com"), "--tenant", "acme")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Regexp(t, `(?m)^default\s+Default\s+https://api\.example\.com\s+false\s*$`, out)
	assert.Regexp(t, `(?m)^acme\s+Acme\s+https://api\.example\.com/acme\s+true\s+\*$`, out)
}

func TestTenants_UnknownTenantFallsBackToDefault(t *testing.T) {
	out, err := run(t, "tenants", "--tenants", writeTenants(t, "https://api.example.com"), "--tenant", "nope")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^default\s+Default\s+\S+\s+false\s+\*$`, out)
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		_, _ = w.Write([]byte(`{"accessToken":"A2"}`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "refresh", "--tenants", writeTenants(t, srv.URL), "--refresh-token", "R1")
	require.NoError(t, err)
	assert.Equal(t, "A2\n", out)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "tenants", "--log-level", "loud")
	require.Error(t, err)
}
