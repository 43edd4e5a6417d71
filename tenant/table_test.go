package tenant

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTableYAML = `
tenants:
  - id: default
    name: Default
    endpoint: https://api.example.com/
    timeout_ms: 15000
    retry_attempts: 3
    caching_enabled: true
    cache_ttl_ms: 60000
    features:
      chat: true
  - id: tenant-3
    endpoint: https://tenant3.example.com
    timeout_ms: 5000
    caching_enabled: false
    permissions:
      reports: true
`

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(testTableYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "tenant-3"}, table.IDs())

	d, ok := table.Lookup("default")
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", d.Endpoint)
	assert.Equal(t, 15*time.Second, d.Timeout)
	assert.Equal(t, 3, d.RetryAttempts)
	assert.True(t, d.CachingEnabled)
	assert.Equal(t, time.Minute, d.CacheTTL)
	assert.True(t, d.IsFeatureEnabled("chat"))

	d3, ok := table.Lookup("tenant-3")
	require.True(t, ok)
	assert.False(t, d3.CachingEnabled)
	assert.True(t, d3.HasPermission("reports"))
}

func TestParseTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "tenants: [\n"},
		{name: "missing id", yaml: "tenants:\n  - endpoint: https://x.example.com\n"},
		{name: "bad endpoint", yaml: "tenants:\n  - id: a\n    endpoint: not-a-url\n"},
		{name: "duplicate", yaml: "tenants:\n  - id: a\n    endpoint: https://a.example.com\n  - id: a\n    endpoint: https://b.example.com\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testTableYAML), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	_, ok := table.Lookup("tenant-3")
	assert.True(t, ok)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewTable_CopiesMaps(t *testing.T) {
	features := map[string]bool{"chat": true}

	table, err := NewTable(Descriptor{ID: "a", Endpoint: "https://a.example.com", Features: features})
	require.NoError(t, err)

	features["chat"] = false

	d, _ := table.Lookup("a")
	assert.True(t, d.IsFeatureEnabled("chat"))
}

func TestTable_NilLookup(t *testing.T) {
	var table *Table

	_, ok := table.Lookup(DefaultID)
	assert.False(t, ok)
}
