package tenant

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source looks up tenant descriptors by id. Lookups must not perform I/O.
type Source interface {
	Lookup(id string) (*Descriptor, bool)
}

// Table is an in-memory Source built from a fixed set of descriptors.
type Table struct {
	byID map[string]*Descriptor
	ids  []string
}

// NewTable validates descriptors and indexes them by id.
//
// Endpoints are normalized by trimming any trailing slash. The returned table
// holds private copies, so later changes to the arguments have no effect.
func NewTable(descriptors ...Descriptor) (*Table, error) {
	t := &Table{byID: make(map[string]*Descriptor, len(descriptors))}

	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("tenant: descriptor id is required")
		}
		if _, dup := t.byID[d.ID]; dup {
			return nil, fmt.Errorf("tenant: duplicate descriptor id %q", d.ID)
		}

		d.Endpoint = strings.TrimRight(d.Endpoint, "/")
		u, err := url.Parse(d.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("tenant: %s: invalid endpoint %q", d.ID, d.Endpoint)
		}

		t.byID[d.ID] = d.clone()
		t.ids = append(t.ids, d.ID)
	}

	return t, nil
}

// Lookup returns the descriptor registered under id.
func (t *Table) Lookup(id string) (*Descriptor, bool) {
	if t == nil {
		return nil, false
	}
	d, ok := t.byID[id]
	return d, ok
}

// IDs returns tenant ids in declaration order.
func (t *Table) IDs() []string {
	return append([]string(nil), t.ids...)
}

type fileDescriptor struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Endpoint       string          `yaml:"endpoint"`
	TimeoutMs      int64           `yaml:"timeout_ms"`
	RetryAttempts  int             `yaml:"retry_attempts"`
	CachingEnabled bool            `yaml:"caching_enabled"`
	CacheTTLMs     int64           `yaml:"cache_ttl_ms"`
	Features       map[string]bool `yaml:"features"`
	Permissions    map[string]bool `yaml:"permissions"`
}

type fileTable struct {
	Tenants []fileDescriptor `yaml:"tenants"`
}

// ParseTable decodes a YAML tenant table of the form
//
//	tenants:
//	  - id: default
//	    endpoint: https://api.example.com
//	    timeout_ms: 30000
//	    caching_enabled: true
//	    cache_ttl_ms: 300000
func ParseTable(data []byte) (*Table, error) {
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("tenant: parse table: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(ft.Tenants))
	for _, fd := range ft.Tenants {
		descriptors = append(descriptors, Descriptor{
			ID:             fd.ID,
			Name:           fd.Name,
			Endpoint:       fd.Endpoint,
			Timeout:        time.Duration(fd.TimeoutMs) * time.Millisecond,
			RetryAttempts:  fd.RetryAttempts,
			CachingEnabled: fd.CachingEnabled,
			CacheTTL:       time.Duration(fd.CacheTTLMs) * time.Millisecond,
			Features:       fd.Features,
			Permissions:    fd.Permissions,
		})
	}

	return NewTable(descriptors...)
}

// LoadTable reads and parses the YAML tenant table at path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read table: %w", err)
	}
	return ParseTable(data)
}
