// Package tenant resolves the active tenant context.
//
// A tenant determines the API endpoint, transport tuning, feature flags and
// permissions used while it is active. Exactly one Descriptor is current per
// Resolver; switching tenants replaces the current pointer and never mutates
// a descriptor in place.
package tenant

import (
	"maps"
	"time"
)

const (
	// DefaultID is the tenant id that every configuration source must provide.
	DefaultID = "default"

	// DefaultTimeout applies when a descriptor does not set a timeout.
	DefaultTimeout = 30 * time.Second
)

// Descriptor is one tenant's runtime configuration.
//
// Descriptors are shared by pointer and must be treated as read-only.
type Descriptor struct {
	ID       string
	Name     string
	Endpoint string

	Timeout       time.Duration
	RetryAttempts int

	CachingEnabled bool
	CacheTTL       time.Duration

	Features    map[string]bool
	Permissions map[string]bool
}

// fallback is used when neither the requested tenant nor the default tenant
// can be found, so the application always has a tenant to boot with.
var fallback = Descriptor{
	ID:             DefaultID,
	Name:           "Default",
	Endpoint:       "http://localhost:3000/api",
	Timeout:        DefaultTimeout,
	RetryAttempts:  3,
	CachingEnabled: true,
	CacheTTL:       5 * time.Minute,
}

// Fallback returns a private copy of the built-in descriptor used when no
// configured tenant can be resolved.
func Fallback() *Descriptor {
	return fallback.clone()
}

// IsFeatureEnabled reports whether flag is switched on. Unknown flags are off.
func (d *Descriptor) IsFeatureEnabled(flag string) bool {
	if d == nil {
		return false
	}
	return d.Features[flag]
}

// HasPermission reports whether perm is granted. Unknown permissions are denied.
func (d *Descriptor) HasPermission(perm string) bool {
	if d == nil {
		return false
	}
	return d.Permissions[perm]
}

// RequestTimeout returns the configured timeout, or DefaultTimeout when unset.
func (d *Descriptor) RequestTimeout() time.Duration {
	if d == nil || d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

func (d Descriptor) clone() *Descriptor {
	d.Features = maps.Clone(d.Features)
	d.Permissions = maps.Clone(d.Permissions)
	return &d
}

// Fixed is a tenant source that always reports the same descriptor.
//
// It is used to bind a client to one tenant for its whole lifetime.
type Fixed struct {
	d *Descriptor
}

// NewFixed returns a Fixed source for d. A nil d is replaced by Fallback().
func NewFixed(d *Descriptor) Fixed {
	if d == nil {
		d = Fallback()
	}
	return Fixed{d: d}
}

// CurrentTenant returns the bound descriptor.
func (f Fixed) CurrentTenant() *Descriptor {
	if f.d == nil {
		return Fallback()
	}
	return f.d
}
