package tenant

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// EnvTenantID names the environment variable holding the default tenant id.
const EnvTenantID = "TENANT_ID"

// DefaultIDFromEnv returns the default tenant id from process configuration,
// or DefaultID when the variable is unset.
func DefaultIDFromEnv() string {
	if id := os.Getenv(EnvTenantID); id != "" {
		return id
	}
	return DefaultID
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultID sets the tenant id used when no valid id is requested.
// It takes precedence over the TENANT_ID environment variable.
func WithDefaultID(id string) ResolverOption {
	return func(r *Resolver) {
		r.defaultID = id
	}
}

// WithLogger sets the logger used to report configuration fallbacks.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver holds the currently active tenant.
//
// A Resolver starts unresolved and becomes resolved on the first LoadTenant
// or CurrentTenant call. It never returns to the unresolved state. It is safe
// for concurrent use.
type Resolver struct {
	src       Source
	defaultID string
	logger    *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Descriptor]
}

// NewResolver creates a Resolver backed by src.
func NewResolver(src Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		src:    src,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.defaultID == "" {
		r.defaultID = DefaultIDFromEnv()
	}
	return r
}

// LoadTenant makes the tenant with the given id current and returns it.
//
// An empty or unknown id resolves to the configured default tenant, and an
// unknown default resolves to Fallback(). LoadTenant never fails.
func (r *Resolver) LoadTenant(id string) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.resolve(id)
	r.current.Store(d)
	return d
}

// CurrentTenant returns the active descriptor, resolving the default tenant
// on first access.
func (r *Resolver) CurrentTenant() *Descriptor {
	if d := r.current.Load(); d != nil {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d := r.current.Load(); d != nil {
		return d
	}
	d := r.resolve("")
	r.current.Store(d)
	return d
}

// IsFeatureEnabled reports whether flag is on for the current tenant.
func (r *Resolver) IsFeatureEnabled(flag string) bool {
	return r.CurrentTenant().IsFeatureEnabled(flag)
}

// HasPermission reports whether perm is granted to the current tenant.
func (r *Resolver) HasPermission(perm string) bool {
	return r.CurrentTenant().HasPermission(perm)
}

func (r *Resolver) resolve(id string) *Descriptor {
	if id != "" {
		if d, ok := r.lookup(id); ok {
			return d
		}
		r.logger.Warn("unknown tenant, using default",
			"tenant_id", id,
			"default_id", r.defaultID,
		)
	}

	if d, ok := r.lookup(r.defaultID); ok {
		return d
	}

	r.logger.Warn("default tenant not configured, using fallback",
		"default_id", r.defaultID,
	)
	return Fallback()
}

func (r *Resolver) lookup(id string) (*Descriptor, bool) {
	if r.src == nil {
		return nil, false
	}
	d, ok := r.src.Lookup(id)
	if !ok || d == nil {
		return nil, false
	}
	return d, true
}
