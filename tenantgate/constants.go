package tenantgate

import "time"

const (
	// TenantHeaderName is the header that tags every outbound request with the
	// active tenant's id. Backends rely on it for tenant routing.
	TenantHeaderName = "X-Tenant-ID"

	// RequestIDHeaderName carries a per-request correlation id. A request and
	// its post-refresh retry share the same id.
	RequestIDHeaderName = "X-Request-ID"

	// RefreshPath is the path of the refresh endpoint, relative to the
	// tenant's endpoint.
	RefreshPath = "/auth/refresh"

	contentTypeJSON = "application/json"

	// expiryLeeway is how close to its exp claim an access token may get
	// before proactive refresh replaces it.
	expiryLeeway = 30 * time.Second

	// maxCacheEntries bounds the GET response cache.
	maxCacheEntries = 256
)
