package tenantgate

import (
	"net/http"
	"net/url"
	"time"
)

// RequestOption overrides client defaults for a single call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	header  http.Header
	timeout time.Duration
	query   url.Values
}

// WithHeader sets an extra header on the request. Headers set this way are
// applied last and win over the client's defaults.
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.header == nil {
			cfg.header = make(http.Header)
		}
		cfg.header.Set(key, value)
	}
}

// WithTimeout replaces the tenant's timeout for this call.
func WithTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		cfg.timeout = d
	}
}

// WithQuery adds query parameters to the request URL.
func WithQuery(values url.Values) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.query == nil {
			cfg.query = make(url.Values)
		}
		for k, vs := range values {
			for _, v := range vs {
				cfg.query.Add(k, v)
			}
		}
	}
}
