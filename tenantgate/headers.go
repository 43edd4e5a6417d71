package tenantgate

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken returns the bearer token carried by req, if any.
func BearerToken(req *http.Request) (string, bool) {
	v := req.Header.Get("Authorization")
	if !strings.HasPrefix(v, bearerPrefix) {
		return "", false
	}
	token := strings.TrimPrefix(v, bearerPrefix)
	if token == "" {
		return "", false
	}
	return token, true
}

// AttachBearer sets the Authorization header. An empty token leaves the
// request unauthenticated.
func AttachBearer(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", bearerPrefix+token)
}

// attachDefaults sets the negotiation, tenant and correlation headers that
// every request carries, including refresh calls.
func attachDefaults(req *http.Request, tenantHeader, tenantID, requestID string) {
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Content-Type", contentTypeJSON)
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}
	if requestID != "" {
		req.Header.Set(RequestIDHeaderName, requestID)
	}
}
