package tenantgate

import "sync"

// Credentials is the session's token pair. An empty field means the token is
// absent.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Authenticated reports whether an access token is held.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != ""
}

// session guards the credential pair. The pair is always set and cleared
// together; refresh only replaces the access token.
//
// generation changes whenever the pair is set or cleared, so state derived
// from one identity (cached responses) is never served to another.
type session struct {
	mu         sync.RWMutex
	creds      Credentials
	generation uint64
}

func (s *session) snapshot() (Credentials, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.generation
}

func (s *session) set(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	s.generation++
}

func (s *session) clear() {
	s.set(Credentials{})
}

// replaceAccess stores a refreshed access token, provided the refresh token
// it was obtained with is still the one held.
func (s *session) replaceAccess(refreshToken, accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.RefreshToken != refreshToken {
		return false
	}
	s.creds.AccessToken = accessToken
	return true
}

// clearIf drops both tokens, provided the refresh token that failed is still
// the one held. A session re-established concurrently is left alone.
func (s *session) clearIf(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.RefreshToken != refreshToken {
		return false
	}
	s.creds = Credentials{}
	s.generation++
	return true
}
