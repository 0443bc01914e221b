package keystore

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAuthenticationFailed is returned when a credential is rejected.
var ErrAuthenticationFailed = errors.New("user authentication failed")

// Authenticator verifies a user presence credential, such as a one-time code.
type Authenticator interface {
	Verify(credential string) error
}

// AuthGate tracks when the user last authenticated. Device keys with
// UserAuthRequired are usable only within their validity window after a grant.
type AuthGate struct {
	mu        sync.Mutex
	auth      Authenticator
	now       func() time.Time
	grantedAt time.Time
}

// GateOption configures an AuthGate.
type GateOption func(*AuthGate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *AuthGate) {
		g.now = now
	}
}

// NewAuthGate creates a gate. A nil authenticator means grants only come
// from Grant, after a prompt confirmed by the caller.
func NewAuthGate(auth Authenticator, opts ...GateOption) *AuthGate {
	g := &AuthGate{
		auth: auth,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate verifies credential and opens the window on success.
func (g *AuthGate) Authenticate(credential string) error {
	if g.auth == nil {
		return fmt.Errorf("%w: no authenticator configured", ErrAuthenticationFailed)
	}
	if err := g.auth.Verify(credential); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	g.Grant()
	return nil
}

// Grant records a successful authentication now.
func (g *AuthGate) Grant() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grantedAt = g.now()
}

// Revoke forgets the last grant.
func (g *AuthGate) Revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grantedAt = time.Time{}
}

// Authorized reports whether the last grant is younger than validity.
func (g *AuthGate) Authorized(validity time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.grantedAt.IsZero() {
		return false
	}
	elapsed := g.now().Sub(g.grantedAt)
	return elapsed >= 0 && elapsed < validity
}

// GrantedAt returns the time of the last grant, zero if none.
func (g *AuthGate) GrantedAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grantedAt
}
