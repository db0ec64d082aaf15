package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GuestName is shown when the profile carries no usable name.
const GuestName = "Guest"

var (
	// ErrNoCredentials is returned by Login when no token is available.
	ErrNoCredentials = errors.New("no access token provided")
	// ErrTokenExpired is returned by Login for a token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
)

// Provider is the identity boundary the client consumes.
type Provider interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
	DisplayName() string
}

// ProfileClaims are the profile fields an identity provider puts in its tokens.
type ProfileClaims struct {
	Name     string `json:"name,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// DisplayName falls back name, nickname, email, then GuestName.
func (c ProfileClaims) DisplayName() string {
	for _, v := range []string{c.Name, c.Nickname, c.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return GuestName
}

// TokenProvider treats possession of a bearer token as a login. Claims are
// read without signature verification; the API verifies tokens it receives.
type TokenProvider struct {
	source func() string
	now    func() time.Time
	parser *jwt.Parser

	mu     sync.RWMutex
	token  string
	claims *ProfileClaims
}

// NewTokenProvider reads the token from source on every Login.
func NewTokenProvider(source func() string) *TokenProvider {
	return &TokenProvider{
		source: source,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
}

// StaticToken returns a token source for a fixed value.
func StaticToken(token string) func() string {
	return func() string { return token }
}

// Login parses the current token and records the profile.
func (p *TokenProvider) Login(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := ""
	if p.source != nil {
		raw = strings.TrimSpace(p.source())
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return ErrNoCredentials
	}

	claims := &ProfileClaims{}
	if _, _, err := p.parser.ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(p.now()) {
		return ErrTokenExpired
	}

	p.mu.Lock()
	p.token = raw
	p.claims = claims
	p.mu.Unlock()
	return nil
}

// Logout forgets the token.
func (p *TokenProvider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.claims = nil
	p.mu.Unlock()
	return nil
}

// IsAuthenticated reports whether Login succeeded and the token is still valid.
func (p *TokenProvider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return false
	}
	return p.claims.ExpiresAt == nil || p.claims.ExpiresAt.After(p.now())
}

// DisplayName returns the profile name, or GuestName when logged out.
func (p *TokenProvider) DisplayName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return GuestName
	}
	return p.claims.DisplayName()
}

// Token returns the raw bearer token, empty when logged out.
func (p *TokenProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
