// Package auth provides a SessionProvider backed by HS256 signed access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"farmledger/pkg/domain"
)

const issuer = "farmledger"

// Claims carried by an access token. Subject is the user id.
type Claims struct {
	Email  string `json:"email,omitempty"`
	FarmID string `json:"farm_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenProvider validates access tokens into sessions and notifies
// subscribers on sign-in, sign-out and expiry.
type TokenProvider struct {
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	session *domain.Session
	subs    map[int]func(*domain.Session)
	nextSub int
}

// Option configures a TokenProvider.
type Option func(*TokenProvider)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) { p.now = now }
}

// NewTokenProvider returns a provider verifying tokens signed with secret.
func NewTokenProvider(secret string, opts ...Option) (*TokenProvider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	p := &TokenProvider{secret: []byte(secret), now: time.Now, subs: make(map[int]func(*domain.Session))}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Issue signs a token for the user. It exists for local tooling and tests;
// production tokens come from the identity service.
func (p *TokenProvider) Issue(userID, email, farmID string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Email:  email,
		FarmID: farmID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates token without changing the current session.
func (p *TokenProvider) Verify(token string) (*domain.Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return &domain.Session{
		UserID:      claims.Subject,
		Email:       claims.Email,
		FarmID:      claims.FarmID,
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// SignIn validates token and makes it the current session.
func (p *TokenProvider) SignIn(_ context.Context, token string) (*domain.Session, error) {
	session, err := p.Verify(token)
	if err != nil {
		return nil, err
	}
	p.transition(session)
	return cloneSession(session), nil
}

// GetSession returns the current session, or nil when signed out. An expired
// session is dropped and subscribers are told.
func (p *TokenProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return nil, nil
	}
	if !p.now().Before(session.ExpiresAt) {
		p.transition(nil)
		return nil, nil
	}
	return cloneSession(session), nil
}

// OnSessionChange registers fn and returns its unsubscribe function.
func (p *TokenProvider) OnSessionChange(fn func(*domain.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// SignOut clears the session.
func (p *TokenProvider) SignOut(context.Context) error {
	p.transition(nil)
	return nil
}

func (p *TokenProvider) transition(session *domain.Session) {
	p.mu.Lock()
	if p.session == nil && session == nil {
		p.mu.Unlock()
		return
	}
	p.session = session
	subs := make([]func(*domain.Session), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(cloneSession(session))
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Static is a SessionProvider with a fixed session, used for offline runs
// and tests. A nil session means signed out.
type Static struct {
	mu      sync.Mutex
	session *domain.Session
}

// NewStatic returns a provider that always reports session.
func NewStatic(session *domain.Session) *Static { return &Static{session: cloneSession(session)} }

// GetSession implements domain.SessionProvider.
func (s *Static) GetSession(context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.session), nil
}

// OnSessionChange implements domain.SessionProvider; the session never changes.
func (s *Static) OnSessionChange(func(*domain.Session)) func() { return func() {} }

// SignOut drops the session.
func (s *Static) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

var (
	_ domain.SessionProvider = (*TokenProvider)(nil)
	_ domain.SessionProvider = (*Static)(nil)
)
