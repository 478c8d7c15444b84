// Package session validates the bearer tokens storefront callers present and
// signs a session out when the backend stops accepting its credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sonic7adarsh/bharatapp/pkg/logger"
	"github.com/sonic7adarsh/bharatapp/pkg/middleware"
)

// revokeFallback bounds how long a token without an expiry stays revoked.
const revokeFallback = 24 * time.Hour

// ErrRevoked is returned for tokens signed out during this process's life.
var ErrRevoked = errors.New("token has been revoked")

var logoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "storefront_session_logouts_total",
	Help: "Sessions signed out after the backend rejected their credentials",
})

// Claims are the access-token claims issued by the user service.
type Claims struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Announcer tells the user about something that happened outside their
// current action.
type Announcer interface {
	Announce(ctx context.Context, message string)
}

// LogoutHook is called with the session ID of every signed-out session.
type LogoutHook func(ctx context.Context, sessionID string)

// Manager parses tokens and keeps the set of tokens revoked by Logout.
type Manager struct {
	secret    []byte
	announcer Announcer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
	hooks   []LogoutHook
}

// NewManager creates a manager that accepts HS256 tokens signed with secret.
func NewManager(secret string, announcer Announcer, logger *slog.Logger) *Manager {
	return &Manager{
		secret:    []byte(secret),
		announcer: announcer,
		logger:    logger,
		now:       time.Now,
		revoked:   make(map[string]time.Time),
	}
}

// OnLogout registers fn to run after every Logout.
func (m *Manager) OnLogout(fn LogoutHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// Validate implements middleware.TokenValidator.
func (m *Manager) Validate(tokenString string) (*middleware.Claims, error) {
	m.mu.Lock()
	_, revoked := m.revoked[tokenString]
	m.mu.Unlock()
	if revoked {
		return nil, ErrRevoked
	}

	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{UserID: claims.UserID, Phone: claims.Phone}, nil
}

// Logout revokes the caller's token, runs the logout hooks for the caller's
// session and tells the user to sign in again.
func (m *Manager) Logout(ctx context.Context, reason string) {
	sessionID := logger.SessionIDFromContext(ctx)

	m.mu.Lock()
	if token := middleware.TokenFromContext(ctx); token != "" {
		until := m.now().Add(revokeFallback)
		if claims, err := m.parse(token); err == nil && claims.ExpiresAt != nil {
			until = claims.ExpiresAt.Time
		}
		m.revoked[token] = until
	}
	hooks := append([]LogoutHook(nil), m.hooks...)
	m.mu.Unlock()

	logoutsTotal.Inc()
	m.logger.WarnContext(ctx, "session signed out",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)

	for _, h := range hooks {
		h(ctx, sessionID)
	}
	if m.announcer != nil {
		m.announcer.Announce(ctx, "Your session has expired. Please sign in again.")
	}
}

// Sweep forgets revoked tokens that have expired anyway.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for tok, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, tok)
			n++
		}
	}
	return n
}
