// Package session tracks authenticated chat sessions. Each session owns its
// retrieval cache and is identified to clients by a signed token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/meheroob/stremlit-agentic-ai/internal/cache"
	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
)

var (
	ErrInvalidToken   = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

const (
	DefaultIdleTTL  = 30 * time.Minute
	DefaultTokenTTL = 12 * time.Hour
)

// Session is one authenticated customer conversation.
type Session struct {
	ID        string
	Customer  *customer.Customer
	Cache     *cache.RetrievalCache
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Options configures a Manager.
type Options struct {
	IdleTTL  time.Duration
	TokenTTL time.Duration
	Backends cache.BackendFactory
	Cache    cache.Options
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager creates, resolves and expires sessions.
type Manager struct {
	secret    []byte
	retriever cache.Retriever
	opts      Options
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager signing tokens with secret. retriever backs
// every session's cache.
func NewManager(secret []byte, retriever cache.Retriever, opts Options) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Backends == nil {
		opts.Backends = cache.MemoryFactory()
	}
	return &Manager{
		secret:    secret,
		retriever: retriever,
		opts:      opts,
		now:       time.Now,
		logger:    slog.Default(),
		sessions:  make(map[string]*Session),
	}
}

// Create starts a session for c and returns it with its signed token.
func (m *Manager) Create(c *customer.Customer) (*Session, string, error) {
	now := m.now()
	id := uuid.New().String()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.opts.TokenTTL)),
		},
	}).SignedString(m.secret)
	if err != nil {
		return nil, "", fmt.Errorf("signing session token: %w", err)
	}

	s := &Session{
		ID:        id,
		Customer:  c,
		Cache:     cache.New(m.retriever, m.opts.Backends(id), m.opts.Cache),
		CreatedAt: now,
		lastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", id, "customer_id", c.ID())
	return s, token, nil
}

// Resolve returns the live session named by token and marks it active.
func (m *Manager) Resolve(token string) (*Session, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if cl.SessionID == "" {
		return nil, ErrInvalidToken
	}

	m.mu.Lock()
	s, ok := m.sessions[cl.SessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionExpired
	}
	if s.Customer.ID() != cl.Subject {
		return nil, ErrInvalidToken
	}

	now := m.now()
	if now.Sub(s.idleSince()) > m.opts.IdleTTL {
		m.end(context.Background(), s)
		return nil, ErrSessionExpired
	}
	s.touch(now)
	return s, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End removes the session and clears its cache. Ending an unknown session
// is a no-op.
func (m *Manager) End(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		m.end(ctx, s)
	}
}

func (m *Manager) end(ctx context.Context, s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	if err := s.Cache.Clear(ctx); err != nil {
		m.logger.Warn("clearing session cache failed", "session_id", s.ID, "error", err)
	}
	st := s.Cache.Stats()
	m.logger.Info("session ended", "session_id", s.ID, "cache_hits", st.Hits, "cache_misses", st.Misses)
}

// Sweep ends every session idle for longer than the idle TTL and returns
// how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var idle []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.opts.IdleTTL {
			idle = append(idle, s)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.end(ctx, s)
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.logger.Info("idle sessions swept", "count", n)
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
