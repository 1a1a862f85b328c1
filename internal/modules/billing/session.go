package billing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"frontdesk/internal/domain"
)

// sessionSkew renews a session slightly before the provider expires it.
const sessionSkew = 30 * time.Second

type Credentials struct {
	APIKey    string
	APISecret string
}

func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// Session is an authenticated provider session for one location's tenant.
type Session struct {
	Location  domain.Location
	Token     string
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.Token == "" {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(sessionSkew).Before(s.ExpiresAt)
}

type authenticator interface {
	Authenticate(ctx context.Context, loc domain.Location, creds Credentials) (*Session, error)
}

// SessionManager hands out a live session per location, logging in on first
// use and after expiry.
type SessionManager struct {
	auth   authenticator
	creds  map[domain.Location]Credentials
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[domain.Location]*Session
	// logins serialises logins per location so a slow tenant never holds up
	// another one.
	logins map[domain.Location]*sync.Mutex
}

func NewSessionManager(auth authenticator, creds map[domain.Location]Credentials, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		auth:     auth,
		creds:    creds,
		logger:   logger.Named("billing_sessions"),
		now:      time.Now,
		sessions: make(map[domain.Location]*Session),
		logins:   make(map[domain.Location]*sync.Mutex),
	}
}

func (m *SessionManager) Session(ctx context.Context, loc domain.Location) (*Session, error) {
	if s := m.cached(loc); s != nil {
		return s, nil
	}

	login := m.loginLock(loc)
	login.Lock()
	defer login.Unlock()

	// Another caller may have logged in while we waited.
	if s := m.cached(loc); s != nil {
		return s, nil
	}

	creds, ok := m.creds[loc]
	if !ok || creds.Empty() {
		return nil, &domain.AuthError{Location: loc, Message: "no billing credentials configured"}
	}
	s, err := m.auth.Authenticate(ctx, loc, creds)
	if err != nil {
		m.Invalidate(loc)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[loc] = s
	m.mu.Unlock()
	m.logger.Info("billing session opened", zap.String("location", string(loc)), zap.Time("expires_at", s.ExpiresAt))
	return s, nil
}

func (m *SessionManager) cached(loc domain.Location) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[loc]; ok && !s.Expired(m.now()) {
		return s
	}
	return nil
}

func (m *SessionManager) loginLock(loc domain.Location) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logins[loc]
	if !ok {
		l = &sync.Mutex{}
		m.logins[loc] = l
	}
	return l
}

// Invalidate drops the cached session after the provider rejected it.
func (m *SessionManager) Invalidate(loc domain.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, loc)
}
