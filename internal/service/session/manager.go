package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/cartsync"
)

func GuestKey(guestID string) string { return "guest:" + guestID }

func UserKey(userID string) string { return "user:" + userID }

// Manager is the registry of live sessions.
type Manager struct {
	deps    Deps
	idleTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Resolve returns the session for the caller, creating it on first use. An
// authenticated identity takes precedence over the guest id.
func (m *Manager) Resolve(guestID string, identity domain.Identity) (*Session, error) {
	var key string
	switch {
	case identity.Authenticated():
		key = UserKey(identity.UserID)
	case guestID != "":
		key = GuestKey(guestID)
	default:
		return nil, domain.ErrAuthRequired
	}

	m.mu.Lock()
	sess, ok := m.sessions[key]
	if !ok {
		sess = New(m.deps, guestID, identity)
		m.sessions[key] = sess
	}
	m.mu.Unlock()

	if ok && identity.Authenticated() {
		sess.renewToken(identity.Token)
	}
	return sess, nil
}

// Login upgrades the guest's session (or the user's existing one) and files it
// under the user's key.
func (m *Manager) Login(ctx context.Context, guestID string, identity domain.Identity) (*Session, cartsync.MergeReport, error) {
	if !identity.Authenticated() {
		return nil, cartsync.MergeReport{}, domain.ErrAuthRequired
	}
	userKey := UserKey(identity.UserID)

	m.mu.Lock()
	sess, ok := m.sessions[userKey]
	if !ok && guestID != "" {
		sess, ok = m.sessions[GuestKey(guestID)]
	}
	if !ok {
		sess = New(m.deps, guestID, domain.Identity{})
	}
	m.mu.Unlock()

	report, err := sess.Login(ctx, guestID, identity)
	if err != nil {
		return nil, report, err
	}

	m.mu.Lock()
	if guestID != "" {
		delete(m.sessions, GuestKey(guestID))
	}
	m.sessions[userKey] = sess
	m.mu.Unlock()
	return sess, report, nil
}

// Logout drops the user's session and hands back a guest session for guestID.
func (m *Manager) Logout(guestID string, identity domain.Identity) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sess *Session
	if identity.Authenticated() {
		sess = m.sessions[UserKey(identity.UserID)]
		delete(m.sessions, UserKey(identity.UserID))
	}
	if sess == nil {
		sess = New(m.deps, guestID, domain.Identity{})
	} else {
		sess.Logout(guestID)
	}
	m.sessions[GuestKey(guestID)] = sess
	return sess
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, sess := range m.sessions {
		if sess.idleSince(now) > m.idleTTL {
			delete(m.sessions, key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	interval := m.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("session manager: evicted idle sessions", zap.Int("count", n), zap.Int("live", m.Len()))
			}
		}
	}
}
