package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed     = errors.New("session closed")
	ErrAlreadyIdentified = errors.New("session already identified as another user")
)

// SessionState is the per-connection state machine:
// Connecting -> Identified -> Closed, or Connecting -> Closed.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateIdentified
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one accepted connection from accept to close
type Session struct {
	handle      Handle
	connectedAt time.Time

	// mu orders Identify against Disconnect for this session
	mu     sync.Mutex
	state  SessionState
	userID string
}

// ID returns the underlying handle id
func (s *Session) ID() string {
	return s.handle.ID()
}

// Handle returns the session's connection handle
func (s *Session) Handle() Handle {
	return s.handle
}

// State returns the current state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the identified user, or "" before identify
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ConnectedAt returns when the connection was accepted
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Lifecycle owns sessions from accept to close and is the only component
// that binds handles into the registry.
type Lifecycle struct {
	registry *Registry
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	accepted atomic.Int64
	closed   atomic.Int64
}

// NewLifecycle creates a lifecycle handler over registry
func NewLifecycle(registry *Registry, m *metrics.Metrics) *Lifecycle {
	if m == nil {
		m = metrics.Get()
	}
	return &Lifecycle{
		registry: registry,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Register starts tracking an accepted handle in the Connecting state
func (l *Lifecycle) Register(h Handle) *Session {
	s := &Session{
		handle:      h,
		connectedAt: time.Now().UTC(),
		state:       StateConnecting,
	}

	l.mu.Lock()
	l.sessions[h.ID()] = s
	l.mu.Unlock()

	l.accepted.Add(1)
	l.metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	l.metrics.LiveConnections.Inc()
	logger.Log.Debug("Connection accepted", logger.WithConnID(h.ID()))
	return s
}

// Identify binds the session's handle to userID. Repeating it for the same
// user is a no-op; a closed session cannot be identified.
func (l *Lifecycle) Identify(s *Session, userID string) error {
	if userID == "" {
		return apperrors.ValidationError("user_id", "user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateIdentified:
		if s.userID == userID {
			return nil
		}
		return ErrAlreadyIdentified
	}

	if !s.handle.IsOpen() {
		return ErrSessionClosed
	}

	s.state = StateIdentified
	s.userID = userID
	l.registry.Bind(userID, s.handle)

	l.metrics.ConnectionsTotal.WithLabelValues("identified").Inc()
	logger.Log.Info("Connection identified",
		logger.WithUserID(userID),
		logger.WithConnID(s.ID()),
		zap.Int("user_connections", l.registry.ConnectionCount(userID)))
	return nil
}

// Disconnect moves the session to Closed exactly once. It always unbinds the
// handle, whether or not the session was ever identified, and closes it.
func (l *Lifecycle) Disconnect(s *Session) {
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateClosed
	l.registry.Unbind(s.handle)
	s.mu.Unlock()

	l.mu.Lock()
	delete(l.sessions, s.ID())
	l.mu.Unlock()

	closeHandle(s.handle)

	l.closed.Add(1)
	l.metrics.ConnectionsTotal.WithLabelValues("closed").Inc()
	l.metrics.LiveConnections.Dec()
	logger.Log.Info("Connection closed",
		logger.WithUserID(s.userID),
		logger.WithConnID(s.ID()),
		zap.String("from_state", prev.String()),
		zap.Duration("connected_for", time.Since(s.connectedAt)))
}

// DisconnectHandle closes the session owning h. A handle with no session is
// still unbound and closed.
func (l *Lifecycle) DisconnectHandle(h Handle) {
	if s, ok := l.Session(h.ID()); ok {
		l.Disconnect(s)
		return
	}
	if userID, ok := l.registry.userOf(h.ID()); ok {
		logger.Log.Debug("Releasing handle without a session",
			logger.WithUserID(userID),
			logger.WithConnID(h.ID()))
	}
	l.registry.Unbind(h)
	closeHandle(h)
}

// Session returns the live session for a handle id
func (l *Lifecycle) Session(handleID string) (*Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[handleID]
	return s, ok
}

// Count returns the number of sessions not yet closed
func (l *Lifecycle) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// SessionInfo is an operator's view of one live connection
type SessionInfo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id,omitempty"`
	State       string     `json:"state"`
	ConnectedAt time.Time  `json:"connected_at"`
	LastPingAt  *time.Time `json:"last_ping_at,omitempty"`
	RemoteAddr  string     `json:"remote_addr,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	Pending     int        `json:"pending"`
}

// describer is implemented by handles that can report transport details
type describer interface {
	describe(info *SessionInfo)
}

// Info reports the session's state and, for network handles, its transport
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	info := SessionInfo{
		ID:          s.handle.ID(),
		UserID:      s.userID,
		State:       s.state.String(),
		ConnectedAt: s.connectedAt,
	}
	s.mu.Unlock()

	if d, ok := s.handle.(describer); ok {
		d.describe(&info)
	}
	return info
}

// Sessions lists every live session, oldest first
func (l *Lifecycle) Sessions() []SessionInfo {
	sessions := l.snapshot()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

func (l *Lifecycle) snapshot() []*Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Shutdown tells every live session the server is going away and closes it
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	sessions := l.snapshot()
	logger.Log.Info("Closing realtime sessions", zap.Int("sessions", len(sessions)))

	notice := NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"})
	for _, s := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = s.handle.Send(notice)
		l.Disconnect(s)
	}
	return nil
}
