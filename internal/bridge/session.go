// Package bridge is the session bridge core: it owns per-conversation state
// and translates the upstream message stream into protocol session updates.
package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softkr/zed-claude-acp/internal/permission"
	"github.com/softkr/zed-claude-acp/internal/upstream"
)

// ErrSessionNotFound reports a lookup for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Session is one logical conversation. The registry owns the id→session map;
// each session guards its own mutable fields.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu             sync.Mutex
	conversationID string
	mode           permission.Mode
	messageCount   int
	lastActiveAt   time.Time
	activeQuery    *upstream.Query
}

// Mode returns the current permission mode.
func (s *Session) Mode() permission.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode replaces the permission mode.
func (s *Session) SetMode(mode permission.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// ConversationID returns the upstream continuation handle, empty until the
// engine assigns one.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetConversationID records the upstream continuation handle.
func (s *Session) SetConversationID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// Touch marks the session active now; called at the start of each prompt.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = now
}

// LastActive returns the last prompt start time.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// RecordMessage bumps the processed-message counter.
func (s *Session) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCount++
}

// MessageCount returns how many upstream messages this session processed.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount
}

// SetActiveQuery installs the in-flight query handle. At most one query may
// be active; callers must TakeActiveQuery (and cancel it) first.
func (s *Session) SetActiveQuery(query *upstream.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeQuery = query
}

// TakeActiveQuery removes and returns the active query, or nil when idle.
func (s *Session) TakeActiveQuery() *upstream.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	query := s.activeQuery
	s.activeQuery = nil
	return query
}

// ClearActiveQuery drops the handle only if it still points at query,
// so a newer prompt's handle is never clobbered by an older cleanup.
func (s *Session) ClearActiveQuery(query *upstream.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeQuery == query {
		s.activeQuery = nil
	}
}

// HasActiveQuery reports whether a query is in flight.
func (s *Session) HasActiveQuery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeQuery != nil
}

// Registry owns the session map. All mutation goes through it.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	defaultMode permission.Mode
	now         func() time.Time
}

// NewRegistry creates an empty registry; new sessions start in defaultMode.
func NewRegistry(defaultMode permission.Mode) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		defaultMode: defaultMode,
		now:         time.Now,
	}
}

func (r *Registry) newSession(id string) *Session {
	now := r.now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		mode:         r.defaultMode,
		lastActiveAt: now,
	}
}

// Create allocates a fresh session under a new unique id. Never fails.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.newSession(uuid.NewString())
	r.sessions[session.ID] = session
	return session
}

// Load returns the session for id, inserting a fresh entry when the id is
// unknown (cold start of an externally known session). Idempotent.
func (r *Registry) Load(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		return session
	}
	session := r.newSession(id)
	r.sessions[id] = session
	return session
}

// Get looks up a session, reporting ErrSessionNotFound on absence.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove deletes the entry. The caller guarantees no active query exists.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Snapshot returns a stable copy of the current sessions for sweeps.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
