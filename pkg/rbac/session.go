package rbac

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionDuration bounds session idle time when no role constraint
// sets a tighter limit.
const DefaultSessionDuration = 8 * time.Hour

// SessionTracker holds active access sessions. A session snapshots the user's
// resolved roles, flattened permission set, and merged constraints at login;
// it ends when explicitly closed or when idle past the merged max session
// duration. Ending a session is terminal.
type SessionTracker struct {
	mu           sync.RWMutex
	sessions     map[string]*AccessSession
	maxDefault   time.Duration
	clock        Clock
	onSessionEnd func(AccessSession)
}

// NewSessionTracker creates a tracker with the given default idle bound.
func NewSessionTracker(defaultDuration time.Duration, clock Clock) *SessionTracker {
	if defaultDuration <= 0 {
		defaultDuration = DefaultSessionDuration
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &SessionTracker{
		sessions:   make(map[string]*AccessSession),
		maxDefault: defaultDuration,
		clock:      clock,
	}
}

// OnSessionEnd registers a callback invoked for each ended session. Set once
// at wiring time, before the tracker is used.
func (t *SessionTracker) OnSessionEnd(fn func(AccessSession)) {
	t.onSessionEnd = fn
}

// Start opens a session for the user. The caller supplies the resolved role
// snapshot; the tracker assigns the session id.
func (t *SessionTracker) Start(userID, tenantID string, roleIDs, permissions []string, constraints RoleConstraints) *AccessSession {
	now := t.clock.Now()
	s := &AccessSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		TenantID:     tenantID,
		RoleIDs:      append([]string(nil), roleIDs...),
		Permissions:  append([]string(nil), permissions...),
		Constraints:  constraints,
		StartedAt:    now,
		LastActivity: now,
	}
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	out := *s
	return &out
}

// Touch refreshes the session's last-activity time. Unknown or already ended
// sessions report false.
func (t *SessionTracker) Touch(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	s.LastActivity = t.clock.Now()
	return true
}

// TouchUser refreshes every session the user holds in the tenant.
func (t *SessionTracker) TouchUser(userID, tenantID string) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if s.UserID == userID && s.TenantID == tenantID {
			s.LastActivity = now
		}
	}
}

// End closes the session. It reports whether the session existed.
func (t *SessionTracker) End(sessionID string) bool {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	if ok && t.onSessionEnd != nil {
		t.onSessionEnd(*s)
	}
	return ok
}

// EndUserSessions closes every session the user holds in the tenant, used on
// logout and tenant switch.
func (t *SessionTracker) EndUserSessions(userID, tenantID string) int {
	t.mu.Lock()
	var ended []*AccessSession
	for id, s := range t.sessions {
		if s.UserID == userID && (tenantID == "" || s.TenantID == tenantID) {
			ended = append(ended, s)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()
	if t.onSessionEnd != nil {
		for _, s := range ended {
			t.onSessionEnd(*s)
		}
	}
	return len(ended)
}

// Sweep ends sessions idle past their merged max duration and returns how
// many were ended. Run periodically from the host scheduler.
func (t *SessionTracker) Sweep() int {
	now := t.clock.Now()
	t.mu.Lock()
	var expired []*AccessSession
	for id, s := range t.sessions {
		max := s.Constraints.MaxSessionDuration
		if max <= 0 {
			max = t.maxDefault
		}
		if now.Sub(s.LastActivity) > max {
			expired = append(expired, s)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()
	if t.onSessionEnd != nil {
		for _, s := range expired {
			t.onSessionEnd(*s)
		}
	}
	return len(expired)
}

// Get returns a copy of the session.
func (t *SessionTracker) Get(sessionID string) (*AccessSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	out := *s
	return &out, true
}

// Active returns copies of the active sessions, optionally filtered by
// tenant, ordered by start time.
func (t *SessionTracker) Active(tenantID string) []AccessSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []AccessSession
	for _, s := range t.sessions {
		if tenantID == "" || s.TenantID == tenantID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CountUser returns the user's active session count in the tenant, consulted
// against the merged max-concurrent-sessions bound.
func (t *SessionTracker) CountUser(userID, tenantID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.UserID == userID && s.TenantID == tenantID {
			n++
		}
	}
	return n
}
