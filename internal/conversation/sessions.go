package conversation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is a chat session of one user.
type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time

	mu      sync.Mutex
	tracker *Tracker

	now        func() time.Time
	lastActive atomic.Int64 // unix nanoseconds
}

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// LastActive returns when the session was last looked up or used.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()).UTC() }

// Do runs fn with exclusive access to the session's tracker.
func (s *Session) Do(fn func(*Tracker)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tracker)
	s.touch()
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.State()
}

// Sessions is an in-memory registry of chat sessions. Idle sessions are
// dropped by EvictIdle; their persisted snapshots can be brought back with
// Restore.
type Sessions struct {
	newTracker func() *Tracker
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions creates a registry whose sessions use trackers from newTracker.
// A nil newTracker means NewTracker.
func NewSessions(newTracker func() *Tracker) *Sessions {
	if newTracker == nil {
		newTracker = NewTracker
	}
	return &Sessions{newTracker: newTracker, now: time.Now, sessions: make(map[string]*Session)}
}

func (r *Sessions) add(s *Session) *Session {
	s.now = r.now
	s.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.ID]; ok {
		return existing
	}
	r.sessions[s.ID] = s
	return s
}

// Create starts a new session for username.
func (r *Sessions) Create(username string) *Session {
	return r.add(&Session{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: r.now().UTC(),
		tracker:   r.newTracker(),
	})
}

// Restore registers a session rebuilt from a saved state. When the ID is
// already live the existing session wins.
func (r *Sessions) Restore(id, username string, createdAt time.Time, st State) *Session {
	t := r.newTracker()
	t.Restore(st)
	return r.add(&Session{
		ID:        id,
		Username:  username,
		CreatedAt: createdAt.UTC(),
		tracker:   t,
	})
}

// Get looks up a session by ID.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// DeleteUser removes every session of username and returns how many there were.
func (r *Sessions) DeleteUser(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.Username == username {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// EvictIdle drops sessions unused for longer than maxIdle and returns how
// many were dropped.
func (r *Sessions) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.lastActive.Load() < cutoff {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// RunEviction calls EvictIdle every interval until ctx is cancelled.
func (r *Sessions) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(maxIdle); n > 0 {
				slog.Debug("evicted idle chat sessions", "evicted", n, "live", r.Len())
			}
		}
	}
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
