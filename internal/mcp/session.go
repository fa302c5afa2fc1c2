// ABOUTME: In-memory MCP session store with idle expiry.
// ABOUTME: Each session owns the navigation state that decides its tool listing.

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/qbo-gateway/internal/navigation"
)

// session tracks one MCP client.
type session struct {
	id              string
	protocolVersion string
	ownerHash       string // auth.HashToken of the bearer that opened it, "" when anonymous
	nav             *navigation.State
	createdAt       time.Time
	lastSeen        time.Time // guarded by sessionStore.mu
}

func newSession(protocolVersion, ownerHash string, now time.Time) *session {
	return &session{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		ownerHash:       ownerHash,
		nav:             navigation.New(),
		createdAt:       now,
		lastSeen:        now,
	}
}

// sessionStore holds HTTP sessions. Sessions idle longer than ttl are removed
// lazily on lookup and periodically by a background sweeper.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
	onChange func(active int)
	done     chan struct{}
	closed   bool
}

func newSessionStore(ttl time.Duration, onChange func(int)) *sessionStore {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

func (s *sessionStore) create(protocolVersion, ownerHash string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := newSession(protocolVersion, ownerHash, s.now())
	s.sessions[sess.id] = sess
	s.onChange(len(s.sessions))
	return sess
}

// get returns a live session and marks it used.
func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(sess.lastSeen) > s.ttl {
		delete(s.sessions, id)
		s.onChange(len(s.sessions))
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sessions[id]
	if existed {
		delete(s.sessions, id)
		s.onChange(len(s.sessions))
	}
	return existed
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sweep removes idle sessions and returns how many were dropped.
func (s *sessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.onChange(len(s.sessions))
	}
	return removed
}

// sweepInterval is half the TTL, clamped to [1s, 1m].
func (s *sessionStore) sweepInterval() time.Duration {
	interval := s.ttl / 2
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}
	return interval
}

// run sweeps until close is called.
func (s *sessionStore) run(onSweep func(removed int)) {
	ticker := time.NewTicker(s.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		case <-s.done:
			return
		}
	}
}

// close stops the sweeper. It is safe to call multiple times.
func (s *sessionStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
