// Package conversation provides the per-session conversation memory.
//
// Turns are strictly append-ordered and never rewritten. The store has no
// automatic eviction or size bound: memory grows for the process lifetime
// until an explicit Reset. That is the inherited contract, and a known
// scaling gap.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	// RoleHuman is the user side of an exchange.
	RoleHuman Role = "human"

	// RoleAssistant is the engine side of an exchange.
	RoleAssistant Role = "assistant"
)

// Turn is one (role, text) pair in a session.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

type session struct {
	// mu serializes appends for this session so turn ordering is
	// preserved under concurrent requests on the same session.
	mu    sync.Mutex
	turns []Turn
}

// Store holds conversation state keyed by session identifier.
//
// Appends for different sessions proceed in parallel; appends for the
// same session are serialized.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// EnsureSession returns sessionID unchanged when non-empty, otherwise
// mints a fresh identifier.
func (s *Store) EnsureSession(sessionID string) string {
	if strings.TrimSpace(sessionID) != "" {
		return sessionID
	}
	return uuid.NewString()
}

func (s *Store) session(sessionID string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{}
	s.sessions[sessionID] = sess
	return sess
}

// Append adds turns to the session in order.
func (s *Store) Append(sessionID string, turns ...Turn) {
	sess := s.session(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turns...)
}

// History returns a copy of the session's turns in append order.
// A session that was never written to yields an empty slice.
func (s *Store) History(sessionID string) []Turn {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []Turn{}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Reset discards the session's turns.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// ResetAll discards every session.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
