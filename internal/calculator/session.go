package calculator

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for ids the store does not hold.
var ErrSessionNotFound = errors.New("session not found")

// DefaultMaxSessions bounds a Store created with a non-positive capacity.
const DefaultMaxSessions = 1024

// Session is one interactive calculator: an engine plus the lock that
// serializes access to it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.Mutex
	brain *Brain
}

// Snapshot is a consistent view of a session's engine.
type Snapshot struct {
	Result  float64
	State   State
	Program Program
}

// Do runs fn with exclusive access to the session's engine and returns the
// snapshot taken right after it.
func (s *Session) Do(fn func(b *Brain)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.brain)
	return s.snapshotLocked()
}

// Snapshot reads the engine without changing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Result:  s.brain.Result(),
		State:   s.brain.State(),
		Program: s.brain.Program(),
	}
}

// Store owns the live sessions. When full, creating a session evicts the
// least recently used one.
type Store struct {
	ops      Operations
	capacity int

	mu       sync.Mutex
	order    *list.List // front = most recently used
	sessions map[string]*list.Element
}

// NewStore returns an empty store whose sessions use ops.
func NewStore(ops Operations, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	if ops == nil {
		ops = DefaultOperations()
	}
	return &Store{
		ops:      ops.Clone(),
		capacity: capacity,
		order:    list.New(),
		sessions: make(map[string]*list.Element, capacity),
	}
}

// Operations returns a copy of the table sessions are created with.
func (s *Store) Operations() Operations {
	return s.ops.Clone()
}

// Create starts a new session with an idle engine.
func (s *Store) Create() *Session {
	sess := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		brain:     NewBrain(s.ops),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = s.order.PushFront(sess)
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.sessions, oldest.Value.(*Session).ID)
	}
	return sess
}

// Get returns the session with the given id and marks it recently used.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.order.MoveToFront(e)
	return e.Value.(*Session), nil
}

// Delete drops the session with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.order.Remove(e)
	delete(s.sessions, id)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
