package wizard

import (
	"sync"
	"time"

	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store keeps wizard sessions in memory with idle-based expiry. Sessions are
// scoped to the owning user; lookups by another user behave like a miss.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	log      *logger.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

const janitorInterval = time.Minute

// NewStore creates a session store and starts its eviction loop.
func NewStore(ttl time.Duration, log *logger.Logger) *Store {
	s := &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		log:      log,
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Put registers a session.
func (s *Store) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Get returns the session if it exists and belongs to the user. A hit resets
// the idle timer.
func (s *Store) Get(id, userID uuid.UUID) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || session.UserID != userID {
		return nil, apperr.NotFound("wizard session not found")
	}
	session.touch()
	return session, nil
}

// Delete removes a session.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the eviction loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.lastTouched().Before(cutoff) {
			delete(s.sessions, id)
			s.log.Info("wizard session expired", "session_id", id.String())
		}
	}
}
