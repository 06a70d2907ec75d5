package cleaning

import (
	"context"
	"sync"
)

// Store persists sessions. Implementations must give read-your-writes
// consistency for a single session id.
type Store interface {
	// Load returns ErrSessionNotFound when the id is unknown.
	Load(ctx context.Context, id string) (Session, error)
	// Create inserts a new session. It fails with ErrSessionAlreadyActive if the
	// owner already has an active or paused session.
	Create(ctx context.Context, s Session) error
	// Save replaces a session atomically. s.Version must be exactly one more than
	// the stored version, otherwise ErrSessionBusy is returned and nothing changes.
	Save(ctx context.Context, s Session) error
	// FindActiveByOwner returns the owner's active or paused session, if any.
	FindActiveByOwner(ctx context.Context, ownerID string) (Session, bool, error)
}

// Notifier receives every completed task. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, task TaskDescriptor) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrSessionAlreadyActive
	}
	for _, other := range s.sessions {
		if other.OwnerID == sess.OwnerID && !other.Status.Terminal() {
			return ErrSessionAlreadyActive
		}
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) Save(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[sess.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if current.Version+1 != sess.Version {
		return ErrSessionBusy
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) FindActiveByOwner(_ context.Context, ownerID string) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID && !sess.Status.Terminal() {
			return sess.Clone(), true, nil
		}
	}
	return Session{}, false, nil
}

// Len reports how many sessions are stored, finished ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
