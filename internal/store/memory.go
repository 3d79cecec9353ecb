package store

import (
	"sync"

	"github.com/dreamstone/dreamstone/internal/models"
)

// InMemoryStore is a mutex-guarded store for tests and single-process use.
type InMemoryStore struct {
	mu          sync.RWMutex
	users       map[string]models.User
	progress    map[string]models.ReadingProgress
	invocations []models.FlowInvocation
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		progress: make(map[string]models.ReadingProgress),
	}
}

func (s *InMemoryStore) CreateUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; exists {
		return ErrUserExists
	}
	s.users[u.Username] = u
	return nil
}

func (s *InMemoryStore) GetUser(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, exists := s.users[username]
	if !exists {
		return nil, nil
	}
	found := u
	return &found, nil
}

func (s *InMemoryStore) SaveProgress(p models.ReadingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.Username] = p
	return nil
}

func (s *InMemoryStore) GetProgress(username string) (*models.ReadingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.progress[username]
	if !exists {
		return nil, nil
	}
	found := p
	return &found, nil
}

func (s *InMemoryStore) AddInvocation(inv models.FlowInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = append(s.invocations, inv)
	return nil
}

func (s *InMemoryStore) GetInvocations(username string, limit int) ([]models.FlowInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FlowInvocation
	// Newest first.
	for i := len(s.invocations) - 1; i >= 0; i-- {
		inv := s.invocations[i]
		if username != "" && inv.Username != username {
			continue
		}
		out = append(out, inv)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
