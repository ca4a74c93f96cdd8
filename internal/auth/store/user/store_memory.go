// Package user stores registered accounts.
package user

import (
	"context"
	"strings"
	"sync"

	"securekyc/internal/auth/models"
	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in memory, keyed by ID with a lower-cased
// email index.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Create stores user, or returns sentinel.ErrConflict when the email is taken.
func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	key := strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[key]; taken {
		return sentinel.ErrConflict
	}
	u := *user
	s.users[user.ID] = &u
	s.byEmail[key] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := *s.users[userID]
	return &u, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := *user
	return &u, nil
}

// EmailOf resolves a record owner's email for admin listings.
func (s *InMemoryUserStore) EmailOf(ctx context.Context, userID id.UserID) (string, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
