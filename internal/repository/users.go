package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

// UsersRepository stores staff dashboard logins.
type UsersRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type MemoryUsersRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewMemoryUsersRepository() *MemoryUsersRepository {
	return &MemoryUsersRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryUsersRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	key := strings.ToLower(user.Username)
	if _, exists := r.users[key]; exists {
		return ErrAlreadyExists
	}
	clone := *user
	r.users[key] = &clone
	return nil
}

func (r *MemoryUsersRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}
