package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

var ErrWeakPassword = errors.New("password must be at least 8 characters")

func HashPassword(plain string) (string, error) {
	if len(plain) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// EnsureAdminUser seeds the dashboard account on boot when it does not
// exist yet. An existing account is left untouched, so password changes
// via env only apply to fresh databases.
func EnsureAdminUser(
	ctx context.Context,
	users repository.UsersRepository,
	username string,
	password string,
	logger *log.Logger,
) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil
	}

	_, err := users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("look up admin user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	if err := users.CreateUser(ctx, &domain.User{Username: username, PasswordHash: hash}); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("seed admin user: %w", err)
	}

	if logger != nil {
		logger.Printf("seeded admin user username=%s", username)
	}
	return nil
}
