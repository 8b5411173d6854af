package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tripshield/inquiry-desk/internal/repository"
)

func TestMemorySessionLifecycle(t *testing.T) {
	store := NewMemorySessionStore(time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, "agent")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	username, err := store.Get(ctx, token)
	if err != nil || username != "agent" {
		t.Fatalf("expected session hit, got username=%q err=%v", username, err)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestMemorySessionExpiresAndSlides(t *testing.T) {
	store := NewMemorySessionStore(10 * time.Minute)
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	token, _ := store.Create(ctx, "agent")

	// A read inside the TTL renews it.
	current = current.Add(8 * time.Minute)
	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("expected live session, got %v", err)
	}
	current = current.Add(8 * time.Minute)
	if _, err := store.Get(ctx, token); err != nil {
		t.Fatalf("expected renewed session, got %v", err)
	}

	current = current.Add(11 * time.Minute)
	if _, err := store.Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Fatalf("expected password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("expected wrong password to fail")
	}

	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestEnsureAdminUserSeedsOnce(t *testing.T) {
	users := repository.NewMemoryUsersRepository()
	ctx := context.Background()

	if err := EnsureAdminUser(ctx, users, "Admin", "S3cret-pass", nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	user, err := users.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("expected seeded user, got %v", err)
	}
	if !CheckPassword(user.PasswordHash, "S3cret-pass") {
		t.Fatalf("expected stored hash to match password")
	}

	// Second boot with a different password leaves the account alone.
	if err := EnsureAdminUser(ctx, users, "admin", "different-pass", nil); err != nil {
		t.Fatalf("reseed failed: %v", err)
	}
	user, _ = users.GetUserByUsername(ctx, "admin")
	if !CheckPassword(user.PasswordHash, "S3cret-pass") {
		t.Fatalf("expected original password preserved")
	}
}
