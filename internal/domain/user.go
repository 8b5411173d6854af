package domain

import "time"

// User is a staff dashboard login.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
