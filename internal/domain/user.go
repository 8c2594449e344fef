package domain

import "time"

// User types.
const (
	UserTypeGuest      = "guest"
	UserTypeRegistered = "registered"
)

// User represents a player account, either an anonymous guest or a registered player.
type User struct {
	ID           string
	Email        *string
	PasswordHash []byte
	Type         string
	Banned       bool
	CreatedAt    time.Time
}

// Admin is an operator allowed into the dashboard.
type Admin struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
	LastLogin    *time.Time
}
