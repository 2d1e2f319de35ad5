package auth

import (
	"context"
	"time"
)

// User represents a marketplace participant. AccountType is the raw value
// carried by the profile; the access package resolves it to a closed role set.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Wallet       string    `json:"wallet,omitempty"`
	AccountType  string    `json:"account_type"`
	Status       string    `json:"status"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Authenticated reports whether the user value denotes a signed-in principal.
func (u *User) Authenticated() bool {
	return u != nil && u.ID != ""
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// UserStore describes persistence required by the auth service.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}
