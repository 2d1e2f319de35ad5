package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"carbex.org/internal/ids"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Service provides user registration, credential checks and token issuance.
type Service struct {
	store  UserStore
	tokens *Tokens
	now    func() time.Time
}

// NewService constructs the auth service. tokens may be nil-secret (token
// issuance disabled) but must not be nil.
func NewService(store UserStore, tokens *Tokens) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: user store is required", ErrInvalidInput)
	}
	if tokens == nil {
		tokens = NewTokens("", "", 0)
	}
	return &Service{store: store, tokens: tokens, now: time.Now}, nil
}

// SupportsTokens reports whether bearer token verification is enabled.
func (s *Service) SupportsTokens() bool {
	return s.tokens.Enabled()
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, email, password, wallet, accountType string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	wallet = strings.TrimSpace(wallet)
	if wallet != "" && !walletPattern.MatchString(wallet) {
		return User{}, fmt.Errorf("%w: wallet must be a 0x-prefixed address", ErrInvalidInput)
	}
	accountType = strings.TrimSpace(strings.ToLower(accountType))

	if existing, err := s.store.FindByEmail(ctx, email); err == nil && existing != nil {
		return User{}, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           ids.New(),
		Email:        email,
		Wallet:       wallet,
		AccountType:  accountType,
		Status:       UserStatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return *u, nil
}

// Authenticate verifies credentials and returns the matching active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return User{}, ErrUnauthorized
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return User{}, ErrUnauthorized
	}
	if u.Status != UserStatusActive {
		return User{}, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrUnauthorized
	}
	return *u, nil
}

// IssueToken signs an access token for the user.
func (s *Service) IssueToken(u User) (string, time.Time, error) {
	return s.tokens.Generate(u)
}

// AuthenticateToken validates an access token and loads its subject.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (User, error) {
	claims, err := s.tokens.ParseAndValidate(token)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	u, err := s.store.Find(ctx, claims.Subject)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	if u.Status != UserStatusActive {
		return User{}, ErrInvalidToken
	}
	return *u, nil
}
