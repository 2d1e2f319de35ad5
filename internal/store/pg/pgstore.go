// Package pg persists marketplace state in PostgreSQL behind the same
// interfaces the in-memory services implement.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"carbex.org/internal/auth"
	"carbex.org/internal/ids"
)

type Store struct {
	db *sql.DB
}

var _ auth.UserStore = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- auth.UserStore ---

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if u == nil {
		return auth.ErrInvalidInput
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, wallet, account_type, status, password_hash, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,now(),now())
	`, u.ID, u.Email, u.Wallet, u.AccountType, u.Status, u.PasswordHash)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findUser(ctx, `where id=$1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, `where email=$1`, email)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, wallet, account_type, status, password_hash, created_at, updated_at
		from users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Wallet, &u.AccountType, &u.Status, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
