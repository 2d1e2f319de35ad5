package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"carbex.org/internal/auth"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestFindUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select id, email, wallet, account_type, status, password_hash, created_at, updated_at\s+from users where id=\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "wallet", "account_type", "status", "password_hash", "created_at", "updated_at",
		}).AddRow("u1", "a@b.c", "", "individual", "active", "hash", now, now))

	u, err := s.Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.Email != "a@b.c" || u.AccountType != "individual" {
		t.Fatalf("user=%+v", u)
	}

	mock.ExpectQuery(`from users where id=\$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := s.Find(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing err=%v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetStatusChecksTransition(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`select status from documents where id=\$1 for update`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(document.StatusMinted))
	mock.ExpectRollback()

	_, err := s.SetStatus(context.Background(), "d1", document.StatusRejected, "")
	if !errors.Is(err, document.ErrInvalidTransition) {
		t.Fatalf("err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRetireInsufficient(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`select id, created_at, balance from accounts where id=\$1 for update`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "balance"}).
			AddRow("acct-1", now, int64(100)))
	mock.ExpectRollback()

	_, err := s.Retire(context.Background(), "acct-1", 500)
	if !errors.Is(err, credit.ErrInsufficientCredits) {
		t.Fatalf("err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAllocateIdempotentReplay(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`from allocations where idempotency_key=\$1`).
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "created_at", "account_id", "document_id", "amount", "status", "idempotency_key", "sequence",
		}).AddRow("al-1", now, "acct-1", "d1", int64(100), credit.AllocationPending, "key-1", int64(7)))
	mock.ExpectCommit()

	a, err := s.Allocate(context.Background(), "acct-1", "d1", 100, "key-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.ID != "al-1" || a.Sequence != 7 {
		t.Fatalf("allocation=%+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
