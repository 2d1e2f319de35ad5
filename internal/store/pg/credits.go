package pg

import (
	"context"
	"database/sql"
	"errors"

	"carbex.org/internal/credit"
	"carbex.org/internal/ids"
)

var _ credit.Service = (*Store)(nil)

const allocationColumns = `id, created_at, account_id, document_id, amount, status, coalesce(idempotency_key,''), sequence`

func scanAllocation(row interface{ Scan(...any) error }) (credit.Allocation, error) {
	var a credit.Allocation
	err := row.Scan(&a.ID, &a.CreatedAt, &a.AccountID, &a.DocumentID,
		&a.Amount, &a.Status, &a.IdempotencyKey, &a.Sequence)
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, id string) (credit.Account, error) {
	if id == "" {
		id = ids.New()
	}
	var acc credit.Account
	err := s.db.QueryRowContext(ctx, `
		insert into accounts(id) values ($1)
		on conflict (id) do update set id = accounts.id
		returning id, created_at, balance
	`, id).Scan(&acc.ID, &acc.CreatedAt, &acc.Balance)
	return acc, err
}

func (s *Store) GetAccount(ctx context.Context, id string) (credit.Account, error) {
	var acc credit.Account
	err := s.db.QueryRowContext(ctx,
		`select id, created_at, balance from accounts where id=$1`, id,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.Account{}, credit.ErrNotFound
	}
	return acc, err
}

func (s *Store) Allocate(ctx context.Context, accountID, documentID string, amount int64, idemKey string) (credit.Allocation, error) {
	if amount <= 0 {
		return credit.Allocation{}, credit.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return credit.Allocation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency: return the recorded allocation on replay.
	if idemKey != "" {
		row := tx.QueryRowContext(ctx,
			`select `+allocationColumns+` from allocations where idempotency_key=$1`, idemKey)
		a, err := scanAllocation(row)
		if err == nil {
			return a, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return credit.Allocation{}, err
		}
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from accounts where id=$1 for update`, accountID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credit.Allocation{}, credit.ErrNotFound
		}
		return credit.Allocation{}, err
	}

	row := tx.QueryRowContext(ctx, `
		insert into allocations(id, account_id, document_id, amount, status, idempotency_key)
		values ($1,$2,$3,$4,$5,nullif($6,''))
		returning `+allocationColumns,
		ids.New(), accountID, documentID, amount, credit.AllocationPending, idemKey)
	a, err := scanAllocation(row)
	if err != nil {
		return credit.Allocation{}, err
	}
	if err := tx.Commit(); err != nil {
		return credit.Allocation{}, err
	}
	return a, nil
}

func (s *Store) Complete(ctx context.Context, allocationID string) (credit.Allocation, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return credit.Allocation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+allocationColumns+` from allocations where id=$1 for update`, allocationID)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.Allocation{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.Allocation{}, err
	}
	if a.Status != credit.AllocationPending {
		return credit.Allocation{}, credit.ErrInvalidStatus
	}

	if _, err := tx.ExecContext(ctx,
		`update allocations set status=$2 where id=$1`, allocationID, credit.AllocationCompleted); err != nil {
		return credit.Allocation{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`update accounts set balance = balance + $2 where id=$1`, a.AccountID, a.Amount); err != nil {
		return credit.Allocation{}, err
	}
	if err := tx.Commit(); err != nil {
		return credit.Allocation{}, err
	}
	a.Status = credit.AllocationCompleted
	return a, nil
}

func (s *Store) Retire(ctx context.Context, accountID string, amount int64) (credit.Account, error) {
	if amount <= 0 {
		return credit.Account{}, credit.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return credit.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var acc credit.Account
	err = tx.QueryRowContext(ctx,
		`select id, created_at, balance from accounts where id=$1 for update`, accountID,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.Account{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.Account{}, err
	}
	if acc.Balance < amount {
		return credit.Account{}, credit.ErrInsufficientCredits
	}

	if _, err := tx.ExecContext(ctx,
		`update accounts set balance = balance - $2 where id=$1`, accountID, amount); err != nil {
		return credit.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return credit.Account{}, err
	}
	acc.Balance -= amount
	return acc, nil
}

func (s *Store) BalanceInfo(ctx context.Context, accountID string) (credit.BalanceInfo, error) {
	var info credit.BalanceInfo
	err := s.db.QueryRowContext(ctx, `
		select a.balance,
		       coalesce(sum(al.amount) filter (where al.status='completed'), 0),
		       count(al.id)
		from accounts a
		left join allocations al on al.account_id = a.id
		where a.id=$1
		group by a.balance
	`, accountID).Scan(&info.CurrentBalance, &info.TotalAllocated, &info.AllocationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return credit.BalanceInfo{}, credit.ErrNotFound
	}
	if err != nil {
		return credit.BalanceInfo{}, err
	}

	recent, err := s.listAllocationsWhere(ctx,
		`where account_id=$1 and status='completed' order by sequence desc limit 5`, accountID)
	if err != nil {
		return credit.BalanceInfo{}, err
	}
	pending, err := s.listAllocationsWhere(ctx,
		`where account_id=$1 and status='pending' order by sequence asc`, accountID)
	if err != nil {
		return credit.BalanceInfo{}, err
	}
	info.Recent = recent
	info.Pending = pending
	return info, nil
}

func (s *Store) ListAllocations(ctx context.Context, accountID string, limit int, afterSeq uint64) ([]credit.Allocation, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if accountID == "" {
		rows, err = s.db.QueryContext(ctx, `
			select `+allocationColumns+` from allocations
			where sequence > $1 order by sequence asc limit $2
		`, afterSeq, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select `+allocationColumns+` from allocations
			where sequence > $1 and account_id = $3 order by sequence asc limit $2
		`, afterSeq, limit, accountID)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []credit.Allocation
	var last uint64
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, a)
		last = a.Sequence
	}
	return res, last, rows.Err()
}

func (s *Store) listAllocationsWhere(ctx context.Context, tail string, args ...any) ([]credit.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `select `+allocationColumns+` from allocations `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []credit.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
