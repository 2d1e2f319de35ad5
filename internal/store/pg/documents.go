package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"carbex.org/internal/document"
	"carbex.org/internal/ids"
)

var _ document.Service = (*Store)(nil)

const documentColumns = `id, owner_id, project_name, project_type, status, estimated_credits, coalesce(note,''), created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (document.Document, error) {
	var d document.Document
	err := row.Scan(&d.ID, &d.Owner, &d.ProjectName, &d.ProjectType, &d.Status,
		&d.EstimatedCredits, &d.Note, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) Submit(ctx context.Context, owner, projectName, projectType string, estimatedCredits int64) (document.Document, error) {
	owner = strings.TrimSpace(owner)
	projectName = strings.TrimSpace(projectName)
	if owner == "" || projectName == "" || estimatedCredits <= 0 {
		return document.Document{}, document.ErrInvalidInput
	}

	id := ids.New()
	row := s.db.QueryRowContext(ctx, `
		insert into documents(id, owner_id, project_name, project_type, status, estimated_credits)
		values ($1,$2,$3,$4,$5,$6)
		returning `+documentColumns,
		id, owner, projectName, strings.TrimSpace(projectType), document.StatusPending, estimatedCredits)
	return scanDocument(row)
}

func (s *Store) Get(ctx context.Context, id string) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, `select `+documentColumns+` from documents where id=$1`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, document.ErrNotFound
	}
	return d, err
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]document.Document, error) {
	return s.listDocuments(ctx, `where owner_id=$1 order by created_at asc`, owner)
}

func (s *Store) List(ctx context.Context, status string) ([]document.Document, error) {
	if status == "" {
		return s.listDocuments(ctx, `order by created_at asc`)
	}
	return s.listDocuments(ctx, `where status=$1 order by created_at asc`, status)
}

func (s *Store) listDocuments(ctx context.Context, tail string, args ...any) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, `select `+documentColumns+` from documents `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// SetStatus advances a document, checking the transition under a row lock.
func (s *Store) SetStatus(ctx context.Context, id, status, note string) (document.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `select status from documents where id=$1 for update`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, document.ErrNotFound
	}
	if err != nil {
		return document.Document{}, err
	}
	if !document.CanTransition(current, status) {
		return document.Document{}, document.ErrInvalidTransition
	}

	row := tx.QueryRowContext(ctx, `
		update documents
		set status=$2, note=nullif($3,''), updated_at=now()
		where id=$1
		returning `+documentColumns, id, status, note)
	d, err := scanDocument(row)
	if err != nil {
		return document.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return document.Document{}, err
	}
	return d, nil
}

func (s *Store) StatusCounts(ctx context.Context, owner string) (map[string]int, error) {
	counts := make(map[string]int, len(document.Statuses()))
	for _, st := range document.Statuses() {
		counts[st] = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if owner == "" {
		rows, err = s.db.QueryContext(ctx, `select status, count(*) from documents group by status`)
	} else {
		rows, err = s.db.QueryContext(ctx, `select status, count(*) from documents where owner_id=$1 group by status`, owner)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
