package document

import (
	"context"
	"strings"
	"sync"
	"time"

	"carbex.org/internal/ids"
)

// Service defines document lifecycle operations.
type Service interface {
	Submit(ctx context.Context, owner, projectName, projectType string, estimatedCredits int64) (Document, error)
	Get(ctx context.Context, id string) (Document, error)
	ListByOwner(ctx context.Context, owner string) ([]Document, error)
	List(ctx context.Context, status string) ([]Document, error)
	SetStatus(ctx context.Context, id, status, note string) (Document, error)
	StatusCounts(ctx context.Context, owner string) (map[string]int, error)
}

// InMemory implements Service backed by process memory.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[string]*Document
	order []string // insertion order for stable listings
	now   func() time.Time
}

var _ Service = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		byID: make(map[string]*Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a new document in pending status.
func (s *InMemory) Submit(ctx context.Context, owner, projectName, projectType string, estimatedCredits int64) (Document, error) {
	owner = strings.TrimSpace(owner)
	projectName = strings.TrimSpace(projectName)
	if owner == "" || projectName == "" || estimatedCredits <= 0 {
		return Document{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	d := &Document{
		ID:               ids.New(),
		Owner:            owner,
		ProjectName:      projectName,
		ProjectType:      strings.TrimSpace(projectType),
		Status:           StatusPending,
		EstimatedCredits: estimatedCredits,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.byID[d.ID] = d
	s.order = append(s.order, d.ID)
	return *d, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return *d, nil
}

// ListByOwner returns the owner's documents in submission order.
func (s *InMemory) ListByOwner(ctx context.Context, owner string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Document
	for _, id := range s.order {
		if d := s.byID[id]; d.Owner == owner {
			res = append(res, *d)
		}
	}
	return res, nil
}

// List returns all documents, optionally filtered by status. Used by the
// verifier review queue.
func (s *InMemory) List(ctx context.Context, status string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Document
	for _, id := range s.order {
		d := s.byID[id]
		if status != "" && d.Status != status {
			continue
		}
		res = append(res, *d)
	}
	return res, nil
}

// SetStatus advances a document through the review state machine.
func (s *InMemory) SetStatus(ctx context.Context, id, status, note string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	if !validTransition(d.Status, status) {
		return Document{}, ErrInvalidTransition
	}
	d.Status = status
	if note != "" {
		d.Note = note
	}
	d.UpdatedAt = s.now()
	return *d, nil
}

// StatusCounts tallies documents per status. An empty owner counts all.
func (s *InMemory) StatusCounts(ctx context.Context, owner string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(Statuses()))
	for _, st := range Statuses() {
		counts[st] = 0
	}
	for _, d := range s.byID {
		if owner != "" && d.Owner != owner {
			continue
		}
		counts[d.Status]++
	}
	return counts, nil
}
