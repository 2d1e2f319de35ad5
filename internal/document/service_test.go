package document

import (
	"context"
	"errors"
	"testing"
)

func TestSubmitAndGet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	d, err := s.Submit(ctx, "acct-1", "Reforestation BR-04", "forestry", 12000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Status != StatusPending {
		t.Fatalf("status=%s", d.Status)
	}

	got, err := s.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ProjectName != "Reforestation BR-04" || got.Owner != "acct-1" {
		t.Fatalf("unexpected document: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	cases := []struct {
		owner, name string
		credits     int64
	}{
		{"", "p", 1},
		{"o", "  ", 1},
		{"o", "p", 0},
		{"o", "p", -5},
	}
	for _, c := range cases {
		if _, err := s.Submit(ctx, c.owner, c.name, "", c.credits); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Submit(%q,%q,%d) err=%v", c.owner, c.name, c.credits, err)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	d, _ := s.Submit(ctx, "acct-1", "Solar KZ-01", "solar", 500)

	// pending -> attested skips review and must fail.
	if _, err := s.SetStatus(ctx, d.ID, StatusAttested, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skip review err=%v", err)
	}

	for _, st := range []string{StatusUnderReview, StatusAttested, StatusMinted} {
		if _, err := s.SetStatus(ctx, d.ID, st, ""); err != nil {
			t.Fatalf("SetStatus(%s): %v", st, err)
		}
	}

	// Minted is terminal.
	if _, err := s.SetStatus(ctx, d.ID, StatusRejected, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject after mint err=%v", err)
	}

	d2, _ := s.Submit(ctx, "acct-1", "Wind DE-11", "wind", 900)
	rej, err := s.SetStatus(ctx, d2.ID, StatusRejected, "missing baseline data")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rej.Note != "missing baseline data" {
		t.Fatalf("note=%q", rej.Note)
	}
	if _, err := s.SetStatus(ctx, d2.ID, StatusUnderReview, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revive rejected err=%v", err)
	}
}

func TestListAndCounts(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	a, _ := s.Submit(ctx, "acct-1", "A", "", 10)
	s.Submit(ctx, "acct-1", "B", "", 20)
	s.Submit(ctx, "acct-2", "C", "", 30)
	s.SetStatus(ctx, a.ID, StatusUnderReview, "")

	mine, err := s.ListByOwner(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(mine) != 2 || mine[0].ProjectName != "A" || mine[1].ProjectName != "B" {
		t.Fatalf("unexpected listing: %+v", mine)
	}

	queue, err := s.List(ctx, StatusUnderReview)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != a.ID {
		t.Fatalf("unexpected queue: %+v", queue)
	}

	counts, err := s.StatusCounts(ctx, "acct-1")
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts[StatusPending] != 1 || counts[StatusUnderReview] != 1 {
		t.Fatalf("counts=%v", counts)
	}
	all, _ := s.StatusCounts(ctx, "")
	if all[StatusPending] != 2 {
		t.Fatalf("all counts=%v", all)
	}
}
