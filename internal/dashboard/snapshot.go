package dashboard

import (
	"time"

	"carbex.org/internal/chain"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
)

// Snapshot is one consistent view of a user's dashboard data, assembled from
// a single fetch round.
type Snapshot struct {
	Balance      credit.BalanceInfo  `json:"balance"`
	Documents    []document.Document `json:"documents"`
	StatusCounts map[string]int      `json:"status_counts"`
	Holdings     []chain.Holding     `json:"holdings"`
	FetchedAt    time.Time           `json:"fetched_at"`
}

// Summary is the compact aggregate used by the dashboard header.
type Summary struct {
	CurrentBalance   int64   `json:"current_balance"`
	TotalAllocated   int64   `json:"total_allocated"`
	TotalDocuments   int     `json:"total_documents"`
	PendingDocuments int     `json:"pending_documents"`
	VerificationRate float64 `json:"verification_rate"`
}

// changed reports whether next differs from prev on the fields the dashboard
// renders reactively: balance figures, document count/identity/status, and
// allocation identity. Holdings refresh with every publish and are not
// compared.
func changed(prev, next *Snapshot) bool {
	if prev == nil {
		return true
	}
	pb, nb := prev.Balance, next.Balance
	if pb.CurrentBalance != nb.CurrentBalance ||
		pb.TotalAllocated != nb.TotalAllocated ||
		pb.AllocationCount != nb.AllocationCount {
		return true
	}
	if len(prev.Documents) != len(next.Documents) {
		return true
	}
	for i := range prev.Documents {
		if prev.Documents[i].ID != next.Documents[i].ID ||
			prev.Documents[i].Status != next.Documents[i].Status {
			return true
		}
	}
	if !sameAllocationIDs(pb.Recent, nb.Recent) || !sameAllocationIDs(pb.Pending, nb.Pending) {
		return true
	}
	return false
}

func sameAllocationIDs(a, b []credit.Allocation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// clone copies the snapshot so callers cannot mutate the cache.
func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Documents = append([]document.Document(nil), s.Documents...)
	cp.Holdings = append([]chain.Holding(nil), s.Holdings...)
	cp.Balance.Recent = append([]credit.Allocation(nil), s.Balance.Recent...)
	cp.Balance.Pending = append([]credit.Allocation(nil), s.Balance.Pending...)
	cp.StatusCounts = make(map[string]int, len(s.StatusCounts))
	for k, v := range s.StatusCounts {
		cp.StatusCounts[k] = v
	}
	return &cp
}
