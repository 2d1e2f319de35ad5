package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carbex.org/internal/auth"
	"carbex.org/internal/chain"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
)

// fixture backs every source interface with mutable state so tests can
// change what the next poll round observes.
type fixture struct {
	mu       sync.Mutex
	user     *auth.User
	bal      credit.BalanceInfo
	balErr   error
	docs     []document.Document
	counts   map[string]int
	holdings []chain.Holding
	fetches  int
	block    chan struct{} // when set, BalanceInfo waits on it
}

func newFixture() *fixture {
	return &fixture{
		user:   &auth.User{ID: "acct-1", Wallet: "0xabc0000000000000000000000000000000000abc", AccountType: "individual"},
		counts: map[string]int{},
	}
}

func (f *fixture) CurrentUser(ctx context.Context) (auth.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return auth.User{}, false
	}
	return *f.user, true
}

func (f *fixture) BalanceInfo(ctx context.Context, accountID string) (credit.BalanceInfo, error) {
	f.mu.Lock()
	f.fetches++
	bal, err, block := f.bal, f.balErr, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return bal, err
}

func (f *fixture) ListByOwner(ctx context.Context, owner string) ([]document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]document.Document(nil), f.docs...), nil
}

func (f *fixture) StatusCounts(ctx context.Context, owner string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

func (f *fixture) Holdings(ctx context.Context, wallet string) ([]chain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.Holding(nil), f.holdings...), nil
}

func (f *fixture) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fixture) set(mutate func(*fixture)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f)
}

// recorder captures notifier events.
type recorder struct {
	mu        sync.Mutex
	completed []string
	statuses  []string
	deltas    []int64
}

func (r *recorder) AllocationCompleted(ctx context.Context, accountID, allocationID string, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, allocationID)
}

func (r *recorder) DocumentStatusChanged(ctx context.Context, owner, documentID, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, documentID+":"+from+">"+to)
}

func (r *recorder) BalanceIncreased(ctx context.Context, accountID string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func newSync(f *fixture, rec *recorder) *Synchronizer {
	src := Sources{Users: f, Balances: f, Documents: f, Holdings: f}
	if rec != nil {
		src.Notifier = rec
	}
	return NewSynchronizer(src, time.Hour)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

func TestSubscriberLifecycle(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	defer s.Cleanup()

	if s.PollingActive() {
		t.Fatalf("timer running with no subscribers")
	}

	var mu sync.Mutex
	var got []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		got = append(got, snap)
		mu.Unlock()
	})
	if !s.PollingActive() {
		t.Fatalf("timer not started by first subscriber")
	}

	// The first subscriber triggers an immediate refresh.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	if s.CachedSnapshot() == nil || s.LastUpdate().IsZero() {
		t.Fatalf("cache not installed after first round")
	}

	unsub()
	unsub() // idempotent
	if s.PollingActive() {
		t.Fatalf("timer still running after last unsubscribe")
	}
	if s.CachedSnapshot() != nil || !s.LastUpdate().IsZero() {
		t.Fatalf("cache survived last unsubscribe")
	}

	// A later subscriber restarts polling from a clean slate.
	unsub2 := s.Subscribe(func(Snapshot) {})
	defer unsub2()
	if !s.PollingActive() {
		t.Fatalf("timer not restarted")
	}
}

func TestCheckForUpdatesPublishesOnlyOnChange(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	defer s.Cleanup()

	f.set(func(f *fixture) { f.user = nil }) // keep the subscribe-time refresh inert
	var mu sync.Mutex
	notified := 0
	defer s.Subscribe(func(Snapshot) {
		mu.Lock()
		notified++
		mu.Unlock()
	})()
	f.set(func(f *fixture) {
		f.user = &auth.User{ID: "acct-1", Wallet: "0xabc0000000000000000000000000000000000abc"}
		f.bal = credit.BalanceInfo{CurrentBalance: 100}
	})

	ctx := context.Background()
	s.CheckForUpdates(ctx)
	s.CheckForUpdates(ctx) // identical data, no publish
	mu.Lock()
	n := notified
	mu.Unlock()
	if n != 1 {
		t.Fatalf("notified %d times, want 1", n)
	}

	f.set(func(f *fixture) { f.bal.CurrentBalance = 150 })
	s.CheckForUpdates(ctx)
	mu.Lock()
	n = notified
	mu.Unlock()
	if n != 2 {
		t.Fatalf("balance change not published, notified=%d", n)
	}
	if snap := s.CachedSnapshot(); snap.Balance.CurrentBalance != 150 {
		t.Fatalf("cache balance=%d", snap.Balance.CurrentBalance)
	}
}

func TestNoChangeRoundRetainsCachedSnapshot(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	// Stepping clock: logically-identical rounds would still get distinct
	// FetchedAt stamps if the cache were swapped.
	tick := time.Unix(1000, 0).UTC()
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	f.set(func(f *fixture) { f.bal = credit.BalanceInfo{CurrentBalance: 100} })
	s.CheckForUpdates(ctx)
	first := s.CachedSnapshot()
	if first == nil {
		t.Fatalf("no snapshot after first round")
	}
	firstUpdate := s.LastUpdate()

	s.CheckForUpdates(ctx) // identical data
	second := s.CachedSnapshot()
	if !second.FetchedAt.Equal(first.FetchedAt) {
		t.Fatalf("cache replaced on a no-change round: FetchedAt %v -> %v", first.FetchedAt, second.FetchedAt)
	}
	if !s.LastUpdate().Equal(firstUpdate) {
		t.Fatalf("last update moved without a publish: %v -> %v", firstUpdate, s.LastUpdate())
	}

	// A forced refresh installs the fresh snapshot even without a diff.
	if err := s.ForceRefresh(ctx); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if forced := s.CachedSnapshot(); !forced.FetchedAt.After(first.FetchedAt) {
		t.Fatalf("forced refresh kept the stale snapshot: %v", forced.FetchedAt)
	}
}

func TestCheckForUpdatesSkipsWithoutPrincipal(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	f.set(func(f *fixture) { f.user = nil })
	s.CheckForUpdates(ctx)
	if f.fetchCount() != 0 {
		t.Fatalf("sources touched with no user")
	}

	f.set(func(f *fixture) { f.user = &auth.User{ID: "acct-1"} })
	s.CheckForUpdates(ctx)
	if f.fetchCount() != 0 {
		t.Fatalf("sources touched with no wallet")
	}
}

func TestFailedRoundLeavesCacheUntouched(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	f.set(func(f *fixture) { f.bal = credit.BalanceInfo{CurrentBalance: 100} })
	s.CheckForUpdates(ctx)
	before := s.CachedSnapshot()
	if before == nil {
		t.Fatalf("no snapshot after first round")
	}

	f.set(func(f *fixture) {
		f.bal = credit.BalanceInfo{CurrentBalance: 999}
		f.balErr = errors.New("ledger down")
	})
	s.CheckForUpdates(ctx)
	after := s.CachedSnapshot()
	if after.Balance.CurrentBalance != before.Balance.CurrentBalance {
		t.Fatalf("failed round mutated cache: %d", after.Balance.CurrentBalance)
	}
}

func TestOverlapGuard(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	block := make(chan struct{})
	f.set(func(f *fixture) { f.block = block })

	done := make(chan struct{})
	go func() {
		s.CheckForUpdates(ctx)
		close(done)
	}()
	waitFor(t, func() bool { return f.fetchCount() == 1 })

	// The second round must bail out instead of stacking on the first.
	s.CheckForUpdates(ctx)
	if n := f.fetchCount(); n != 1 {
		t.Fatalf("overlapping round fetched, count=%d", n)
	}
	if err := s.ForceRefresh(ctx); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("ForceRefresh during round err=%v", err)
	}

	f.set(func(f *fixture) { f.block = nil })
	close(block)
	<-done
}

func TestForceRefreshRequiresPrincipal(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	f.set(func(f *fixture) { f.user = nil })
	if err := s.ForceRefresh(ctx); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("err=%v", err)
	}
	f.set(func(f *fixture) { f.user = &auth.User{ID: "acct-1"} })
	if err := s.ForceRefresh(ctx); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("err=%v", err)
	}
	if f.fetchCount() != 0 {
		t.Fatalf("sources touched before principal checks")
	}
}

func TestForceRefreshAlwaysPublishes(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	defer s.Cleanup()
	ctx := context.Background()

	f.set(func(f *fixture) { f.user = nil })
	var mu sync.Mutex
	notified := 0
	defer s.Subscribe(func(Snapshot) {
		mu.Lock()
		notified++
		mu.Unlock()
	})()
	f.set(func(f *fixture) {
		f.user = &auth.User{ID: "acct-1", Wallet: "0xabc0000000000000000000000000000000000abc"}
	})

	s.CheckForUpdates(ctx)
	if err := s.ForceRefresh(ctx); err != nil { // identical data
		t.Fatalf("ForceRefresh: %v", err)
	}
	mu.Lock()
	n := notified
	mu.Unlock()
	if n != 2 {
		t.Fatalf("force refresh did not publish, notified=%d", n)
	}

	f.set(func(f *fixture) { f.balErr = errors.New("ledger down") })
	if err := s.ForceRefresh(ctx); err == nil {
		t.Fatalf("expected source error")
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	defer s.Cleanup()
	ctx := context.Background()

	f.set(func(f *fixture) { f.user = nil })
	var mu sync.Mutex
	survived := 0
	defer s.Subscribe(func(Snapshot) { panic("bad subscriber") })()
	defer s.Subscribe(func(Snapshot) {
		mu.Lock()
		survived++
		mu.Unlock()
	})()
	f.set(func(f *fixture) {
		f.user = &auth.User{ID: "acct-1", Wallet: "0xabc0000000000000000000000000000000000abc"}
	})

	s.CheckForUpdates(ctx)
	mu.Lock()
	n := survived
	mu.Unlock()
	if n != 1 {
		t.Fatalf("peer subscriber starved by panic, notified=%d", n)
	}
}

func TestTransitionNotifications(t *testing.T) {
	f := newFixture()
	rec := &recorder{}
	s := newSync(f, rec)
	ctx := context.Background()

	f.set(func(f *fixture) {
		f.bal = credit.BalanceInfo{
			CurrentBalance:  100,
			AllocationCount: 1,
			Pending:         []credit.Allocation{{ID: "alloc-1", Amount: 50}},
		}
		f.docs = []document.Document{{ID: "doc-1", Status: document.StatusUnderReview}}
	})
	s.CheckForUpdates(ctx)

	// First round has no predecessor, so no events fire.
	rec.mu.Lock()
	if len(rec.completed)+len(rec.statuses)+len(rec.deltas) != 0 {
		rec.mu.Unlock()
		t.Fatalf("events fired on first round")
	}
	rec.mu.Unlock()

	f.set(func(f *fixture) {
		f.bal = credit.BalanceInfo{
			CurrentBalance:  150,
			TotalAllocated:  50,
			AllocationCount: 1,
			Recent:          []credit.Allocation{{ID: "alloc-1", Amount: 50, Status: credit.AllocationCompleted}},
		}
		f.docs = []document.Document{{ID: "doc-1", Status: document.StatusAttested}}
	})
	s.CheckForUpdates(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.completed) != 1 || rec.completed[0] != "alloc-1" {
		t.Fatalf("completed events=%v", rec.completed)
	}
	if len(rec.statuses) != 1 || rec.statuses[0] != "doc-1:under_review>attested" {
		t.Fatalf("status events=%v", rec.statuses)
	}
	if len(rec.deltas) != 1 || rec.deltas[0] != 50 {
		t.Fatalf("balance events=%v", rec.deltas)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	ctx := context.Background()

	f.set(func(f *fixture) {
		f.bal = credit.BalanceInfo{CurrentBalance: 70, TotalAllocated: 70}
		f.counts = map[string]int{
			document.StatusPending: 1,
			document.StatusMinted:  3,
		}
	})
	sum := s.Summary(ctx)
	if sum == nil {
		t.Fatalf("Summary returned nil")
	}
	if sum.CurrentBalance != 70 || sum.TotalDocuments != 4 || sum.PendingDocuments != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.VerificationRate != 75 {
		t.Fatalf("rate=%v", sum.VerificationRate)
	}

	f.set(func(f *fixture) { f.balErr = errors.New("ledger down") })
	if s.Summary(ctx) != nil {
		t.Fatalf("Summary must be nil on source failure")
	}
	f.set(func(f *fixture) { f.balErr = nil; f.user = nil })
	if s.Summary(ctx) != nil {
		t.Fatalf("Summary must be nil without a user")
	}
}

func TestSetPollIntervalClamp(t *testing.T) {
	f := newFixture()
	s := newSync(f, nil)
	defer s.Cleanup()

	s.SetPollInterval(0)
	s.mu.Lock()
	got := s.interval
	s.mu.Unlock()
	if got != minPollInterval {
		t.Fatalf("interval=%v, want clamp to %v", got, minPollInterval)
	}

	s.SetPollInterval(5 * time.Minute)
	s.mu.Lock()
	got = s.interval
	s.mu.Unlock()
	if got != 5*time.Minute {
		t.Fatalf("interval=%v", got)
	}
}
