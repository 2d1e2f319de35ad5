// Package dashboard keeps a per-user snapshot of balances, documents and
// holdings fresh, polling the backing services on a timer while anyone is
// subscribed and fanning out changed snapshots.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"carbex.org/internal/auth"
	"carbex.org/internal/chain"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
	"carbex.org/internal/obs"
)

const (
	// DefaultPollInterval paces the background refresh timer.
	DefaultPollInterval = 30 * time.Second
	// minPollInterval bounds SetPollInterval from below.
	minPollInterval = time.Second
	// defaultFetchTimeout bounds one fetch round across all sources.
	defaultFetchTimeout = 10 * time.Second
)

var (
	ErrNoWallet          = errors.New("user has no linked wallet")
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Synchronizer polls the sources for one principal and publishes snapshots
// to subscribers. The timer runs only while at least one subscriber exists.
type Synchronizer struct {
	src          Sources
	fetchTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	interval    time.Duration
	subs        []subscriber
	nextSubID   int
	ticker      *time.Ticker
	stopPolling context.CancelFunc
	cache       *Snapshot
	lastUpdate  time.Time
	inFlight    bool
}

// NewSynchronizer builds a synchronizer over the given sources. A
// non-positive interval falls back to the default.
func NewSynchronizer(src Sources, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Synchronizer{
		src:          src,
		interval:     interval,
		fetchTimeout: defaultFetchTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a snapshot callback and returns its unsubscribe
// function. The first subscriber starts the poll timer and triggers an
// immediate refresh; removing the last subscriber stops the timer and drops
// the cached snapshot. Unsubscribe is idempotent.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	first := len(s.subs) == 1
	if first {
		s.startPollingLocked()
	}
	s.mu.Unlock()

	obs.AddDashboardSubscribers(1)
	if first {
		go s.CheckForUpdates(context.Background())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			if len(s.subs) == 0 {
				s.stopPollingLocked()
				s.cache = nil
				s.lastUpdate = time.Time{}
			}
			s.mu.Unlock()
			obs.AddDashboardSubscribers(-1)
		})
	}
}

func (s *Synchronizer) startPollingLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopPolling = cancel
	t := time.NewTicker(s.interval)
	s.ticker = t
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.CheckForUpdates(ctx)
			}
		}
	}()
}

func (s *Synchronizer) stopPollingLocked() {
	if s.stopPolling != nil {
		s.stopPolling()
		s.stopPolling = nil
	}
	s.ticker = nil
}

// SetFetchTimeout bounds one fetch round across all sources. Non-positive
// values restore the default.
func (s *Synchronizer) SetFetchTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultFetchTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchTimeout = d
}

// SetPollInterval changes the timer pace, clamped to a one second minimum.
// Takes effect immediately when the timer is running.
func (s *Synchronizer) SetPollInterval(d time.Duration) {
	if d < minPollInterval {
		d = minPollInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.ticker != nil {
		s.ticker.Reset(d)
	}
}

// CheckForUpdates runs one poll round. It is a silent no-op when no user is
// resolved or the user has no wallet, and when a round is already in flight.
// A failed round leaves the cached snapshot untouched.
func (s *Synchronizer) CheckForUpdates(ctx context.Context) {
	u, ok := s.src.Users.CurrentUser(ctx)
	if !ok || u.Wallet == "" {
		return
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		obs.IncPollSkipped()
		return
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	obs.IncPollTick()
	next, err := s.fetch(ctx, u)
	if err != nil {
		obs.IncPollFailure()
		obs.LogEntry(map[string]any{
			"level":      "warn",
			"msg":        "dashboard_poll_failed",
			"account_id": u.ID,
			"error":      err.Error(),
		})
		return
	}
	s.publish(ctx, u, next, false)
}

// ForceRefresh runs a round regardless of the diff outcome: the fresh
// snapshot is always published. Unlike the timer path it reports failures,
// and it refuses to run for an unauthenticated or wallet-less user before
// touching any source.
func (s *Synchronizer) ForceRefresh(ctx context.Context) error {
	u, ok := s.src.Users.CurrentUser(ctx)
	if !ok {
		return auth.ErrNotAuthenticated
	}
	if u.Wallet == "" {
		return ErrNoWallet
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		obs.IncPollSkipped()
		return ErrRefreshInProgress
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	obs.IncPollTick()
	next, err := s.fetch(ctx, u)
	if err != nil {
		obs.IncPollFailure()
		return err
	}
	s.publish(ctx, u, next, true)
	return nil
}

// fetch assembles one snapshot, querying all sources in parallel. Any
// source error abandons the whole round.
func (s *Synchronizer) fetch(ctx context.Context, u auth.User) (*Snapshot, error) {
	s.mu.Lock()
	timeout := s.fetchTimeout
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		bal      credit.BalanceInfo
		docs     []document.Document
		counts   map[string]int
		holdings []chain.Holding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bal, err = s.src.Balances.BalanceInfo(gctx, u.ID)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = s.src.Documents.ListByOwner(gctx, u.ID)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.src.Documents.StatusCounts(gctx, u.ID)
		return err
	})
	g.Go(func() error {
		var err error
		holdings, err = s.src.Holdings.Holdings(gctx, u.Wallet)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Snapshot{
		Balance:      bal,
		Documents:    docs,
		StatusCounts: counts,
		Holdings:     holdings,
		FetchedAt:    s.now(),
	}, nil
}

// publish installs the snapshot and fans it out when it differs from the
// cache (always, when forced). A round with no tracked change keeps the
// existing cached snapshot rather than swapping in a logically-identical
// object. Event notifications fire on transitions between the previous and
// the new snapshot.
func (s *Synchronizer) publish(ctx context.Context, u auth.User, next *Snapshot, force bool) {
	s.mu.Lock()
	prev := s.cache
	if !force && !changed(prev, next) {
		s.mu.Unlock()
		return
	}
	s.cache = next
	s.lastUpdate = s.now()
	fns := make([]func(Snapshot), len(s.subs))
	for i, sub := range s.subs {
		fns[i] = sub.fn
	}
	s.mu.Unlock()

	s.notifyTransitions(ctx, u, prev, next)
	obs.IncSnapshotNotification()
	for _, fn := range fns {
		deliver(fn, *next.clone())
	}
}

// deliver isolates one callback so a panicking subscriber cannot take down
// the poll loop or starve its peers.
func deliver(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			obs.LogEntry(map[string]any{
				"level": "error",
				"msg":   "dashboard_subscriber_panic",
				"panic": r,
			})
		}
	}()
	fn(snap)
}

func (s *Synchronizer) notifyTransitions(ctx context.Context, u auth.User, prev, next *Snapshot) {
	n := s.src.Notifier
	if n == nil || prev == nil {
		return
	}

	if delta := next.Balance.CurrentBalance - prev.Balance.CurrentBalance; delta > 0 {
		n.BalanceIncreased(ctx, u.ID, delta)
	}

	completed := make(map[string]credit.Allocation, len(next.Balance.Recent))
	for _, a := range next.Balance.Recent {
		completed[a.ID] = a
	}
	stillPending := make(map[string]struct{}, len(next.Balance.Pending))
	for _, a := range next.Balance.Pending {
		stillPending[a.ID] = struct{}{}
	}
	for _, a := range prev.Balance.Pending {
		if _, ok := stillPending[a.ID]; ok {
			continue
		}
		if done, ok := completed[a.ID]; ok {
			n.AllocationCompleted(ctx, u.ID, done.ID, done.Amount)
		}
	}

	prevStatus := make(map[string]string, len(prev.Documents))
	for _, d := range prev.Documents {
		prevStatus[d.ID] = d.Status
	}
	for _, d := range next.Documents {
		if from, ok := prevStatus[d.ID]; ok && from != d.Status {
			n.DocumentStatusChanged(ctx, u.ID, d.ID, from, d.Status)
		}
	}
}

// Summary computes the header aggregate from live sources. It returns nil
// when no user is resolved or any source fails; the caller renders an empty
// header rather than an error.
func (s *Synchronizer) Summary(ctx context.Context) *Summary {
	u, ok := s.src.Users.CurrentUser(ctx)
	if !ok {
		return nil
	}
	bal, err := s.src.Balances.BalanceInfo(ctx, u.ID)
	if err != nil {
		return nil
	}
	counts, err := s.src.Documents.StatusCounts(ctx, u.ID)
	if err != nil {
		return nil
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	sum := &Summary{
		CurrentBalance:   bal.CurrentBalance,
		TotalAllocated:   bal.TotalAllocated,
		TotalDocuments:   total,
		PendingDocuments: counts[document.StatusPending],
	}
	if total > 0 {
		sum.VerificationRate = float64(counts[document.StatusMinted]) / float64(total) * 100
	}
	return sum
}

// CachedSnapshot returns a copy of the last published snapshot, or nil.
func (s *Synchronizer) CachedSnapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.clone()
}

// LastUpdate returns when a snapshot was last published, zero if never.
func (s *Synchronizer) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// PollingActive reports whether the refresh timer is running.
func (s *Synchronizer) PollingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// Subscribers returns the current subscriber count.
func (s *Synchronizer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Cleanup stops the timer and drops all subscribers and cached state.
func (s *Synchronizer) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.subs); n > 0 {
		obs.AddDashboardSubscribers(-n)
	}
	s.stopPollingLocked()
	s.subs = nil
	s.cache = nil
	s.lastUpdate = time.Time{}
}
