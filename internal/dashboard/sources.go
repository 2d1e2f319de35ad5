package dashboard

import (
	"context"

	"carbex.org/internal/auth"
	"carbex.org/internal/chain"
	"carbex.org/internal/credit"
	"carbex.org/internal/document"
)

// UserSource yields the principal the synchronizer works for. Polling is a
// no-op while it reports no user.
type UserSource interface {
	CurrentUser(ctx context.Context) (auth.User, bool)
}

// BalanceSource reads the account's credit balance aggregate.
type BalanceSource interface {
	BalanceInfo(ctx context.Context, accountID string) (credit.BalanceInfo, error)
}

// DocumentSource reads the account's verification documents.
type DocumentSource interface {
	ListByOwner(ctx context.Context, owner string) ([]document.Document, error)
	StatusCounts(ctx context.Context, owner string) (map[string]int, error)
}

// HoldingsSource reads on-chain token positions for a wallet.
type HoldingsSource interface {
	Holdings(ctx context.Context, wallet string) ([]chain.Holding, error)
}

// Sources bundles everything one synchronizer polls.
type Sources struct {
	Users     UserSource
	Balances  BalanceSource
	Documents DocumentSource
	Holdings  HoldingsSource
	Notifier  Notifier
}

// Notifier mirrors notify.Notifier for the events the synchronizer raises.
// Kept local so the package depends on behavior, not the delivery mechanism.
type Notifier interface {
	AllocationCompleted(ctx context.Context, accountID, allocationID string, amount int64)
	DocumentStatusChanged(ctx context.Context, owner, documentID, from, to string)
	BalanceIncreased(ctx context.Context, accountID string, delta int64)
}
