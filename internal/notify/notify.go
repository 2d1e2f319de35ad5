// Package notify delivers user-facing notifications for marketplace events.
// The log-backed implementation emits structured records; a real deployment
// swaps in a push or email sender behind the same interface.
package notify

import (
	"context"

	"carbex.org/internal/obs"
)

// Notifier receives marketplace events worth surfacing to a user.
type Notifier interface {
	AllocationCompleted(ctx context.Context, accountID, allocationID string, amount int64)
	DocumentStatusChanged(ctx context.Context, owner, documentID, from, to string)
	BalanceIncreased(ctx context.Context, accountID string, delta int64)
	System(ctx context.Context, accountID, message string)
}

// Log writes each notification as a structured log record.
type Log struct{}

var _ Notifier = Log{}

func (Log) AllocationCompleted(ctx context.Context, accountID, allocationID string, amount int64) {
	obs.LogEntry(map[string]any{
		"msg":           "notify_allocation_completed",
		"account_id":    accountID,
		"allocation_id": allocationID,
		"amount":        amount,
	})
}

func (Log) DocumentStatusChanged(ctx context.Context, owner, documentID, from, to string) {
	obs.LogEntry(map[string]any{
		"msg":         "notify_document_status",
		"account_id":  owner,
		"document_id": documentID,
		"from":        from,
		"to":          to,
	})
}

func (Log) BalanceIncreased(ctx context.Context, accountID string, delta int64) {
	obs.LogEntry(map[string]any{
		"msg":        "notify_balance_increase",
		"account_id": accountID,
		"delta":      delta,
	})
}

func (Log) System(ctx context.Context, accountID, message string) {
	obs.LogEntry(map[string]any{
		"msg":        "notify_system",
		"account_id": accountID,
		"message":    message,
	})
}
