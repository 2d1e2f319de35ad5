// Package chain reads token holdings from the carbon-credit registry
// contract. The in-memory implementation stands in for the on-chain
// registry in tests and local runs.
package chain

import (
	"context"
	"errors"
	"sync"
)

// Holding is one token position owned by a wallet.
type Holding struct {
	TokenID     string `json:"token_id"`
	Symbol      string `json:"symbol"`
	ProjectName string `json:"project_name"`
	Amount      int64  `json:"amount"`
	Vintage     int    `json:"vintage,omitempty"`
}

// Registry reads holdings for a wallet address.
type Registry interface {
	Holdings(ctx context.Context, wallet string) ([]Holding, error)
}

var ErrUnavailable = errors.New("registry unavailable")

// InMemoryRegistry is a Registry seeded by tests or local fixtures.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	byWallet map[string][]Holding
}

var _ Registry = (*InMemoryRegistry)(nil)

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{byWallet: make(map[string][]Holding)}
}

// Set replaces the holdings recorded for a wallet.
func (r *InMemoryRegistry) Set(wallet string, holdings []Holding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Holding, len(holdings))
	copy(cp, holdings)
	r.byWallet[wallet] = cp
}

// Holdings returns the wallet's positions. Unknown wallets hold nothing.
func (r *InMemoryRegistry) Holdings(ctx context.Context, wallet string) ([]Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byWallet[wallet]
	cp := make([]Holding, len(src))
	copy(cp, src)
	return cp, nil
}
