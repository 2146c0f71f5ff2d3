// Package store provides the in-memory loan.Store implementation used by
// tests, simulations, and dev servers. The production store lives in
// store/sqlite.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory keeps whole aggregates keyed by loan id. Load and Save exchange
// deep copies, so a caller can never mutate the stored state through an
// aliased pointer; the copy is a JSON round trip, which is also a standing
// check that every persisted field actually serializes.
type Memory struct {
	mu    sync.RWMutex
	loans map[loan.LoanID][]byte
	// versions caches the stored Version for the stale-save check without
	// deserializing the whole aggregate.
	versions map[loan.LoanID]int
}

func NewMemory() *Memory {
	return &Memory{
		loans:    make(map[loan.LoanID][]byte),
		versions: make(map[loan.LoanID]int),
	}
}

func (m *Memory) Load(_ context.Context, id loan.LoanID) (*loan.Account, error) {
	m.mu.RLock()
	raw, ok := m.loans[id]
	m.mu.RUnlock()
	if !ok {
		return nil, loan.ErrLoanNotFound
	}

	var acct loan.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Save persists the aggregate. A Version older than the stored one means
// the caller operated on a stale load and loses.
func (m *Memory) Save(_ context.Context, acct *loan.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.versions[acct.ID]; ok && acct.Version < stored {
		return &loan.ConflictError{Reason: "stale save: aggregate version behind store"}
	}
	m.loans[acct.ID] = raw
	m.versions[acct.ID] = acct.Version
	return nil
}

func (m *Memory) List(_ context.Context) ([]loan.LoanID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]loan.LoanID, 0, len(m.loans))
	for id := range m.loans {
		ids = append(ids, id)
	}
	return ids, nil
}
