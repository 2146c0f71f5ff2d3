/*
store.go - Collaborator contracts and the per-loan lock registry

PURPOSE:
  The engine performs no I/O. These are the narrow interfaces its
  collaborators implement:

  Store    - loads/saves whole aggregates. Load returns everything the
             engine needs (installments, transactions, charges) with
             transaction insertion order preserved; Save persists the
             whole aggregate atomically.
  Notifier - receives a post-mutation snapshot sufficient to build an
             external event. The engine never serializes or transports
             events itself.
  JournalSink - receives (transaction, breakdown) pairs for double-entry
             posting. Replay-aware: postings are keyed by
             (transaction id, replay generation), so re-emitting after a
             replay cannot duplicate.

CONCURRENCY:
  The Account aggregate is NOT safe for concurrent mutation - replay
  reads and rewrites the full installment set. LockRegistry serializes
  per-loan; operations on different loans proceed in parallel.

IMPLEMENTATIONS:
  - loan/store: in-memory Store (tests, dev)
  - store/sqlite: production Store
  - accounting: JournalSink
*/
package loan

import (
	"context"
	"sync"
)

// =============================================================================
// PERSISTENCE COLLABORATOR
// =============================================================================

type Store interface {
	// Load returns the full aggregate or ErrLoanNotFound.
	Load(ctx context.Context, id LoanID) (*Account, error)

	// Save persists the full aggregate atomically. Implementations may
	// reject a stale Version with ErrConflict.
	Save(ctx context.Context, acct *Account) error

	// List returns all loan ids. The COB driver iterates this.
	List(ctx context.Context) ([]LoanID, error)
}

// =============================================================================
// EVENT COLLABORATOR
// =============================================================================

type Notifier interface {
	LoanChanged(ctx context.Context, snapshot Snapshot)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) LoanChanged(context.Context, Snapshot) {}

// =============================================================================
// ACCOUNTING COLLABORATOR
// =============================================================================

type JournalSink interface {
	// Post is invoked for every transaction whose outcome is new or
	// changed in a mutation: the trigger itself plus any replayed rows.
	// At-least-once; implementations dedupe on (ID, ReplayGeneration).
	Post(ctx context.Context, loanID LoanID, tx *Transaction) error
}

// NopJournal discards journal facts.
type NopJournal struct{}

func (NopJournal) Post(context.Context, LoanID, *Transaction) error { return nil }

// =============================================================================
// PER-LOAN LOCKS
// =============================================================================

// LockRegistry hands out one mutex per loan id. The zero value is ready
// to use.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[LoanID]*sync.Mutex
}

// Acquire locks the loan's mutex and returns the unlock function.
func (r *LockRegistry) Acquire(id LoanID) func() {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[LoanID]*sync.Mutex)
	}
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
