/*
ledger.go - The per-loan transaction ledger

PURPOSE:
  Ordering and identity invariants over Account.Transactions. The ledger
  is append-only in effect: a transaction is never removed, only marked
  reversed; its Breakdown, Deltas, and OutstandingAfter are recomputed by
  replay but the row and its identity are permanent.

CRITICAL INVARIANTS:
  1. Insertion order is preserved by a monotonically increasing sequence
     number. Replay order is (date, seq) - never wall clock, because two
     transactions can legitimately share both a date and a timestamp.
  2. External ids are unique per loan. A duplicate is a ConflictError
     (ErrDuplicateExternalID), distinct from validation failures, so
     clients can retry idempotently.
  3. OutstandingAfter is re-derived as a running principal balance at
     insertion time and again after every replay; it is never trusted
     from storage.

SEE ALSO:
  - replay.go: consumes the (date, seq) ordering this file maintains
*/
package loan

import (
	"sort"
	"time"
)

// =============================================================================
// INSERTION
// =============================================================================

// insertTransaction assigns identity and ordering fields and appends the
// row. The caller is responsible for triggering reprocessing afterwards.
func (a *Account) insertTransaction(tx *Transaction) error {
	if tx.ExternalID != "" {
		if _, exists := a.lookupExternal(tx.ExternalID); exists {
			return &ConflictError{
				Reason: "external id already used on this loan: " + tx.ExternalID,
				Cause:  ErrDuplicateExternalID,
			}
		}
	}

	tx.Seq = a.nextSeq
	a.nextSeq++
	if tx.SubmittedAt.IsZero() {
		tx.SubmittedAt = time.Now().UTC()
	}
	if tx.Breakdown.Principal.Currency == "" {
		tx.Breakdown = NewBreakdown(a.Currency)
	}
	tx.OutstandingAfter = ZeroMoney(a.Currency)

	a.Transactions = append(a.Transactions, *tx)
	if tx.ExternalID != "" {
		a.indexExternal(tx.ExternalID, tx.ID)
	}
	return nil
}

// =============================================================================
// EXTERNAL ID INDEX - O(1) lookups, lazily rebuilt after load
// =============================================================================

func (a *Account) ensureExtIndex() {
	if a.extIDs != nil {
		return
	}
	a.extIDs = make(map[string]TransactionID, len(a.Transactions))
	for i := range a.Transactions {
		if ext := a.Transactions[i].ExternalID; ext != "" {
			a.extIDs[ext] = a.Transactions[i].ID
		}
	}
}

func (a *Account) indexExternal(ext string, id TransactionID) {
	a.ensureExtIndex()
	a.extIDs[ext] = id
}

func (a *Account) lookupExternal(ext string) (TransactionID, bool) {
	a.ensureExtIndex()
	id, ok := a.extIDs[ext]
	return id, ok
}

// TransactionByExternalID resolves a client-supplied external id.
func (a *Account) TransactionByExternalID(ext string) (*Transaction, error) {
	if id, ok := a.lookupExternal(ext); ok {
		return a.TransactionByID(id)
	}
	return nil, ErrTransactionNotFound
}

// =============================================================================
// ORDERING
// =============================================================================

// processingOrder returns indexes of non-reversed transactions in replay
// order: ascending date, ties broken by insertion sequence. This is the
// documented tie-break policy; it is covered by tests and must not change
// without a migration story for stored aggregates.
func (a *Account) processingOrder() []int {
	idx := make([]int, 0, len(a.Transactions))
	for i := range a.Transactions {
		if !a.Transactions[i].Reversed {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(x, y int) bool {
		tx, ty := &a.Transactions[idx[x]], &a.Transactions[idx[y]]
		if !tx.Date.Equal(ty.Date) {
			return tx.Date.Before(ty.Date)
		}
		return tx.Seq < ty.Seq
	})
	return idx
}

// LatestTransactionDate is the max date over non-reversed transactions.
func (a *Account) LatestTransactionDate() Date {
	var latest Date
	for i := range a.Transactions {
		if tx := &a.Transactions[i]; !tx.Reversed && tx.Date.After(latest) {
			latest = tx.Date
		}
	}
	return latest
}

// IsBackdated reports whether a date falls before any already-recorded
// non-reversed transaction, i.e. whether inserting at that date reorders
// history.
func (a *Account) IsBackdated(on Date) bool {
	return on.Before(a.LatestTransactionDate())
}

func (t *Transaction) addRelation(r TransactionRelation) {
	for _, existing := range t.Relations {
		if existing == r {
			return
		}
	}
	t.Relations = append(t.Relations, r)
}
