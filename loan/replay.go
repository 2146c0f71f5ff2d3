/*
replay.go - The reverse-replay coordinator

PURPOSE:
  Keeps the installment state a deterministic function of the ledger.
  Whenever history changes - a backdated transaction, a reversal, a charge
  whose due date precedes processed transactions - the schedule is rebuilt
  from a pristine post-disbursement state and every non-reversed
  transaction is re-applied in (date, seq) order.

WHY FULL RECOMPUTE:
  There is no partial-snapshot store. Reconstructing from the pristine
  schedule on every change costs more CPU than resuming from a cached
  midpoint, but it cannot drift: the fold either reproduces the previous
  outcome byte for byte (the fast path - nothing is marked) or it
  surfaces exactly which transactions' outcomes moved.

REPLAY MARKS:
  A transaction whose outstanding-after snapshot or breakdown changed is
  marked replayed, its replay generation is bumped (the accounting
  collaborator keys postings off (id, generation)), and it gains a
  relation pointing at the triggering transaction. If nothing changed, no
  mark and no relation is recorded.

DETERMINISM:
  Running the fold twice with no new input produces identical installment
  and transaction states. The invariant check at the end is the last line
  of defense: a failure there is a bug (ReplayError), never user error,
  and the aggregate must not be saved.
*/
package loan

import "sort"

// outcome is the per-transaction result fingerprint compared across a
// replay to decide which rows were actually affected.
type outcome struct {
	outstanding Money
	breakdown   Breakdown
}

func (o outcome) equal(other outcome) bool {
	return o.outstanding.Equal(other.outstanding) &&
		o.breakdown.Principal.Equal(other.breakdown.Principal) &&
		o.breakdown.Interest.Equal(other.breakdown.Interest) &&
		o.breakdown.Fee.Equal(other.breakdown.Fee) &&
		o.breakdown.Penalty.Equal(other.breakdown.Penalty) &&
		o.breakdown.Overpayment.Equal(other.breakdown.Overpayment)
}

// reprocess rebuilds all derived state from the ledger. trigger is the
// transaction that caused the rebuild, or nil when the trigger was not a
// transaction (adding a charge).
func (a *Account) reprocess(trigger *Transaction) error {
	before := make(map[TransactionID]outcome, len(a.Transactions))
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		if !tx.Reversed {
			before[tx.ID] = outcome{outstanding: tx.OutstandingAfter, breakdown: tx.Breakdown}
		}
	}

	a.resetDerivedState()

	engine := Engine{}
	for _, i := range a.processingOrder() {
		tx := &a.Transactions[i]
		if tx.Type == TxDisbursement {
			if err := a.applyDisbursement(tx); err != nil {
				return err
			}
		} else if err := engine.Apply(a, tx); err != nil {
			return err
		}
		tx.OutstandingAfter = a.OutstandingPrincipal()
	}

	a.markReplayed(before, trigger)

	if err := a.verifyConsistency(); err != nil {
		return err
	}

	eventDate := a.LatestTransactionDate()
	if trigger != nil {
		eventDate = trigger.Date
	}
	a.deriveStatus(eventDate)
	if a.Status.IsClosed() {
		// Closing resets, never freezes, delinquency figures.
		a.Delinquency = emptyDelinquency(a.Currency, a.Delinquency.AsOf)
	}
	return nil
}

// resetDerivedState returns the aggregate to its pre-fold pristine form:
// no installments, untouched charges, no credit.
func (a *Account) resetDerivedState() {
	a.Installments = nil
	a.OverpaidAmount = ZeroMoney(a.Currency)
	a.OverpaidOn = Date{}
	a.WrittenOffOn = Date{}
	a.ChargedOffOn = Date{}
	for i := range a.Charges {
		c := &a.Charges[i]
		c.Paid = ZeroMoney(a.Currency)
		c.Waived = ZeroMoney(a.Currency)
		c.PaidBy = nil
	}
}

// =============================================================================
// SCHEDULE REBUILD
// =============================================================================

// applyDisbursement builds the schedule on the first tranche and extends
// the outstanding principal on later ones.
func (a *Account) applyDisbursement(tx *Transaction) error {
	tx.Breakdown = NewBreakdown(a.Currency)
	tx.Deltas = nil

	if len(a.Installments) == 0 {
		if err := a.buildSchedule(tx.Date, tx.Amount); err != nil {
			return err
		}
		a.applyChargesToSchedule()
		return nil
	}

	// Additional tranche: spread the new principal over the open rows.
	outstanding := a.outstandingPrincipalOpen().Add(tx.Amount)
	return RecomputeRemaining(a.Schedule, a.Installments, outstanding)
}

func (a *Account) buildSchedule(disbursedOn Date, amount Money) error {
	downPayment := ZeroMoney(a.Currency)
	if a.DownPaymentPercent.IsPositive() {
		downPayment = amount.Mul(a.DownPaymentPercent.Div(decimalHundred)).Round()
	}

	lines, err := GenerateSchedule(a.Schedule, amount.Sub(downPayment))
	if err != nil {
		return err
	}
	dueDates := a.Schedule.Frequency.DueDates(disbursedOn, len(lines))

	rows := make([]Installment, 0, len(lines)+1)
	row0 := NewInstallment(0, disbursedOn, a.Currency)
	row0.PrincipalDue = downPayment
	rows = append(rows, row0)

	for i, line := range lines {
		row := NewInstallment(i+1, dueDates[i], a.Currency)
		row.PrincipalDue = line.Principal
		row.InterestDue = line.Interest
		rows = append(rows, row)
	}
	a.Installments = rows
	return nil
}

// applyChargesToSchedule places every charge's due amount on its schedule
// row. A charge falling due after maturity gets a post-maturity row of its
// own; rows stay sorted by due date.
func (a *Account) applyChargesToSchedule() {
	charges := make([]*Charge, 0, len(a.Charges))
	for i := range a.Charges {
		charges = append(charges, &a.Charges[i])
	}
	sort.SliceStable(charges, func(x, y int) bool {
		return charges[x].DueDate.Before(charges[y].DueDate)
	})

	for _, c := range charges {
		seq := a.installmentSeqForCharge(c)
		if seq < 0 {
			seq = a.addPostMaturityRow(c.DueDate)
		}
		if ins := a.installment(seq); ins != nil {
			ins.addDue(c.Bucket, c.Amount)
		}
	}
}

// addPostMaturityRow appends an N+1 row for charges due after the final
// regular installment, keeping due-date order and returning its seq.
func (a *Account) addPostMaturityRow(dueDate Date) int {
	maxSeq := 0
	for i := range a.Installments {
		if a.Installments[i].Seq > maxSeq {
			maxSeq = a.Installments[i].Seq
		}
	}
	row := NewInstallment(maxSeq+1, dueDate, a.Currency)
	row.Additional = true
	a.Installments = append(a.Installments, row)
	sort.SliceStable(a.Installments, func(x, y int) bool {
		return a.Installments[x].DueDate.Before(a.Installments[y].DueDate)
	})
	return row.Seq
}

// =============================================================================
// REPLAY MARKS
// =============================================================================

func (a *Account) markReplayed(before map[TransactionID]outcome, trigger *Transaction) {
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		if tx.Reversed {
			continue
		}
		if trigger != nil && tx.ID == trigger.ID {
			continue
		}
		prev, ok := before[tx.ID]
		if !ok {
			continue
		}
		now := outcome{outstanding: tx.OutstandingAfter, breakdown: tx.Breakdown}
		if now.equal(prev) {
			continue
		}
		tx.Replayed = true
		tx.ReplayGeneration++
		if trigger != nil {
			tx.addRelation(TransactionRelation{Type: RelationReplayed, To: trigger.ID})
		}
	}
}

// =============================================================================
// INVARIANT VERIFICATION
// =============================================================================

// verifyConsistency cross-checks the installment state against the ledger.
// A violation here is a bug in the engine, surfaced loudly as a fatal
// ReplayError and never corrected in place.
func (a *Account) verifyConsistency() error {
	if len(a.Tranches) == 0 {
		return nil
	}

	// Conservation: per-bucket paid across installments equals the cash
	// transactions' allocations to that bucket.
	for _, b := range AllBuckets {
		paid := ZeroMoney(a.Currency)
		for i := range a.Installments {
			paid = paid.Add(a.Installments[i].Paid(b))
		}
		allocated := ZeroMoney(a.Currency)
		for i := range a.Transactions {
			tx := &a.Transactions[i]
			if tx.Reversed || !tx.Type.IsCashCredit() {
				continue
			}
			allocated = allocated.Add(tx.Breakdown.Get(b))
		}
		if !paid.Equal(allocated) {
			return &ReplayError{LoanID: a.ID, Detail: "bucket " + string(b) + " paid " + paid.String() + " != allocated " + allocated.String()}
		}
	}

	// Credit: the unallocated balance equals the signed overpayment flow.
	credit := ZeroMoney(a.Currency)
	for i := range a.Transactions {
		if tx := &a.Transactions[i]; !tx.Reversed {
			credit = credit.Add(tx.Breakdown.Overpayment)
		}
	}
	if !credit.Equal(a.OverpaidAmount) {
		return &ReplayError{LoanID: a.ID, Detail: "credit flow " + credit.String() + " != overpaid balance " + a.OverpaidAmount.String()}
	}

	// Paid never exceeds due plus forgiven on any row.
	for i := range a.Installments {
		ins := &a.Installments[i]
		for _, b := range AllBuckets {
			if ins.Paid(b).GreaterThan(ins.Due(b)) {
				return &ReplayError{LoanID: a.ID, Detail: "installment overpaid in bucket " + string(b)}
			}
		}
	}

	// Charge settlement never exceeds the charge amount.
	for i := range a.Charges {
		c := &a.Charges[i]
		if c.Paid.Add(c.Waived).GreaterThan(c.Amount) {
			return &ReplayError{LoanID: a.ID, Detail: "charge " + string(c.ID) + " settled beyond its amount"}
		}
	}
	return nil
}
