/*
allocation.go - Payment allocation rules and the allocation engine

PURPOSE:
  Distributes one transaction's amount across installment components.
  The order money lands in (penalty before fee before interest before
  principal? past-due before in-advance?) is not hard-coded: it comes from
  the product's AllocationRuleSet, an ordered list of (due state, bucket)
  steps resolved per transaction type.

ALGORITHM (cash-bearing types):
  1. Classify every installment against the transaction date:
     PAST_DUE (< tx date), DUE (== tx date), IN_ADVANCE (> tx date)
  2. Walk the rule's steps in order; within a step, walk matching
     installments in due-date order, draining that bucket's outstanding
     until the step or the money is exhausted
  3. Surplus after every installment is satisfied follows the rule's
     FutureInstallmentRule; surplus after the whole loan is satisfied
     becomes unallocated credit on the account (OVERPAID)

NON-CASH PATHS:
  Waivers reduce a bucket's DUE side (marked waived, not paid) so a later
  repayment cannot double-settle the same cents. Chargebacks re-raise the
  due amounts the original repayment had settled, walking that
  transaction's recorded deltas in reverse.

SEE ALSO:
  - replay.go: folds the whole ledger through Apply in (date, seq) order
  - account.go: aggregate state the engine mutates
*/
package loan

// =============================================================================
// ALLOCATION RULES - Per-product, per-transaction-type configuration
// =============================================================================

// AllocationStep is one (due state, bucket) pair in an ordered rule.
type AllocationStep struct {
	DueState DueState `json:"dueState"`
	Bucket   Bucket   `json:"bucket"`
}

// FutureInstallmentRule governs money left over once all currently-due
// installments are satisfied.
type FutureInstallmentRule string

const (
	FutureNextInstallment FutureInstallmentRule = "NEXT_INSTALLMENT"
	FutureLastInstallment FutureInstallmentRule = "LAST_INSTALLMENT"
	FutureReamortization  FutureInstallmentRule = "REAMORTIZATION"
)

// AllocationRule is the ordered step list plus the overflow policy.
type AllocationRule struct {
	Steps      []AllocationStep      `json:"steps"`
	FutureRule FutureInstallmentRule `json:"futureInstallmentAllocationRule"`
}

// AllocationRuleSet resolves the rule for a transaction type, falling back
// to Default. Pure data; products build these.
type AllocationRuleSet struct {
	Default AllocationRule                    `json:"default"`
	ByType  map[TransactionType]AllocationRule `json:"byType,omitempty"`
}

func (rs AllocationRuleSet) RuleFor(t TransactionType) AllocationRule {
	if r, ok := rs.ByType[t]; ok {
		return r
	}
	return rs.Default
}

// DefaultAllocationRule is the stock ordering: within each due state,
// penalty, fee, interest, then principal; past due first, then due, then
// in advance. Surplus rolls onto the next installment.
func DefaultAllocationRule() AllocationRule {
	var steps []AllocationStep
	for _, state := range []DueState{StatePastDue, StateDue, StateInAdvance} {
		for _, b := range []Bucket{BucketPenalty, BucketFee, BucketInterest, BucketPrincipal} {
			steps = append(steps, AllocationStep{DueState: state, Bucket: b})
		}
	}
	return AllocationRule{Steps: steps, FutureRule: FutureNextInstallment}
}

func DefaultRuleSet() AllocationRuleSet {
	return AllocationRuleSet{Default: DefaultAllocationRule()}
}

func (r AllocationRule) validate() error {
	if len(r.Steps) == 0 {
		return validationf("steps", "allocation rule requires at least one step")
	}
	seen := map[AllocationStep]bool{}
	for _, s := range r.Steps {
		if seen[s] {
			return validationf("steps", "duplicate allocation step (%s, %s)", s.DueState, s.Bucket)
		}
		seen[s] = true
	}
	switch r.FutureRule {
	case FutureNextInstallment, FutureLastInstallment, FutureReamortization, "":
	default:
		return validationf("futureInstallmentAllocationRule", "unknown rule %q", r.FutureRule)
	}
	return nil
}

// =============================================================================
// ALLOCATION ENGINE
// =============================================================================

// Engine applies one transaction to the aggregate's installment state.
// It is pure over its inputs plus the aggregate: no I/O, no clock reads.
type Engine struct{}

// Apply dispatches on transaction type and mutates the aggregate. The
// transaction's Breakdown and Deltas are overwritten with the allocation
// outcome; OutstandingAfter is left for the ledger to re-derive.
func (e Engine) Apply(acct *Account, tx *Transaction) error {
	switch {
	case tx.Type.IsCashCredit():
		e.allocateCash(acct, tx)
	case tx.Type == TxWaiveInterest:
		e.waiveInterest(acct, tx)
	case tx.Type == TxWaiveCharges:
		e.waiveCharge(acct, tx)
	case tx.Type == TxChargeback:
		if err := e.chargeback(acct, tx); err != nil {
			return err
		}
	case tx.Type == TxCreditBalanceRefund:
		e.refundCredit(acct, tx)
	case tx.Type == TxWriteOff:
		e.writeOff(acct, tx)
	case tx.Type == TxChargeOff:
		e.chargeOff(acct, tx)
	case tx.Type == TxAccrual:
		// Memo entry: recognizes interest income, touches no installment.
		tx.Breakdown = NewBreakdown(acct.Currency)
		tx.Breakdown.Interest = tx.Amount
	case tx.Type == TxDisbursement:
		// Schedule effects are applied during the pristine rebuild; the
		// ledger entry itself carries no installment deltas.
		tx.Breakdown = NewBreakdown(acct.Currency)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Cash credits: repayment, down payment, refunds, goodwill
// -----------------------------------------------------------------------------

func (e Engine) allocateCash(acct *Account, tx *Transaction) {
	rule := acct.Rules.RuleFor(tx.Type)
	remaining := tx.Amount
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Deltas = nil

	for _, step := range rule.Steps {
		if remaining.IsZero() {
			break
		}
		remaining = e.drainStep(acct, tx, step, remaining)
	}

	if remaining.IsPositive() {
		remaining = e.applyFutureRule(acct, tx, rule.FutureRule, remaining)
	}

	if remaining.IsPositive() {
		// Loan fully satisfied: the rest is unallocated credit.
		tx.Breakdown.Overpayment = tx.Breakdown.Overpayment.Add(remaining)
		acct.OverpaidAmount = acct.OverpaidAmount.Add(remaining)
		if acct.OverpaidOn.IsZero() {
			acct.OverpaidOn = tx.Date
		}
	}

	acct.refreshInstallments(tx.Date, true)
}

// drainStep walks installments in due-date order and drains one bucket's
// outstanding for installments matching the step's due state.
func (e Engine) drainStep(acct *Account, tx *Transaction, step AllocationStep, remaining Money) Money {
	for idx := range acct.Installments {
		if remaining.IsZero() {
			return remaining
		}
		ins := &acct.Installments[idx]
		if ins.Seq == 0 && tx.Type != TxDownPayment {
			// The disbursement row only ever holds a down-payment due.
			continue
		}
		if DueStateOf(ins.DueDate, tx.Date) != step.DueState {
			continue
		}
		out := ins.Outstanding(step.Bucket)
		if !out.IsPositive() {
			continue
		}
		pay := out.Min(remaining)
		ins.addPaid(step.Bucket, pay)
		remaining = remaining.Sub(pay)
		tx.Breakdown.Add(step.Bucket, pay)
		tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: ins.Seq, Bucket: step.Bucket, Amount: pay})
		if step.Bucket == BucketFee || step.Bucket == BucketPenalty {
			acct.settleCharges(ins.Seq, step.Bucket, pay, tx.ID)
		}
	}
	return remaining
}

// applyFutureRule pushes surplus onto future principal per the configured
// overflow policy. Returns whatever could not be placed.
func (e Engine) applyFutureRule(acct *Account, tx *Transaction, rule FutureInstallmentRule, surplus Money) Money {
	switch rule {
	case FutureLastInstallment:
		if last := acct.lastRegularInstallment(); last != nil {
			surplus = e.payPrincipal(acct, tx, last, surplus)
		}
	case FutureReamortization:
		surplus = e.payFuturePrincipal(acct, tx, surplus)
		// Settle completion first so fully prepaid rows hold fixed, then
		// re-spread what is still owed so the early payment shrinks every
		// remaining installment.
		acct.refreshInstallments(tx.Date, true)
		_ = RecomputeRemaining(acct.Schedule, acct.Installments, acct.outstandingPrincipalOpen())
	case FutureNextInstallment, "":
		surplus = e.payFuturePrincipal(acct, tx, surplus)
	}
	return surplus
}

// payFuturePrincipal drains surplus into future installments' principal,
// nearest due date first: an early partial payment.
func (e Engine) payFuturePrincipal(acct *Account, tx *Transaction, surplus Money) Money {
	for idx := range acct.Installments {
		if surplus.IsZero() {
			break
		}
		ins := &acct.Installments[idx]
		if ins.Seq == 0 || !ins.DueDate.After(tx.Date) {
			continue
		}
		surplus = e.payPrincipal(acct, tx, ins, surplus)
	}
	return surplus
}

func (e Engine) payPrincipal(acct *Account, tx *Transaction, ins *Installment, amount Money) Money {
	out := ins.Outstanding(BucketPrincipal)
	if !out.IsPositive() {
		return amount
	}
	pay := out.Min(amount)
	ins.addPaid(BucketPrincipal, pay)
	tx.Breakdown.Add(BucketPrincipal, pay)
	tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: ins.Seq, Bucket: BucketPrincipal, Amount: pay})
	return amount.Sub(pay)
}

// -----------------------------------------------------------------------------
// Waivers: reduce the due side, never the paid side
// -----------------------------------------------------------------------------

func (e Engine) waiveInterest(acct *Account, tx *Transaction) {
	remaining := tx.Amount
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Deltas = nil
	for idx := range acct.Installments {
		if remaining.IsZero() {
			break
		}
		ins := &acct.Installments[idx]
		out := ins.Outstanding(BucketInterest)
		if !out.IsPositive() {
			continue
		}
		waive := out.Min(remaining)
		ins.addWaived(BucketInterest, waive)
		remaining = remaining.Sub(waive)
		tx.Breakdown.Add(BucketInterest, waive)
		tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: ins.Seq, Bucket: BucketInterest, Amount: waive})
	}
	acct.refreshInstallments(tx.Date, false)
}

func (e Engine) waiveCharge(acct *Account, tx *Transaction) {
	charge := acct.charge(tx.ChargeID)
	if charge == nil {
		return
	}
	waive := charge.Outstanding().Min(tx.Amount)
	if !waive.IsPositive() {
		return
	}
	charge.Waived = charge.Waived.Add(waive)

	seq := acct.installmentSeqForCharge(charge)
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Deltas = nil
	if ins := acct.installment(seq); ins != nil {
		ins.addWaived(charge.Bucket, waive)
		tx.Breakdown.Add(charge.Bucket, waive)
		tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: seq, Bucket: charge.Bucket, Amount: waive})
	}
	acct.refreshInstallments(tx.Date, false)
}

// -----------------------------------------------------------------------------
// Chargeback: undo a repayment's effect without touching the repayment
// -----------------------------------------------------------------------------

func (e Engine) chargeback(acct *Account, tx *Transaction) error {
	original := acct.transaction(tx.OriginalID)
	if original == nil {
		return &ConflictError{Reason: "chargeback references unknown transaction " + string(tx.OriginalID), Cause: ErrTransactionNotFound}
	}

	// Re-raise the dues the original settled, last-allocated first, capped
	// at the chargeback amount. The original transaction keeps its paid
	// allocations; only the outstanding side grows back.
	remaining := tx.Amount
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Deltas = nil
	for i := len(original.Deltas) - 1; i >= 0 && remaining.IsPositive(); i-- {
		d := original.Deltas[i]
		ins := acct.installment(d.InstallmentSeq)
		if ins == nil {
			continue
		}
		raise := d.Amount.Min(remaining)
		ins.addDue(d.Bucket, raise)
		remaining = remaining.Sub(raise)
		tx.Breakdown.Add(d.Bucket, raise)
		tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: d.InstallmentSeq, Bucket: d.Bucket, Amount: raise})
	}

	// A chargeback larger than what the original allocated to installments
	// (the rest went to credit) claws back the unallocated credit.
	if remaining.IsPositive() {
		claw := acct.OverpaidAmount.Min(remaining)
		acct.OverpaidAmount = acct.OverpaidAmount.Sub(claw)
		tx.Breakdown.Overpayment = claw.Neg()
		remaining = remaining.Sub(claw)
	}
	if remaining.IsPositive() {
		return &ConflictError{Reason: "chargeback amount exceeds original allocation"}
	}
	if acct.OverpaidAmount.IsZero() {
		acct.OverpaidOn = Date{}
	}

	// Audit link lives on the AFFECTED transaction, pointing at the
	// chargeback; the chargeback itself records none.
	original.addRelation(TransactionRelation{Type: RelationChargeback, To: tx.ID})

	acct.refreshInstallments(tx.Date, true)
	return nil
}

// -----------------------------------------------------------------------------
// Credit balance refund, write-off, charge-off
// -----------------------------------------------------------------------------

func (e Engine) refundCredit(acct *Account, tx *Transaction) {
	refund := acct.OverpaidAmount.Min(tx.Amount)
	acct.OverpaidAmount = acct.OverpaidAmount.Sub(refund)
	if acct.OverpaidAmount.IsZero() {
		acct.OverpaidOn = Date{}
	}
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Breakdown.Overpayment = refund.Neg()
}

// writeOff forgives every outstanding cent. Recorded on the waived side so
// cash conservation still reconciles.
func (e Engine) writeOff(acct *Account, tx *Transaction) {
	tx.Breakdown = NewBreakdown(acct.Currency)
	tx.Deltas = nil
	for idx := range acct.Installments {
		ins := &acct.Installments[idx]
		for _, b := range AllBuckets {
			out := ins.Outstanding(b)
			if !out.IsPositive() {
				continue
			}
			if b == BucketPrincipal {
				ins.PrincipalWrittenOff = ins.PrincipalWrittenOff.Add(out)
			} else {
				ins.addWaived(b, out)
			}
			tx.Breakdown.Add(b, out)
			tx.Deltas = append(tx.Deltas, InstallmentDelta{InstallmentSeq: ins.Seq, Bucket: b, Amount: out})
		}
	}
	acct.refreshInstallments(tx.Date, false)
	acct.WrittenOffOn = tx.Date
}

// chargeOff freezes nothing: the schedule keeps running, but the date is
// recorded and the accounting collaborator reclassifies postings from here.
func (e Engine) chargeOff(acct *Account, tx *Transaction) {
	tx.Breakdown = NewBreakdown(acct.Currency)
	acct.ChargedOffOn = tx.Date
}
