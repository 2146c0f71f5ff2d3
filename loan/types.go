/*
types.go - Core identifiers, enumerations, and ledger entry types

KEY CONCEPTS:
  - LoanID / TransactionID / ChargeID: type-safe identifiers
  - LoanStatus: pure function of balances, never stored stale
  - TransactionType: the thirteen financial event kinds the ledger accepts
  - Bucket: the four component buckets money is split across
  - Transaction: an immutable ledger entry; only the Reversed and Replayed
    markers may change after creation
  - Installment: one schedule row; recomputed in place during replay,
    never deleted

DESIGN PRINCIPLES:
  1. Immutability: transactions are reversed or replayed, never edited
  2. Auditability: relations record which transaction affected which
  3. Relations are stored as id pairs, not pointers, so the aggregate
     stays an acyclic value that can be copied and compared

SEE ALSO:
  - ledger.go: ordering and balance invariants over []Transaction
  - allocation.go: how Transaction amounts land on Installments
*/
package loan

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type TransactionID string
type ChargeID string
type ProductID string

// =============================================================================
// LOAN STATUS
// =============================================================================

type LoanStatus string

const (
	StatusPendingApproval      LoanStatus = "PENDING_APPROVAL"
	StatusApproved             LoanStatus = "APPROVED"
	StatusActive               LoanStatus = "ACTIVE"
	StatusOverpaid             LoanStatus = "OVERPAID"
	StatusClosedObligationsMet LoanStatus = "CLOSED_OBLIGATIONS_MET"
	StatusWrittenOff           LoanStatus = "WRITTEN_OFF"
	StatusClosedRejected       LoanStatus = "CLOSED_REJECTED"
	StatusChargedOff           LoanStatus = "CHARGED_OFF"
)

// IsClosed reports whether the status terminates servicing. Delinquency
// classification resets to zero for closed loans.
func (s LoanStatus) IsClosed() bool {
	switch s {
	case StatusClosedObligationsMet, StatusWrittenOff, StatusClosedRejected:
		return true
	}
	return false
}

// IsOpen reports whether the loan can accept financial transactions.
func (s LoanStatus) IsOpen() bool {
	return s == StatusActive || s == StatusOverpaid || s == StatusChargedOff
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TransactionType string

const (
	TxDisbursement        TransactionType = "DISBURSEMENT"
	TxRepayment           TransactionType = "REPAYMENT"
	TxDownPayment         TransactionType = "DOWN_PAYMENT"
	TxWaiveCharges        TransactionType = "WAIVE_CHARGES"
	TxWaiveInterest       TransactionType = "WAIVE_INTEREST"
	TxChargeback          TransactionType = "CHARGEBACK"
	TxMerchantRefund      TransactionType = "MERCHANT_REFUND"
	TxPayoutRefund        TransactionType = "PAYOUT_REFUND"
	TxGoodwillCredit      TransactionType = "GOODWILL_CREDIT"
	TxCreditBalanceRefund TransactionType = "CREDIT_BALANCE_REFUND"
	TxChargeOff           TransactionType = "CHARGE_OFF"
	TxAccrual             TransactionType = "ACCRUAL"
	TxWriteOff            TransactionType = "WRITE_OFF"
)

// IsCashCredit reports whether the type brings money into the loan and is
// allocated across installments like a repayment.
func (t TransactionType) IsCashCredit() bool {
	switch t {
	case TxRepayment, TxDownPayment, TxMerchantRefund, TxPayoutRefund, TxGoodwillCredit:
		return true
	}
	return false
}

// IsWaiver reports whether the type reduces due amounts without cash.
func (t TransactionType) IsWaiver() bool {
	return t == TxWaiveCharges || t == TxWaiveInterest
}

// =============================================================================
// BUCKETS AND DUE STATES
// =============================================================================

// Bucket is one of the four components every due and paid amount is split
// across. Allocation rules are ordered lists of (due state, bucket) steps.
type Bucket string

const (
	BucketPrincipal Bucket = "PRINCIPAL"
	BucketInterest  Bucket = "INTEREST"
	BucketFee       Bucket = "FEE"
	BucketPenalty   Bucket = "PENALTY"
)

// AllBuckets in canonical reporting order.
var AllBuckets = []Bucket{BucketPrincipal, BucketInterest, BucketFee, BucketPenalty}

// DueState classifies an installment relative to a transaction date.
type DueState string

const (
	StatePastDue   DueState = "PAST_DUE"   // due date < transaction date
	StateDue       DueState = "DUE"        // due date == transaction date
	StateInAdvance DueState = "IN_ADVANCE" // due date > transaction date
)

// DueStateOf classifies a due date against a transaction date.
func DueStateOf(dueDate, txDate Date) DueState {
	switch {
	case dueDate.Before(txDate):
		return StatePastDue
	case dueDate.Equal(txDate):
		return StateDue
	default:
		return StateInAdvance
	}
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// RelationType labels a transaction-to-transaction audit link.
type RelationType string

const (
	RelationChargeback RelationType = "CHARGEBACK" // original repayment -> chargeback
	RelationReplayed   RelationType = "REPLAYED"   // replayed tx -> triggering tx
	RelationReversed   RelationType = "REVERSED"   // reversed tx -> reversing event
)

// TransactionRelation links this transaction to the one that affected it.
// Stored on the AFFECTED transaction, pointing at the trigger.
type TransactionRelation struct {
	Type RelationType  `json:"type"`
	To   TransactionID `json:"to"`
}

// Breakdown is the allocation of a transaction amount across buckets,
// summed over all installments it touched.
type Breakdown struct {
	Principal Money `json:"principal"`
	Interest  Money `json:"interest"`
	Fee       Money `json:"fee"`
	Penalty   Money `json:"penalty"`
	// Overpayment is the surplus left after the loan was fully satisfied.
	Overpayment Money `json:"overpayment"`
}

func NewBreakdown(currency string) Breakdown {
	z := ZeroMoney(currency)
	return Breakdown{Principal: z, Interest: z, Fee: z, Penalty: z, Overpayment: z}
}

func (b Breakdown) Get(bucket Bucket) Money {
	switch bucket {
	case BucketPrincipal:
		return b.Principal
	case BucketInterest:
		return b.Interest
	case BucketFee:
		return b.Fee
	default:
		return b.Penalty
	}
}

func (b *Breakdown) Add(bucket Bucket, m Money) {
	switch bucket {
	case BucketPrincipal:
		b.Principal = b.Principal.Add(m)
	case BucketInterest:
		b.Interest = b.Interest.Add(m)
	case BucketFee:
		b.Fee = b.Fee.Add(m)
	case BucketPenalty:
		b.Penalty = b.Penalty.Add(m)
	}
}

// Total is the cash-bearing total: buckets plus overpayment surplus.
func (b Breakdown) Total() Money {
	return b.Principal.Add(b.Interest).Add(b.Fee).Add(b.Penalty).Add(b.Overpayment)
}

// InstallmentDelta records how much of a transaction landed on one
// installment component. The accounting collaborator consumes these.
type InstallmentDelta struct {
	InstallmentSeq int    `json:"installmentSeq"`
	Bucket         Bucket `json:"bucket"`
	Amount         Money  `json:"amount"`
}

type Transaction struct {
	ID         TransactionID   `json:"id"`
	ExternalID string          `json:"externalId,omitempty"`
	Type       TransactionType `json:"type"`
	Amount     Money           `json:"amount"`
	Date       Date            `json:"date"`

	// SubmittedAt is the wall-clock creation instant; Seq is the insertion
	// sequence assigned by the ledger. Replay order is (Date, Seq): two
	// transactions can share a date AND a timestamp, so the sequence number
	// is the documented tie-break, never the clock.
	SubmittedAt time.Time `json:"submittedAt"`
	Seq         int       `json:"seq"`

	Reversed   bool `json:"reversed"`
	ReversedOn Date `json:"reversedOn,omitempty"`
	Replayed   bool `json:"replayed"`
	// ReplayGeneration increments each time replay changes this
	// transaction's outcome. Accounting keys off (ID, ReplayGeneration).
	ReplayGeneration int `json:"replayGeneration"`

	// OutstandingAfter is the loan outstanding balance snapshot immediately
	// after this transaction, re-derived on insert and after every replay.
	OutstandingAfter Money `json:"outstandingAfter"`

	Breakdown Breakdown          `json:"breakdown"`
	Deltas    []InstallmentDelta `json:"deltas,omitempty"`
	Relations []TransactionRelation `json:"relations,omitempty"`

	// ChargeID links WAIVE_CHARGES transactions to the charge they waive.
	ChargeID ChargeID `json:"chargeId,omitempty"`
	// OriginalID links CHARGEBACK transactions to the repayment disputed.
	OriginalID TransactionID `json:"originalId,omitempty"`
}

// RelationsTo returns the relations of the given type.
func (t *Transaction) RelationsTo(rt RelationType) []TransactionRelation {
	var out []TransactionRelation
	for _, r := range t.Relations {
		if r.Type == rt {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// INSTALLMENT - One schedule row
// =============================================================================

// Installment is one repayment period. Seq 0 is the disbursement row (down
// payment holder); 1..N are repayment periods; rows past N hold charges that
// fall due after maturity. Rows are recomputed in place by replay and never
// deleted.
type Installment struct {
	Seq     int  `json:"seq"`
	DueDate Date `json:"dueDate"`
	// Additional marks a row created after maturity to carry late charges.
	Additional bool `json:"additional,omitempty"`

	PrincipalDue Money `json:"principalDue"`
	InterestDue  Money `json:"interestDue"`
	FeeDue       Money `json:"feeDue"`
	PenaltyDue   Money `json:"penaltyDue"`

	PrincipalPaid Money `json:"principalPaid"`
	InterestPaid  Money `json:"interestPaid"`
	FeePaid       Money `json:"feePaid"`
	PenaltyPaid   Money `json:"penaltyPaid"`

	InterestWaived Money `json:"interestWaived"`
	FeeWaived      Money `json:"feeWaived"`
	PenaltyWaived  Money `json:"penaltyWaived"`

	// PrincipalWrittenOff is principal forgiven by a WRITE_OFF. Principal is
	// never waived by the waiver operations, only written off.
	PrincipalWrittenOff Money `json:"principalWrittenOff"`

	Completed           bool `json:"completed"`
	ObligationsMetOn    Date `json:"obligationsMetOnDate"`
}

func NewInstallment(seq int, dueDate Date, currency string) Installment {
	z := ZeroMoney(currency)
	return Installment{
		Seq: seq, DueDate: dueDate,
		PrincipalDue: z, InterestDue: z, FeeDue: z, PenaltyDue: z,
		PrincipalPaid: z, InterestPaid: z, FeePaid: z, PenaltyPaid: z,
		InterestWaived: z, FeeWaived: z, PenaltyWaived: z,
		PrincipalWrittenOff: z,
	}
}

func (i *Installment) Due(b Bucket) Money {
	switch b {
	case BucketPrincipal:
		return i.PrincipalDue
	case BucketInterest:
		return i.InterestDue
	case BucketFee:
		return i.FeeDue
	default:
		return i.PenaltyDue
	}
}

func (i *Installment) Paid(b Bucket) Money {
	switch b {
	case BucketPrincipal:
		return i.PrincipalPaid
	case BucketInterest:
		return i.InterestPaid
	case BucketFee:
		return i.FeePaid
	default:
		return i.PenaltyPaid
	}
}

// Waived returns the forgiven amount for a bucket. For principal this is
// the written-off amount; the waiver operations never touch principal.
func (i *Installment) Waived(b Bucket) Money {
	switch b {
	case BucketInterest:
		return i.InterestWaived
	case BucketFee:
		return i.FeeWaived
	case BucketPenalty:
		return i.PenaltyWaived
	default:
		return i.PrincipalWrittenOff
	}
}

// Outstanding is due minus paid minus waived for one bucket, floored at zero.
func (i *Installment) Outstanding(b Bucket) Money {
	return i.Due(b).Sub(i.Paid(b)).Sub(i.Waived(b)).ClampZero()
}

// TotalOutstanding sums outstanding across all four buckets.
func (i *Installment) TotalOutstanding() Money {
	total := i.PrincipalDue.Zero()
	for _, b := range AllBuckets {
		total = total.Add(i.Outstanding(b))
	}
	return total
}

func (i *Installment) TotalDue() Money {
	return i.PrincipalDue.Add(i.InterestDue).Add(i.FeeDue).Add(i.PenaltyDue)
}

func (i *Installment) TotalPaid() Money {
	return i.PrincipalPaid.Add(i.InterestPaid).Add(i.FeePaid).Add(i.PenaltyPaid)
}

func (i *Installment) addPaid(b Bucket, m Money) {
	switch b {
	case BucketPrincipal:
		i.PrincipalPaid = i.PrincipalPaid.Add(m)
	case BucketInterest:
		i.InterestPaid = i.InterestPaid.Add(m)
	case BucketFee:
		i.FeePaid = i.FeePaid.Add(m)
	case BucketPenalty:
		i.PenaltyPaid = i.PenaltyPaid.Add(m)
	}
}

func (i *Installment) addWaived(b Bucket, m Money) {
	switch b {
	case BucketInterest:
		i.InterestWaived = i.InterestWaived.Add(m)
	case BucketFee:
		i.FeeWaived = i.FeeWaived.Add(m)
	case BucketPenalty:
		i.PenaltyWaived = i.PenaltyWaived.Add(m)
	}
}

func (i *Installment) addDue(b Bucket, m Money) {
	switch b {
	case BucketPrincipal:
		i.PrincipalDue = i.PrincipalDue.Add(m)
	case BucketInterest:
		i.InterestDue = i.InterestDue.Add(m)
	case BucketFee:
		i.FeeDue = i.FeeDue.Add(m)
	case BucketPenalty:
		i.PenaltyDue = i.PenaltyDue.Add(m)
	}
}

// refreshCompletion recomputes the completed flag. Only cash-bearing events
// stamp obligationsMetOnDate (stamp=true): a row settled purely by waivers
// stays unstamped until the next cash transaction is processed, which is
// when the servicing system recognizes the obligation as met.
func (i *Installment) refreshCompletion(eventDate Date, stamp bool) {
	if i.TotalOutstanding().IsZero() {
		i.Completed = true
		if stamp && i.ObligationsMetOn.IsZero() {
			i.ObligationsMetOn = eventDate
		}
		return
	}
	i.Completed = false
	i.ObligationsMetOn = Date{}
}
