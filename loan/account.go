/*
account.go - The LoanAccount aggregate and its operations

PURPOSE:
  Account is the unit of consistency: it owns the full installment set,
  transaction ledger, and charge list for one loan, and every financial
  operation goes through it. The persistence collaborator loads the whole
  aggregate before invoking any operation here and saves the whole
  aggregate after; nothing in this file performs I/O.

OPERATION SHAPE:
  validate input -> insert the ledger entry -> reprocess (full fold, see
  replay.go) -> verify invariants -> re-derive status. Validation failures
  leave the aggregate untouched. A ReplayError means the aggregate must be
  discarded, not saved.

STATUS IS DERIVED:
  LoanStatus is a pure function of balances and recorded lifecycle dates.
  It is recomputed after every successful operation; there is no code path
  that stores a status the balances do not support.

SEE ALSO:
  - allocation.go: how one transaction lands on the installments
  - replay.go: the reprocessing fold and invariant verification
  - ledger.go: ordering, external ids, outstanding snapshots
*/
package loan

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATE
// =============================================================================

// Tranche is one disbursement of principal.
type Tranche struct {
	Date   Date  `json:"date"`
	Amount Money `json:"amount"`
}

// AccountConfig is the product-derived configuration an account is opened
// with. Copied onto the account so product edits never rewrite history.
type AccountConfig struct {
	ID          LoanID
	ProductID   ProductID
	Currency    string
	Principal   Money
	Schedule    ScheduleConfig
	Rules       AllocationRuleSet
	Delinquency DelinquencyBucket

	// DownPaymentPercent, when positive, makes that share of each tranche
	// due immediately on the disbursement row.
	DownPaymentPercent decimal.Decimal

	// AllowOverpayment permits repayments beyond the outstanding balance.
	// When false such a repayment is a ConflictError.
	AllowOverpayment bool

	// OverduePenalty, when set, makes the COB apply-overdue-charges step
	// generate penalty charges for late installments.
	OverduePenalty *OverduePenaltyConfig

	// DelinquencyDetail enables the per-installment delinquency breakdown.
	DelinquencyDetail bool

	SubmittedOn Date
}

type Account struct {
	ID        LoanID    `json:"id"`
	ProductID ProductID `json:"productId"`
	Currency  string    `json:"currency"`
	Status    LoanStatus `json:"status"`

	// Fraud is orthogonal to status: a flagged loan keeps servicing.
	Fraud bool `json:"fraud"`

	Schedule           ScheduleConfig        `json:"schedule"`
	Rules              AllocationRuleSet     `json:"rules"`
	DownPaymentPercent decimal.Decimal       `json:"downPaymentPercent"`
	AllowOverpayment   bool                  `json:"allowOverpayment"`
	OverduePenalty     *OverduePenaltyConfig `json:"overduePenalty,omitempty"`
	DelinquencyDetail  bool                  `json:"delinquencyDetail"`

	Principal Money     `json:"principal"` // approved amount
	Tranches  []Tranche `json:"tranches"`  // actual disbursements

	SubmittedOn  Date `json:"submittedOn"`
	ApprovedOn   Date `json:"approvedOn"`
	RejectedOn   Date `json:"rejectedOn"`
	ClosedOn     Date `json:"closedOn"`
	OverpaidOn   Date `json:"overpaidOn"`
	WrittenOffOn Date `json:"writtenOffOn"`
	ChargedOffOn Date `json:"chargedOffOn"`

	Installments []Installment `json:"installments"`
	Transactions []Transaction `json:"transactions"`
	Charges      []Charge      `json:"charges"`

	OverpaidAmount Money `json:"overpaidAmount"`

	DelinquencyBucket DelinquencyBucket  `json:"delinquencyBucket"`
	Delinquency       DelinquencyState   `json:"delinquency"`
	PauseActions      []DelinquencyAction `json:"pauseActions,omitempty"`

	// Version increments on every successful mutation; the persistence
	// collaborator uses it for optimistic concurrency.
	Version int `json:"version"`

	nextSeq int
	extIDs  map[string]TransactionID
}

func NewAccount(cfg AccountConfig) (*Account, error) {
	if cfg.ID == "" {
		return nil, validationf("id", "loan id required")
	}
	if cfg.Currency == "" {
		return nil, validationf("currency", "currency required")
	}
	if !cfg.Principal.IsPositive() {
		return nil, validationf("principal", "must be positive, got %s", cfg.Principal)
	}
	if err := cfg.Schedule.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Rules.Default.validate(); err != nil {
		return nil, err
	}
	for t, r := range cfg.Rules.ByType {
		if err := r.validate(); err != nil {
			return nil, validationf("rules", "rule for %s: %v", t, err)
		}
	}
	if err := cfg.Delinquency.validate(); err != nil {
		return nil, err
	}
	return &Account{
		ID:                 cfg.ID,
		ProductID:          cfg.ProductID,
		Currency:           cfg.Currency,
		Status:             StatusPendingApproval,
		Schedule:           cfg.Schedule,
		Rules:              cfg.Rules,
		DownPaymentPercent: cfg.DownPaymentPercent,
		AllowOverpayment:   cfg.AllowOverpayment,
		OverduePenalty:     cfg.OverduePenalty,
		DelinquencyDetail:  cfg.DelinquencyDetail,
		Principal:          cfg.Principal,
		SubmittedOn:        cfg.SubmittedOn,
		DelinquencyBucket:  cfg.Delinquency,
		OverpaidAmount:     ZeroMoney(cfg.Currency),
	}, nil
}

func newTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// NewLoanID mints a fresh loan identifier for callers that do not supply
// their own.
func NewLoanID() LoanID {
	return LoanID(uuid.NewString())
}

// =============================================================================
// LOOKUPS - Flat, id-indexed arenas; relations are id pairs
// =============================================================================

func (a *Account) transaction(id TransactionID) *Transaction {
	for i := range a.Transactions {
		if a.Transactions[i].ID == id {
			return &a.Transactions[i]
		}
	}
	return nil
}

// TransactionByID returns the transaction or ErrTransactionNotFound.
func (a *Account) TransactionByID(id TransactionID) (*Transaction, error) {
	if tx := a.transaction(id); tx != nil {
		return tx, nil
	}
	return nil, ErrTransactionNotFound
}

func (a *Account) charge(id ChargeID) *Charge {
	for i := range a.Charges {
		if a.Charges[i].ID == id {
			return &a.Charges[i]
		}
	}
	return nil
}

// ChargeByID returns the charge or ErrChargeNotFound.
func (a *Account) ChargeByID(id ChargeID) (*Charge, error) {
	if c := a.charge(id); c != nil {
		return c, nil
	}
	return nil, ErrChargeNotFound
}

func (a *Account) installment(seq int) *Installment {
	for i := range a.Installments {
		if a.Installments[i].Seq == seq {
			return &a.Installments[i]
		}
	}
	return nil
}

func (a *Account) lastRegularInstallment() *Installment {
	var last *Installment
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Seq > 0 && !ins.Additional {
			last = ins
		}
	}
	return last
}

// installmentSeqForCharge maps a charge to the schedule row carrying its
// due amount: the earliest regular row whose due date is on or after the
// charge due date, else the post-maturity row created for that date.
func (a *Account) installmentSeqForCharge(c *Charge) int {
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Seq == 0 {
			continue
		}
		if !ins.Additional && ins.DueDate.AfterOrEqual(c.DueDate) {
			return ins.Seq
		}
	}
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Additional && ins.DueDate.Equal(c.DueDate) {
			return ins.Seq
		}
	}
	return -1
}

// settleCharges distributes a fee/penalty payment on one installment across
// the charges that put their due amount there, earliest due date first.
// Records the paid-by link on each charge touched.
func (a *Account) settleCharges(seq int, bucket Bucket, amount Money, txID TransactionID) {
	for i := range a.Charges {
		if amount.IsZero() {
			return
		}
		c := &a.Charges[i]
		if c.Bucket != bucket || a.installmentSeqForCharge(c) != seq {
			continue
		}
		out := c.Outstanding()
		if !out.IsPositive() {
			continue
		}
		pay := out.Min(amount)
		c.Paid = c.Paid.Add(pay)
		c.PaidBy = append(c.PaidBy, ChargePayment{TransactionID: txID, Amount: pay})
		amount = amount.Sub(pay)
	}
}

// =============================================================================
// DERIVED BALANCES
// =============================================================================

// OutstandingPrincipal is the principal still owed across the schedule.
func (a *Account) OutstandingPrincipal() Money {
	total := ZeroMoney(a.Currency)
	for i := range a.Installments {
		total = total.Add(a.Installments[i].Outstanding(BucketPrincipal))
	}
	return total
}

// TotalOutstanding sums every bucket's outstanding across the schedule.
func (a *Account) TotalOutstanding() Money {
	total := ZeroMoney(a.Currency)
	for i := range a.Installments {
		total = total.Add(a.Installments[i].TotalOutstanding())
	}
	return total
}

// TotalPaid sums every bucket's paid amounts across the schedule.
func (a *Account) TotalPaid() Money {
	total := ZeroMoney(a.Currency)
	for i := range a.Installments {
		total = total.Add(a.Installments[i].TotalPaid())
	}
	return total
}

// outstandingPrincipalOpen is the principal outstanding on rows still open
// for reamortization (regular, not completed).
func (a *Account) outstandingPrincipalOpen() Money {
	total := ZeroMoney(a.Currency)
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Seq == 0 || ins.Additional || ins.Completed {
			continue
		}
		total = total.Add(ins.Outstanding(BucketPrincipal))
	}
	return total
}

func (a *Account) refreshInstallments(eventDate Date, stamp bool) {
	for i := range a.Installments {
		a.Installments[i].refreshCompletion(eventDate, stamp)
	}
}

// deriveStatus recomputes Status from balances. Pure; no stale status can
// survive a successful operation.
func (a *Account) deriveStatus(eventDate Date) {
	switch a.Status {
	case StatusPendingApproval, StatusApproved, StatusClosedRejected:
		// Pre-disbursement lifecycle states persist until disbursement.
		if len(a.Tranches) == 0 {
			return
		}
	}

	switch {
	case !a.WrittenOffOn.IsZero():
		a.Status = StatusWrittenOff
		a.ClosedOn = a.WrittenOffOn
	case a.OverpaidAmount.IsPositive():
		a.Status = StatusOverpaid
		a.ClosedOn = Date{}
	case a.TotalOutstanding().IsZero():
		a.Status = StatusClosedObligationsMet
		a.ClosedOn = a.obligationsMetDate(eventDate)
	case !a.ChargedOffOn.IsZero():
		a.Status = StatusChargedOff
		a.ClosedOn = Date{}
	default:
		a.Status = StatusActive
		a.ClosedOn = Date{}
	}
}

func (a *Account) obligationsMetDate(fallback Date) Date {
	var latest Date
	for i := range a.Installments {
		if met := a.Installments[i].ObligationsMetOn; met.After(latest) {
			latest = met
		}
	}
	if latest.IsZero() {
		return fallback
	}
	return latest
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

func (a *Account) Approve(on Date) error {
	if a.Status != StatusPendingApproval {
		return &StateError{LoanID: a.ID, Status: a.Status, Operation: "approve"}
	}
	a.Status = StatusApproved
	a.ApprovedOn = on
	a.Version++
	return nil
}

func (a *Account) Reject(on Date) error {
	if a.Status != StatusPendingApproval {
		return &StateError{LoanID: a.ID, Status: a.Status, Operation: "reject"}
	}
	a.Status = StatusClosedRejected
	a.RejectedOn = on
	a.ClosedOn = on
	a.Version++
	return nil
}

// MarkFraud toggles the fraud flag. Orthogonal to status; no replay.
func (a *Account) MarkFraud(flag bool) {
	a.Fraud = flag
	a.Version++
}

// =============================================================================
// FINANCIAL OPERATIONS
// =============================================================================

// Disburse pays out principal. The first tranche activates the loan and
// builds the schedule; later tranches extend the outstanding principal and
// reamortize the remaining rows.
func (a *Account) Disburse(on Date, amount Money, externalID string) (*Transaction, error) {
	if a.Status != StatusApproved && !a.Status.IsOpen() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "disburse"}
	}
	if !amount.IsPositive() {
		return nil, validationf("amount", "disbursement must be positive, got %s", amount)
	}
	if on.IsZero() {
		return nil, validationf("date", "disbursement date required")
	}

	tx := Transaction{
		ID:         newTransactionID(),
		ExternalID: externalID,
		Type:       TxDisbursement,
		Amount:     amount,
		Date:       on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	a.Tranches = append(a.Tranches, Tranche{Date: on, Amount: amount})

	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// Repay records a cash credit: REPAYMENT, DOWN_PAYMENT, MERCHANT_REFUND,
// PAYOUT_REFUND, or GOODWILL_CREDIT.
func (a *Account) Repay(typ TransactionType, on Date, amount Money, externalID string) (*Transaction, error) {
	if !typ.IsCashCredit() {
		return nil, validationf("type", "%s is not a cash credit type", typ)
	}
	if !a.Status.IsOpen() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "repay"}
	}
	if !amount.IsPositive() {
		return nil, validationf("amount", "repayment must be positive, got %s", amount)
	}
	if on.IsZero() {
		return nil, validationf("date", "transaction date required")
	}
	if first := a.firstDisbursementDate(); !first.IsZero() && on.Before(first) {
		return nil, validationf("date", "transaction date %s precedes disbursement %s", on, first)
	}
	if !a.AllowOverpayment && amount.GreaterThan(a.TotalOutstanding()) {
		return nil, &ConflictError{Reason: "repayment exceeds outstanding balance and overpayment is disabled"}
	}

	tx := Transaction{
		ID:         newTransactionID(),
		ExternalID: externalID,
		Type:       typ,
		Amount:     amount,
		Date:       on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// AddCharge applies a charge instance. Adding one is not itself a
// transaction, but it changes the schedule, so the ledger is reprocessed;
// existing transactions pick up replay marks only if their outcome shifts.
func (a *Account) AddCharge(c Charge) (*Charge, error) {
	if a.Status.IsClosed() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "add charge"}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = ChargeID(uuid.NewString())
	}
	if a.charge(c.ID) != nil {
		return nil, &ConflictError{Reason: "charge id already exists: " + string(c.ID)}
	}
	c.Amount = c.ResolveAmount(a.Principal)
	if c.DueDate.IsZero() {
		c.DueDate = a.firstDisbursementDate()
	}
	c.Paid = ZeroMoney(a.Currency)
	c.Waived = ZeroMoney(a.Currency)
	a.Charges = append(a.Charges, c)

	if len(a.Tranches) > 0 {
		if err := a.reprocess(nil); err != nil {
			return nil, err
		}
	}
	a.Version++
	return a.charge(c.ID), nil
}

// WaiveCharge forgives a charge's outstanding amount. Waiving an already
// fully-waived charge is a StateError, so retried waives cannot
// double-reduce.
func (a *Account) WaiveCharge(id ChargeID, on Date) (*Transaction, error) {
	if !a.Status.IsOpen() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "waive charge"}
	}
	c := a.charge(id)
	if c == nil {
		return nil, ErrChargeNotFound
	}
	if c.FullyWaived() || !c.Outstanding().IsPositive() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "waive settled charge"}
	}

	tx := Transaction{
		ID:       newTransactionID(),
		Type:     TxWaiveCharges,
		Amount:   c.Outstanding(),
		Date:     on,
		ChargeID: id,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// WaiveInterest forgives interest due, earliest installment first.
func (a *Account) WaiveInterest(on Date, amount Money) (*Transaction, error) {
	if !a.Status.IsOpen() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "waive interest"}
	}
	if !amount.IsPositive() {
		return nil, validationf("amount", "waive amount must be positive, got %s", amount)
	}

	tx := Transaction{
		ID:     newTransactionID(),
		Type:   TxWaiveInterest,
		Amount: amount,
		Date:   on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// Chargeback reverses the effect of a prior repayment following a payment
// network dispute. The loan may reopen from CLOSED_OBLIGATIONS_MET or
// OVERPAID back to ACTIVE.
func (a *Account) Chargeback(originalID TransactionID, amount Money, on Date, externalID string) (*Transaction, error) {
	original := a.transaction(originalID)
	if original == nil {
		return nil, ErrTransactionNotFound
	}
	if !original.Type.IsCashCredit() || original.Reversed {
		return nil, &ConflictError{Reason: "chargeback target must be an active cash transaction"}
	}
	if !amount.IsPositive() || amount.GreaterThan(original.Amount) {
		return nil, validationf("amount", "chargeback amount %s out of range (0, %s]", amount, original.Amount)
	}
	// A chargeback ordered before the payment it disputes would fold with
	// stale deltas during replay.
	if on.Before(original.Date) {
		return nil, validationf("date", "chargeback on %s predates the original transaction on %s", on, original.Date)
	}
	if a.Status.IsClosed() && a.Status != StatusClosedObligationsMet {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "chargeback"}
	}

	tx := Transaction{
		ID:         newTransactionID(),
		ExternalID: externalID,
		Type:       TxChargeback,
		Amount:     amount,
		Date:       on,
		OriginalID: originalID,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// CreditBalanceRefund pays unallocated overpayment credit back out.
func (a *Account) CreditBalanceRefund(on Date, amount Money, externalID string) (*Transaction, error) {
	if a.Status != StatusOverpaid {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "credit balance refund"}
	}
	if !amount.IsPositive() {
		return nil, validationf("amount", "refund must be positive, got %s", amount)
	}
	if amount.GreaterThan(a.OverpaidAmount) {
		return nil, &ConflictError{Reason: "refund exceeds credit balance " + a.OverpaidAmount.String()}
	}

	tx := Transaction{
		ID:         newTransactionID(),
		ExternalID: externalID,
		Type:       TxCreditBalanceRefund,
		Amount:     amount,
		Date:       on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// WriteOff forgives the full outstanding balance and closes the loan.
func (a *Account) WriteOff(on Date) (*Transaction, error) {
	if !a.Status.IsOpen() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "write off"}
	}
	out := a.TotalOutstanding()
	if !out.IsPositive() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "write off settled loan"}
	}

	tx := Transaction{
		ID:     newTransactionID(),
		Type:   TxWriteOff,
		Amount: out,
		Date:   on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// ChargeOff reclassifies the loan as charged off. Servicing continues; the
// accounting collaborator keys income recognition off the recorded date.
func (a *Account) ChargeOff(on Date) (*Transaction, error) {
	if a.Status != StatusActive && a.Status != StatusOverpaid {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "charge off"}
	}
	if !a.ChargedOffOn.IsZero() {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "charge off twice"}
	}

	tx := Transaction{
		ID:     newTransactionID(),
		Type:   TxChargeOff,
		Amount: a.TotalOutstanding(),
		Date:   on,
	}
	if err := a.insertTransaction(&tx); err != nil {
		return nil, err
	}
	if err := a.reprocess(a.transaction(tx.ID)); err != nil {
		return nil, err
	}
	a.Version++
	return a.transaction(tx.ID), nil
}

// Reverse marks a transaction reversed and reprocesses without it. The row
// stays in the ledger; only its effects are undone.
func (a *Account) Reverse(id TransactionID, on Date) (*Transaction, error) {
	tx := a.transaction(id)
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	if tx.Reversed {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "reverse reversed transaction"}
	}
	if tx.Type == TxDisbursement && len(a.Tranches) == 1 {
		return nil, &StateError{LoanID: a.ID, Status: a.Status, Operation: "reverse sole disbursement"}
	}

	tx.Reversed = true
	tx.ReversedOn = on
	if tx.Type == TxDisbursement {
		a.removeTranche(tx.Date, tx.Amount)
	}
	if err := a.reprocess(tx); err != nil {
		return nil, err
	}
	a.Version++
	return tx, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *Account) firstDisbursementDate() Date {
	if len(a.Tranches) == 0 {
		return Date{}
	}
	return a.Tranches[0].Date
}

func (a *Account) removeTranche(on Date, amount Money) {
	for i := range a.Tranches {
		if a.Tranches[i].Date.Equal(on) && a.Tranches[i].Amount.Equal(amount) {
			a.Tranches = append(a.Tranches[:i], a.Tranches[i+1:]...)
			return
		}
	}
}

// Snapshot is the post-mutation view handed to the event collaborator.
type Snapshot struct {
	LoanID               LoanID     `json:"loanId"`
	Status               LoanStatus `json:"status"`
	OutstandingPrincipal Money      `json:"outstandingPrincipal"`
	TotalOutstanding     Money      `json:"totalOutstanding"`
	OverpaidAmount       Money      `json:"overpaidAmount"`
	DelinquentDays       int        `json:"delinquentDays"`
	DelinquentAmount     Money      `json:"delinquentAmount"`
	Version              int        `json:"version"`
}

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		LoanID:               a.ID,
		Status:               a.Status,
		OutstandingPrincipal: a.OutstandingPrincipal(),
		TotalOutstanding:     a.TotalOutstanding(),
		OverpaidAmount:       a.OverpaidAmount,
		DelinquentDays:       a.Delinquency.DelinquentDays,
		DelinquentAmount:     a.Delinquency.DelinquentAmount,
		Version:              a.Version,
	}
}

// RestoreIndexes rebuilds unexported bookkeeping after a load from
// persistence: the next insertion sequence and the external-id index.
func (a *Account) RestoreIndexes() {
	a.extIDs = nil
	a.nextSeq = 0
	for i := range a.Transactions {
		if a.Transactions[i].Seq >= a.nextSeq {
			a.nextSeq = a.Transactions[i].Seq + 1
		}
	}
}
