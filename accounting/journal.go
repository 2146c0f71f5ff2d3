/*
Package accounting turns ledger transactions into double-entry journal
postings.

PURPOSE:
  Implements loan.JournalSink. Every transaction the engine reports - the
  trigger of a mutation plus any rows replay changed - becomes a balanced
  set of debit/credit legs against a fixed chart of accounts, derived from
  the transaction's bucket breakdown.

REPLAY AWARENESS:
  Postings are keyed by (transaction id, replay generation). When replay
  changes a transaction's outcome, its generation moves and the engine
  re-reports it; the journal reverses the legs posted for the prior
  generation and posts fresh ones. Re-reporting the SAME generation (the
  at-least-once delivery case) is a no-op.

CHART:
  loan_portfolio     asset      principal outstanding
  fund_source        asset      cash in/out
  interest_income    income
  fee_income         income
  penalty_income     income
  overpayment        liability  unallocated client credit
  losses_written_off expense
*/
package accounting

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

type AccountCode string

const (
	AcctLoanPortfolio AccountCode = "loan_portfolio"
	AcctFundSource    AccountCode = "fund_source"
	AcctInterestIncome AccountCode = "interest_income"
	AcctFeeIncome      AccountCode = "fee_income"
	AcctPenaltyIncome  AccountCode = "penalty_income"
	AcctOverpayment    AccountCode = "overpayment"
	AcctWriteOffLoss   AccountCode = "losses_written_off"
	AcctInterestReceivable AccountCode = "interest_receivable"
)

type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Leg is one side of a posting.
type Leg struct {
	Account AccountCode `json:"account"`
	Side    Side        `json:"side"`
	Amount  loan.Money  `json:"amount"`
}

// Entry is one posted journal entry: the balanced legs for one transaction
// at one replay generation. Reversal entries negate a prior generation.
type Entry struct {
	LoanID        loan.LoanID        `json:"loanId"`
	TransactionID loan.TransactionID `json:"transactionId"`
	Generation    int                `json:"generation"`
	Type          loan.TransactionType `json:"type"`
	Date          loan.Date          `json:"date"`
	Reversal      bool               `json:"reversal,omitempty"`
	Legs          []Leg              `json:"legs"`
}

// =============================================================================
// JOURNAL
// =============================================================================

type postingKey struct {
	TransactionID loan.TransactionID
	Generation    int
}

// Journal is the in-memory JournalSink. Entries accumulate append-only; a
// downstream GL export drains them in order.
type Journal struct {
	mu      sync.Mutex
	posted  map[postingKey][]Leg
	entries []Entry
	log     *logrus.Logger
}

func NewJournal(log *logrus.Logger) *Journal {
	if log == nil {
		log = logrus.New()
	}
	return &Journal{
		posted: make(map[postingKey][]Leg),
		log:    log,
	}
}

// Post records the balanced legs for one transaction outcome. Safe to call
// more than once per (id, generation); later calls are no-ops. A new
// generation first reverses the previous one's legs.
func (j *Journal) Post(_ context.Context, loanID loan.LoanID, tx *loan.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := postingKey{TransactionID: tx.ID, Generation: tx.ReplayGeneration}
	if _, done := j.posted[key]; done {
		return nil
	}

	if tx.ReplayGeneration > 0 {
		prev := postingKey{TransactionID: tx.ID, Generation: tx.ReplayGeneration - 1}
		if legs, ok := j.posted[prev]; ok {
			j.entries = append(j.entries, Entry{
				LoanID:        loanID,
				TransactionID: tx.ID,
				Generation:    tx.ReplayGeneration,
				Type:          tx.Type,
				Date:          tx.Date,
				Reversal:      true,
				Legs:          flip(legs),
			})
		}
	}

	legs := legsFor(tx)
	j.posted[key] = legs
	if len(legs) == 0 {
		return nil
	}
	j.entries = append(j.entries, Entry{
		LoanID:        loanID,
		TransactionID: tx.ID,
		Generation:    tx.ReplayGeneration,
		Type:          tx.Type,
		Date:          tx.Date,
		Legs:          legs,
	})

	j.log.WithFields(logrus.Fields{
		"loan_id":        loanID,
		"transaction_id": tx.ID,
		"type":           tx.Type,
		"generation":     tx.ReplayGeneration,
		"legs":           len(legs),
	}).Debug("journal entry posted")
	return nil
}

// Entries returns a copy of everything posted so far, in posting order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// EntriesForLoan filters postings for one loan.
func (j *Journal) EntriesForLoan(id loan.LoanID) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if e.LoanID == id {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// LEG DERIVATION
// =============================================================================

// legsFor maps one transaction outcome to balanced debit/credit legs. The
// transaction's breakdown is the authority: legs mirror where the engine
// said the money landed, so journal totals reconcile to the ledger by
// construction.
func legsFor(tx *loan.Transaction) []Leg {
	var legs []Leg
	add := func(account AccountCode, side Side, amount loan.Money) {
		if amount.IsPositive() {
			legs = append(legs, Leg{Account: account, Side: side, Amount: amount})
		}
	}

	b := tx.Breakdown
	switch {
	case tx.Type == loan.TxDisbursement:
		add(AcctLoanPortfolio, Debit, tx.Amount)
		add(AcctFundSource, Credit, tx.Amount)

	case tx.Type.IsCashCredit():
		add(AcctFundSource, Debit, tx.Amount)
		add(AcctLoanPortfolio, Credit, b.Principal)
		add(AcctInterestIncome, Credit, b.Interest)
		add(AcctFeeIncome, Credit, b.Fee)
		add(AcctPenaltyIncome, Credit, b.Penalty)
		add(AcctOverpayment, Credit, b.Overpayment)

	case tx.Type == loan.TxWaiveInterest:
		add(AcctInterestIncome, Debit, tx.Amount)
		add(AcctLoanPortfolio, Credit, tx.Amount)

	case tx.Type == loan.TxWaiveCharges:
		add(AcctFeeIncome, Debit, b.Fee)
		add(AcctPenaltyIncome, Debit, b.Penalty)
		add(AcctLoanPortfolio, Credit, b.Fee.Add(b.Penalty))

	case tx.Type == loan.TxChargeback:
		// Re-raised dues move back onto the portfolio; the clawed credit
		// (negative overpayment in the breakdown) drains the liability.
		raised := b.Principal.Add(b.Interest).Add(b.Fee).Add(b.Penalty)
		add(AcctLoanPortfolio, Debit, raised)
		add(AcctOverpayment, Debit, b.Overpayment.Neg())
		add(AcctFundSource, Credit, tx.Amount)

	case tx.Type == loan.TxCreditBalanceRefund:
		add(AcctOverpayment, Debit, b.Overpayment.Neg())
		add(AcctFundSource, Credit, b.Overpayment.Neg())

	case tx.Type == loan.TxWriteOff:
		add(AcctWriteOffLoss, Debit, tx.Amount)
		add(AcctLoanPortfolio, Credit, tx.Amount)

	case tx.Type == loan.TxAccrual:
		add(AcctInterestReceivable, Debit, tx.Amount)
		add(AcctInterestIncome, Credit, tx.Amount)
	}
	// CHARGE_OFF is a classification event, not a money movement; the GL
	// treatment of charged-off portfolios is an export-side mapping.
	return legs
}

func flip(legs []Leg) []Leg {
	out := make([]Leg, len(legs))
	for i, l := range legs {
		side := Debit
		if l.Side == Debit {
			side = Credit
		}
		out[i] = Leg{Account: l.Account, Side: side, Amount: l.Amount}
	}
	return out
}
