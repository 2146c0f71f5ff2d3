/*
accrual.go - Per-business-date COB side effects on one loan

PURPOSE:
  The idempotent per-loan functions the COB pipeline invokes once per
  business date: interest accrual, overdue-charge application, and
  arrears aging (delinquency.go). Each is safe to run repeatedly for the
  same business date - the second run is a no-op.

ACCRUAL MODEL:
  Interest accrues linearly within each repayment period. The accrued
  total as of a business date is compared with the sum of prior ACCRUAL
  transactions; only the positive delta is posted. Accrual stops at
  charge-off: income recognition past that date is the accounting
  collaborator's concern, not the schedule's.
*/
package loan

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INTEREST ACCRUAL
// =============================================================================

// AccruedInterestAsOf returns the schedule interest earned up to the
// business date, accruing linearly inside each period.
func (a *Account) AccruedInterestAsOf(businessDate Date) Money {
	total := ZeroMoney(a.Currency)
	periodStart := a.firstDisbursementDate()
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Seq == 0 || ins.Additional {
			continue
		}
		switch {
		case ins.DueDate.BeforeOrEqual(businessDate):
			total = total.Add(ins.InterestDue.Sub(ins.InterestWaived))
		case periodStart.Before(businessDate):
			length := DaysBetween(periodStart, ins.DueDate)
			elapsed := DaysBetween(periodStart, businessDate)
			if length > 0 && elapsed > 0 {
				fraction := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(length)))
				total = total.Add(ins.InterestDue.Sub(ins.InterestWaived).Mul(fraction).Round())
			}
		}
		periodStart = ins.DueDate
	}
	return total
}

// Accrue posts the ACCRUAL transaction for interest earned since the last
// accrual. Returns (nil, nil) when there is nothing to accrue, which makes
// the COB step idempotent per business date.
func (a *Account) Accrue(businessDate Date) (*Transaction, error) {
	if !a.Status.IsOpen() || !a.ChargedOffOn.IsZero() {
		return nil, nil
	}

	accrued := a.AccruedInterestAsOf(businessDate)
	already := ZeroMoney(a.Currency)
	for i := range a.Transactions {
		if tx := &a.Transactions[i]; tx.Type == TxAccrual && !tx.Reversed {
			already = already.Add(tx.Amount)
		}
	}
	delta := accrued.Sub(already)
	if !delta.IsPositive() {
		return nil, nil
	}

	tx := Transaction{
		ID:     newTransactionID(),
		Type:   TxAccrual,
		Amount: delta,
		Date:   businessDate,
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

// =============================================================================
// OVERDUE CHARGES
// =============================================================================

// OverduePenaltyConfig is the product's late-payment penalty definition.
type OverduePenaltyConfig struct {
	Name        string            `json:"name"`
	Calculation ChargeCalculation `json:"calculation"`
	Rate        decimal.Decimal   `json:"rate"`   // percent of the overdue amount
	Amount      Money             `json:"amount"` // flat
	GraceDays   int               `json:"graceDays"`
}

// ApplyOverdueCharges adds the configured penalty to installments whose
// grace has lapsed. At most one penalty per installment, keyed by
// OverdueForSeq, so repeated COB runs cannot double-charge.
func (a *Account) ApplyOverdueCharges(businessDate Date) ([]*Charge, error) {
	if a.OverduePenalty == nil || !a.Status.IsOpen() {
		return nil, nil
	}
	cfg := a.OverduePenalty

	var applied []*Charge
	for i := range a.Installments {
		ins := &a.Installments[i]
		if ins.Seq == 0 || ins.Additional || ins.Completed {
			continue
		}
		if !ins.DueDate.AddDays(cfg.GraceDays).Before(businessDate) {
			continue
		}
		if a.hasOverdueChargeFor(ins.Seq) {
			continue
		}
		overdue := ins.TotalOutstanding()
		if !overdue.IsPositive() {
			continue
		}

		amount := cfg.Amount
		if cfg.Calculation == ChargePercentPrincipal {
			amount = overdue.Mul(cfg.Rate.Div(decimalHundred)).Round()
		}
		charge := Charge{
			ID:            ChargeID(uuid.NewString()),
			Name:          cfg.Name,
			Bucket:        BucketPenalty,
			TimeType:      ChargeOverdue,
			Calculation:   ChargeFlat,
			Amount:        amount,
			DueDate:       businessDate,
			OverdueForSeq: ins.Seq,
		}
		added, err := a.AddCharge(charge)
		if err != nil {
			return applied, err
		}
		applied = append(applied, added)
	}
	return applied, nil
}

func (a *Account) hasOverdueChargeFor(seq int) bool {
	for i := range a.Charges {
		if a.Charges[i].TimeType == ChargeOverdue && a.Charges[i].OverdueForSeq == seq {
			return true
		}
	}
	return false
}
