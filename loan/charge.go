package loan

import "github.com/shopspring/decimal"

// =============================================================================
// CHARGES - Fees and penalties applied to a loan
// =============================================================================

type ChargeCalculation string

const (
	ChargeFlat             ChargeCalculation = "FLAT"
	ChargePercentPrincipal ChargeCalculation = "PERCENT_OF_PRINCIPAL"
)

type ChargeTimeType string

const (
	ChargeAtDisbursement    ChargeTimeType = "DISBURSEMENT"
	ChargeSpecifiedDueDate  ChargeTimeType = "SPECIFIED_DUE_DATE"
	ChargeOverdue           ChargeTimeType = "OVERDUE"
)

// ChargePayment links a charge to a transaction that paid part of it.
// The sum of a charge's payments never exceeds its amount.
type ChargePayment struct {
	TransactionID TransactionID `json:"transactionId"`
	Amount        Money         `json:"amount"`
}

// Charge is an applied charge instance on a loan. The definition fields
// (calculation, rate) are copied in at application time so later product
// edits cannot rewrite history.
type Charge struct {
	ID          ChargeID          `json:"id"`
	Name        string            `json:"name"`
	Bucket      Bucket            `json:"bucket"` // FEE or PENALTY
	TimeType    ChargeTimeType    `json:"timeType"`
	Calculation ChargeCalculation `json:"calculation"`
	Rate        decimal.Decimal   `json:"rate"` // percent, for PERCENT_OF_PRINCIPAL

	DueDate Date  `json:"dueDate"`
	Amount  Money `json:"amount"`

	// OverdueForSeq marks an OVERDUE charge as generated for a specific
	// installment, so the COB step applies at most one per row. 0 = none.
	OverdueForSeq int `json:"overdueForSeq,omitempty"`

	Paid   Money           `json:"paid"`
	Waived Money           `json:"waived"`
	PaidBy []ChargePayment `json:"paidBy,omitempty"`
}

// ResolveAmount computes the charge amount against the loan principal.
func (c *Charge) ResolveAmount(principal Money) Money {
	if c.Calculation == ChargePercentPrincipal {
		return principal.Mul(c.Rate.Div(decimal.NewFromInt(100))).Round()
	}
	return c.Amount
}

func (c *Charge) Outstanding() Money {
	return c.Amount.Sub(c.Paid).Sub(c.Waived).ClampZero()
}

func (c *Charge) FullyWaived() bool {
	return !c.Waived.IsZero() && c.Outstanding().IsZero()
}

func (c *Charge) FullySettled() bool {
	return c.Outstanding().IsZero()
}

func (c *Charge) validate() error {
	if c.Bucket != BucketFee && c.Bucket != BucketPenalty {
		return validationf("bucket", "charge bucket must be FEE or PENALTY, got %s", c.Bucket)
	}
	if c.Calculation == ChargePercentPrincipal {
		if c.Rate.IsNegative() || c.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return validationf("rate", "charge percentage %s out of bounds [0, 100]", c.Rate)
		}
	} else if c.Amount.IsNegative() {
		return validationf("amount", "charge amount must not be negative")
	}
	switch c.TimeType {
	case ChargeAtDisbursement, ChargeSpecifiedDueDate, ChargeOverdue:
	default:
		return validationf("timeType", "unknown charge time type %q", c.TimeType)
	}
	if c.TimeType == ChargeSpecifiedDueDate && c.DueDate.IsZero() {
		return validationf("dueDate", "specified-due-date charge requires a due date")
	}
	return nil
}
