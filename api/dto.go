/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES ON THE WIRE:
  Amounts travel as decimal strings ("1250.00"), never floats. Dates are
  "2006-01-02". Parsing failures are 400s before any domain code runs.

VALIDATION:
  Handlers parse DTOs into domain values and let the engine validate
  semantics. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - product/product.go: ProductJSON, reused as the product wire format
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateLoanRequest opens a loan account under a product.
type CreateLoanRequest struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"product_id"`
	Principal string `json:"principal"`
}

// TransactionRequest covers every money-in operation: disbursement,
// repayment and its variants. Date defaults to the business date.
type TransactionRequest struct {
	Amount     string `json:"amount"`
	Date       string `json:"date,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// ChargebackRequest disputes a prior repayment.
type ChargebackRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	ExternalID    string `json:"external_id,omitempty"`
}

// AmountRequest carries a bare amount (waive interest, credit balance
// refund).
type AmountRequest struct {
	Amount     string `json:"amount"`
	ExternalID string `json:"external_id,omitempty"`
}

// AddChargeRequest applies a fee or penalty.
type AddChargeRequest struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`      // FEE or PENALTY
	Calculation string `json:"calculation"` // FLAT or PERCENT_OF_PRINCIPAL
	Amount      string `json:"amount,omitempty"`
	Rate        string `json:"rate,omitempty"`
	TimeType    string `json:"time_type,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// PauseDelinquencyRequest opens a delinquency pause window.
type PauseDelinquencyRequest struct {
	ActionID string `json:"action_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// ResumeDelinquencyRequest ends the active pause early.
type ResumeDelinquencyRequest struct {
	ActionID string `json:"action_id"`
}

// FraudRequest toggles the fraud flag.
type FraudRequest struct {
	Fraud bool `json:"fraud"`
}

// SetBusinessDateRequest moves the operator calendar.
type SetBusinessDateRequest struct {
	Date string `json:"date"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// LoanDTO is the account summary view.
type LoanDTO struct {
	ID                   string `json:"id"`
	ProductID            string `json:"product_id"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	Fraud                bool   `json:"fraud,omitempty"`
	Principal            string `json:"principal"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	TotalOutstanding     string `json:"total_outstanding"`
	OverpaidAmount       string `json:"overpaid_amount"`
	SubmittedOn          string `json:"submitted_on,omitempty"`
	ApprovedOn           string `json:"approved_on,omitempty"`
	ClosedOn             string `json:"closed_on,omitempty"`
	Version              int    `json:"version"`

	Delinquency  *DelinquencyDTO  `json:"delinquency,omitempty"`
	Installments []InstallmentDTO `json:"installments,omitempty"`
	Transactions []TransactionDTO `json:"transactions,omitempty"`
	Charges      []ChargeDTO      `json:"charges,omitempty"`
}

// InstallmentDTO is one schedule row.
type InstallmentDTO struct {
	Seq        int    `json:"seq"`
	DueDate    string `json:"due_date"`
	Additional bool   `json:"additional,omitempty"`

	PrincipalDue string `json:"principal_due"`
	InterestDue  string `json:"interest_due"`
	FeeDue       string `json:"fee_due"`
	PenaltyDue   string `json:"penalty_due"`

	PrincipalPaid string `json:"principal_paid"`
	InterestPaid  string `json:"interest_paid"`
	FeePaid       string `json:"fee_paid"`
	PenaltyPaid   string `json:"penalty_paid"`

	Waived      string `json:"waived"`
	Outstanding string `json:"outstanding"`

	Completed           bool   `json:"completed"`
	ObligationsMetOn    string `json:"obligations_met_on,omitempty"`
}

// TransactionDTO is one ledger entry.
type TransactionDTO struct {
	ID               string `json:"id"`
	ExternalID       string `json:"external_id,omitempty"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	Seq              int    `json:"seq"`
	Reversed         bool   `json:"reversed,omitempty"`
	ReversedOn       string `json:"reversed_on,omitempty"`
	Replayed         bool   `json:"replayed,omitempty"`
	ReplayGeneration int    `json:"replay_generation,omitempty"`
	OutstandingAfter string `json:"outstanding_after"`

	Principal   string `json:"principal"`
	Interest    string `json:"interest"`
	Fee         string `json:"fee"`
	Penalty     string `json:"penalty"`
	Overpayment string `json:"overpayment"`

	Relations []RelationDTO `json:"relations,omitempty"`
}

// RelationDTO is one audit link.
type RelationDTO struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// ChargeDTO is one applied charge instance.
type ChargeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	TimeType    string `json:"time_type"`
	DueDate     string `json:"due_date,omitempty"`
	Amount      string `json:"amount"`
	Paid        string `json:"paid"`
	Waived      string `json:"waived"`
	Outstanding string `json:"outstanding"`
}

// DelinquencyDTO is the classification as of its AsOf date.
type DelinquencyDTO struct {
	AsOf             string `json:"as_of"`
	DelinquentDays   int    `json:"delinquent_days"`
	DelinquentAmount string `json:"delinquent_amount"`
	Classification   string `json:"classification,omitempty"`

	Installments []InstallmentDelinquencyDTO `json:"installments,omitempty"`
}

type InstallmentDelinquencyDTO struct {
	Seq         int    `json:"seq"`
	OverdueDays int    `json:"overdue_days"`
	Amount      string `json:"amount"`
}

// CommandResponse wraps a mutation outcome: the loan summary plus the
// transaction or charge the command produced.
type CommandResponse struct {
	Loan        LoanDTO         `json:"loan"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
	Charge      *ChargeDTO      `json:"charge,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO CONVERSION
// =============================================================================

func amountString(m loan.Money) string {
	return m.Amount.StringFixed(2)
}

func toLoanDTO(a *loan.Account, full bool) LoanDTO {
	dto := LoanDTO{
		ID:                   string(a.ID),
		ProductID:            string(a.ProductID),
		Currency:             a.Currency,
		Status:               string(a.Status),
		Fraud:                a.Fraud,
		Principal:            amountString(a.Principal),
		OutstandingPrincipal: amountString(a.OutstandingPrincipal()),
		TotalOutstanding:     amountString(a.TotalOutstanding()),
		OverpaidAmount:       amountString(a.OverpaidAmount),
		SubmittedOn:          a.SubmittedOn.String(),
		ApprovedOn:           a.ApprovedOn.String(),
		ClosedOn:             a.ClosedOn.String(),
		Version:              a.Version,
	}
	if !a.Delinquency.AsOf.IsZero() {
		d := toDelinquencyDTO(a.Delinquency)
		dto.Delinquency = &d
	}
	if !full {
		return dto
	}
	for i := range a.Installments {
		dto.Installments = append(dto.Installments, toInstallmentDTO(&a.Installments[i]))
	}
	for i := range a.Transactions {
		dto.Transactions = append(dto.Transactions, toTransactionDTO(&a.Transactions[i]))
	}
	for i := range a.Charges {
		dto.Charges = append(dto.Charges, toChargeDTO(&a.Charges[i]))
	}
	return dto
}

func toInstallmentDTO(ins *loan.Installment) InstallmentDTO {
	waived := ins.InterestWaived.Add(ins.FeeWaived).Add(ins.PenaltyWaived).Add(ins.PrincipalWrittenOff)
	return InstallmentDTO{
		Seq:              ins.Seq,
		DueDate:          ins.DueDate.String(),
		Additional:       ins.Additional,
		PrincipalDue:     amountString(ins.PrincipalDue),
		InterestDue:      amountString(ins.InterestDue),
		FeeDue:           amountString(ins.FeeDue),
		PenaltyDue:       amountString(ins.PenaltyDue),
		PrincipalPaid:    amountString(ins.PrincipalPaid),
		InterestPaid:     amountString(ins.InterestPaid),
		FeePaid:          amountString(ins.FeePaid),
		PenaltyPaid:      amountString(ins.PenaltyPaid),
		Waived:           amountString(waived),
		Outstanding:      amountString(ins.TotalOutstanding()),
		Completed:        ins.Completed,
		ObligationsMetOn: ins.ObligationsMetOn.String(),
	}
}

func toTransactionDTO(t *loan.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:               string(t.ID),
		ExternalID:       t.ExternalID,
		Type:             string(t.Type),
		Amount:           amountString(t.Amount),
		Date:             t.Date.String(),
		Seq:              t.Seq,
		Reversed:         t.Reversed,
		ReversedOn:       t.ReversedOn.String(),
		Replayed:         t.Replayed,
		ReplayGeneration: t.ReplayGeneration,
		OutstandingAfter: amountString(t.OutstandingAfter),
		Principal:        amountString(t.Breakdown.Principal),
		Interest:         amountString(t.Breakdown.Interest),
		Fee:              amountString(t.Breakdown.Fee),
		Penalty:          amountString(t.Breakdown.Penalty),
		Overpayment:      amountString(t.Breakdown.Overpayment),
	}
	for _, r := range t.Relations {
		dto.Relations = append(dto.Relations, RelationDTO{Type: string(r.Type), To: string(r.To)})
	}
	return dto
}

func toChargeDTO(c *loan.Charge) ChargeDTO {
	return ChargeDTO{
		ID:          string(c.ID),
		Name:        c.Name,
		Bucket:      string(c.Bucket),
		TimeType:    string(c.TimeType),
		DueDate:     c.DueDate.String(),
		Amount:      amountString(c.Amount),
		Paid:        amountString(c.Paid),
		Waived:      amountString(c.Waived),
		Outstanding: amountString(c.Outstanding()),
	}
}

func toDelinquencyDTO(d loan.DelinquencyState) DelinquencyDTO {
	dto := DelinquencyDTO{
		AsOf:             d.AsOf.String(),
		DelinquentDays:   d.DelinquentDays,
		DelinquentAmount: amountString(d.DelinquentAmount),
		Classification:   d.Classification,
	}
	for _, ins := range d.Installments {
		dto.Installments = append(dto.Installments, InstallmentDelinquencyDTO{
			Seq:         ins.Seq,
			OverdueDays: ins.OverdueDays,
			Amount:      amountString(ins.Amount),
		})
	}
	return dto
}

// =============================================================================
// PARSING
// =============================================================================

func parseAmount(s, currency, field string) (loan.Money, error) {
	if s == "" {
		return loan.ZeroMoney(currency), &loan.ValidationError{Field: field, Message: "amount required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return loan.ZeroMoney(currency), &loan.ValidationError{Field: field, Message: "invalid decimal: " + s}
	}
	return loan.NewMoney(d, currency), nil
}

func decimalFromString(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, &loan.ValidationError{Field: field, Message: "value required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &loan.ValidationError{Field: field, Message: "invalid decimal: " + s}
	}
	return d, nil
}

func parseDate(s, field string) (loan.Date, error) {
	if s == "" {
		return loan.Date{}, nil
	}
	d, err := loan.ParseDate(s)
	if err != nil {
		return loan.Date{}, &loan.ValidationError{Field: field, Message: "invalid date (want YYYY-MM-DD): " + s}
	}
	return d, nil
}
