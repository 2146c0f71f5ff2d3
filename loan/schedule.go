/*
schedule.go - EMI / amortization schedule calculator

PURPOSE:
  Computes the installment schedule for a loan: how much principal and
  interest fall due each period. Runs once at disbursement and again
  whenever the outstanding principal changes out from under the schedule
  (extra tranche, reamortization surplus, backdated principal change).

EXACTNESS CONTRACT:
  The generated lines sum EXACTLY to the input principal, and no line is
  ever negative. EMI pushes the rounding remainder to the last installment;
  even splits floor each part and spread the leftover cents from the front,
  so there is never a residual cent drifting between the schedule and the
  ledger.

METHODS:
  EQUAL_INSTALLMENTS (EMI): constant total payment via the annuity formula,
    principal/interest split back-derived from the declining balance.
  EQUAL_PRINCIPAL: principal divided evenly (leftover cents on the first
    rows), interest computed on the declining balance.

  Interest is DECLINING_BALANCE or FLAT (on the original principal every
  period).

ROUNDING TO MULTIPLES:
  When InstallmentMultiple is set, each installment TOTAL is rounded to the
  nearest multiple and the principal component absorbs the delta. The last
  installment is never multiple-rounded: it takes whatever principal
  remains, keeping the totals exact.

SEE ALSO:
  - account.go: builds Installments from ScheduleLines at disbursement
  - replay.go: regenerates the pristine schedule before a replay fold
*/
package loan

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type AmortizationMethod string

const (
	EqualInstallments AmortizationMethod = "EQUAL_INSTALLMENTS"
	EqualPrincipal    AmortizationMethod = "EQUAL_PRINCIPAL"
)

type InterestMethod string

const (
	DecliningBalance InterestMethod = "DECLINING_BALANCE"
	FlatInterest     InterestMethod = "FLAT"
)

// ScheduleConfig is the product-level amortization configuration.
type ScheduleConfig struct {
	Method   AmortizationMethod
	Interest InterestMethod

	// AnnualRatePercent is the nominal annual rate, e.g. 12 for 12%.
	AnnualRatePercent decimal.Decimal

	Periods   int
	Frequency RepaymentFrequency

	// InstallmentMultiple, when non-zero, rounds each installment total to
	// the nearest multiple (installmentAmountInMultiplesOf).
	InstallmentMultiple decimal.Decimal

	// Optional clamp on the derived per-period rate.
	MinPeriodRate *decimal.Decimal
	MaxPeriodRate *decimal.Decimal
}

func (c ScheduleConfig) validate() error {
	if c.Periods <= 0 {
		return validationf("periods", "must be positive, got %d", c.Periods)
	}
	if c.AnnualRatePercent.IsNegative() {
		return validationf("annualRatePercent", "must not be negative")
	}
	return nil
}

// periodsPerYear for rate conversion. Daily uses 365; the engine does not
// model day-count conventions beyond this (out of scope).
func (c ScheduleConfig) periodsPerYear() int64 {
	switch c.Frequency {
	case FrequencyDaily:
		return 365
	case FrequencyWeekly:
		return 52
	default:
		return 12
	}
}

// PeriodRate converts the annual percentage to a per-period fraction and
// applies the configured bounds.
func (c ScheduleConfig) PeriodRate() decimal.Decimal {
	rate := c.AnnualRatePercent.
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(c.periodsPerYear()))
	if c.MinPeriodRate != nil && rate.LessThan(*c.MinPeriodRate) {
		rate = *c.MinPeriodRate
	}
	if c.MaxPeriodRate != nil && rate.GreaterThan(*c.MaxPeriodRate) {
		rate = *c.MaxPeriodRate
	}
	return rate
}

// =============================================================================
// SCHEDULE LINES
// =============================================================================

// ScheduleLine is one period's principal/interest due pair.
type ScheduleLine struct {
	Principal Money
	Interest  Money
}

func (l ScheduleLine) Total() Money { return l.Principal.Add(l.Interest) }

// =============================================================================
// GENERATION
// =============================================================================

// GenerateSchedule computes the full schedule for the given principal.
// The returned lines' principal components sum exactly to principal.
func GenerateSchedule(cfg ScheduleConfig, principal Money) ([]ScheduleLine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !principal.IsPositive() {
		return nil, validationf("principal", "must be positive, got %s", principal)
	}

	switch cfg.Method {
	case EqualPrincipal:
		return equalPrincipalSchedule(cfg, principal), nil
	case EqualInstallments, "":
		return equalInstallmentSchedule(cfg, principal), nil
	default:
		return nil, validationf("method", "unknown amortization method %q", cfg.Method)
	}
}

// AnnuityPayment solves for the constant payment amount:
//
//	pmt = P * r * (1+r)^n / ((1+r)^n - 1)
func AnnuityPayment(principal decimal.Decimal, rate decimal.Decimal, periods int) decimal.Decimal {
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(periods)))
	}
	one := decimal.NewFromInt(1)
	compound := one.Add(rate).Pow(decimal.NewFromInt(int64(periods)))
	return principal.Mul(rate).Mul(compound).Div(compound.Sub(one))
}

func equalInstallmentSchedule(cfg ScheduleConfig, principal Money) []ScheduleLine {
	n := cfg.Periods
	rate := cfg.PeriodRate()
	currency := principal.Currency

	if cfg.Interest == FlatInterest {
		return flatSchedule(cfg, principal, evenSplit(principal, n))
	}

	pmt := NewMoney(AnnuityPayment(principal.Amount, rate, n), currency)
	if !cfg.InstallmentMultiple.IsZero() {
		pmt = pmt.RoundToMultiple(cfg.InstallmentMultiple)
	}

	lines := make([]ScheduleLine, 0, n)
	balance := principal
	for i := 1; i <= n; i++ {
		interest := balance.Mul(rate).Round()
		if i == n {
			// Remainder row: principal is exactly what is left.
			lines = append(lines, ScheduleLine{Principal: balance, Interest: interest})
			break
		}
		p := pmt.Sub(interest)
		if p.GreaterThan(balance) {
			p = balance
		}
		p = p.ClampZero()
		balance = balance.Sub(p)
		lines = append(lines, ScheduleLine{Principal: p, Interest: interest})
	}
	return lines
}

func equalPrincipalSchedule(cfg ScheduleConfig, principal Money) []ScheduleLine {
	parts := evenSplit(principal, cfg.Periods)
	if cfg.Interest == FlatInterest {
		return flatSchedule(cfg, principal, parts)
	}

	rate := cfg.PeriodRate()
	lines := make([]ScheduleLine, 0, cfg.Periods)
	balance := principal
	for _, p := range parts {
		interest := balance.Mul(rate).Round()
		balance = balance.Sub(p)
		lines = append(lines, ScheduleLine{Principal: p, Interest: interest})
	}
	return lines
}

// flatSchedule charges interest on the ORIGINAL principal every period.
// Total flat interest is computed once and split evenly, so the interest
// total is exact as well.
func flatSchedule(cfg ScheduleConfig, principal Money, principalParts []Money) []ScheduleLine {
	rate := cfg.PeriodRate()
	totalInterest := principal.Mul(rate).Mul(decimal.NewFromInt(int64(cfg.Periods))).Round()
	interestParts := evenSplit(totalInterest, cfg.Periods)

	lines := make([]ScheduleLine, len(principalParts))
	for i := range principalParts {
		lines[i] = ScheduleLine{Principal: principalParts[i], Interest: interestParts[i]}
	}
	return lines
}

// evenSplit divides an amount into n parts that sum exactly to the whole.
// Each part is floored to the currency scale and the leftover cents go one
// per row from the front. Flooring keeps every part non-negative even when
// the amount is smaller than n cents; half-up rounding here could overshoot
// and drive the remainder row below zero.
func evenSplit(total Money, n int) []Money {
	part := Money{
		Amount:   total.Amount.Div(decimal.NewFromInt(int64(n))).RoundDown(MoneyScale),
		Currency: total.Currency,
	}
	parts := make([]Money, n)
	running := total.Zero()
	for i := range parts {
		parts[i] = part
		running = running.Add(part)
	}

	cent := Money{Amount: decimal.New(1, -MoneyScale), Currency: total.Currency}
	leftover := total.Sub(running)
	for i := 0; leftover.IsPositive() && i < n; i++ {
		step := cent.Min(leftover)
		parts[i] = parts[i].Add(step)
		leftover = leftover.Sub(step)
	}
	return parts
}

// =============================================================================
// RECOMPUTATION - Over the remaining schedule only
// =============================================================================

// RecomputeRemaining re-runs the calculator over the remaining unpaid
// installments, holding fully-paid rows and post-maturity charge rows
// fixed. Triggered by an extra disbursement tranche, a reamortization
// surplus, or a backdated principal change.
//
// outstandingPrincipal is spread over the not-yet-completed regular rows;
// their fee/penalty dues and any paid amounts are left untouched.
func RecomputeRemaining(cfg ScheduleConfig, installments []Installment, outstandingPrincipal Money) error {
	var open []int
	for idx := range installments {
		ins := &installments[idx]
		if ins.Seq == 0 || ins.Additional || ins.Completed {
			continue
		}
		open = append(open, idx)
	}
	if len(open) == 0 {
		return nil
	}

	// Paid and forgiven amounts are added back into the recomputed dues so
	// each row's outstanding equals exactly its fresh schedule line.
	if !outstandingPrincipal.IsPositive() {
		for _, idx := range open {
			ins := &installments[idx]
			ins.PrincipalDue = ins.PrincipalPaid.Add(ins.PrincipalWrittenOff)
			ins.InterestDue = ins.InterestPaid.Add(ins.InterestWaived)
		}
		return nil
	}

	sub := cfg
	sub.Periods = len(open)
	lines, err := GenerateSchedule(sub, outstandingPrincipal)
	if err != nil {
		return err
	}
	for i, idx := range open {
		ins := &installments[idx]
		ins.PrincipalDue = lines[i].Principal.Add(ins.PrincipalPaid).Add(ins.PrincipalWrittenOff)
		ins.InterestDue = lines[i].Interest.Add(ins.InterestPaid).Add(ins.InterestWaived)
	}
	return nil
}
