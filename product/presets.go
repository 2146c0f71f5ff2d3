/*
presets.go - Pre-built loan product configurations

PURPOSE:
  Provides ready-to-use product configurations covering the common
  servicing setups. Each preset returns a complete *Product that can be
  registered in the catalogue as-is or tweaked first.

AVAILABLE PRESETS:
  PersonalLoan:
    - Monthly EMI (equal installments), declining balance interest
    - Standard allocation: penalty, fee, interest, principal
    - Overpayment allowed

  BNPLProduct:
    - Short daily/weekly-style schedule with a 25% down payment
    - No interest, surplus reamortizes the remaining rows
    - Overpayment rejected (pay-in-N products settle exactly)

  FlatRateLoan:
    - Flat interest on the original principal every period
    - Equal principal amortization

  ProgressiveLoan:
    - Tranche-friendly EMI product with installment totals rounded to a
      configured multiple
*/
package product

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// PERSONAL LOAN
// =============================================================================

// PersonalLoan is the standard monthly EMI product.
func PersonalLoan(id, name, currency string, annualRatePercent float64, periods int) *Product {
	return &Product{
		ID:       loan.ProductID(id),
		Name:     name,
		Currency: currency,
		Schedule: loan.ScheduleConfig{
			Method:            loan.EqualInstallments,
			Interest:          loan.DecliningBalance,
			AnnualRatePercent: decimal.NewFromFloat(annualRatePercent),
			Periods:           periods,
			Frequency:         loan.FrequencyMonthly,
		},
		Rules:            loan.DefaultRuleSet(),
		Delinquency:      loan.DefaultDelinquencyBucket(),
		AllowOverpayment: true,
	}
}

// =============================================================================
// BNPL
// =============================================================================

// BNPLProduct is a zero-interest pay-in-N product: a down payment at
// disbursement, the rest split evenly, and early surplus reamortizing the
// remaining rows. Overpaying a fixed-installment plan is rejected.
func BNPLProduct(id, name, currency string, periods int, downPaymentPercent float64) *Product {
	// No IN_ADVANCE steps: anything beyond the amounts currently due is
	// surplus, and surplus reamortizes the remaining rows.
	var steps []loan.AllocationStep
	for _, state := range []loan.DueState{loan.StatePastDue, loan.StateDue} {
		for _, b := range []loan.Bucket{loan.BucketPenalty, loan.BucketFee, loan.BucketInterest, loan.BucketPrincipal} {
			steps = append(steps, loan.AllocationStep{DueState: state, Bucket: b})
		}
	}
	rules := loan.AllocationRuleSet{Default: loan.AllocationRule{
		Steps:      steps,
		FutureRule: loan.FutureReamortization,
	}}

	return &Product{
		ID:       loan.ProductID(id),
		Name:     name,
		Currency: currency,
		Schedule: loan.ScheduleConfig{
			Method:    loan.EqualInstallments,
			Interest:  loan.DecliningBalance,
			Periods:   periods,
			Frequency: loan.FrequencyMonthly,
		},
		Rules:              rules,
		Delinquency:        loan.DefaultDelinquencyBucket(),
		DownPaymentPercent: decimal.NewFromFloat(downPaymentPercent),
		AllowOverpayment:   false,
	}
}

// =============================================================================
// FLAT RATE LOAN
// =============================================================================

// FlatRateLoan charges interest on the original principal every period and
// amortizes principal evenly.
func FlatRateLoan(id, name, currency string, annualRatePercent float64, periods int) *Product {
	return &Product{
		ID:       loan.ProductID(id),
		Name:     name,
		Currency: currency,
		Schedule: loan.ScheduleConfig{
			Method:            loan.EqualPrincipal,
			Interest:          loan.FlatInterest,
			AnnualRatePercent: decimal.NewFromFloat(annualRatePercent),
			Periods:           periods,
			Frequency:         loan.FrequencyMonthly,
		},
		Rules:            loan.DefaultRuleSet(),
		Delinquency:      loan.DefaultDelinquencyBucket(),
		AllowOverpayment: true,
	}
}

// =============================================================================
// PROGRESSIVE LOAN
// =============================================================================

// ProgressiveLoan supports multiple tranches with installment totals
// rounded to the given multiple; the last installment absorbs remainders.
func ProgressiveLoan(id, name, currency string, annualRatePercent float64, periods int, installmentMultiple int64) *Product {
	return &Product{
		ID:       loan.ProductID(id),
		Name:     name,
		Currency: currency,
		Schedule: loan.ScheduleConfig{
			Method:              loan.EqualInstallments,
			Interest:            loan.DecliningBalance,
			AnnualRatePercent:   decimal.NewFromFloat(annualRatePercent),
			Periods:             periods,
			Frequency:           loan.FrequencyMonthly,
			InstallmentMultiple: decimal.NewFromInt(installmentMultiple),
		},
		Rules:            loan.DefaultRuleSet(),
		Delinquency:      loan.DefaultDelinquencyBucket(),
		AllowOverpayment: true,
	}
}
