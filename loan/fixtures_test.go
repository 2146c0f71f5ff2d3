package loan_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// FIXTURES
//
// The standard test loan is 1200.00 USD disbursed on 2025-01-15. With a zero
// rate and 12 monthly periods every installment is exactly 100.00 principal,
// which keeps the arithmetic in assertions readable. Variants adjust the
// config before disbursing.
// =============================================================================

const fixtureCurrency = "USD"

var disbursedOn = loan.MustDate("2025-01-15")

func usd(s string) loan.Money {
	return loan.MustMoney(s, fixtureCurrency)
}

func d(s string) loan.Date {
	return loan.MustDate(s)
}

func monthlySchedule(annualRatePercent string, periods int) loan.ScheduleConfig {
	rate, err := decimal.NewFromString(annualRatePercent)
	if err != nil {
		panic(err)
	}
	return loan.ScheduleConfig{
		Method:            loan.EqualInstallments,
		Interest:          loan.DecliningBalance,
		AnnualRatePercent: rate,
		Periods:           periods,
		Frequency:         loan.FrequencyMonthly,
	}
}

func flatSchedule(annualRatePercent string, periods int) loan.ScheduleConfig {
	cfg := monthlySchedule(annualRatePercent, periods)
	cfg.Method = loan.EqualPrincipal
	cfg.Interest = loan.FlatInterest
	return cfg
}

func baseConfig(principal string) loan.AccountConfig {
	return loan.AccountConfig{
		ID:               "loan-1",
		ProductID:        "test-product",
		Currency:         fixtureCurrency,
		Principal:        usd(principal),
		Schedule:         monthlySchedule("0", 12),
		Rules:            loan.DefaultRuleSet(),
		Delinquency:      loan.DefaultDelinquencyBucket(),
		AllowOverpayment: true,
		SubmittedOn:      d("2025-01-10"),
	}
}

func newAccount(t *testing.T, cfg loan.AccountConfig) *loan.Account {
	t.Helper()
	acct, err := loan.NewAccount(cfg)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	return acct
}

// activeAccount opens, approves, and disburses the full principal on the
// fixture date.
func activeAccount(t *testing.T, cfg loan.AccountConfig) *loan.Account {
	t.Helper()
	acct := newAccount(t, cfg)
	if err := acct.Approve(d("2025-01-12")); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := acct.Disburse(disbursedOn, cfg.Principal, ""); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	return acct
}

// zeroRateLoan is the standard fixture: 1200.00 over 12 months, no interest.
func zeroRateLoan(t *testing.T) *loan.Account {
	t.Helper()
	return activeAccount(t, baseConfig("1200"))
}

// flatRateLoan carries 12.00 interest per installment: 1200.00 at 12%/yr
// flat, monthly, so each of the 12 rows owes 100.00 principal + 12.00.
func flatRateLoan(t *testing.T) *loan.Account {
	t.Helper()
	cfg := baseConfig("1200")
	cfg.Schedule = flatSchedule("12", 12)
	return activeAccount(t, cfg)
}

func repay(t *testing.T, acct *loan.Account, on, amount string) *loan.Transaction {
	t.Helper()
	tx, err := acct.Repay(loan.TxRepayment, d(on), usd(amount), "")
	if err != nil {
		t.Fatalf("Repay %s on %s: %v", amount, on, err)
	}
	return tx
}

func installment(t *testing.T, acct *loan.Account, seq int) *loan.Installment {
	t.Helper()
	for i := range acct.Installments {
		if acct.Installments[i].Seq == seq {
			return &acct.Installments[i]
		}
	}
	t.Fatalf("installment seq %d not found (have %d rows)", seq, len(acct.Installments))
	return nil
}

func assertMoney(t *testing.T, label string, got loan.Money, want string) {
	t.Helper()
	if !got.Equal(usd(want)) {
		t.Errorf("%s = %s, want %s %s", label, got, want, fixtureCurrency)
	}
}

func assertStatus(t *testing.T, acct *loan.Account, want loan.LoanStatus) {
	t.Helper()
	if acct.Status != want {
		t.Errorf("loan status = %s, want %s", acct.Status, want)
	}
}
