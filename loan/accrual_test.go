package loan_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// INTEREST ACCRUAL - Linear within periods, delta over prior accruals
// =============================================================================

func TestAccrue_ProRatesTheCurrentPeriod(t *testing.T) {
	// GIVEN: a flat-rate loan earning 12.00 per 31-day period from
	//        2025-01-15
	// WHEN: accrual runs 15 days into the first period
	// THEN: 12.00 * 15/31 = 5.81 is posted as an ACCRUAL memo entry

	acct := flatRateLoan(t)
	tx, err := acct.Accrue(d("2025-01-30"))
	if err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if tx == nil {
		t.Fatal("expected an accrual transaction")
	}
	if tx.Type != loan.TxAccrual {
		t.Fatalf("transaction type = %s, want ACCRUAL", tx.Type)
	}
	assertMoney(t, "accrued amount", tx.Amount, "5.81")
	assertMoney(t, "accrual interest breakdown", tx.Breakdown.Interest, "5.81")

	// Memo entry: no installment was touched.
	assertMoney(t, "row 1 interest paid", installment(t, acct, 1).InterestPaid, "0.00")
	assertMoney(t, "total outstanding", acct.TotalOutstanding(), "1344.00")
}

func TestAccrue_SameDateTwice_SecondIsNoOp(t *testing.T) {
	acct := flatRateLoan(t)
	if _, err := acct.Accrue(d("2025-01-30")); err != nil {
		t.Fatalf("first accrual: %v", err)
	}
	versionAfterFirst := acct.Version

	tx, err := acct.Accrue(d("2025-01-30"))
	if err != nil {
		t.Fatalf("second accrual: %v", err)
	}
	if tx != nil {
		t.Errorf("second accrual for the same date posted %s, want nothing", tx.Amount)
	}
	if acct.Version != versionAfterFirst {
		t.Errorf("no-op accrual bumped version %d -> %d", versionAfterFirst, acct.Version)
	}
}

func TestAccrue_PostsOnlyTheDeltaSinceLastAccrual(t *testing.T) {
	// GIVEN: 5.81 already accrued mid-period
	// WHEN: accrual runs on the period's due date (12.00 total earned)
	// THEN: only the 6.19 delta posts

	acct := flatRateLoan(t)
	if _, err := acct.Accrue(d("2025-01-30")); err != nil {
		t.Fatalf("first accrual: %v", err)
	}

	tx, err := acct.Accrue(d("2025-02-15"))
	if err != nil {
		t.Fatalf("second accrual: %v", err)
	}
	if tx == nil {
		t.Fatal("expected a delta accrual")
	}
	assertMoney(t, "delta accrued", tx.Amount, "6.19")
}

func TestAccrue_StopsAfterChargeOff(t *testing.T) {
	acct := flatRateLoan(t)
	if _, err := acct.ChargeOff(d("2025-02-01")); err != nil {
		t.Fatalf("ChargeOff: %v", err)
	}

	tx, err := acct.Accrue(d("2025-03-01"))
	if err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if tx != nil {
		t.Errorf("accrual posted %s after charge-off, want nothing", tx.Amount)
	}
}

func TestAccruedInterestAsOf_WaivedInterestDoesNotAccrue(t *testing.T) {
	acct := flatRateLoan(t)
	if _, err := acct.WaiveInterest(d("2025-01-20"), usd("12")); err != nil {
		t.Fatalf("WaiveInterest: %v", err)
	}

	// Row 1's 12.00 is fully waived; nothing accrues in its period.
	got := acct.AccruedInterestAsOf(d("2025-02-15"))
	assertMoney(t, "accrued with waived row", got, "0.00")
}

// =============================================================================
// OVERDUE PENALTIES - One per installment, after grace
// =============================================================================

func overdueConfig(graceDays int) *loan.OverduePenaltyConfig {
	return &loan.OverduePenaltyConfig{
		Name:        "late penalty",
		Calculation: loan.ChargeFlat,
		Amount:      loan.MustMoney("10", fixtureCurrency),
		GraceDays:   graceDays,
	}
}

func TestApplyOverdueCharges_RespectsGraceDays(t *testing.T) {
	// GIVEN: installment 1 due 2025-02-15 with 3 grace days
	// WHEN: the step runs on the last grace day and the day after
	// THEN: no penalty inside grace; one 10.00 penalty once it lapses

	cfg := baseConfig("1200")
	cfg.OverduePenalty = overdueConfig(3)
	acct := activeAccount(t, cfg)

	applied, err := acct.ApplyOverdueCharges(d("2025-02-18"))
	if err != nil {
		t.Fatalf("ApplyOverdueCharges: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("penalty applied inside grace: %d charges", len(applied))
	}

	applied, err = acct.ApplyOverdueCharges(d("2025-02-19"))
	if err != nil {
		t.Fatalf("ApplyOverdueCharges: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("got %d penalties, want 1", len(applied))
	}
	charge := applied[0]
	if charge.Bucket != loan.BucketPenalty || charge.TimeType != loan.ChargeOverdue {
		t.Errorf("charge = %s/%s, want PENALTY/OVERDUE", charge.Bucket, charge.TimeType)
	}
	if charge.OverdueForSeq != 1 {
		t.Errorf("charge keyed to seq %d, want 1", charge.OverdueForSeq)
	}
	assertMoney(t, "penalty amount", charge.Amount, "10.00")
	assertMoney(t, "total outstanding", acct.TotalOutstanding(), "1210.00")
}

func TestApplyOverdueCharges_AtMostOnePerInstallment(t *testing.T) {
	// Repeated COB runs must not double-charge the same late row.
	cfg := baseConfig("1200")
	cfg.OverduePenalty = overdueConfig(0)
	acct := activeAccount(t, cfg)

	first, err := acct.ApplyOverdueCharges(d("2025-02-20"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first run applied %d charges, want 1", len(first))
	}

	for _, day := range []string{"2025-02-20", "2025-02-21", "2025-03-01"} {
		again, err := acct.ApplyOverdueCharges(d(day))
		if err != nil {
			t.Fatalf("rerun %s: %v", day, err)
		}
		if len(again) != 0 {
			t.Errorf("rerun on %s re-charged installment 1 (%d charges)", day, len(again))
		}
	}

	// A second installment lapsing gets its own penalty.
	applied, err := acct.ApplyOverdueCharges(d("2025-03-16"))
	if err != nil {
		t.Fatalf("ApplyOverdueCharges: %v", err)
	}
	if len(applied) != 1 || applied[0].OverdueForSeq != 2 {
		t.Fatalf("got %+v, want one penalty keyed to seq 2", applied)
	}
}

func TestApplyOverdueCharges_PercentOfOverdue(t *testing.T) {
	cfg := baseConfig("1200")
	cfg.OverduePenalty = &loan.OverduePenaltyConfig{
		Name:        "late penalty",
		Calculation: loan.ChargePercentPrincipal,
		Rate:        decimal.NewFromInt(5),
	}
	acct := activeAccount(t, cfg)

	applied, err := acct.ApplyOverdueCharges(d("2025-02-20"))
	if err != nil {
		t.Fatalf("ApplyOverdueCharges: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("got %d penalties, want 1", len(applied))
	}
	// 5% of the 100.00 overdue.
	assertMoney(t, "penalty amount", applied[0].Amount, "5.00")
}

func TestApplyOverdueCharges_SkipsSettledRows(t *testing.T) {
	cfg := baseConfig("1200")
	cfg.OverduePenalty = overdueConfig(0)
	acct := activeAccount(t, cfg)
	repay(t, acct, "2025-02-15", "100") // settles row 1 on time

	applied, err := acct.ApplyOverdueCharges(d("2025-02-20"))
	if err != nil {
		t.Fatalf("ApplyOverdueCharges: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("penalty applied to a settled row: %d charges", len(applied))
	}
}
