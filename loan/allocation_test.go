package loan_test

import (
	"testing"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// RULE-DRIVEN ALLOCATION - Step order is configuration, not code
// =============================================================================

func TestAllocation_DefaultOrder_PenaltyFeeInterestPrincipal(t *testing.T) {
	// GIVEN: installment 1 past due with all four buckets outstanding
	// WHEN: a partial payment smaller than the penalty+fee+interest arrives
	// THEN: money lands penalty first, then fee, then interest; principal
	//       gets nothing

	acct := flatRateLoan(t)
	for _, c := range []loan.Charge{
		{Name: "late penalty", Bucket: loan.BucketPenalty, TimeType: loan.ChargeSpecifiedDueDate,
			Calculation: loan.ChargeFlat, Amount: usd("10"), DueDate: d("2025-02-15")},
		{Name: "late fee", Bucket: loan.BucketFee, TimeType: loan.ChargeSpecifiedDueDate,
			Calculation: loan.ChargeFlat, Amount: usd("5"), DueDate: d("2025-02-15")},
	} {
		if _, err := acct.AddCharge(c); err != nil {
			t.Fatalf("AddCharge %s: %v", c.Name, err)
		}
	}
	// Row 1 now owes: 10.00 penalty, 5.00 fee, 12.00 interest, 100.00 principal.

	tx, err := acct.Repay(loan.TxRepayment, d("2025-03-01"), usd("20"), "")
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}

	assertMoney(t, "penalty allocated", tx.Breakdown.Penalty, "10.00")
	assertMoney(t, "fee allocated", tx.Breakdown.Fee, "5.00")
	assertMoney(t, "interest allocated", tx.Breakdown.Interest, "5.00")
	assertMoney(t, "principal allocated", tx.Breakdown.Principal, "0.00")

	// Deltas record the same landing, in drain order.
	if len(tx.Deltas) != 3 {
		t.Fatalf("got %d deltas, want 3", len(tx.Deltas))
	}
	wantBuckets := []loan.Bucket{loan.BucketPenalty, loan.BucketFee, loan.BucketInterest}
	for i, delta := range tx.Deltas {
		if delta.Bucket != wantBuckets[i] {
			t.Errorf("delta %d bucket = %s, want %s", i, delta.Bucket, wantBuckets[i])
		}
		if delta.InstallmentSeq != 1 {
			t.Errorf("delta %d seq = %d, want 1", i, delta.InstallmentSeq)
		}
	}
}

func TestAllocation_CustomRule_PrincipalFirst(t *testing.T) {
	// GIVEN: a product whose rule drains principal before interest
	// WHEN: a payment covering only the principal arrives on the due date
	// THEN: all of it lands on principal, interest untouched

	cfg := baseConfig("1200")
	cfg.Schedule = flatSchedule("12", 12)
	cfg.Rules = loan.AllocationRuleSet{Default: loan.AllocationRule{
		Steps: []loan.AllocationStep{
			{DueState: loan.StateDue, Bucket: loan.BucketPrincipal},
			{DueState: loan.StateDue, Bucket: loan.BucketInterest},
		},
		FutureRule: loan.FutureNextInstallment,
	}}
	acct := activeAccount(t, cfg)

	tx := repay(t, acct, "2025-02-15", "100")
	assertMoney(t, "principal allocated", tx.Breakdown.Principal, "100.00")
	assertMoney(t, "interest allocated", tx.Breakdown.Interest, "0.00")
	assertMoney(t, "row 1 interest outstanding", installment(t, acct, 1).Outstanding(loan.BucketInterest), "12.00")
}

func TestAllocation_PerTypeRule_OverridesDefault(t *testing.T) {
	// GIVEN: GOODWILL_CREDIT configured to hit interest only
	// WHEN: a goodwill credit and a repayment of equal size arrive
	// THEN: each follows its own rule

	cfg := baseConfig("1200")
	cfg.Schedule = flatSchedule("12", 12)
	rules := loan.DefaultRuleSet()
	rules.ByType = map[loan.TransactionType]loan.AllocationRule{
		loan.TxGoodwillCredit: {
			Steps: []loan.AllocationStep{
				{DueState: loan.StatePastDue, Bucket: loan.BucketInterest},
				{DueState: loan.StateDue, Bucket: loan.BucketInterest},
				{DueState: loan.StateInAdvance, Bucket: loan.BucketInterest},
			},
			FutureRule: loan.FutureNextInstallment,
		},
	}
	cfg.Rules = rules
	acct := activeAccount(t, cfg)

	goodwill, err := acct.Repay(loan.TxGoodwillCredit, d("2025-02-15"), usd("24"), "")
	if err != nil {
		t.Fatalf("goodwill credit: %v", err)
	}
	assertMoney(t, "goodwill interest allocated", goodwill.Breakdown.Interest, "24.00")
	assertMoney(t, "goodwill principal allocated", goodwill.Breakdown.Principal, "0.00")
}

// =============================================================================
// FUTURE INSTALLMENT RULES - Where surplus goes
// =============================================================================

func TestAllocation_Surplus_NextInstallment(t *testing.T) {
	// GIVEN: the default NEXT_INSTALLMENT overflow
	// WHEN: 250.00 arrives on installment 1's due date
	// THEN: 100.00 settles row 1 and 150.00 prepays rows 2 and 3 in order

	acct := zeroRateLoan(t)
	repay(t, acct, "2025-02-15", "250")

	assertMoney(t, "row 1 paid", installment(t, acct, 1).PrincipalPaid, "100.00")
	assertMoney(t, "row 2 paid", installment(t, acct, 2).PrincipalPaid, "100.00")
	assertMoney(t, "row 3 paid", installment(t, acct, 3).PrincipalPaid, "50.00")
	assertMoney(t, "row 4 paid", installment(t, acct, 4).PrincipalPaid, "0.00")
}

// dueOnlyRule drains what is currently owed and leaves everything beyond
// that to the future-installment rule.
func dueOnlyRule(future loan.FutureInstallmentRule) loan.AllocationRuleSet {
	var steps []loan.AllocationStep
	for _, state := range []loan.DueState{loan.StatePastDue, loan.StateDue} {
		for _, b := range []loan.Bucket{loan.BucketPenalty, loan.BucketFee, loan.BucketInterest, loan.BucketPrincipal} {
			steps = append(steps, loan.AllocationStep{DueState: state, Bucket: b})
		}
	}
	return loan.AllocationRuleSet{Default: loan.AllocationRule{Steps: steps, FutureRule: future}}
}

func TestAllocation_Surplus_LastInstallment(t *testing.T) {
	// GIVEN: a LAST_INSTALLMENT overflow rule
	// WHEN: 250.00 arrives on installment 1's due date
	// THEN: the 150.00 surplus lands on row 12, shortening the tail

	cfg := baseConfig("1200")
	cfg.Rules = dueOnlyRule(loan.FutureLastInstallment)
	acct := activeAccount(t, cfg)

	repay(t, acct, "2025-02-15", "250")

	assertMoney(t, "row 1 paid", installment(t, acct, 1).PrincipalPaid, "100.00")
	assertMoney(t, "row 2 paid", installment(t, acct, 2).PrincipalPaid, "0.00")
	assertMoney(t, "row 12 paid", installment(t, acct, 12).PrincipalPaid, "150.00")
}

func TestAllocation_Surplus_Reamortization(t *testing.T) {
	// GIVEN: a REAMORTIZATION overflow rule (pay-in-N style)
	// WHEN: 320.00 arrives on installment 1's due date (220.00 surplus)
	// THEN: the surplus prepays the nearest rows and what is still owed
	//       re-spreads evenly over the rows left open

	cfg := baseConfig("1200")
	cfg.Rules = dueOnlyRule(loan.FutureReamortization)
	acct := activeAccount(t, cfg)

	repay(t, acct, "2025-02-15", "320")

	// 100.00 settled row 1; the surplus fully prepaid rows 2-3 and left
	// 20.00 on row 4. The remaining 880.00 re-spreads over rows 4-12.
	assertMoney(t, "outstanding principal", acct.OutstandingPrincipal(), "880.00")
	for _, seq := range []int{1, 2, 3} {
		if !installment(t, acct, seq).Completed {
			t.Errorf("row %d not completed after prepayment", seq)
		}
	}
	assertMoney(t, "row 4 outstanding", installment(t, acct, 4).Outstanding(loan.BucketPrincipal), "97.78")
	assertMoney(t, "row 11 outstanding", installment(t, acct, 11).Outstanding(loan.BucketPrincipal), "97.78")
	assertMoney(t, "row 12 outstanding", installment(t, acct, 12).Outstanding(loan.BucketPrincipal), "97.76")
}

func TestAllocation_ChargeSettlement_RecordsPaidByLink(t *testing.T) {
	// GIVEN: a fee charge on installment 1
	// WHEN: a payment covers it
	// THEN: the charge records which transaction paid it, for audit

	acct := zeroRateLoan(t)
	charge, err := acct.AddCharge(loan.Charge{
		Name:        "processing fee",
		Bucket:      loan.BucketFee,
		TimeType:    loan.ChargeSpecifiedDueDate,
		Calculation: loan.ChargeFlat,
		Amount:      usd("25"),
		DueDate:     d("2025-02-15"),
	})
	if err != nil {
		t.Fatalf("AddCharge: %v", err)
	}

	tx := repay(t, acct, "2025-02-15", "125")

	settled, _ := acct.ChargeByID(charge.ID)
	if !settled.FullySettled() {
		t.Fatal("charge not settled by the covering payment")
	}
	if len(settled.PaidBy) != 1 || settled.PaidBy[0].TransactionID != tx.ID {
		t.Errorf("charge paid-by = %+v, want one link to %s", settled.PaidBy, tx.ID)
	}
	assertMoney(t, "charge paid amount", settled.PaidBy[0].Amount, "25.00")
}

func TestAllocation_PastDueDrainsBeforeInAdvance(t *testing.T) {
	// GIVEN: installment 1 overdue and installment 2 upcoming
	// WHEN: a payment arrives between the two due dates
	// THEN: the overdue row settles before a cent prepays the future one

	acct := zeroRateLoan(t)
	tx, err := acct.Repay(loan.TxRepayment, d("2025-03-01"), usd("150"), "")
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	assertMoney(t, "row 1 paid", installment(t, acct, 1).PrincipalPaid, "100.00")
	assertMoney(t, "row 2 paid", installment(t, acct, 2).PrincipalPaid, "50.00")
	assertMoney(t, "breakdown principal", tx.Breakdown.Principal, "150.00")
}
