package cob_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/cob"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/loan/store"
)

// ==== TEST SETUP =============================================================

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func loanConfig(id loan.LoanID) loan.AccountConfig {
	return loan.AccountConfig{
		ID:        id,
		ProductID: "test-product",
		Currency:  "USD",
		Principal: loan.MustMoney("1200", "USD"),
		Schedule: loan.ScheduleConfig{
			Method:            loan.EqualPrincipal,
			Interest:          loan.FlatInterest,
			AnnualRatePercent: decimal.NewFromInt(12),
			Periods:           12,
			Frequency:         loan.FrequencyMonthly,
		},
		Rules:       loan.DefaultRuleSet(),
		Delinquency: loan.DefaultDelinquencyBucket(),
		OverduePenalty: &loan.OverduePenaltyConfig{
			Name:        "late penalty",
			Calculation: loan.ChargeFlat,
			Amount:      loan.MustMoney("10", "USD"),
		},
		AllowOverpayment: true,
		SubmittedOn:      loan.MustDate("2025-01-10"),
	}
}

// saveActiveLoan disburses 1200.00 on 2025-01-15: installment 1 falls due
// 2025-02-15 with 100.00 principal + 12.00 flat interest.
func saveActiveLoan(t *testing.T, mem *store.Memory, id loan.LoanID) {
	t.Helper()
	acct, err := loan.NewAccount(loanConfig(id))
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if err := acct.Approve(loan.MustDate("2025-01-12")); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := acct.Disburse(loan.MustDate("2025-01-15"), loan.MustMoney("1200", "USD"), ""); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if err := mem.Save(context.Background(), acct); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func savePendingLoan(t *testing.T, mem *store.Memory, id loan.LoanID) {
	t.Helper()
	acct, err := loan.NewAccount(loanConfig(id))
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if err := mem.Save(context.Background(), acct); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

type countingJournal struct {
	byType map[loan.TransactionType]int
}

func (j *countingJournal) Post(_ context.Context, _ loan.LoanID, tx *loan.Transaction) error {
	if j.byType == nil {
		j.byType = make(map[loan.TransactionType]int)
	}
	j.byType[tx.Type]++
	return nil
}

// ==== TESTS ==================================================================

func TestDriver_Run_AppliesTheStandardChain(t *testing.T) {
	// GIVEN: an active loan whose first installment lapsed on 2025-02-15
	// WHEN: COB runs for 2025-02-20
	// THEN: the penalty is raised, arrears are classified, interest accrues,
	//       and the accrual reaches the journal after the save

	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-1")
	journal := &countingJournal{}
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())
	driver.Journal = journal

	result, err := driver.Run(context.Background(), loan.MustDate("2025-02-20"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Skipped != 0 || len(result.Failures) != 0 {
		t.Fatalf("result = %d processed / %d skipped / %d failures, want 1/0/0",
			result.Processed, result.Skipped, len(result.Failures))
	}

	acct, err := mem.Load(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(acct.Charges) != 1 || acct.Charges[0].TimeType != loan.ChargeOverdue {
		t.Fatalf("charges = %+v, want one overdue penalty", acct.Charges)
	}
	if acct.Delinquency.DelinquentDays != 5 {
		t.Errorf("delinquent days = %d, want 5", acct.Delinquency.DelinquentDays)
	}
	if acct.Delinquency.Classification != "delinquent-1" {
		t.Errorf("classification = %q, want delinquent-1", acct.Delinquency.Classification)
	}

	// Accrual: installment 1's full 12.00 plus 5/28ths of installment 2.
	var accrual *loan.Transaction
	for i := range acct.Transactions {
		if acct.Transactions[i].Type == loan.TxAccrual {
			accrual = &acct.Transactions[i]
		}
	}
	if accrual == nil {
		t.Fatal("no accrual transaction posted")
	}
	if want := loan.MustMoney("14.14", "USD"); !accrual.Amount.Equal(want) {
		t.Errorf("accrued = %s, want 14.14 USD", accrual.Amount)
	}
	if journal.byType[loan.TxAccrual] != 1 {
		t.Errorf("journal accrual posts = %d, want 1", journal.byType[loan.TxAccrual])
	}
}

func TestDriver_Run_SkipsLoansNotOpen(t *testing.T) {
	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-open")
	savePendingLoan(t, mem, "loan-pending")
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())

	result, err := driver.Run(context.Background(), loan.MustDate("2025-02-20"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Skipped != 1 {
		t.Errorf("result = %d processed / %d skipped, want 1/1", result.Processed, result.Skipped)
	}

	pending, _ := mem.Load(context.Background(), "loan-pending")
	if len(pending.Charges) != 0 {
		t.Errorf("pending loan picked up %d charges", len(pending.Charges))
	}
}

func TestDriver_StepFailure_IsolatedAndNothingSaved(t *testing.T) {
	// GIVEN: a chain whose second step fails for loan-bad only
	// WHEN: the batch runs over loan-bad and loan-good
	// THEN: loan-bad's earlier step effects are discarded, loan-good is
	//       processed normally, and the failure is reported

	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-bad")
	saveActiveLoan(t, mem, "loan-good")
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())
	driver.Steps = []cob.Step{
		cob.ApplyOverdueChargesStep(),
		cob.StepFunc{
			StepName: "boom",
			Fn: func(_ context.Context, acct *loan.Account, _ loan.Date) error {
				if acct.ID == "loan-bad" {
					return errors.New("step exploded")
				}
				return nil
			},
		},
		cob.DelinquencyClassificationStep(),
	}

	result, err := driver.Run(context.Background(), loan.MustDate("2025-02-20"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("processed = %d, want 1", result.Processed)
	}
	if len(result.Failures) != 1 ||
		result.Failures[0].LoanID != "loan-bad" || result.Failures[0].Step != "boom" {
		t.Fatalf("failures = %+v, want one for loan-bad at step boom", result.Failures)
	}

	bad, _ := mem.Load(context.Background(), "loan-bad")
	if len(bad.Charges) != 0 {
		t.Errorf("failed loan persisted %d charges from the aborted run", len(bad.Charges))
	}
	good, _ := mem.Load(context.Background(), "loan-good")
	if len(good.Charges) != 1 {
		t.Errorf("healthy loan has %d charges, want 1", len(good.Charges))
	}
}

func TestDriver_Rerun_SameDate_FinanciallyIdempotent(t *testing.T) {
	// Re-running a business date must not double penalties or accruals,
	// and a loan whose whole chain was a no-op must not be re-saved.
	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-1")
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())
	ctx := context.Background()

	if _, err := driver.Run(ctx, loan.MustDate("2025-02-20")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := mem.Load(ctx, "loan-1")

	rerun, err := driver.Run(ctx, loan.MustDate("2025-02-20"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rerun.Processed != 0 || rerun.Skipped != 1 {
		t.Errorf("rerun = %d processed / %d skipped, want 0/1 (nothing changed)",
			rerun.Processed, rerun.Skipped)
	}
	second, _ := mem.Load(ctx, "loan-1")

	if second.Version != first.Version {
		t.Errorf("rerun moved the version %d -> %d without a state change", first.Version, second.Version)
	}
	if len(second.Charges) != len(first.Charges) {
		t.Errorf("rerun grew charges %d -> %d", len(first.Charges), len(second.Charges))
	}
	if len(second.Transactions) != len(first.Transactions) {
		t.Errorf("rerun grew ledger %d -> %d", len(first.Transactions), len(second.Transactions))
	}
	if !second.TotalOutstanding().Equal(first.TotalOutstanding()) {
		t.Errorf("rerun moved outstanding %s -> %s", first.TotalOutstanding(), second.TotalOutstanding())
	}
}

func TestDriver_NextDay_DelinquentLoanReclassifiedAndSaved(t *testing.T) {
	// Days-past-due moves every calendar day for a delinquent loan, so the
	// next date's run still persists the fresher classification.
	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-1")
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())
	ctx := context.Background()

	if _, err := driver.Run(ctx, loan.MustDate("2025-02-20")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := driver.Run(ctx, loan.MustDate("2025-02-21")); err != nil {
		t.Fatalf("next-day run: %v", err)
	}

	acct, _ := mem.Load(ctx, "loan-1")
	if acct.Delinquency.DelinquentDays != 6 {
		t.Errorf("delinquent days = %d, want 6 as of 2025-02-21", acct.Delinquency.DelinquentDays)
	}
}

func TestDriver_LastRun_ExposesTheLatestResult(t *testing.T) {
	mem := store.NewMemory()
	saveActiveLoan(t, mem, "loan-1")
	driver := cob.NewDriver(mem, &loan.LockRegistry{}, quietLogger())

	if driver.LastRun() != nil {
		t.Fatal("LastRun before any run should be nil")
	}
	if _, err := driver.Run(context.Background(), loan.MustDate("2025-02-20")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := driver.LastRun()
	if last == nil || !last.BusinessDate.Equal(loan.MustDate("2025-02-20")) {
		t.Errorf("LastRun = %+v, want the 2025-02-20 result", last)
	}
}
