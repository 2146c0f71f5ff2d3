package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
)

// ==== TEST SETUP =============================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func activeLoan(t *testing.T, id loan.LoanID) *loan.Account {
	t.Helper()
	acct, err := loan.NewAccount(loan.AccountConfig{
		ID:        id,
		ProductID: "test-product",
		Currency:  "USD",
		Principal: loan.MustMoney("1200", "USD"),
		Schedule: loan.ScheduleConfig{
			Method:    loan.EqualInstallments,
			Interest:  loan.DecliningBalance,
			Periods:   12,
			Frequency: loan.FrequencyMonthly,
		},
		Rules:            loan.DefaultRuleSet(),
		Delinquency:      loan.DefaultDelinquencyBucket(),
		AllowOverpayment: true,
		SubmittedOn:      loan.MustDate("2025-01-10"),
	})
	require.NoError(t, err)
	require.NoError(t, acct.Approve(loan.MustDate("2025-01-12")))
	_, err = acct.Disburse(loan.MustDate("2025-01-15"), loan.MustMoney("1200", "USD"), "disb-"+string(id))
	require.NoError(t, err)
	return acct
}

// ==== TESTS ==================================================================

func TestSQLiteStore_SaveLoad_RoundTripsTheAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := activeLoan(t, "loan-1")
	acct.RestoreIndexes()
	_, err := acct.Repay(loan.TxRepayment, loan.MustDate("2025-02-15"), loan.MustMoney("100", "USD"), "pay-1")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, acct))

	loaded, err := s.Load(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, loaded.Status)
	assert.Equal(t, acct.Version, loaded.Version)
	assert.Len(t, loaded.Transactions, 2)
	assert.Len(t, loaded.Installments, len(acct.Installments))
	assert.True(t, loaded.TotalOutstanding().Equal(acct.TotalOutstanding()),
		"outstanding %s != %s", loaded.TotalOutstanding(), acct.TotalOutstanding())

	// The reloaded aggregate stays operable after index restoration.
	loaded.RestoreIndexes()
	_, err = loaded.Repay(loan.TxRepayment, loan.MustDate("2025-03-15"), loan.MustMoney("100", "USD"), "pay-2")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, loaded))
}

func TestSQLiteStore_Load_UnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, loan.ErrLoanNotFound)
}

func TestSQLiteStore_Save_RejectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := activeLoan(t, "loan-1")
	require.NoError(t, s.Save(ctx, acct))

	winner, err := s.Load(ctx, "loan-1")
	require.NoError(t, err)
	loser, err := s.Load(ctx, "loan-1")
	require.NoError(t, err)

	winner.Version += 2
	require.NoError(t, s.Save(ctx, winner))

	err = s.Save(ctx, loser)
	require.Error(t, err)
	var conflict *loan.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSQLiteStore_Save_UpdatesInPlace(t *testing.T) {
	// Saving the same loan twice updates the row rather than duplicating.
	s := newTestStore(t)
	ctx := context.Background()

	acct := activeLoan(t, "loan-1")
	require.NoError(t, s.Save(ctx, acct))

	acct.RestoreIndexes()
	_, err := acct.Repay(loan.TxRepayment, loan.MustDate("2025-02-15"), loan.MustMoney("1200", "USD"), "payoff")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, acct))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-1"}, ids)

	loaded, err := s.Load(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosedObligationsMet, loaded.Status)
}

func TestSQLiteStore_List_OrdersByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []loan.LoanID{"loan-c", "loan-a", "loan-b"} {
		require.NoError(t, s.Save(ctx, activeLoan(t, id)))
	}

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-a", "loan-b", "loan-c"}, ids)
}

func TestSQLiteStore_ListByStatus_FiltersOnTheHotColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := activeLoan(t, "loan-active")
	require.NoError(t, s.Save(ctx, active))

	closed := activeLoan(t, "loan-closed")
	closed.RestoreIndexes()
	_, err := closed.Repay(loan.TxRepayment, loan.MustDate("2025-02-15"), loan.MustMoney("1200", "USD"), "payoff")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, closed))

	ids, err := s.ListByStatus(ctx, loan.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-active"}, ids)

	ids, err = s.ListByStatus(ctx, loan.StatusClosedObligationsMet)
	require.NoError(t, err)
	assert.Equal(t, []loan.LoanID{"loan-closed"}, ids)
}
