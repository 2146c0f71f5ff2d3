/*
Package cob runs the close-of-business batch: the per-business-date steps
every open loan goes through once the operational day ends.

PURPOSE:
  - Step: one named unit of COB work against one loan
  - Driver: runs the configured step chain over every loan, one loan at a
    time under the same per-loan lock the command path uses
  - Scheduler (scheduler.go): cron trigger that advances the business
    calendar and kicks the driver

ISOLATION:
  A step failing on one loan never stops the batch: the failure is
  recorded, the loan's remaining steps are skipped (later steps may depend
  on earlier ones), and the run moves to the next loan. Failed loans are
  picked up again on the next run - every step is idempotent per business
  date, so re-running a half-processed loan is safe.

STANDARD CHAIN (order matters):
  1. apply-overdue-charges   penalties raised before classification sees them
  2. delinquency-classification
  3. interest-accrual
*/
package cob

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// STEPS
// =============================================================================

// Step is one unit of COB work. Implementations mutate the aggregate in
// place; the driver handles load, lock, and save.
type Step interface {
	Name() string
	Run(ctx context.Context, acct *loan.Account, businessDate loan.Date) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, acct *loan.Account, businessDate loan.Date) error
}

func (s StepFunc) Name() string { return s.StepName }
func (s StepFunc) Run(ctx context.Context, acct *loan.Account, businessDate loan.Date) error {
	return s.Fn(ctx, acct, businessDate)
}

// ApplyOverdueChargesStep raises the product's overdue penalties for
// installments whose grace has lapsed.
func ApplyOverdueChargesStep() Step {
	return StepFunc{
		StepName: "apply-overdue-charges",
		Fn: func(_ context.Context, acct *loan.Account, businessDate loan.Date) error {
			_, err := acct.ApplyOverdueCharges(businessDate)
			return err
		},
	}
}

// DelinquencyClassificationStep recomputes days-past-due and the risk
// classification as of the business date. The version only moves when the
// state actually changed, so a loan whose whole chain was a no-op keeps
// the skip-the-save fast path.
func DelinquencyClassificationStep() Step {
	return StepFunc{
		StepName: "delinquency-classification",
		Fn: func(_ context.Context, acct *loan.Account, businessDate loan.Date) error {
			prior := acct.Delinquency
			state := acct.ClassifyDelinquency(businessDate, acct.DelinquencyDetail)
			if !state.Same(prior) {
				acct.Version++
			}
			return nil
		},
	}
}

// InterestAccrualStep posts the interest earned since the last accrual.
func InterestAccrualStep() Step {
	return StepFunc{
		StepName: "interest-accrual",
		Fn: func(_ context.Context, acct *loan.Account, businessDate loan.Date) error {
			_, err := acct.Accrue(businessDate)
			return err
		},
	}
}

// StandardChain is the default step order.
func StandardChain() []Step {
	return []Step{
		ApplyOverdueChargesStep(),
		DelinquencyClassificationStep(),
		InterestAccrualStep(),
	}
}

// =============================================================================
// RUN RESULTS
// =============================================================================

// Failure records one loan's step failure in a run.
type Failure struct {
	LoanID loan.LoanID `json:"loanId"`
	Step   string      `json:"step"`
	Err    string      `json:"error"`
}

// RunResult summarizes one driver run.
type RunResult struct {
	BusinessDate loan.Date     `json:"businessDate"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Processed    int           `json:"processed"`
	Skipped      int           `json:"skipped"`
	Failures     []Failure     `json:"failures,omitempty"`
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver walks every loan through the step chain for one business date.
type Driver struct {
	Store   loan.Store
	Steps   []Step
	Log     *logrus.Logger
	Journal loan.JournalSink

	// Locks shares the command path's per-loan registry so a COB step and
	// an API mutation never interleave on the same aggregate.
	Locks *loan.LockRegistry

	mu      sync.Mutex
	lastRun *RunResult
}

func NewDriver(store loan.Store, locks *loan.LockRegistry, log *logrus.Logger) *Driver {
	if log == nil {
		log = logrus.New()
	}
	return &Driver{
		Store:   store,
		Steps:   StandardChain(),
		Log:     log,
		Journal: loan.NopJournal{},
		Locks:   locks,
	}
}

// Run executes the chain over every loan for the given business date.
// Always returns the result; the error is only for listing failures.
func (d *Driver) Run(ctx context.Context, businessDate loan.Date) (*RunResult, error) {
	result := &RunResult{BusinessDate: businessDate, StartedAt: time.Now()}

	ids, err := d.Store.List(ctx)
	if err != nil {
		return result, err
	}

	d.Log.WithFields(logrus.Fields{
		"business_date": businessDate.String(),
		"loans":         len(ids),
	}).Info("cob run started")

	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		processed, failure := d.runLoan(ctx, id, businessDate)
		switch {
		case failure != nil:
			result.Failures = append(result.Failures, *failure)
		case processed:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	result.FinishedAt = time.Now()
	d.mu.Lock()
	d.lastRun = result
	d.mu.Unlock()

	d.Log.WithFields(logrus.Fields{
		"business_date": businessDate.String(),
		"processed":     result.Processed,
		"skipped":       result.Skipped,
		"failures":      len(result.Failures),
		"duration":      result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("cob run finished")
	return result, nil
}

// runLoan executes the full chain for one loan under its lock. A step
// error aborts the remaining steps and nothing is saved: the loan is
// retried wholesale on the next run.
func (d *Driver) runLoan(ctx context.Context, id loan.LoanID, businessDate loan.Date) (bool, *Failure) {
	unlock := d.Locks.Acquire(id)
	defer unlock()

	acct, err := d.Store.Load(ctx, id)
	if err != nil {
		return false, &Failure{LoanID: id, Step: "load", Err: err.Error()}
	}
	acct.RestoreIndexes()

	if !acct.Status.IsOpen() {
		return false, nil
	}

	versionBefore := acct.Version
	generations := make(map[loan.TransactionID]int, len(acct.Transactions))
	for i := range acct.Transactions {
		generations[acct.Transactions[i].ID] = acct.Transactions[i].ReplayGeneration
	}

	for _, step := range d.Steps {
		if err := step.Run(ctx, acct, businessDate); err != nil {
			d.Log.WithFields(logrus.Fields{
				"loan_id":       id,
				"business_date": businessDate.String(),
				"step":          step.Name(),
			}).WithError(err).Error("cob step failed")
			return false, &Failure{LoanID: id, Step: step.Name(), Err: err.Error()}
		}
	}

	if acct.Version == versionBefore {
		return false, nil
	}
	if err := d.Store.Save(ctx, acct); err != nil {
		return false, &Failure{LoanID: id, Step: "save", Err: err.Error()}
	}

	// New transactions (accruals) and replayed rows post to the journal
	// after the save, same contract as the command path.
	for i := range acct.Transactions {
		tx := &acct.Transactions[i]
		if prev, known := generations[tx.ID]; !known || tx.ReplayGeneration != prev {
			_ = d.Journal.Post(ctx, acct.ID, tx)
		}
	}
	return true, nil
}

// LastRun returns the most recent run result, or nil before the first run.
func (d *Driver) LastRun() *RunResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRun
}
