/*
service.go - Command orchestration over the aggregate

PURPOSE:
  Wires one command end to end: idempotency check, per-loan lock, load,
  operate, verify, save, then journal and event emission. The aggregate
  methods in account.go stay pure over in-memory state; everything
  involving collaborators lives here.

FAILURE DISCIPLINE:
  - Validation/Conflict/State errors: aggregate untouched, nothing saved.
  - ReplayError: the loaded aggregate is poisoned; it is discarded, the
    error surfaces, nothing is saved.
  - Journal/notifier calls happen after a successful save and are
    at-least-once: a crash between save and emit is recovered by the
    collaborator's (id, generation) dedupe.
*/
package loan

import (
	"context"
	"time"
)

type Service struct {
	Store       Store
	Clock       BusinessDateProvider
	Journal     JournalSink
	Notifier    Notifier
	Idempotency *IdempotencyCache

	locks LockRegistry
}

func NewService(store Store, clock BusinessDateProvider) *Service {
	return &Service{
		Store:       store,
		Clock:       clock,
		Journal:     NopJournal{},
		Notifier:    NopNotifier{},
		Idempotency: NewIdempotencyCache(24 * time.Hour),
	}
}

// Locks exposes the per-loan registry so batch components (the COB
// driver) serialize against the command path.
func (s *Service) Locks() *LockRegistry {
	return &s.locks
}

// CommandResult is what every command returns (and what the idempotency
// cache replays).
type CommandResult struct {
	Loan        Snapshot       `json:"loan"`
	Transaction *Transaction   `json:"transaction,omitempty"`
	Charge      *Charge        `json:"charge,omitempty"`
	Delinquency *DelinquencyState `json:"delinquency,omitempty"`
}

// =============================================================================
// COMMAND PLUMBING
// =============================================================================

// execute runs op against the locked, freshly loaded aggregate and takes
// care of save, journal, and event emission.
func (s *Service) execute(ctx context.Context, id LoanID, key string, op func(*Account) (*Transaction, *Charge, error)) (CommandResult, error) {
	outcome, _ := s.Idempotency.Do(key, func() CommandOutcome {
		result, err := s.executeLocked(ctx, id, op)
		return CommandOutcome{Result: result, Err: err}
	})
	return outcome.Result, outcome.Err
}

func (s *Service) executeLocked(ctx context.Context, id LoanID, op func(*Account) (*Transaction, *Charge, error)) (CommandResult, error) {
	unlock := s.locks.Acquire(id)
	defer unlock()

	acct, err := s.Store.Load(ctx, id)
	if err != nil {
		return CommandResult{}, err
	}
	acct.RestoreIndexes()

	generations := replayGenerations(acct)

	tx, charge, err := op(acct)
	if err != nil {
		return CommandResult{}, err
	}

	if err := s.Store.Save(ctx, acct); err != nil {
		return CommandResult{}, err
	}

	s.emit(ctx, acct, tx, generations)

	return CommandResult{Loan: acct.Snapshot(), Transaction: tx, Charge: charge}, nil
}

func replayGenerations(acct *Account) map[TransactionID]int {
	m := make(map[TransactionID]int, len(acct.Transactions))
	for i := range acct.Transactions {
		m[acct.Transactions[i].ID] = acct.Transactions[i].ReplayGeneration
	}
	return m
}

// emit posts journal facts for the trigger and every transaction whose
// replay generation moved, then publishes the event snapshot.
func (s *Service) emit(ctx context.Context, acct *Account, trigger *Transaction, before map[TransactionID]int) {
	if trigger != nil {
		_ = s.Journal.Post(ctx, acct.ID, trigger)
	}
	for i := range acct.Transactions {
		tx := &acct.Transactions[i]
		if trigger != nil && tx.ID == trigger.ID {
			continue
		}
		if prev, ok := before[tx.ID]; ok && tx.ReplayGeneration != prev {
			_ = s.Journal.Post(ctx, acct.ID, tx)
		}
	}
	s.Notifier.LoanChanged(ctx, acct.Snapshot())
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *Service) Create(ctx context.Context, cfg AccountConfig) (CommandResult, error) {
	acct, err := NewAccount(cfg)
	if err != nil {
		return CommandResult{}, err
	}
	if acct.SubmittedOn.IsZero() {
		acct.SubmittedOn = s.Clock.BusinessDate()
	}
	if err := s.Store.Save(ctx, acct); err != nil {
		return CommandResult{}, err
	}
	s.Notifier.LoanChanged(ctx, acct.Snapshot())
	return CommandResult{Loan: acct.Snapshot()}, nil
}

func (s *Service) Approve(ctx context.Context, id LoanID, key string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		return nil, nil, a.Approve(s.Clock.BusinessDate())
	})
}

func (s *Service) Reject(ctx context.Context, id LoanID, key string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		return nil, nil, a.Reject(s.Clock.BusinessDate())
	})
}

func (s *Service) Disburse(ctx context.Context, id LoanID, key string, on Date, amount Money, externalID string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.Disburse(on, amount, externalID)
		return tx, nil, err
	})
}

func (s *Service) Repay(ctx context.Context, id LoanID, key string, typ TransactionType, on Date, amount Money, externalID string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.Repay(typ, on, amount, externalID)
		return tx, nil, err
	})
}

func (s *Service) AddCharge(ctx context.Context, id LoanID, key string, c Charge) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		charge, err := a.AddCharge(c)
		return nil, charge, err
	})
}

func (s *Service) WaiveCharge(ctx context.Context, id LoanID, key string, chargeID ChargeID) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.WaiveCharge(chargeID, s.Clock.BusinessDate())
		return tx, nil, err
	})
}

func (s *Service) WaiveInterest(ctx context.Context, id LoanID, key string, amount Money) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.WaiveInterest(s.Clock.BusinessDate(), amount)
		return tx, nil, err
	})
}

func (s *Service) Chargeback(ctx context.Context, id LoanID, key string, originalID TransactionID, amount Money, externalID string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.Chargeback(originalID, amount, s.Clock.BusinessDate(), externalID)
		return tx, nil, err
	})
}

func (s *Service) CreditBalanceRefund(ctx context.Context, id LoanID, key string, amount Money, externalID string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.CreditBalanceRefund(s.Clock.BusinessDate(), amount, externalID)
		return tx, nil, err
	})
}

func (s *Service) WriteOff(ctx context.Context, id LoanID, key string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.WriteOff(s.Clock.BusinessDate())
		return tx, nil, err
	})
}

func (s *Service) ChargeOff(ctx context.Context, id LoanID, key string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.ChargeOff(s.Clock.BusinessDate())
		return tx, nil, err
	})
}

func (s *Service) Reverse(ctx context.Context, id LoanID, key string, txID TransactionID) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		tx, err := a.Reverse(txID, s.Clock.BusinessDate())
		return tx, nil, err
	})
}

func (s *Service) PauseDelinquency(ctx context.Context, id LoanID, key, actionID string, start, end Date) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		return nil, nil, a.PauseDelinquency(actionID, start, end)
	})
}

func (s *Service) ResumeDelinquency(ctx context.Context, id LoanID, key, actionID string) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		return nil, nil, a.ResumeDelinquency(actionID, s.Clock.BusinessDate())
	})
}

func (s *Service) MarkFraud(ctx context.Context, id LoanID, key string, flag bool) (CommandResult, error) {
	return s.execute(ctx, id, key, func(a *Account) (*Transaction, *Charge, error) {
		a.MarkFraud(flag)
		return nil, nil, nil
	})
}

// Get returns the aggregate read-only. No lock: readers tolerate a
// concurrent writer's save because Load returns a private copy.
func (s *Service) Get(ctx context.Context, id LoanID) (*Account, error) {
	acct, err := s.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	acct.RestoreIndexes()
	return acct, nil
}
