/*
scheduler.go - Cron-driven close-of-business trigger

PURPOSE:
  Advances the business calendar one day and runs the COB driver on a cron
  schedule (default: midnight). The business date only ever moves here or
  through an explicit operator call; the engine itself never reads the
  wall clock.

MANUAL RUNS:
  RunNow executes a COB for the CURRENT business date without advancing
  the calendar. Operators use it to re-drive failed loans, which is safe
  because every step is idempotent per business date.
*/
package cob

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/loan"
)

// Scheduler ties the cron trigger, the business calendar, and the driver
// together.
type Scheduler struct {
	Driver   *Driver
	Calendar *loan.BusinessCalendar
	Spec     string // cron spec, default "0 0 * * *"
	Log      *logrus.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(driver *Driver, calendar *loan.BusinessCalendar, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		Driver:   driver,
		Calendar: calendar,
		Spec:     "0 0 * * *",
		Log:      log,
	}
}

// Start registers the cron entry and begins triggering. Returns the error
// from cron spec parsing, if any.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New()
	_, err := c.AddFunc(s.Spec, func() {
		s.Advance(context.Background())
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.Log.WithField("spec", s.Spec).Info("cob scheduler started")
	return nil
}

// Stop halts the cron trigger and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
		s.Log.Info("cob scheduler stopped")
	}
}

// Advance moves the business date forward one day and runs the batch for
// the new date.
func (s *Scheduler) Advance(ctx context.Context) (*RunResult, error) {
	next := s.Calendar.Advance()
	s.Log.WithField("business_date", next.String()).Info("business date advanced")
	return s.Driver.Run(ctx, next)
}

// RunNow re-runs the batch for the current business date.
func (s *Scheduler) RunNow(ctx context.Context) (*RunResult, error) {
	return s.Driver.Run(ctx, s.Calendar.BusinessDate())
}
