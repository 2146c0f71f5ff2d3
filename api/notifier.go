/*
notifier.go - Loan change event publication

PURPOSE:
  Implements loan.Notifier. Every successful mutation hands the engine's
  post-mutation snapshot to subscribers: in-process channels for other
  components and a structured log line the platform's event shipper
  tails. The engine never serializes or transports events itself; this
  is the seam where that happens.

DELIVERY:
  Fire-and-forget. A slow subscriber drops events rather than blocking
  the command path - the snapshot carries the loan's Version, so a
  consumer that missed an event reconciles by reloading the loan.
*/
package api

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/loan"
)

// EventNotifier fans loan snapshots out to subscribers and the log.
type EventNotifier struct {
	Log *logrus.Logger

	mu   sync.RWMutex
	subs []chan loan.Snapshot
}

func NewEventNotifier(log *logrus.Logger) *EventNotifier {
	if log == nil {
		log = logrus.New()
	}
	return &EventNotifier{Log: log}
}

// Subscribe returns a channel receiving every subsequent loan change.
// The buffer absorbs bursts; a full channel drops, never blocks.
func (n *EventNotifier) Subscribe() <-chan loan.Snapshot {
	ch := make(chan loan.Snapshot, 64)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// LoanChanged implements loan.Notifier.
func (n *EventNotifier) LoanChanged(_ context.Context, snapshot loan.Snapshot) {
	n.Log.WithFields(logrus.Fields{
		"event":                 "loan.changed",
		"loan_id":               snapshot.LoanID,
		"status":                snapshot.Status,
		"outstanding_principal": snapshot.OutstandingPrincipal.Amount.String(),
		"total_outstanding":     snapshot.TotalOutstanding.Amount.String(),
		"version":               snapshot.Version,
	}).Info("loan changed")

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
