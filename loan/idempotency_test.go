package loan_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/warp/loan-engine/loan"
)

func TestIdempotencyCache_ConcurrentSameKey_ExecutesOnce(t *testing.T) {
	// GIVEN: eight clients firing the same idempotency key at once
	// WHEN: the duplicates arrive while the first command is still running
	// THEN: the command runs exactly once; every duplicate waits and
	//       replays the first outcome instead of mutating again

	cache := loan.NewIdempotencyCache(time.Hour)
	var calls atomic.Int32
	firstErr := errors.New("insufficient funds")

	const clients = 8
	outcomes := make([]loan.CommandOutcome, clients)
	replayed := make([]bool, clients)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outcomes[i], replayed[i] = cache.Do("pay-dup", func() loan.CommandOutcome {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond) // keep the duplicates in flight
				return loan.CommandOutcome{Err: firstErr}
			})
		}(i)
	}
	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("command ran %d times under one key, want 1", got)
	}
	executions := 0
	for i := range outcomes {
		if !errors.Is(outcomes[i].Err, firstErr) {
			t.Errorf("caller %d outcome = %v, want the first attempt's error", i, outcomes[i].Err)
		}
		if !replayed[i] {
			executions++
		}
	}
	if executions != 1 {
		t.Errorf("%d callers reported a fresh execution, want 1", executions)
	}
}

func TestIdempotencyCache_DistinctKeys_RunIndependently(t *testing.T) {
	cache := loan.NewIdempotencyCache(time.Hour)
	var calls atomic.Int32
	for _, key := range []string{"pay-1", "pay-2"} {
		cache.Do(key, func() loan.CommandOutcome {
			calls.Add(1)
			return loan.CommandOutcome{}
		})
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("distinct keys ran the command %d times, want 2", got)
	}
}
