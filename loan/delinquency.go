/*
delinquency.go - Days-past-due classification

PURPOSE:
  Computes how late a loan is (delinquentDays), how much is late
  (delinquentAmount), and which configured risk range that lands in.
  Driven by the COB pipeline once per business date per loan; also
  consulted ad hoc by the API.

PAUSE SEMANTICS:
  A PAUSE window suspends day-counting without clearing the computed
  arrears amount. While the business date sits inside a pause window the
  reported days are zero; once the window ends, counting resumes and the
  paused days are excluded from the total. A RESUME before the pause's
  end shortens the window. At most one pause may be active for any date -
  overlap is a ConflictError.

CLOSED LOANS:
  Rejected, withdrawn, and closed loans classify to zero regardless of
  historical installment state. Closing resets delinquency, never
  freezes it.
*/
package loan

// =============================================================================
// BUCKET CONFIGURATION
// =============================================================================

// DelinquencyRange maps a days-past-due span to a classification label.
// MaxDays 0 means open-ended.
type DelinquencyRange struct {
	Label   string `json:"label"`
	MinDays int    `json:"minDays"`
	MaxDays int    `json:"maxDays"`
}

func (r DelinquencyRange) contains(days int) bool {
	if days < r.MinDays {
		return false
	}
	return r.MaxDays == 0 || days <= r.MaxDays
}

// DelinquencyBucket is the ordered, non-overlapping range set a loan
// classifies against.
type DelinquencyBucket struct {
	Name   string             `json:"name"`
	Ranges []DelinquencyRange `json:"ranges"`
}

// DefaultDelinquencyBucket mirrors the common 1-10 / 11-30 / 31-60 / 61+
// setup.
func DefaultDelinquencyBucket() DelinquencyBucket {
	return DelinquencyBucket{
		Name: "default",
		Ranges: []DelinquencyRange{
			{Label: "delinquent-1", MinDays: 1, MaxDays: 10},
			{Label: "delinquent-2", MinDays: 11, MaxDays: 30},
			{Label: "delinquent-3", MinDays: 31, MaxDays: 60},
			{Label: "delinquent-4", MinDays: 61, MaxDays: 0},
		},
	}
}

func (b DelinquencyBucket) validate() error {
	prevMax := 0
	for i, r := range b.Ranges {
		if r.MinDays <= prevMax {
			return validationf("delinquencyBucket", "range %d overlaps or is out of order", i)
		}
		if r.MaxDays != 0 {
			if r.MaxDays < r.MinDays {
				return validationf("delinquencyBucket", "range %d has max < min", i)
			}
			prevMax = r.MaxDays
		} else if i != len(b.Ranges)-1 {
			return validationf("delinquencyBucket", "open-ended range %d must be last", i)
		}
	}
	return nil
}

// RangeFor returns the matching range, or nil when days is zero or falls
// in no configured range.
func (b DelinquencyBucket) RangeFor(days int) *DelinquencyRange {
	for i := range b.Ranges {
		if b.Ranges[i].contains(days) {
			return &b.Ranges[i]
		}
	}
	return nil
}

// =============================================================================
// PAUSE / RESUME ACTIONS
// =============================================================================

type PauseAction string

const (
	ActionPause  PauseAction = "PAUSE"
	ActionResume PauseAction = "RESUME"
)

// DelinquencyAction records a pause window or the resume that shortened
// one. PAUSE windows are kept temporally non-overlapping.
type DelinquencyAction struct {
	ID     string      `json:"id"`
	Action PauseAction `json:"action"`
	Start  Date        `json:"start"`
	End    Date        `json:"end"`
}

func (a DelinquencyAction) covers(d Date) bool {
	return d.AfterOrEqual(a.Start) && d.BeforeOrEqual(a.End)
}

func (a DelinquencyAction) overlaps(start, end Date) bool {
	return !start.After(a.End) && !a.Start.After(end)
}

// PauseDelinquency opens a pause window. Overlap with an existing pause is
// rejected atomically as a ConflictError.
func (a *Account) PauseDelinquency(id string, start, end Date) error {
	if end.Before(start) {
		return validationf("end", "pause window ends %s before it starts %s", end, start)
	}
	for _, action := range a.PauseActions {
		if action.Action != ActionPause {
			continue
		}
		if action.overlaps(start, end) {
			return &ConflictError{
				Reason: "pause window overlaps existing pause " + action.ID,
				Cause:  ErrOverlappingPause,
			}
		}
	}
	a.PauseActions = append(a.PauseActions, DelinquencyAction{ID: id, Action: ActionPause, Start: start, End: end})
	a.Version++
	return nil
}

// ResumeDelinquency shortens the pause covering the given date to end
// there, and records the resume for audit.
func (a *Account) ResumeDelinquency(id string, on Date) error {
	for i := range a.PauseActions {
		action := &a.PauseActions[i]
		if action.Action == ActionPause && action.covers(on) {
			action.End = on
			a.PauseActions = append(a.PauseActions, DelinquencyAction{ID: id, Action: ActionResume, Start: on, End: on})
			a.Version++
			return nil
		}
	}
	return &StateError{LoanID: a.ID, Status: a.Status, Operation: "resume without active pause"}
}

func (a *Account) pausedOn(d Date) bool {
	for _, action := range a.PauseActions {
		if action.Action == ActionPause && action.covers(d) {
			return true
		}
	}
	return false
}

// pausedDaysBetween counts days in (from, to] covered by pause windows.
func (a *Account) pausedDaysBetween(from, to Date) int {
	days := 0
	for _, action := range a.PauseActions {
		if action.Action != ActionPause {
			continue
		}
		start, end := action.Start, action.End
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if d := DaysBetween(start, end); d > 0 {
			days += d
		}
	}
	return days
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// InstallmentDelinquency is the optional per-row breakdown.
type InstallmentDelinquency struct {
	Seq         int   `json:"seq"`
	OverdueDays int   `json:"overdueDays"`
	Amount      Money `json:"amount"`
}

type DelinquencyState struct {
	AsOf             Date   `json:"asOf"`
	DelinquentDays   int    `json:"delinquentDays"`
	DelinquentAmount Money  `json:"delinquentAmount"`
	Classification   string `json:"classification,omitempty"`

	Installments []InstallmentDelinquency `json:"installments,omitempty"`
}

func emptyDelinquency(currency string, asOf Date) DelinquencyState {
	return DelinquencyState{AsOf: asOf, DelinquentAmount: ZeroMoney(currency)}
}

// Same reports whether two states agree on days, amount, and
// classification. AsOf and the installment breakdown are derived views and
// do not make a state worth persisting on their own.
func (s DelinquencyState) Same(o DelinquencyState) bool {
	return s.DelinquentDays == o.DelinquentDays &&
		s.Classification == o.Classification &&
		s.DelinquentAmount.Equal(o.DelinquentAmount)
}

// ClassifyDelinquency computes the delinquency state as of the business
// date and stores it on the account. Idempotent for a fixed business date
// and ledger state. detail controls the installment-level breakdown.
func (a *Account) ClassifyDelinquency(businessDate Date, detail bool) DelinquencyState {
	state := emptyDelinquency(a.Currency, businessDate)

	if a.Status.IsClosed() || !a.Status.IsOpen() {
		a.Delinquency = state
		return state
	}

	var oldestDue Date
	for i := range a.Installments {
		ins := &a.Installments[i]
		if !ins.DueDate.Before(businessDate) {
			continue
		}
		overdue := ins.TotalOutstanding()
		if !overdue.IsPositive() {
			continue
		}
		state.DelinquentAmount = state.DelinquentAmount.Add(overdue)
		if oldestDue.IsZero() || ins.DueDate.Before(oldestDue) {
			oldestDue = ins.DueDate
		}
		if detail {
			state.Installments = append(state.Installments, InstallmentDelinquency{
				Seq:         ins.Seq,
				OverdueDays: DaysBetween(ins.DueDate, businessDate),
				Amount:      overdue,
			})
		}
	}

	if !oldestDue.IsZero() && !a.pausedOn(businessDate) {
		days := DaysBetween(oldestDue, businessDate) - a.pausedDaysBetween(oldestDue, businessDate)
		if days < 0 {
			days = 0
		}
		state.DelinquentDays = days
		if r := a.DelinquencyBucket.RangeFor(days); r != nil {
			state.Classification = r.Label
		}
	}

	a.Delinquency = state
	return state
}
