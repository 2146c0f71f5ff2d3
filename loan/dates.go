package loan

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date (the engine never reasons below days)
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MustDate parses a fixture-style date or panics. Test and config use only.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.t.Before(o.t) }
func (d Date) IsZero() bool              { return d.t.IsZero() }

func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{t: d.t.AddDate(n, 0, 0)} }

func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Time() time.Time   { return d.t }

// DaysBetween returns to minus from in whole days. Negative if to < from.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == `""` || s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("loan: date must be a quoted YYYY-MM-DD string, got %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// REPAYMENT FREQUENCY - Schedule date generation
// =============================================================================

type RepaymentFrequency string

const (
	FrequencyDaily   RepaymentFrequency = "daily"
	FrequencyWeekly  RepaymentFrequency = "weekly"
	FrequencyMonthly RepaymentFrequency = "monthly"
)

// Next returns the due date one repayment period after d.
func (f RepaymentFrequency) Next(d Date) Date {
	switch f {
	case FrequencyDaily:
		return d.AddDays(1)
	case FrequencyWeekly:
		return d.AddDays(7)
	default:
		return d.AddMonths(1)
	}
}

// DueDates generates n due dates starting one period after the disbursement
// date. Month-end anchoring follows time.AddDate semantics: a schedule
// anchored on Jan 31 rolls through Mar 3 in a non-leap year, matching the
// behavior of the scheduling layer that feeds this engine.
func (f RepaymentFrequency) DueDates(disbursed Date, n int) []Date {
	dates := make([]Date, 0, n)
	current := disbursed
	for i := 0; i < n; i++ {
		current = f.Next(current)
		dates = append(dates, current)
	}
	return dates
}

// =============================================================================
// BUSINESS DATE - Explicit "as of" date, never wall clock
// =============================================================================

// BusinessDateProvider supplies the process-wide business date. The engine
// reads it once at the start of an operation and never mid-operation, so a
// COB advance cannot shear a mutation in half.
type BusinessDateProvider interface {
	BusinessDate() Date
}

// FixedBusinessDate is a constant provider for tests and simulations.
type FixedBusinessDate struct {
	Date Date
}

func (f FixedBusinessDate) BusinessDate() Date { return f.Date }

// BusinessCalendar is the operator-advanced production provider. The date
// only moves when Advance or Set is called, typically by the COB driver.
// Safe for concurrent readers against the scheduler goroutine.
type BusinessCalendar struct {
	mu      sync.RWMutex
	current Date
}

func NewBusinessCalendar(start Date) *BusinessCalendar {
	return &BusinessCalendar{current: start}
}

func (c *BusinessCalendar) BusinessDate() Date {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *BusinessCalendar) Set(d Date) {
	c.mu.Lock()
	c.current = d
	c.mu.Unlock()
}

// Advance moves the calendar forward one day and returns the new date.
func (c *BusinessCalendar) Advance() Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.AddDays(1)
	return c.current
}
