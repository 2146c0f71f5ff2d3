/*
Package loan implements the loan servicing engine: amortization schedules,
rule-driven payment allocation, the append-only transaction ledger, and the
reverse-replay coordinator that keeps all of them consistent under backdated
events.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: a fixed-point monetary amount with a currency code
  - All monetary arithmetic goes through decimal.Decimal; float64 never
    touches money anywhere in this package

DESIGN PRINCIPLES:
  1. Precision: decimal arithmetic, half-up rounding to the currency scale
  2. Exactness: schedule math pushes rounding remainders to the last
     installment so totals reconcile to the cent
  3. Currency safety: mixing currencies is a programming error and panics
     rather than silently producing a wrong number

SEE ALSO:
  - schedule.go: amortization math built on Money
  - allocation.go: bucket-by-bucket distribution of Money
*/
package loan

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point amount with currency
// =============================================================================

// MoneyScale is the number of decimal places carried by every persisted
// amount. Intermediate schedule math runs at full decimal precision and is
// rounded back to this scale at the edges.
const MoneyScale = 2

var decimalHundred = decimal.NewFromInt(100)

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount.Round(MoneyScale), Currency: currency}
}

func MoneyFromFloat(v float64, currency string) Money {
	return NewMoney(decimal.NewFromFloat(v), currency)
}

func MoneyFromInt(v int64, currency string) Money {
	return Money{Amount: decimal.NewFromInt(v), Currency: currency}
}

// MustMoney parses a decimal string or panics. For fixtures and product
// configuration, not for request input.
func MustMoney(s, currency string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("loan: bad money literal %q: %v", s, err))
	}
	return NewMoney(d, currency)
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) check(o Money) {
	if m.Currency != o.Currency && m.Currency != "" && o.Currency != "" {
		panic(fmt.Sprintf("loan: currency mismatch %s vs %s", m.Currency, o.Currency))
	}
}

func (m Money) cur(o Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}

func (m Money) Zero() Money      { return Money{Amount: decimal.Zero, Currency: m.Currency} }
func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) Add(o Money) Money { m.check(o); return Money{Amount: m.Amount.Add(o.Amount), Currency: m.cur(o)} }
func (m Money) Sub(o Money) Money { m.check(o); return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.cur(o)} }
func (m Money) Neg() Money        { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

func (m Money) Mul(s decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(s), Currency: m.Currency}
}

func (m Money) Div(s decimal.Decimal) Money {
	return Money{Amount: m.Amount.Div(s), Currency: m.Currency}
}

// Round snaps the amount back to the currency scale, half-up.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(MoneyScale), Currency: m.Currency}
}

// RoundToMultiple rounds to the nearest configured multiple (e.g. whole
// dollars, or 10s). Used by installmentAmountInMultiplesOf.
func (m Money) RoundToMultiple(multiple decimal.Decimal) Money {
	if multiple.IsZero() {
		return m
	}
	q := m.Amount.Div(multiple).Round(0)
	return Money{Amount: q.Mul(multiple), Currency: m.Currency}
}

func (m Money) Cmp(o Money) int           { m.check(o); return m.Amount.Cmp(o.Amount) }
func (m Money) Equal(o Money) bool        { return m.Cmp(o) == 0 }
func (m Money) GreaterThan(o Money) bool  { return m.Cmp(o) > 0 }
func (m Money) LessThan(o Money) bool     { return m.Cmp(o) < 0 }
func (m Money) GreaterOrEqual(o Money) bool { return m.Cmp(o) >= 0 }
func (m Money) LessOrEqual(o Money) bool    { return m.Cmp(o) <= 0 }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// ClampZero returns the amount floored at zero. Allocation never drives a
// due or paid component negative.
func (m Money) ClampZero() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

func (m Money) String() string {
	return m.Amount.StringFixed(MoneyScale) + " " + m.Currency
}
