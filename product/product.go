/*
Package product provides JSON to Go loan product conversion and the
in-memory product catalogue.

PURPOSE:
  Converts JSON product definitions into loan.AccountConfig material. This
  enables product configuration without code changes - operations can
  define products in JSON, and the factory creates the proper Go structs.
  An account copies its product's configuration at opening time, so later
  product edits never rewrite existing loans.

JSON SCHEMA:
  {
    "id": "personal-12m",
    "name": "Personal Loan 12m",
    "currency": "USD",
    "schedule": {
      "amortization": "EQUAL_INSTALLMENTS",
      "interest": "DECLINING_BALANCE",
      "annual_rate_percent": "9.99",
      "periods": 12,
      "frequency": "monthly",
      "installment_multiple": "1"
    },
    "allocation": {
      "default": {
        "steps": ["PAST_DUE:PENALTY", "PAST_DUE:FEE", ...],
        "future_rule": "NEXT_INSTALLMENT"
      }
    },
    "down_payment_percent": "25",
    "allow_overpayment": true,
    "overdue_penalty": {"calculation": "FLAT", "amount": "10", "grace_days": 1},
    "delinquency_ranges": [{"classification": "DELINQUENT_30", "from": 1, "to": 30}],
    "charges": [{"name": "processing", "bucket": "FEE", "calculation": "PERCENT_OF_PRINCIPAL", "rate": "1.5", "time_type": "DISBURSEMENT"}]
  }

SEE ALSO:
  - loan/account.go: AccountConfig, the target of conversion
  - product/presets.go: Go-based product configurations
*/
package product

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// PRODUCT - The domain object
// =============================================================================

// Product is a loan product definition: everything an account copies at
// opening time, plus the charge definitions applied automatically at
// disbursement.
type Product struct {
	ID       loan.ProductID
	Name     string
	Currency string

	Schedule    loan.ScheduleConfig
	Rules       loan.AllocationRuleSet
	Delinquency loan.DelinquencyBucket

	DownPaymentPercent decimal.Decimal
	AllowOverpayment   bool
	OverduePenalty     *loan.OverduePenaltyConfig
	DelinquencyDetail  bool

	// Charges are the definitions auto-applied to every account at
	// disbursement (DISBURSEMENT time type only; others are templates the
	// API applies on demand).
	Charges []loan.Charge

	MinPrincipal Money
	MaxPrincipal Money
}

// Money aliases the engine's money type; products and loans share it.
type Money = loan.Money

// AccountConfig materializes the opening configuration for one account.
func (p *Product) AccountConfig(id loan.LoanID, principal Money, submittedOn loan.Date) loan.AccountConfig {
	return loan.AccountConfig{
		ID:                 id,
		ProductID:          p.ID,
		Currency:           p.Currency,
		Principal:          principal,
		Schedule:           p.Schedule,
		Rules:              p.Rules,
		Delinquency:        p.Delinquency,
		DownPaymentPercent: p.DownPaymentPercent,
		AllowOverpayment:   p.AllowOverpayment,
		OverduePenalty:     p.OverduePenalty,
		DelinquencyDetail:  p.DelinquencyDetail,
		SubmittedOn:        submittedOn,
	}
}

// ValidatePrincipal checks the requested principal against the product's
// bounds. Zero bounds mean unbounded.
func (p *Product) ValidatePrincipal(principal Money) error {
	if !p.MinPrincipal.IsZero() && principal.LessThan(p.MinPrincipal) {
		return &loan.ValidationError{Field: "principal", Message: fmt.Sprintf("below product minimum %s", p.MinPrincipal)}
	}
	if !p.MaxPrincipal.IsZero() && principal.GreaterThan(p.MaxPrincipal) {
		return &loan.ValidationError{Field: "principal", Message: fmt.Sprintf("above product maximum %s", p.MaxPrincipal)}
	}
	return nil
}

// DisbursementCharges returns the charge instances to apply when the first
// tranche pays out.
func (p *Product) DisbursementCharges() []loan.Charge {
	var out []loan.Charge
	for _, c := range p.Charges {
		if c.TimeType == loan.ChargeAtDisbursement {
			c.ID = "" // instances get fresh ids
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// CATALOGUE
// =============================================================================

// Catalogue is the in-memory product registry. Safe for concurrent use.
type Catalogue struct {
	mu       sync.RWMutex
	products map[loan.ProductID]*Product
}

func NewCatalogue() *Catalogue {
	return &Catalogue{products: make(map[loan.ProductID]*Product)}
}

func (c *Catalogue) Register(p *Product) error {
	if p.ID == "" {
		return &loan.ValidationError{Field: "id", Message: "product id required"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.products[p.ID]; exists {
		return &loan.ConflictError{Reason: "product id already registered: " + string(p.ID)}
	}
	c.products[p.ID] = p
	return nil
}

func (c *Catalogue) Get(id loan.ProductID) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, &loan.ValidationError{Field: "productId", Message: "unknown product: " + string(id)}
	}
	return p, nil
}

func (c *Catalogue) List() []*Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	return out
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ProductJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`

	Schedule   ScheduleJSON    `json:"schedule"`
	Allocation *AllocationJSON `json:"allocation,omitempty"`

	DownPaymentPercent string              `json:"down_payment_percent,omitempty"`
	AllowOverpayment   bool                `json:"allow_overpayment,omitempty"`
	OverduePenalty     *OverduePenaltyJSON `json:"overdue_penalty,omitempty"`
	DelinquencyDetail  bool                `json:"delinquency_detail,omitempty"`

	DelinquencyRanges []DelinquencyRangeJSON `json:"delinquency_ranges,omitempty"`
	Charges           []ChargeJSON           `json:"charges,omitempty"`

	MinPrincipal string `json:"min_principal,omitempty"`
	MaxPrincipal string `json:"max_principal,omitempty"`
}

type ScheduleJSON struct {
	Amortization        string `json:"amortization"` // EQUAL_INSTALLMENTS, EQUAL_PRINCIPAL
	Interest            string `json:"interest"`     // DECLINING_BALANCE, FLAT
	AnnualRatePercent   string `json:"annual_rate_percent"`
	Periods             int    `json:"periods"`
	Frequency           string `json:"frequency"` // daily, weekly, monthly
	InstallmentMultiple string `json:"installment_multiple,omitempty"`
}

type AllocationJSON struct {
	Default RuleJSON            `json:"default"`
	ByType  map[string]RuleJSON `json:"by_type,omitempty"`
}

// RuleJSON encodes steps as "DUE_STATE:BUCKET" strings, the compact form
// operations people actually edit.
type RuleJSON struct {
	Steps      []string `json:"steps"`
	FutureRule string   `json:"future_rule,omitempty"`
}

type OverduePenaltyJSON struct {
	Name        string `json:"name,omitempty"`
	Calculation string `json:"calculation"` // FLAT, PERCENT_OF_PRINCIPAL
	Amount      string `json:"amount,omitempty"`
	Rate        string `json:"rate,omitempty"`
	GraceDays   int    `json:"grace_days,omitempty"`
}

type DelinquencyRangeJSON struct {
	Classification string `json:"classification"`
	From           int    `json:"from"`
	To             int    `json:"to"` // 0 = open-ended
}

type ChargeJSON struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"` // FEE, PENALTY
	Calculation string `json:"calculation"`
	Amount      string `json:"amount,omitempty"`
	Rate        string `json:"rate,omitempty"`
	TimeType    string `json:"time_type"`
	DueDate     string `json:"due_date,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON products to Go structs.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// Parse parses a JSON string into a Product.
func (f *Factory) Parse(jsonStr string) (*Product, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse product JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProductJSON to a Product, filling defaults.
func (f *Factory) FromJSON(pj ProductJSON) (*Product, error) {
	if pj.ID == "" {
		return nil, &loan.ValidationError{Field: "id", Message: "product id required"}
	}
	if pj.Currency == "" {
		return nil, &loan.ValidationError{Field: "currency", Message: "currency required"}
	}

	schedule, err := parseSchedule(pj.Schedule)
	if err != nil {
		return nil, err
	}

	rules := loan.DefaultRuleSet()
	if pj.Allocation != nil {
		rules, err = parseRuleSet(*pj.Allocation)
		if err != nil {
			return nil, err
		}
	}

	delinquency := loan.DefaultDelinquencyBucket()
	if len(pj.DelinquencyRanges) > 0 {
		delinquency, err = parseDelinquencyBucket(pj.DelinquencyRanges)
		if err != nil {
			return nil, err
		}
	}

	p := &Product{
		ID:                loan.ProductID(pj.ID),
		Name:              pj.Name,
		Currency:          pj.Currency,
		Schedule:          schedule,
		Rules:             rules,
		Delinquency:       delinquency,
		AllowOverpayment:  pj.AllowOverpayment,
		DelinquencyDetail: pj.DelinquencyDetail,
	}

	if p.DownPaymentPercent, err = parseDecimal(pj.DownPaymentPercent, "down_payment_percent"); err != nil {
		return nil, err
	}
	if pj.OverduePenalty != nil {
		penalty, err := parseOverduePenalty(*pj.OverduePenalty, pj.Currency)
		if err != nil {
			return nil, err
		}
		p.OverduePenalty = penalty
	}
	for _, cj := range pj.Charges {
		charge, err := parseCharge(cj, pj.Currency)
		if err != nil {
			return nil, err
		}
		p.Charges = append(p.Charges, charge)
	}
	if p.MinPrincipal, err = parseMoney(pj.MinPrincipal, pj.Currency, "min_principal"); err != nil {
		return nil, err
	}
	if p.MaxPrincipal, err = parseMoney(pj.MaxPrincipal, pj.Currency, "max_principal"); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSchedule(sj ScheduleJSON) (loan.ScheduleConfig, error) {
	cfg := loan.ScheduleConfig{
		Periods: sj.Periods,
	}
	switch sj.Amortization {
	case "EQUAL_PRINCIPAL":
		cfg.Method = loan.EqualPrincipal
	default:
		cfg.Method = loan.EqualInstallments
	}
	switch sj.Interest {
	case "FLAT":
		cfg.Interest = loan.FlatInterest
	default:
		cfg.Interest = loan.DecliningBalance
	}
	switch sj.Frequency {
	case "daily":
		cfg.Frequency = loan.FrequencyDaily
	case "weekly":
		cfg.Frequency = loan.FrequencyWeekly
	default:
		cfg.Frequency = loan.FrequencyMonthly
	}

	var err error
	if cfg.AnnualRatePercent, err = parseDecimal(sj.AnnualRatePercent, "annual_rate_percent"); err != nil {
		return cfg, err
	}
	if cfg.InstallmentMultiple, err = parseDecimal(sj.InstallmentMultiple, "installment_multiple"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseRuleSet(aj AllocationJSON) (loan.AllocationRuleSet, error) {
	def, err := parseRule(aj.Default)
	if err != nil {
		return loan.AllocationRuleSet{}, err
	}
	rs := loan.AllocationRuleSet{Default: def}
	for typ, rj := range aj.ByType {
		rule, err := parseRule(rj)
		if err != nil {
			return rs, fmt.Errorf("rule for %s: %w", typ, err)
		}
		if rs.ByType == nil {
			rs.ByType = make(map[loan.TransactionType]loan.AllocationRule)
		}
		rs.ByType[loan.TransactionType(typ)] = rule
	}
	return rs, nil
}

func parseRule(rj RuleJSON) (loan.AllocationRule, error) {
	rule := loan.AllocationRule{FutureRule: parseFutureRule(rj.FutureRule)}
	for _, s := range rj.Steps {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return rule, &loan.ValidationError{Field: "steps", Message: fmt.Sprintf("step %q must be DUE_STATE:BUCKET", s)}
		}
		rule.Steps = append(rule.Steps, loan.AllocationStep{
			DueState: loan.DueState(parts[0]),
			Bucket:   loan.Bucket(parts[1]),
		})
	}
	return rule, nil
}

func parseFutureRule(s string) loan.FutureInstallmentRule {
	switch s {
	case "LAST_INSTALLMENT":
		return loan.FutureLastInstallment
	case "REAMORTIZATION":
		return loan.FutureReamortization
	default:
		return loan.FutureNextInstallment
	}
}

func parseOverduePenalty(oj OverduePenaltyJSON, currency string) (*loan.OverduePenaltyConfig, error) {
	cfg := &loan.OverduePenaltyConfig{
		Name:      oj.Name,
		GraceDays: oj.GraceDays,
	}
	if cfg.Name == "" {
		cfg.Name = "overdue penalty"
	}
	var err error
	if oj.Calculation == "PERCENT_OF_PRINCIPAL" {
		cfg.Calculation = loan.ChargePercentPrincipal
		if cfg.Rate, err = parseDecimal(oj.Rate, "overdue_penalty.rate"); err != nil {
			return nil, err
		}
	} else {
		cfg.Calculation = loan.ChargeFlat
		if cfg.Amount, err = parseMoney(oj.Amount, currency, "overdue_penalty.amount"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseDelinquencyBucket(rows []DelinquencyRangeJSON) (loan.DelinquencyBucket, error) {
	bucket := loan.DelinquencyBucket{}
	for _, r := range rows {
		bucket.Ranges = append(bucket.Ranges, loan.DelinquencyRange{
			Label:   r.Classification,
			MinDays: r.From,
			MaxDays: r.To,
		})
	}
	return bucket, nil
}

func parseCharge(cj ChargeJSON, currency string) (loan.Charge, error) {
	c := loan.Charge{
		Name:   cj.Name,
		Bucket: loan.Bucket(cj.Bucket),
	}
	switch cj.TimeType {
	case "SPECIFIED_DUE_DATE":
		c.TimeType = loan.ChargeSpecifiedDueDate
	case "OVERDUE":
		c.TimeType = loan.ChargeOverdue
	default:
		c.TimeType = loan.ChargeAtDisbursement
	}
	var err error
	if cj.Calculation == "PERCENT_OF_PRINCIPAL" {
		c.Calculation = loan.ChargePercentPrincipal
		if c.Rate, err = parseDecimal(cj.Rate, "charge.rate"); err != nil {
			return c, err
		}
	} else {
		c.Calculation = loan.ChargeFlat
		if c.Amount, err = parseMoney(cj.Amount, currency, "charge.amount"); err != nil {
			return c, err
		}
	}
	if cj.DueDate != "" {
		if c.DueDate, err = loan.ParseDate(cj.DueDate); err != nil {
			return c, &loan.ValidationError{Field: "charge.due_date", Message: err.Error()}
		}
	}
	return c, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &loan.ValidationError{Field: field, Message: "invalid decimal: " + s}
	}
	return d, nil
}

func parseMoney(s, currency, field string) (Money, error) {
	if s == "" {
		return loan.ZeroMoney(currency), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return loan.ZeroMoney(currency), &loan.ValidationError{Field: field, Message: "invalid amount: " + s}
	}
	return loan.NewMoney(d, currency), nil
}
