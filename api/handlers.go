/*
handlers.go - HTTP API handlers for the loan servicing engine

PURPOSE:
  Exposes the servicing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Products:
    GET    /api/products                      List products
    POST   /api/products                      Register product from JSON
    GET    /api/products/{id}                 Get product

  Loans:
    POST   /api/loans                         Open account
    GET    /api/loans/{id}                    Full aggregate view
    GET    /api/loans/{id}/transactions       Ledger view
    GET    /api/loans/{id}/schedule           Installment view
    GET    /api/loans/{id}/delinquency        Classification as of business date
    POST   /api/loans/{id}/approve|reject
    POST   /api/loans/{id}/disbursements
    POST   /api/loans/{id}/repayments         (?type= for refund variants)
    POST   /api/loans/{id}/charges
    POST   /api/loans/{id}/charges/{chargeId}/waive
    POST   /api/loans/{id}/waive-interest
    POST   /api/loans/{id}/chargebacks
    POST   /api/loans/{id}/refunds            Credit balance refund
    POST   /api/loans/{id}/write-off
    POST   /api/loans/{id}/charge-off
    POST   /api/loans/{id}/transactions/{txId}/reverse
    POST   /api/loans/{id}/delinquency/pause
    POST   /api/loans/{id}/delinquency/resume
    POST   /api/loans/{id}/fraud

  Admin:
    GET    /api/admin/business-date
    POST   /api/admin/business-date           Set calendar explicitly
    POST   /api/admin/cob                     Advance one day + run batch
    POST   /api/admin/cob/rerun               Re-run current date
    GET    /api/admin/journal                 GL postings (?loan_id=)

IDEMPOTENCY:
  Mutations honor the Idempotency-Key header: the first outcome, success
  or domain error, is replayed verbatim for retries of the same key.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: validation errors, invalid input
  - 404: loan / transaction / charge not found
  - 409: conflicts (duplicate external id, overlapping pause, stale save)
  - 422: operation not allowed in the loan's current state
  - 500: replay inconsistencies and other internal errors

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/accounting"
	"github.com/warp/loan-engine/cob"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/product"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *loan.Service
	Catalogue *product.Catalogue
	Factory   *product.Factory
	Calendar  *loan.BusinessCalendar
	COB       *cob.Scheduler
	Journal   *accounting.Journal
	Log       *logrus.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *loan.Service, catalogue *product.Catalogue, calendar *loan.BusinessCalendar) *Handler {
	return &Handler{
		Service:   svc,
		Catalogue: catalogue,
		Factory:   product.NewFactory(),
		Calendar:  calendar,
		Log:       logrus.New(),
	}
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

// ListProducts returns all registered products.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.Catalogue.List()
	out := make([]map[string]any, 0, len(products))
	for _, p := range products {
		out = append(out, map[string]any{
			"id":       string(p.ID),
			"name":     p.Name,
			"currency": p.Currency,
			"periods":  p.Schedule.Periods,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateProduct registers a product from its JSON definition.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var pj product.ProductJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	p, err := h.Factory.FromJSON(pj)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Catalogue.Register(p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(p.ID)})
}

// GetProduct returns one product's core configuration.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalogue.Get(loan.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusNotFound, "product not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                 string(p.ID),
		"name":               p.Name,
		"currency":           p.Currency,
		"periods":            p.Schedule.Periods,
		"annual_rate":        p.Schedule.AnnualRatePercent.String(),
		"allow_overpayment":  p.AllowOverpayment,
		"down_payment":       p.DownPaymentPercent.String(),
	})
}

// =============================================================================
// LOAN LIFECYCLE
// =============================================================================

// CreateLoan opens an account under a product.
// POST /api/loans
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	p, err := h.Catalogue.Get(loan.ProductID(req.ProductID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	principal, err := parseAmount(req.Principal, p.Currency, "principal")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := p.ValidatePrincipal(principal); err != nil {
		h.writeDomainError(w, err)
		return
	}

	id := loan.LoanID(req.ID)
	if id == "" {
		id = loan.NewLoanID()
	}
	cfg := p.AccountConfig(id, principal, h.Calendar.BusinessDate())

	result, err := h.Service.Create(r.Context(), cfg)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommandResponse(result))
}

// GetLoan returns the full aggregate view.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.Get(r.Context(), loan.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(acct, true))
}

// GetTransactions returns the ledger in processing order.
// GET /api/loans/{id}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.Get(r.Context(), loan.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(acct.Transactions))
	for i := range acct.Transactions {
		dtos = append(dtos, toTransactionDTO(&acct.Transactions[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns the installment rows.
// GET /api/loans/{id}/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.Get(r.Context(), loan.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]InstallmentDTO, 0, len(acct.Installments))
	for i := range acct.Installments {
		dtos = append(dtos, toInstallmentDTO(&acct.Installments[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDelinquency classifies the loan as of the current business date.
// Read-only: the stored state is not updated (the COB owns that).
// GET /api/loans/{id}/delinquency
func (h *Handler) GetDelinquency(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.Get(r.Context(), loan.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	state := acct.ClassifyDelinquency(h.Calendar.BusinessDate(), acct.DelinquencyDetail)
	writeJSON(w, http.StatusOK, toDelinquencyDTO(state))
}

// ApproveLoan approves a pending application.
// POST /api/loans/{id}/approve
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.Approve(r.Context(), id, key)
	})
}

// RejectLoan rejects a pending application.
// POST /api/loans/{id}/reject
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.Reject(r.Context(), id, key)
	})
}

// =============================================================================
// FINANCIAL TRANSACTIONS
// =============================================================================

// Disburse pays out a tranche.
// POST /api/loans/{id}/disbursements
func (h *Handler) Disburse(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	h.moneyCommand(w, r, req, func(id loan.LoanID, key string, on loan.Date, amount loan.Money) (loan.CommandResult, error) {
		return h.Service.Disburse(r.Context(), id, key, on, amount, req.ExternalID)
	})
}

// Repay records a cash credit. The optional ?type= query selects the
// variant: REPAYMENT (default), DOWN_PAYMENT, MERCHANT_REFUND,
// PAYOUT_REFUND, GOODWILL_CREDIT.
// POST /api/loans/{id}/repayments
func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	typ := loan.TxRepayment
	if q := r.URL.Query().Get("type"); q != "" {
		typ = loan.TransactionType(q)
	}
	h.moneyCommand(w, r, req, func(id loan.LoanID, key string, on loan.Date, amount loan.Money) (loan.CommandResult, error) {
		return h.Service.Repay(r.Context(), id, key, typ, on, amount, req.ExternalID)
	})
}

// AddCharge applies a fee or penalty.
// POST /api/loans/{id}/charges
func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	var req AddChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	id := loan.LoanID(chi.URLParam(r, "id"))

	acct, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	charge, err := chargeFromRequest(req, acct.Currency)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.Service.AddCharge(r.Context(), id, idempotencyKey(r), charge)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommandResponse(result))
}

// WaiveCharge forgives a charge's outstanding amount.
// POST /api/loans/{id}/charges/{chargeId}/waive
func (h *Handler) WaiveCharge(w http.ResponseWriter, r *http.Request) {
	chargeID := loan.ChargeID(chi.URLParam(r, "chargeId"))
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.WaiveCharge(r.Context(), id, key, chargeID)
	})
}

// WaiveInterest forgives outstanding interest.
// POST /api/loans/{id}/waive-interest
func (h *Handler) WaiveInterest(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	id := loan.LoanID(chi.URLParam(r, "id"))
	amount, err := h.parseLoanAmount(r, id, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	result, err := h.Service.WaiveInterest(r.Context(), id, idempotencyKey(r), amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandResponse(result))
}

// Chargeback disputes a prior repayment.
// POST /api/loans/{id}/chargebacks
func (h *Handler) Chargeback(w http.ResponseWriter, r *http.Request) {
	var req ChargebackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	id := loan.LoanID(chi.URLParam(r, "id"))
	amount, err := h.parseLoanAmount(r, id, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	result, err := h.Service.Chargeback(r.Context(), id, idempotencyKey(r),
		loan.TransactionID(req.TransactionID), amount, req.ExternalID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandResponse(result))
}

// CreditBalanceRefund pays surplus credit back to the client.
// POST /api/loans/{id}/refunds
func (h *Handler) CreditBalanceRefund(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	id := loan.LoanID(chi.URLParam(r, "id"))
	amount, err := h.parseLoanAmount(r, id, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	result, err := h.Service.CreditBalanceRefund(r.Context(), id, idempotencyKey(r), amount, req.ExternalID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandResponse(result))
}

// WriteOff forgives the remaining balance and closes the loan.
// POST /api/loans/{id}/write-off
func (h *Handler) WriteOff(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.WriteOff(r.Context(), id, key)
	})
}

// ChargeOff reclassifies the loan as a loss while keeping it serviceable.
// POST /api/loans/{id}/charge-off
func (h *Handler) ChargeOff(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.ChargeOff(r.Context(), id, key)
	})
}

// ReverseTransaction undoes a ledger entry and replays the account.
// POST /api/loans/{id}/transactions/{txId}/reverse
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	txID := loan.TransactionID(chi.URLParam(r, "txId"))
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.Reverse(r.Context(), id, key, txID)
	})
}

// =============================================================================
// DELINQUENCY AND FLAGS
// =============================================================================

// PauseDelinquency opens a pause window.
// POST /api/loans/{id}/delinquency/pause
func (h *Handler) PauseDelinquency(w http.ResponseWriter, r *http.Request) {
	var req PauseDelinquencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	start, err := parseDate(req.Start, "start")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	end, err := parseDate(req.End, "end")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.PauseDelinquency(r.Context(), id, key, req.ActionID, start, end)
	})
}

// ResumeDelinquency ends the active pause early.
// POST /api/loans/{id}/delinquency/resume
func (h *Handler) ResumeDelinquency(w http.ResponseWriter, r *http.Request) {
	var req ResumeDelinquencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.ResumeDelinquency(r.Context(), id, key, req.ActionID)
	})
}

// MarkFraud toggles the fraud flag without touching servicing.
// POST /api/loans/{id}/fraud
func (h *Handler) MarkFraud(w http.ResponseWriter, r *http.Request) {
	var req FraudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	h.command(w, r, func(id loan.LoanID, key string) (loan.CommandResult, error) {
		return h.Service.MarkFraud(r.Context(), id, key, req.Fraud)
	})
}

// =============================================================================
// ADMIN
// =============================================================================

// GetBusinessDate returns the calendar's current date.
// GET /api/admin/business-date
func (h *Handler) GetBusinessDate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"business_date": h.Calendar.BusinessDate().String()})
}

// SetBusinessDate moves the calendar. Operator tool: no COB runs.
// POST /api/admin/business-date
func (h *Handler) SetBusinessDate(w http.ResponseWriter, r *http.Request) {
	var req SetBusinessDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	d, err := parseDate(req.Date, "date")
	if err != nil || d.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}
	h.Calendar.Set(d)
	writeJSON(w, http.StatusOK, map[string]string{"business_date": d.String()})
}

// RunCOB advances the business date one day and runs the batch.
// POST /api/admin/cob
func (h *Handler) RunCOB(w http.ResponseWriter, r *http.Request) {
	if h.COB == nil {
		writeError(w, http.StatusServiceUnavailable, "cob scheduler not configured", nil)
		return
	}
	result, err := h.COB.Advance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cob run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RerunCOB re-runs the batch for the current business date.
// POST /api/admin/cob/rerun
func (h *Handler) RerunCOB(w http.ResponseWriter, r *http.Request) {
	if h.COB == nil {
		writeError(w, http.StatusServiceUnavailable, "cob scheduler not configured", nil)
		return
	}
	result, err := h.COB.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cob run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetJournal returns GL postings, optionally filtered by loan.
// GET /api/admin/journal?loan_id=
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if h.Journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured", nil)
		return
	}
	if id := r.URL.Query().Get("loan_id"); id != "" {
		writeJSON(w, http.StatusOK, h.Journal.EntriesForLoan(loan.LoanID(id)))
		return
	}
	writeJSON(w, http.StatusOK, h.Journal.Entries())
}

// =============================================================================
// COMMAND PLUMBING
// =============================================================================

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

// command runs a body-less mutation and writes the outcome.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, fn func(loan.LoanID, string) (loan.CommandResult, error)) {
	id := loan.LoanID(chi.URLParam(r, "id"))
	result, err := fn(id, idempotencyKey(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommandResponse(result))
}

// moneyCommand parses the common amount+date body then delegates.
func (h *Handler) moneyCommand(w http.ResponseWriter, r *http.Request, req TransactionRequest,
	fn func(loan.LoanID, string, loan.Date, loan.Money) (loan.CommandResult, error)) {

	id := loan.LoanID(chi.URLParam(r, "id"))
	amount, err := h.parseLoanAmount(r, id, req.Amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	on, err := parseDate(req.Date, "date")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if on.IsZero() {
		on = h.Calendar.BusinessDate()
	}

	result, err := fn(id, idempotencyKey(r), on, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommandResponse(result))
}

// parseLoanAmount resolves the loan's currency before parsing, so amounts
// are never constructed in the wrong currency.
func (h *Handler) parseLoanAmount(r *http.Request, id loan.LoanID, raw string) (loan.Money, error) {
	acct, err := h.Service.Get(r.Context(), id)
	if err != nil {
		return loan.Money{}, err
	}
	return parseAmount(raw, acct.Currency, "amount")
}

func chargeFromRequest(req AddChargeRequest, currency string) (loan.Charge, error) {
	c := loan.Charge{
		Name:   req.Name,
		Bucket: loan.Bucket(req.Bucket),
	}
	switch req.TimeType {
	case "", "SPECIFIED_DUE_DATE":
		c.TimeType = loan.ChargeSpecifiedDueDate
	case "DISBURSEMENT":
		c.TimeType = loan.ChargeAtDisbursement
	case "OVERDUE":
		c.TimeType = loan.ChargeOverdue
	default:
		return c, &loan.ValidationError{Field: "time_type", Message: "unknown charge time type " + req.TimeType}
	}

	var err error
	if req.Calculation == "PERCENT_OF_PRINCIPAL" {
		c.Calculation = loan.ChargePercentPrincipal
		if c.Rate, err = decimalFromString(req.Rate, "rate"); err != nil {
			return c, err
		}
	} else {
		c.Calculation = loan.ChargeFlat
		if c.Amount, err = parseAmount(req.Amount, currency, "amount"); err != nil {
			return c, err
		}
	}
	if c.DueDate, err = parseDate(req.DueDate, "due_date"); err != nil {
		return c, err
	}
	return c, nil
}

func toCommandResponse(result loan.CommandResult) CommandResponse {
	resp := CommandResponse{Loan: snapshotDTO(result.Loan)}
	if result.Transaction != nil {
		dto := toTransactionDTO(result.Transaction)
		resp.Transaction = &dto
	}
	if result.Charge != nil {
		dto := toChargeDTO(result.Charge)
		resp.Charge = &dto
	}
	return resp
}

// snapshotDTO builds the summary view from the post-mutation snapshot.
func snapshotDTO(s loan.Snapshot) LoanDTO {
	return LoanDTO{
		ID:                   string(s.LoanID),
		Status:               string(s.Status),
		Currency:             s.OutstandingPrincipal.Currency,
		OutstandingPrincipal: amountString(s.OutstandingPrincipal),
		TotalOutstanding:     amountString(s.TotalOutstanding),
		OverpaidAmount:       amountString(s.OverpaidAmount),
		Version:              s.Version,
	}
}

// writeDomainError maps the engine's error taxonomy to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case loan.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case loan.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	case loan.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case loan.IsState(err):
		writeError(w, http.StatusUnprocessableEntity, "operation not allowed in current state", err)
	case loan.IsFatal(err):
		h.Log.WithError(err).Error("replay inconsistency")
		writeError(w, http.StatusInternalServerError, "internal inconsistency", err)
	default:
		h.Log.WithError(err).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
