package api_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/loan/store"
	"github.com/warp/loan-engine/product"
)

// ==== TEST SETUP =============================================================

func newTestServer(t *testing.T) (*httptest.Server, *loan.BusinessCalendar) {
	t.Helper()

	mem := store.NewMemory()
	calendar := loan.NewBusinessCalendar(loan.MustDate("2025-01-12"))
	svc := loan.NewService(mem, calendar)

	catalogue := product.NewCatalogue()
	if err := catalogue.Register(product.PersonalLoan("personal-12m", "Personal 12m", "USD", 0, 12)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h := api.NewHandler(svc, catalogue, calendar)
	h.Log.SetOutput(io.Discard)
	logrus.SetOutput(io.Discard)

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, calendar
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodPost, url, body, nil)
}

func decodeCommand(t *testing.T, raw []byte) api.CommandResponse {
	t.Helper()
	var out api.CommandResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode command response: %v\n%s", err, raw)
	}
	return out
}

func wantStatus(t *testing.T, resp *http.Response, raw []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d\n%s", resp.StatusCode, want, raw)
	}
}

// openLoan drives loan-1 through create/approve/disburse over HTTP.
func openLoan(t *testing.T, base string) {
	t.Helper()
	resp, raw := postJSON(t, base+"/api/loans",
		`{"id": "loan-1", "product_id": "personal-12m", "principal": "1200"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	resp, raw = postJSON(t, base+"/api/loans/loan-1/approve", "")
	wantStatus(t, resp, raw, http.StatusOK)
	resp, raw = postJSON(t, base+"/api/loans/loan-1/disbursements",
		`{"amount": "1200", "date": "2025-01-15", "external_id": "disb-1"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
}

// ==== LIFECYCLE ==============================================================

func TestAPI_LoanLifecycle(t *testing.T) {
	// Create -> approve -> disburse -> repay, asserting each response's
	// summary reflects the mutation.

	srv, _ := newTestServer(t)

	resp, raw := postJSON(t, srv.URL+"/api/loans",
		`{"id": "loan-1", "product_id": "personal-12m", "principal": "1200"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	created := decodeCommand(t, raw)
	if created.Loan.Status != string(loan.StatusPendingApproval) {
		t.Errorf("created status = %s, want PENDING_APPROVAL", created.Loan.Status)
	}

	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/approve", "")
	wantStatus(t, resp, raw, http.StatusOK)
	if got := decodeCommand(t, raw).Loan.Status; got != string(loan.StatusApproved) {
		t.Errorf("approved status = %s, want APPROVED", got)
	}

	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/disbursements",
		`{"amount": "1200", "date": "2025-01-15"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	disbursed := decodeCommand(t, raw)
	if disbursed.Loan.Status != string(loan.StatusActive) {
		t.Errorf("disbursed status = %s, want ACTIVE", disbursed.Loan.Status)
	}
	if disbursed.Transaction == nil || disbursed.Transaction.Type != string(loan.TxDisbursement) {
		t.Errorf("disbursement response transaction = %+v", disbursed.Transaction)
	}

	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/repayments",
		`{"amount": "100", "date": "2025-02-15"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	repaid := decodeCommand(t, raw)
	if repaid.Loan.TotalOutstanding != "1100.00" {
		t.Errorf("outstanding = %s, want 1100.00", repaid.Loan.TotalOutstanding)
	}
	if repaid.Transaction.Principal != "100.00" {
		t.Errorf("repayment principal = %s, want 100.00", repaid.Transaction.Principal)
	}
}

func TestAPI_Views(t *testing.T) {
	srv, _ := newTestServer(t)
	openLoan(t, srv.URL)

	resp, raw := do(t, http.MethodGet, srv.URL+"/api/loans/loan-1", "", nil)
	wantStatus(t, resp, raw, http.StatusOK)
	var dto api.LoanDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	if dto.ID != "loan-1" || dto.Status != string(loan.StatusActive) {
		t.Errorf("loan view = %s/%s, want loan-1/ACTIVE", dto.ID, dto.Status)
	}
	if len(dto.Installments) != 13 {
		t.Errorf("installments in view = %d, want 13 (disbursement row + 12)", len(dto.Installments))
	}

	resp, raw = do(t, http.MethodGet, srv.URL+"/api/loans/loan-1/schedule", "", nil)
	wantStatus(t, resp, raw, http.StatusOK)
	var rows []api.InstallmentDTO
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(rows) != 13 {
		t.Fatalf("schedule rows = %d, want 13", len(rows))
	}
	if rows[1].DueDate != "2025-02-15" || rows[1].PrincipalDue != "100.00" {
		t.Errorf("row 1 = %s / %s, want 2025-02-15 / 100.00", rows[1].DueDate, rows[1].PrincipalDue)
	}

	resp, raw = do(t, http.MethodGet, srv.URL+"/api/loans/loan-1/transactions", "", nil)
	wantStatus(t, resp, raw, http.StatusOK)
	var txs []api.TransactionDTO
	if err := json.Unmarshal(raw, &txs); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Type != string(loan.TxDisbursement) {
		t.Errorf("ledger view = %+v, want just the disbursement", txs)
	}
}

func TestAPI_Delinquency_ReadOnlyClassification(t *testing.T) {
	srv, calendar := newTestServer(t)
	openLoan(t, srv.URL)
	calendar.Set(loan.MustDate("2025-03-01"))

	resp, raw := do(t, http.MethodGet, srv.URL+"/api/loans/loan-1/delinquency", "", nil)
	wantStatus(t, resp, raw, http.StatusOK)
	var dto api.DelinquencyDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		t.Fatalf("decode delinquency: %v", err)
	}
	if dto.DelinquentDays != 14 || dto.DelinquentAmount != "100.00" {
		t.Errorf("delinquency = %d days / %s, want 14 / 100.00", dto.DelinquentDays, dto.DelinquentAmount)
	}
	if dto.Classification != "delinquent-2" {
		t.Errorf("classification = %q, want delinquent-2", dto.Classification)
	}
}

// ==== ERROR MAPPING ==========================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unknown loan: 404.
	resp, raw := do(t, http.MethodGet, srv.URL+"/api/loans/nope", "", nil)
	wantStatus(t, resp, raw, http.StatusNotFound)

	// Create and approve, but don't disburse.
	resp, raw = postJSON(t, srv.URL+"/api/loans",
		`{"id": "loan-1", "product_id": "personal-12m", "principal": "1200"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/approve", "")
	wantStatus(t, resp, raw, http.StatusOK)

	// Bad amount: 400.
	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/repayments", `{"amount": "lots"}`)
	wantStatus(t, resp, raw, http.StatusBadRequest)

	// Repayment before disbursement: 422.
	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/repayments",
		`{"amount": "100", "date": "2025-02-15"}`)
	wantStatus(t, resp, raw, http.StatusUnprocessableEntity)

	// Duplicate external id: 409.
	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/disbursements",
		`{"amount": "1200", "date": "2025-01-15", "external_id": "disb-1"}`)
	wantStatus(t, resp, raw, http.StatusCreated)
	resp, raw = postJSON(t, srv.URL+"/api/loans/loan-1/repayments",
		`{"amount": "100", "date": "2025-02-15", "external_id": "disb-1"}`)
	wantStatus(t, resp, raw, http.StatusConflict)

	// Unknown product: 400.
	resp, raw = postJSON(t, srv.URL+"/api/loans",
		`{"product_id": "ghost", "principal": "1200"}`)
	wantStatus(t, resp, raw, http.StatusBadRequest)
}

// ==== IDEMPOTENCY ============================================================

func TestAPI_IdempotencyKeyHeader_ReplaysTheOutcome(t *testing.T) {
	srv, _ := newTestServer(t)
	openLoan(t, srv.URL)

	headers := map[string]string{"Idempotency-Key": "pay-once"}
	body := `{"amount": "100", "date": "2025-02-15"}`

	resp, raw := do(t, http.MethodPost, srv.URL+"/api/loans/loan-1/repayments", body, headers)
	wantStatus(t, resp, raw, http.StatusCreated)
	first := decodeCommand(t, raw)

	resp, raw = do(t, http.MethodPost, srv.URL+"/api/loans/loan-1/repayments", body, headers)
	wantStatus(t, resp, raw, http.StatusCreated)
	second := decodeCommand(t, raw)

	if first.Transaction.ID != second.Transaction.ID {
		t.Errorf("retry created a new transaction %s, want replay of %s",
			second.Transaction.ID, first.Transaction.ID)
	}

	_, raw = do(t, http.MethodGet, srv.URL+"/api/loans/loan-1/transactions", "", nil)
	var txs []api.TransactionDTO
	if err := json.Unmarshal(raw, &txs); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("ledger rows = %d, want 2 (disbursement + one repayment)", len(txs))
	}
}

// ==== ADMIN ==================================================================

func TestAPI_BusinessDate_GetAndSet(t *testing.T) {
	srv, calendar := newTestServer(t)

	resp, raw := do(t, http.MethodGet, srv.URL+"/api/admin/business-date", "", nil)
	wantStatus(t, resp, raw, http.StatusOK)
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["business_date"] != "2025-01-12" {
		t.Errorf("business date = %s, want 2025-01-12", got["business_date"])
	}

	resp, raw = postJSON(t, srv.URL+"/api/admin/business-date", `{"date": "2025-02-01"}`)
	wantStatus(t, resp, raw, http.StatusOK)
	if !calendar.BusinessDate().Equal(loan.MustDate("2025-02-01")) {
		t.Errorf("calendar = %s, want 2025-02-01", calendar.BusinessDate())
	}

	resp, raw = postJSON(t, srv.URL+"/api/admin/business-date", `{"date": "soon"}`)
	wantStatus(t, resp, raw, http.StatusBadRequest)
}

func TestAPI_COBUnconfigured_Returns503(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, raw := postJSON(t, srv.URL+"/api/admin/cob", "")
	wantStatus(t, resp, raw, http.StatusServiceUnavailable)
}
