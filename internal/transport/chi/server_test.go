package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/extract"
	healthuc "github.com/kailas-cloud/transferguard/internal/usecase/health"
	"github.com/kailas-cloud/transferguard/internal/usecase/ingestion"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
)

// --- Mocks ---

type mockDocuments struct {
	registerFn      func(ctx context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error)
	ingestFn        func(ctx context.Context, id, filePath string, docType domdoc.Type) (int, error)
	deleteVectorsFn func(ctx context.Context, id string) (int, error)
	deleteFn        func(ctx context.Context, id string) error
	statsFn         func(ctx context.Context) (ingestion.Stats, error)
	searchFn        func(ctx context.Context, query string, topK int, docType domdoc.Type) ([]ingestion.Result, error)
}

func (m *mockDocuments) Register(ctx context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error) {
	return m.registerFn(ctx, id, location, docType)
}

func (m *mockDocuments) IngestDocument(ctx context.Context, id, filePath string, docType domdoc.Type) (int, error) {
	return m.ingestFn(ctx, id, filePath, docType)
}

func (m *mockDocuments) DeleteDocumentVectors(ctx context.Context, id string) (int, error) {
	return m.deleteVectorsFn(ctx, id)
}

func (m *mockDocuments) DeleteDocument(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockDocuments) Stats(ctx context.Context) (ingestion.Stats, error) {
	return m.statsFn(ctx)
}

func (m *mockDocuments) Search(
	ctx context.Context, query string, topK int, docType domdoc.Type,
) ([]ingestion.Result, error) {
	return m.searchFn(ctx, query, topK, docType)
}

type mockTransfers struct {
	executeFn func(ctx context.Context, sender, beneficiaryID string, amount decimal.Decimal) (transaction.Transaction, error)
}

func (m *mockTransfers) ValidateAndExecute(
	ctx context.Context, sender, beneficiaryID string, amount decimal.Decimal,
) (transaction.Transaction, error) {
	return m.executeFn(ctx, sender, beneficiaryID, amount)
}

type mockTransactions struct {
	getFn             func(ctx context.Context, id string) (transaction.Transaction, error)
	listFn            func(ctx context.Context, accountID string, limit int) ([]transaction.Transaction, error)
	listBeneficiaryFn func(ctx context.Context, owner string) ([]account.Beneficiary, error)
}

func (m *mockTransactions) GetTransaction(ctx context.Context, id string) (transaction.Transaction, error) {
	return m.getFn(ctx, id)
}

func (m *mockTransactions) ListTransactions(
	ctx context.Context, accountID string, limit int,
) ([]transaction.Transaction, error) {
	return m.listFn(ctx, accountID, limit)
}

func (m *mockTransactions) ListBeneficiaries(ctx context.Context, owner string) ([]account.Beneficiary, error) {
	return m.listBeneficiaryFn(ctx, owner)
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- Helpers ---

type fixture struct {
	docs   *mockDocuments
	xfers  *mockTransfers
	txns   *mockTransactions
	health *mockHealth
	router http.Handler
}

func newFixture(apiKeys ...string) *fixture {
	f := &fixture{
		docs:   &mockDocuments{},
		xfers:  &mockTransfers{},
		txns:   &mockTransactions{},
		health: &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}},
	}
	f.router = NewRouter(NewServer(f.docs, f.xfers, f.txns, f.health, nil), apiKeys)
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func asAccount(id string) map[string]string {
	return map[string]string{AccountIDHeader: id}
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v (raw %q)", err, rr.Body.String())
	}
	return v
}

func pendingTxn(t *testing.T, sender string, amount int64) transaction.Transaction {
	t.Helper()
	txn, err := transaction.NewPending(sender, "b-1", "", decimal.NewFromInt(amount), "BHD", time.Now())
	if err != nil {
		t.Fatalf("new pending: %v", err)
	}
	return txn
}

func finalized(t *testing.T, txn transaction.Transaction, st transaction.Status, reason transaction.Reason) transaction.Transaction {
	t.Helper()
	out, err := txn.Finalize(st, reason, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return out
}

// --- Documents ---

func TestIngestDocument_Success(t *testing.T) {
	f := newFixture()
	var gotType domdoc.Type
	f.docs.ingestFn = func(_ context.Context, id, path string, docType domdoc.Type) (int, error) {
		if id != "policy-1" || path != "/data/policy.pdf" {
			t.Errorf("unexpected args %q %q", id, path)
		}
		gotType = docType
		return 4, nil
	}

	rr := f.do(http.MethodPost, "/documents/policy-1/ingest",
		`{"file_path":"/data/policy.pdf","document_type":"compliance_rules"}`, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if gotType != domdoc.TypeRules {
		t.Errorf("type alias not normalized: %q", gotType)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["chunks_indexed"].(float64) != 4 || body["document_id"] != "policy-1" {
		t.Errorf("body: %v", body)
	}
}

func TestIngestDocument_Validation(t *testing.T) {
	f := newFixture()
	f.docs.ingestFn = func(context.Context, string, string, domdoc.Type) (int, error) {
		t.Fatal("service must not be called")
		return 0, nil
	}

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing path", `{"document_type":"rules"}`},
		{"unknown type", `{"file_path":"a.txt","document_type":"memo"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/documents/d1/ingest", tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400", rr.Code)
			}
		})
	}
}

func TestIngestDocument_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   ErrorCode
	}{
		{domain.ErrUnsupportedFormat, http.StatusUnprocessableEntity, CodeUnsupportedFormat},
		{domain.ErrEmptyDocument, http.StatusUnprocessableEntity, CodeEmptyDocument},
		{domain.ErrVectorDimMismatch, http.StatusUnprocessableEntity, CodeVectorDimMismatch},
		{domain.ErrIngestionInProgress, http.StatusConflict, CodeIngestionInProgress},
		{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider},
		{domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			f := newFixture()
			f.docs.ingestFn = func(context.Context, string, string, domdoc.Type) (int, error) {
				return 0, fmt.Errorf("ingest d1: %w", tt.err)
			}
			rr := f.do(http.MethodPost, "/documents/d1/ingest", `{"file_path":"a.txt","document_type":"rules"}`, nil)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != tt.code {
				t.Errorf("code: got %s, want %s", resp.Code, tt.code)
			}
			if strings.Contains(resp.Message, "d1") || strings.Contains(resp.Message, "fire") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
		})
	}
}

func TestRegisterDocument(t *testing.T) {
	f := newFixture()
	f.docs.registerFn = func(_ context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error) {
		return domdoc.New(id, location, docType, time.Now())
	}

	rr := f.do(http.MethodPut, "/documents/s1", `{"location":"/data/s.txt","document_type":"sanctions"}`, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	got := decodeBody[documentResponse](t, rr)
	if got.ID != "s1" || got.DocumentType != "sanctions" || got.Status != string(domdoc.StatusUploaded) {
		t.Errorf("response: %+v", got)
	}
	if got.ProcessedAt != nil {
		t.Error("processed_at must be omitted before processing")
	}
}

func TestRegisterDocument_UnsupportedFormat(t *testing.T) {
	f := newFixture()
	registered := 0
	f.docs.registerFn = func(_ context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error) {
		registered++
		return domdoc.New(id, location, docType, time.Now())
	}
	f.router = NewRouter(NewServer(f.docs, f.xfers, f.txns, f.health, nil, WithFormatChecker(extract.New())), nil)

	rr := f.do(http.MethodPut, "/documents/scan", `{"location":"/data/scan.png","document_type":"other"}`, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeUnsupportedFormat {
		t.Errorf("code: %s", resp.Code)
	}
	if registered != 0 {
		t.Error("unsupported location must not be registered")
	}

	rr = f.do(http.MethodPut, "/documents/policy", `{"location":"/data/policy.PDF","document_type":"rules"}`, nil)
	if rr.Code != http.StatusOK || registered != 1 {
		t.Errorf("supported location: status %d, registered %d", rr.Code, registered)
	}
}

func TestDeleteDocumentVectors(t *testing.T) {
	f := newFixture()
	f.docs.deleteVectorsFn = func(context.Context, string) (int, error) { return 3, nil }

	rr := f.do(http.MethodDelete, "/documents/d1/vectors", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["deleted_vectors"].(float64) != 3 {
		t.Errorf("body: %v", body)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	f := newFixture()
	f.docs.deleteFn = func(context.Context, string) error { return domain.ErrDocumentNotFound }

	rr := f.do(http.MethodDelete, "/documents/ghost", "", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeDocumentNotFound {
		t.Errorf("code: %s", resp.Code)
	}
}

func TestDeleteDocument_NoContent(t *testing.T) {
	f := newFixture()
	f.docs.deleteFn = func(context.Context, string) error { return nil }

	if rr := f.do(http.MethodDelete, "/documents/d1", "", nil); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
}

func TestDocumentStats(t *testing.T) {
	f := newFixture()
	f.docs.statsFn = func(context.Context) (ingestion.Stats, error) {
		return ingestion.Stats{
			TotalDocuments: 2,
			TotalChunks:    5,
			ByDocumentType: map[string]int{"rules": 1, "sanctions": 1, "other": 0},
			IndexEntries:   5,
			Dimension:      384,
		}, nil
	}

	rr := f.do(http.MethodGet, "/documents/stats", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["total_chunks"].(float64) != 5 || body["dimension"].(float64) != 384 {
		t.Errorf("body: %v", body)
	}
	byType := body["by_document_type"].(map[string]any)
	if byType["other"].(float64) != 0 {
		t.Errorf("by type: %v", byType)
	}
}

func TestSearchDocuments(t *testing.T) {
	f := newFixture()
	f.docs.searchFn = func(_ context.Context, q string, k int, docType domdoc.Type) ([]ingestion.Result, error) {
		if q != "daily limit" || k != 2 || docType != domdoc.TypeRules {
			t.Errorf("args: %q %d %q", q, k, docType)
		}
		return []ingestion.Result{{ChunkID: "c1", DocumentID: "d1", Score: 0.9, Text: "Daily limit is 1000 BHD."}}, nil
	}

	rr := f.do(http.MethodGet, "/documents/search?q=daily+limit&k=2&type=rules", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	body := decodeBody[struct {
		Items []searchItem `json:"items"`
		Total int          `json:"total"`
	}](t, rr)
	if body.Total != 1 || body.Items[0].ChunkID != "c1" {
		t.Errorf("body: %+v", body)
	}
}

func TestSearchDocuments_Validation(t *testing.T) {
	f := newFixture()
	for _, path := range []string{
		"/documents/search",
		"/documents/search?q=x&k=0",
		"/documents/search?q=x&k=abc",
		"/documents/search?q=x&k=51",
		"/documents/search?q=x&type=memo",
	} {
		if rr := f.do(http.MethodGet, path, "", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

// --- Transfers ---

func TestCreateTransfer_Completed(t *testing.T) {
	f := newFixture()
	f.xfers.executeFn = func(_ context.Context, sender, ben string, amount decimal.Decimal) (transaction.Transaction, error) {
		if sender != "alice" || ben != "b-1" || !amount.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("args: %s %s %s", sender, ben, amount)
		}
		return finalized(t, pendingTxn(t, sender, 12), transaction.StatusCompleted, transaction.ReasonNone), nil
	}

	rr := f.do(http.MethodPost, "/transfers", `{"beneficiary_id":"b-1","amount":"12.5"}`, asAccount("alice"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	got := decodeBody[transactionResponse](t, rr)
	if got.Status != "COMPLETED" || got.CompletedAt == nil {
		t.Errorf("response: %+v", got)
	}
	if loc := rr.Header().Get("Location"); loc != "/transactions/"+got.ID {
		t.Errorf("location: %q", loc)
	}
}

func TestCreateTransfer_NumericAmount(t *testing.T) {
	f := newFixture()
	f.xfers.executeFn = func(_ context.Context, sender, _ string, amount decimal.Decimal) (transaction.Transaction, error) {
		if !amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("amount: %s", amount)
		}
		return finalized(t, pendingTxn(t, sender, 100), transaction.StatusCompleted, transaction.ReasonNone), nil
	}

	if rr := f.do(http.MethodPost, "/transfers", `{"beneficiary_id":"b-1","amount":100}`, asAccount("alice")); rr.Code != http.StatusCreated {
		t.Errorf("status: got %d", rr.Code)
	}
}

func TestCreateTransfer_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		status    transaction.Status
		reason    transaction.Reason
		httpCode  int
		code      ErrorCode
		retryable bool
	}{
		{"blocked", transaction.StatusBlocked, transaction.ReasonDailyLimitExceeded,
			http.StatusUnprocessableEntity, CodeTransferBlocked, false},
		{"failed", transaction.StatusFailed, transaction.ReasonInternalError,
			http.StatusServiceUnavailable, CodeTransferFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.xfers.executeFn = func(_ context.Context, sender, _ string, _ decimal.Decimal) (transaction.Transaction, error) {
				txn := finalized(t, pendingTxn(t, sender, 700), tt.status, tt.reason)
				return txn, &transfer.OutcomeError{Status: tt.status, Reason: tt.reason, Err: errors.New("cause"), Transaction: txn}
			}

			rr := f.do(http.MethodPost, "/transfers", `{"beneficiary_id":"b-1","amount":"700"}`, asAccount("alice"))

			if rr.Code != tt.httpCode {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.httpCode)
			}
			got := decodeBody[transferErrorResponse](t, rr)
			if got.Code != tt.code || got.Message != string(tt.reason) || got.Retryable != tt.retryable {
				t.Errorf("response: %+v", got)
			}
			if got.Transaction.Status != string(tt.status) || got.Transaction.ID == "" {
				t.Errorf("transaction: %+v", got.Transaction)
			}
		})
	}
}

func TestCreateTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		err     error
		status  int
	}{
		{"missing principal", `{"beneficiary_id":"b-1","amount":"1"}`, nil, nil, http.StatusUnauthorized},
		{"malformed", `{"amount":`, asAccount("alice"), nil, http.StatusBadRequest},
		{"missing beneficiary", `{"amount":"1"}`, asAccount("alice"), nil, http.StatusBadRequest},
		{"invalid amount", `{"beneficiary_id":"b-1","amount":"-1"}`, asAccount("alice"), domain.ErrInvalidAmount, http.StatusBadRequest},
		{"foreign beneficiary", `{"beneficiary_id":"b-9","amount":"1"}`, asAccount("alice"), domain.ErrBeneficiaryNotFound, http.StatusNotFound},
		{"unknown account", `{"beneficiary_id":"b-1","amount":"1"}`, asAccount("ghost"), domain.ErrAccountNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			called := false
			f.xfers.executeFn = func(context.Context, string, string, decimal.Decimal) (transaction.Transaction, error) {
				called = true
				return transaction.Transaction{}, tt.err
			}

			rr := f.do(http.MethodPost, "/transfers", tt.body, tt.headers)

			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if tt.err == nil && called {
				t.Error("service must not be called")
			}
		})
	}
}

// --- Transactions ---

func TestGetTransaction_OwnerOnly(t *testing.T) {
	f := newFixture()
	txn := finalized(t, pendingTxn(t, "alice", 10), transaction.StatusBlocked, transaction.ReasonSanctionsMatch)
	f.txns.getFn = func(_ context.Context, id string) (transaction.Transaction, error) {
		if id != txn.ID() {
			return transaction.Transaction{}, domain.ErrNotFound
		}
		return txn, nil
	}

	rr := f.do(http.MethodGet, "/transactions/"+txn.ID(), "", asAccount("alice"))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: got %d", rr.Code)
	}
	if got := decodeBody[transactionResponse](t, rr); got.Reason != "sanctions_match" {
		t.Errorf("reason: %q", got.Reason)
	}

	if rr := f.do(http.MethodGet, "/transactions/"+txn.ID(), "", asAccount("mallory")); rr.Code != http.StatusNotFound {
		t.Errorf("other account: got %d, want 404", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/transactions/"+txn.ID(), "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("anonymous: got %d, want 404", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/transactions/missing", "", asAccount("alice")); rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want 404", rr.Code)
	}
}

func TestListTransactions(t *testing.T) {
	f := newFixture()
	var gotLimit int
	f.txns.listFn = func(_ context.Context, accountID string, limit int) ([]transaction.Transaction, error) {
		if accountID != "alice" {
			t.Errorf("account: %q", accountID)
		}
		gotLimit = limit
		return []transaction.Transaction{pendingTxn(t, "alice", 5), pendingTxn(t, "alice", 6)}, nil
	}

	rr := f.do(http.MethodGet, "/transactions?limit=2", "", asAccount("alice"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if gotLimit != 2 {
		t.Errorf("limit: got %d, want 2", gotLimit)
	}
	body := decodeBody[struct {
		Items []transactionResponse `json:"items"`
	}](t, rr)
	if len(body.Items) != 2 || body.Items[0].Status != "PENDING" {
		t.Errorf("items: %+v", body.Items)
	}

	if rr := f.do(http.MethodGet, "/transactions?limit=500", "", asAccount("alice")); rr.Code != http.StatusBadRequest {
		t.Errorf("oversized limit: got %d, want 400", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/transactions", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got %d, want 401", rr.Code)
	}
}

func TestListBeneficiaries(t *testing.T) {
	f := newFixture()
	f.txns.listBeneficiaryFn = func(_ context.Context, owner string) ([]account.Beneficiary, error) {
		b, err := account.NewBeneficiary("b-1", owner, "Acme Trading", "Bahrain", "NBB", "BH00", "")
		if err != nil {
			t.Fatalf("new beneficiary: %v", err)
		}
		return []account.Beneficiary{b}, nil
	}

	rr := f.do(http.MethodGet, "/beneficiaries", "", asAccount("alice"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	body := decodeBody[struct {
		Items []beneficiaryResponse `json:"items"`
	}](t, rr)
	if len(body.Items) != 1 || body.Items[0].Name != "Acme Trading" || !body.Items[0].Active {
		t.Errorf("items: %+v", body.Items)
	}
}

// --- Health & router ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture("secret")
			f.health.report = healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{healthuc.ComponentLedger: healthuc.CheckOK},
			}

			rr := f.do(http.MethodGet, "/health", "", nil)

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			body := decodeBody[map[string]any](t, rr)
			if body["status"] != string(tt.status) || body["version"] == nil {
				t.Errorf("body: %v", body)
			}
		})
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newFixture("secret")
	f.docs.statsFn = func(context.Context) (ingestion.Stats, error) { return ingestion.Stats{}, nil }

	if rr := f.do(http.MethodGet, "/documents/stats", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rr.Code)
	}
	rr := f.do(http.MethodGet, "/documents/stats", "", map[string]string{"Authorization": "Bearer secret"})
	if rr.Code != http.StatusOK {
		t.Errorf("with token: got %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID must be echoed")
	}
}

func TestRouter_MetricsExempt(t *testing.T) {
	f := newFixture("secret")
	if rr := f.do(http.MethodGet, "/metrics", "", nil); rr.Code != http.StatusOK {
		t.Errorf("metrics: got %d, want 200", rr.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newFixture()
	rr := f.do(http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeNotFound {
		t.Errorf("code: %s", resp.Code)
	}
}

func TestRouter_PanicRecovered(t *testing.T) {
	f := newFixture()
	f.docs.statsFn = func(context.Context) (ingestion.Stats, error) { panic("boom") }

	rr := f.do(http.MethodGet, "/documents/stats", "", nil)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeInternalError {
		t.Errorf("code: %s", resp.Code)
	}
}
