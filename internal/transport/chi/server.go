package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	healthuc "github.com/kailas-cloud/transferguard/internal/usecase/health"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
	"github.com/kailas-cloud/transferguard/internal/version"
)

const (
	defaultSearchK = 5
	maxSearchK     = 50
	maxListLimit   = 100
)

// Server serves the document lifecycle, transfer and health endpoints.
type Server struct {
	documents     Documents
	transfers     Transfers
	transactions  Transactions
	health        HealthChecker
	formats       FormatChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFormatChecker rejects registrations whose location has no text extractor.
func WithFormatChecker(f FormatChecker) ServerOption {
	return func(s *Server) { s.formats = f }
}

// NewServer creates an HTTP API server.
func NewServer(
	documents Documents,
	transfers Transfers,
	transactions Transactions,
	health HealthChecker,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		documents:     documents,
		transfers:     transfers,
		transactions:  transactions,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/stats", s.DocumentStats)
		r.Get("/search", s.SearchDocuments)
		r.Put("/{id}", s.RegisterDocument)
		r.Delete("/{id}", s.DeleteDocument)
		r.Post("/{id}/ingest", s.IngestDocument)
		r.Delete("/{id}/vectors", s.DeleteDocumentVectors)
	})
	r.Post("/transfers", s.CreateTransfer)
	r.Get("/transactions", s.ListTransactions)
	r.Get("/transactions/{id}", s.GetTransaction)
	r.Get("/beneficiaries", s.ListBeneficiaries)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// --- Documents ---

type registerRequest struct {
	Location     string `json:"location"`
	DocumentType string `json:"document_type"`
}

type ingestRequest struct {
	FilePath     string `json:"file_path"`
	DocumentType string `json:"document_type"`
}

type documentResponse struct {
	ID            string     `json:"id"`
	Location      string     `json:"location"`
	DocumentType  string     `json:"document_type"`
	Status        string     `json:"status"`
	Version       int        `json:"version"`
	ChunkCount    int        `json:"chunk_count"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// RegisterDocument handles PUT /documents/{id}.
func (s *Server) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	docType, ok := s.parseType(w, req.DocumentType)
	if !ok {
		return
	}
	if req.Location == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "location is required")
		return
	}
	if s.formats != nil && !s.formats.Supports(req.Location) {
		writeError(w, http.StatusUnprocessableEntity, CodeUnsupportedFormat,
			"unsupported document format: "+req.Location)
		return
	}

	doc, err := s.documents.Register(r.Context(), chi.URLParam(r, "id"), req.Location, docType)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// IngestDocument handles POST /documents/{id}/ingest.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	docType, ok := s.parseType(w, req.DocumentType)
	if !ok {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "file_path is required")
		return
	}

	id := chi.URLParam(r, "id")
	n, err := s.documents.IngestDocument(r.Context(), id, req.FilePath, docType)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"document_id":    id,
		"chunks_indexed": n,
	})
}

// DeleteDocumentVectors handles DELETE /documents/{id}/vectors.
func (s *Server) DeleteDocumentVectors(w http.ResponseWriter, r *http.Request) {
	n, err := s.documents.DeleteDocumentVectors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted_vectors": n})
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentStats handles GET /documents/stats.
func (s *Server) DocumentStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.documents.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_documents":  st.TotalDocuments,
		"total_chunks":     st.TotalChunks,
		"by_document_type": st.ByDocumentType,
		"index_entries":    st.IndexEntries,
		"dimension":        st.Dimension,
	})
}

type searchItem struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// SearchDocuments handles GET /documents/search?q=&k=&type=.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "q is required")
		return
	}
	k := defaultSearchK
	if raw := q.Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxSearchK {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "k must be between 1 and 50")
			return
		}
		k = v
	}
	var docType domdoc.Type
	if raw := q.Get("type"); raw != "" {
		t, ok := s.parseType(w, raw)
		if !ok {
			return
		}
		docType = t
	}

	results, err := s.documents.Search(r.Context(), query, k, docType)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]searchItem, len(results))
	for i, res := range results {
		items[i] = searchItem{ChunkID: res.ChunkID, DocumentID: res.DocumentID, Score: res.Score, Text: res.Text}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) parseType(w http.ResponseWriter, raw string) (domdoc.Type, bool) {
	t, err := domdoc.ParseType(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "document_type must be one of rules, sanctions, other")
		return "", false
	}
	return t, true
}

func documentToResponse(d domdoc.Document) documentResponse {
	resp := documentResponse{
		ID:            d.ID(),
		Location:      d.Location(),
		DocumentType:  string(d.Type()),
		Status:        string(d.Status()),
		Version:       d.Version(),
		ChunkCount:    d.ChunkCount(),
		FailureReason: d.FailureReason(),
		CreatedAt:     d.CreatedAt().UTC(),
	}
	if !d.ProcessedAt().IsZero() {
		p := d.ProcessedAt().UTC()
		resp.ProcessedAt = &p
	}
	return resp
}

// --- Transfers ---

type transferRequest struct {
	BeneficiaryID string          `json:"beneficiary_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	ID              string     `json:"id"`
	ReferenceNumber string     `json:"reference_number"`
	SenderAccountID string     `json:"sender_account_id"`
	BeneficiaryID   string     `json:"beneficiary_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	Stage           string     `json:"stage"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type transferErrorResponse struct {
	ErrorResponse
	Retryable   bool                `json:"retryable"`
	Transaction transactionResponse `json:"transaction"`
}

// CreateTransfer handles POST /transfers. The sender is the X-Account-ID principal.
func (s *Server) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	sender := principal(r)
	if sender == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing "+AccountIDHeader+" header")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.BeneficiaryID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "beneficiary_id is required")
		return
	}

	txn, err := s.transfers.ValidateAndExecute(r.Context(), sender, req.BeneficiaryID, req.Amount)
	if err != nil {
		var oe *transfer.OutcomeError
		if errors.As(err, &oe) {
			s.writeOutcome(w, oe)
			return
		}
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/transactions/"+txn.ID())
	writeJSON(w, http.StatusCreated, transactionToResponse(txn))
}

// writeOutcome reports BLOCKED as 422 and FAILED as 503. Both carry the stored record.
func (s *Server) writeOutcome(w http.ResponseWriter, oe *transfer.OutcomeError) {
	status, code := http.StatusUnprocessableEntity, CodeTransferBlocked
	if oe.Status == transaction.StatusFailed {
		status, code = http.StatusServiceUnavailable, CodeTransferFailed
	}
	writeJSON(w, status, transferErrorResponse{
		ErrorResponse: ErrorResponse{Code: code, Message: string(oe.Reason)},
		Retryable:     oe.Status == transaction.StatusFailed,
		Transaction:   transactionToResponse(oe.Transaction),
	})
}

// GetTransaction handles GET /transactions/{id}. Only the sender may read it.
func (s *Server) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.transactions.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if p := principal(r); p == "" || p != txn.SenderAccountID() {
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, transactionToResponse(txn))
}

// ListTransactions handles GET /transactions?limit=. Lists the principal's latest transfers.
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	sender := principal(r)
	if sender == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing "+AccountIDHeader+" header")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxListLimit {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be between 1 and 100")
			return
		}
		limit = v
	}

	txns, err := s.transactions.ListTransactions(r.Context(), sender, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]transactionResponse, len(txns))
	for i, t := range txns {
		items[i] = transactionToResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type beneficiaryResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Country           string `json:"country"`
	Bank              string `json:"bank,omitempty"`
	IBAN              string `json:"iban,omitempty"`
	ReceiverAccountID string `json:"receiver_account_id,omitempty"`
	Active            bool   `json:"active"`
}

// ListBeneficiaries handles GET /beneficiaries for the principal.
func (s *Server) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	owner := principal(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing "+AccountIDHeader+" header")
		return
	}
	bens, err := s.transactions.ListBeneficiaries(r.Context(), owner)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]beneficiaryResponse, len(bens))
	for i, b := range bens {
		items[i] = beneficiaryResponse{
			ID: b.ID(), Name: b.Name(), Country: b.Country(), Bank: b.Bank(),
			IBAN: b.IBAN(), ReceiverAccountID: b.ReceiverAccountID(), Active: b.Active(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func transactionToResponse(t transaction.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:              t.ID(),
		ReferenceNumber: t.ReferenceNumber(),
		SenderAccountID: t.SenderAccountID(),
		BeneficiaryID:   t.BeneficiaryID(),
		Amount:          t.Amount().String(),
		Currency:        t.Currency(),
		Status:          string(t.Status()),
		Reason:          string(t.Reason()),
		Stage:           string(t.Stage()),
		CreatedAt:       t.CreatedAt().UTC(),
	}
	if !t.CompletedAt().IsZero() {
		c := t.CompletedAt().UTC()
		resp.CompletedAt = &c
	}
	return resp
}

// --- Health ---

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status":  report.Status,
		"checks":  report.Checks,
		"version": version.Version,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
