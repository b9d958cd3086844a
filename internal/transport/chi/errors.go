package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

// ErrorCode is the machine-readable error identifier in error responses.
type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeNotFound             ErrorCode = "not_found"
	CodeDocumentNotFound     ErrorCode = "document_not_found"
	CodeAccountNotFound      ErrorCode = "account_not_found"
	CodeBeneficiaryNotFound  ErrorCode = "beneficiary_not_found"
	CodeUnsupportedFormat    ErrorCode = "unsupported_format"
	CodeEmptyDocument        ErrorCode = "empty_document"
	CodeVectorDimMismatch    ErrorCode = "vector_dim_mismatch"
	CodeIngestionInProgress  ErrorCode = "ingestion_in_progress"
	CodeInvalidTransition    ErrorCode = "invalid_transition"
	CodeInvalidAmount        ErrorCode = "invalid_amount"
	CodeEmbeddingProvider    ErrorCode = "embedding_provider_error"
	CodeIndexUnavailable     ErrorCode = "index_unavailable"
	CodeExtractionFault      ErrorCode = "extraction_fault"
	CodeTransferBlocked      ErrorCode = "transfer_blocked"
	CodeTransferFailed       ErrorCode = "transfer_failed"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrAccountNotFound, http.StatusNotFound, CodeAccountNotFound),
		sentinelHandler(domain.ErrBeneficiaryNotFound, http.StatusNotFound, CodeBeneficiaryNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnprocessableEntity, CodeUnsupportedFormat),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusUnprocessableEntity, CodeEmptyDocument),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusUnprocessableEntity, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrIngestionInProgress, http.StatusConflict, CodeIngestionInProgress),
		sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition),
		sentinelHandler(domain.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidAmount),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable),
		sentinelHandler(domain.ErrExtractionFault, http.StatusUnprocessableEntity, CodeExtractionFault),
	}
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrAccountNotFound,
		domain.ErrBeneficiaryNotFound,
		domain.ErrNotFound,
		domain.ErrUnsupportedFormat,
		domain.ErrEmptyDocument,
		domain.ErrVectorDimMismatch,
		domain.ErrIngestionInProgress,
		domain.ErrInvalidTransition,
		domain.ErrInvalidAmount,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
		domain.ErrExtractionFault,
		domain.ErrInsufficientBalance,
		domain.ErrPerTransactionLimitExceeded,
		domain.ErrDailyLimitExceeded,
		domain.ErrSanctionsMatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
