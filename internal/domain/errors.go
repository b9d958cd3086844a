package domain

import (
	"errors"
)

// KeyPrefix namespaces every key the service writes to the KV backend.
const KeyPrefix = "transferguard:"

// Ingestion errors. None of them are retryable without fixing the input.
var (
	// ErrUnsupportedFormat signals an unknown document extension or type.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEmptyDocument signals that no text could be extracted.
	ErrEmptyDocument = errors.New("empty document")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// Business outcomes. Surfaced as BLOCKED transactions, never as faults.
var (
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrPerTransactionLimitExceeded = errors.New("per transaction limit exceeded")
	ErrDailyLimitExceeded          = errors.New("daily limit exceeded")
	ErrSanctionsMatch              = errors.New("sanctions match")
)

// System faults. Surfaced as FAILED transactions, retryable by the caller.
var (
	// ErrIndexUnavailable signals a closed or unreadable vector index.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrExtractionFault signals an unexpected failure while extracting rules.
	ErrExtractionFault = errors.New("extraction fault")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAccountNotFound signals a missing account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrBeneficiaryNotFound signals a missing, foreign or inactive beneficiary.
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
	// ErrInvalidAmount signals a non-positive transfer amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidTransition signals a forbidden lifecycle transition.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrIngestionInProgress signals a concurrent ingestion of the same document.
	ErrIngestionInProgress = errors.New("ingestion in progress")
)
