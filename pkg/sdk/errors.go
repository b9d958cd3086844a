package transferguard

import (
	"errors"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrUnsupportedFormat           = domain.ErrUnsupportedFormat
	ErrEmptyDocument               = domain.ErrEmptyDocument
	ErrVectorDimMismatch           = domain.ErrVectorDimMismatch
	ErrEmbeddingProviderError      = domain.ErrEmbeddingProviderError
	ErrIngestionInProgress         = domain.ErrIngestionInProgress
	ErrDocumentNotFound            = domain.ErrDocumentNotFound
	ErrAccountNotFound             = domain.ErrAccountNotFound
	ErrBeneficiaryNotFound         = domain.ErrBeneficiaryNotFound
	ErrInvalidAmount               = domain.ErrInvalidAmount
	ErrInsufficientBalance         = domain.ErrInsufficientBalance
	ErrPerTransactionLimitExceeded = domain.ErrPerTransactionLimitExceeded
	ErrDailyLimitExceeded          = domain.ErrDailyLimitExceeded
	ErrSanctionsMatch              = domain.ErrSanctionsMatch
)

// IsBlocked reports whether err is a BLOCKED transfer decision.
func IsBlocked(err error) bool {
	var oe *transfer.OutcomeError
	return errors.As(err, &oe) && oe.Status == transaction.StatusBlocked
}

// IsRetryable reports whether a transfer failed for a reason other than a business rule.
func IsRetryable(err error) bool {
	return transfer.IsRetryable(err)
}
