package transfer

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
)

// OutcomeError reports a transfer that ended BLOCKED or FAILED.
// Transaction is the persisted record; Err is the business or fault cause.
type OutcomeError struct {
	Status      transaction.Status
	Reason      transaction.Reason
	Err         error
	Transaction transaction.Transaction
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("transfer %s (%s): %v", e.Status, e.Reason, e.Err)
}

func (e *OutcomeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a FAILED outcome. BLOCKED is a final business decision.
func IsRetryable(err error) bool {
	var oe *OutcomeError
	return errors.As(err, &oe) && oe.Status == transaction.StatusFailed
}
