package transaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
)

// Status is the persisted transaction state. PENDING is the only non-terminal one.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusBlocked   Status = "BLOCKED"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool { return s != StatusPending }

// Reason explains a BLOCKED or FAILED outcome.
type Reason string

const (
	ReasonNone                        Reason = ""
	ReasonInsufficientBalance         Reason = "insufficient_balance"
	ReasonPerTransactionLimitExceeded Reason = "per_transaction_limit_exceeded"
	ReasonDailyLimitExceeded          Reason = "daily_limit_exceeded"
	ReasonSanctionsMatch              Reason = "sanctions_match"
	ReasonInternalError               Reason = "internal_error"
	ReasonCancelled                   Reason = "cancelled"
)

// Stage is the last validation step a transaction passed.
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageBalanceChecked   Stage = "BALANCE_CHECKED"
	StageLimitChecked     Stage = "LIMIT_CHECKED"
	StageDailyChecked     Stage = "DAILY_CHECKED"
	StageSanctionsChecked Stage = "SANCTIONS_CHECKED"
	StageApproved         Stage = "APPROVED"
)

// Transaction is a single transfer attempt. Every attempt is recorded, including blocked ones.
type Transaction struct {
	id                string
	referenceNumber   string
	senderAccountID   string
	beneficiaryID     string
	receiverAccountID string
	amount            decimal.Decimal
	currency          string
	status            Status
	reason            Reason
	stage             Stage
	createdAt         time.Time
	completedAt       time.Time
}

// NewPending creates a PENDING transaction with a fresh ID and reference number.
func NewPending(
	senderAccountID, beneficiaryID, receiverAccountID string,
	amount decimal.Decimal, currency string, now time.Time,
) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("amount %s: %w", amount, domain.ErrInvalidAmount)
	}
	if senderAccountID == "" || beneficiaryID == "" {
		return Transaction{}, fmt.Errorf("sender and beneficiary are required")
	}
	return Transaction{
		id:                uuid.NewString(),
		referenceNumber:   NewReferenceNumber("TXN", now),
		senderAccountID:   senderAccountID,
		beneficiaryID:     beneficiaryID,
		receiverAccountID: receiverAccountID,
		amount:            amount,
		currency:          currency,
		status:            StatusPending,
		stage:             StageReceived,
		createdAt:         now,
	}, nil
}

// NewReferenceNumber formats PREFIX_YYYYMMDDHHMMSS_XXXXXX.
func NewReferenceNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("%s_%s_%s", prefix, now.UTC().Format("20060102150405"), suffix)
}

// Reconstruct creates a Transaction without validation (storage hydration).
func Reconstruct(
	id, referenceNumber, senderAccountID, beneficiaryID, receiverAccountID string,
	amount decimal.Decimal, currency string, status Status, reason Reason, stage Stage,
	createdAt, completedAt time.Time,
) Transaction {
	return Transaction{
		id: id, referenceNumber: referenceNumber, senderAccountID: senderAccountID,
		beneficiaryID: beneficiaryID, receiverAccountID: receiverAccountID,
		amount: amount, currency: currency, status: status, reason: reason, stage: stage,
		createdAt: createdAt, completedAt: completedAt,
	}
}

func (t Transaction) ID() string { return t.id }
func (t Transaction) ReferenceNumber() string { return t.referenceNumber }
func (t Transaction) SenderAccountID() string { return t.senderAccountID }
func (t Transaction) BeneficiaryID() string { return t.beneficiaryID }
func (t Transaction) ReceiverAccountID() string { return t.receiverAccountID }
func (t Transaction) Amount() decimal.Decimal { return t.amount }
func (t Transaction) Currency() string { return t.currency }
func (t Transaction) Status() Status { return t.status }
func (t Transaction) Reason() Reason { return t.reason }
func (t Transaction) Stage() Stage { return t.stage }
func (t Transaction) CreatedAt() time.Time { return t.createdAt }
func (t Transaction) CompletedAt() time.Time { return t.completedAt }

// Advance records that a validation step passed. Only valid while PENDING.
func (t Transaction) Advance(stage Stage) (Transaction, error) {
	if t.status.Terminal() {
		return t, fmt.Errorf("advance %s: %w", t.status, domain.ErrInvalidTransition)
	}
	t.stage = stage
	return t, nil
}

// Finalize moves a PENDING transaction into a terminal status exactly once.
// BLOCKED and FAILED require a reason, COMPLETED forbids one.
func (t Transaction) Finalize(status Status, reason Reason, now time.Time) (Transaction, error) {
	if t.status.Terminal() {
		return t, fmt.Errorf("%s -> %s: %w", t.status, status, domain.ErrInvalidTransition)
	}
	switch status {
	case StatusCompleted:
		if reason != ReasonNone {
			return t, fmt.Errorf("completed transaction cannot carry reason %q", reason)
		}
		t.stage = StageApproved
	case StatusBlocked, StatusFailed:
		if reason == ReasonNone {
			return t, fmt.Errorf("%s transaction requires a reason", status)
		}
	default:
		return t, fmt.Errorf("-> %s: %w", status, domain.ErrInvalidTransition)
	}
	t.status = status
	t.reason = reason
	t.completedAt = now
	return t, nil
}
