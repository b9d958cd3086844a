package transferguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/usecase/transfer"
)

// Transfer statuses.
const (
	StatusPending   = string(transaction.StatusPending)
	StatusCompleted = string(transaction.StatusCompleted)
	StatusBlocked   = string(transaction.StatusBlocked)
	StatusFailed    = string(transaction.StatusFailed)
)

// Transfer is a recorded transfer attempt.
type Transfer struct {
	ID              string
	ReferenceNumber string
	SenderAccountID string
	BeneficiaryID   string
	Amount          string
	Currency        string
	Status          string
	Reason          string
	Stage           string
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// TransferService validates and executes transfers.
type TransferService struct {
	svc    transferUseCase
	ledger ledgerStore
	obs    *observer
}

// Execute runs the validation pipeline for a transfer of amount (a decimal string).
// A BLOCKED or FAILED decision returns the recorded Transfer together with an error:
// check it with IsBlocked and IsRetryable.
func (s *TransferService) Execute(ctx context.Context, sender, beneficiaryID, amount string) (tr Transfer, err error) {
	start := time.Now()
	defer func() { s.obs.observe("transfer.execute", start, err) }()

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Transfer{}, fmt.Errorf("amount %q: %w", amount, domain.ErrInvalidAmount)
	}
	txn, err := s.svc.ValidateAndExecute(ctx, sender, beneficiaryID, amt)
	if err != nil {
		var oe *transfer.OutcomeError
		if errors.As(err, &oe) {
			return toTransfer(oe.Transaction), err
		}
		return Transfer{}, fmt.Errorf("transfer: %w", err)
	}
	return toTransfer(txn), nil
}

// Get returns a recorded transfer.
func (s *TransferService) Get(ctx context.Context, id string) (tr Transfer, err error) {
	start := time.Now()
	defer func() { s.obs.observe("transfer.get", start, err) }()

	txn, err := s.ledger.GetTransaction(ctx, id)
	if err != nil {
		return Transfer{}, fmt.Errorf("get transfer %s: %w", id, err)
	}
	return toTransfer(txn), nil
}

// List returns the latest transfers sent by an account, newest first.
func (s *TransferService) List(ctx context.Context, accountID string, limit int) (out []Transfer, err error) {
	start := time.Now()
	defer func() { s.obs.observe("transfer.list", start, err) }()

	txns, err := s.ledger.ListTransactions(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	out = make([]Transfer, len(txns))
	for i, t := range txns {
		out[i] = toTransfer(t)
	}
	return out, nil
}

func toTransfer(t transaction.Transaction) Transfer {
	return Transfer{
		ID:              t.ID(),
		ReferenceNumber: t.ReferenceNumber(),
		SenderAccountID: t.SenderAccountID(),
		BeneficiaryID:   t.BeneficiaryID(),
		Amount:          t.Amount().String(),
		Currency:        t.Currency(),
		Status:          string(t.Status()),
		Reason:          string(t.Reason()),
		Stage:           string(t.Stage()),
		CreatedAt:       t.CreatedAt(),
		CompletedAt:     t.CompletedAt(),
	}
}
