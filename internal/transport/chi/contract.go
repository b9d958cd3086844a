package chi

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain/account"
	domdoc "github.com/kailas-cloud/transferguard/internal/domain/document"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	healthuc "github.com/kailas-cloud/transferguard/internal/usecase/health"
	"github.com/kailas-cloud/transferguard/internal/usecase/ingestion"
)

// Documents is the document lifecycle surface.
type Documents interface {
	Register(ctx context.Context, id, location string, docType domdoc.Type) (domdoc.Document, error)
	IngestDocument(ctx context.Context, id, filePath string, docType domdoc.Type) (int, error)
	DeleteDocumentVectors(ctx context.Context, id string) (int, error)
	DeleteDocument(ctx context.Context, id string) error
	Stats(ctx context.Context) (ingestion.Stats, error)
	Search(ctx context.Context, query string, topK int, docType domdoc.Type) ([]ingestion.Result, error)
}

// Transfers validates and executes transfers.
type Transfers interface {
	ValidateAndExecute(
		ctx context.Context, senderAccountID, beneficiaryID string, amount decimal.Decimal,
	) (transaction.Transaction, error)
}

// Transactions reads recorded transactions and beneficiaries.
type Transactions interface {
	GetTransaction(ctx context.Context, id string) (transaction.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]transaction.Transaction, error)
	ListBeneficiaries(ctx context.Context, ownerAccountID string) ([]account.Beneficiary, error)
}

// FormatChecker reports whether text can be extracted from a document location.
type FormatChecker interface {
	Supports(path string) bool
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
