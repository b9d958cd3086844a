package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain/account"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/usecase/compliance"
)

// Ledger reads accounts and records transaction outcomes.
type Ledger interface {
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetBeneficiary(ctx context.Context, id string) (account.Beneficiary, error)
	CreatePending(ctx context.Context, t transaction.Transaction) error
	Finalize(ctx context.Context, t transaction.Transaction) error
	Complete(ctx context.Context, t transaction.Transaction) error
	SumOutgoingSince(ctx context.Context, accountID string, since time.Time, excludeID string) (decimal.Decimal, error)
}

// Compliance resolves limits and sanctions from the knowledge store.
type Compliance interface {
	PerTransactionLimit(ctx context.Context) (rule.LimitPayload, bool, error)
	DailyLimit(ctx context.Context) (rule.LimitPayload, bool, error)
	CheckSanctions(ctx context.Context, country, name string) (compliance.SanctionResult, error)
}
