package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
	"github.com/kailas-cloud/transferguard/internal/domain/rule"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
	"github.com/kailas-cloud/transferguard/internal/metrics"
)

// Defaults used when neither the account nor an ingested rule sets a limit.
var (
	DefaultPerTransactionLimit = decimal.NewFromInt(500)
	DefaultDailyLimit          = decimal.NewFromInt(1000)
)

// Config holds fallback limits.
type Config struct {
	PerTransactionLimit decimal.Decimal
	DailyLimit          decimal.Decimal
}

// Service validates and executes transfers. Checks run in a fixed order and the first
// failing check decides the outcome.
type Service struct {
	ledger     Ledger
	compliance Compliance
	cfg        Config
	locks      *accountLocks
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the server clock used for timestamps and the daily window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a transfer service. Non-positive config limits fall back to the defaults.
func New(ledger Ledger, c Compliance, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.PerTransactionLimit.IsPositive() {
		cfg.PerTransactionLimit = DefaultPerTransactionLimit
	}
	if !cfg.DailyLimit.IsPositive() {
		cfg.DailyLimit = DefaultDailyLimit
	}
	s := &Service{
		ledger:     ledger,
		compliance: c,
		cfg:        cfg,
		locks:      newAccountLocks(),
		now:        time.Now,
		logger:     logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateAndExecute runs the validation pipeline and, when every check passes,
// moves the funds. Every attempt past input validation is persisted. BLOCKED and
// FAILED outcomes are returned as *OutcomeError together with the stored record.
func (s *Service) ValidateAndExecute(
	ctx context.Context, senderAccountID, beneficiaryID string, amount decimal.Decimal,
) (transaction.Transaction, error) {
	if !amount.IsPositive() {
		return transaction.Transaction{}, fmt.Errorf("amount %s: %w", amount, domain.ErrInvalidAmount)
	}

	unlock := s.locks.lock(senderAccountID)
	defer unlock()

	acc, err := s.ledger.GetAccount(ctx, senderAccountID)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("get account: %w", err)
	}
	ben, err := s.ledger.GetBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("get beneficiary: %w", err)
	}
	if !ben.UsableBy(senderAccountID) {
		return transaction.Transaction{}, fmt.Errorf("beneficiary %s for %s: %w",
			beneficiaryID, senderAccountID, domain.ErrBeneficiaryNotFound)
	}

	txn, err := transaction.NewPending(senderAccountID, ben.ID(), ben.ReceiverAccountID(), amount, acc.Currency(), s.now())
	if err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.ledger.CreatePending(ctx, txn); err != nil {
		return transaction.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	txn, err = s.validate(ctx, txn, acc, ben)
	if err != nil {
		return s.reject(ctx, txn, err)
	}
	return s.execute(ctx, txn)
}

// validate runs the checks in order and returns the transaction advanced to the
// last stage that passed.
func (s *Service) validate(
	ctx context.Context, txn transaction.Transaction, acc account.Account, ben account.Beneficiary,
) (transaction.Transaction, error) {
	checks := []struct {
		name  string
		stage transaction.Stage
		run   func(context.Context) error
	}{
		{"balance", transaction.StageBalanceChecked, func(context.Context) error {
			return s.checkBalance(acc, txn.Amount())
		}},
		{"per_transaction_limit", transaction.StageLimitChecked, func(ctx context.Context) error {
			return s.checkPerTransaction(ctx, acc, txn.Amount())
		}},
		{"daily_limit", transaction.StageDailyChecked, func(ctx context.Context) error {
			return s.checkDaily(ctx, acc, txn)
		}},
		{"sanctions", transaction.StageSanctionsChecked, func(ctx context.Context) error {
			return s.checkSanctions(ctx, ben)
		}},
	}

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return txn, err
		}
		start := time.Now()
		err := c.run(ctx)
		metrics.TransferStageDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		if err != nil {
			return txn, err
		}
		if txn, err = txn.Advance(c.stage); err != nil {
			return txn, err
		}
	}
	return txn, nil
}

func (s *Service) checkBalance(acc account.Account, amount decimal.Decimal) error {
	if !acc.CanCover(amount) {
		return fmt.Errorf("balance %s < %s: %w", acc.Balance(), amount, domain.ErrInsufficientBalance)
	}
	return nil
}

// checkPerTransaction applies the account override, then the ingested rule, then the default.
func (s *Service) checkPerTransaction(ctx context.Context, acc account.Account, amount decimal.Decimal) error {
	limit, ok := acc.PerTransactionLimit()
	if !ok {
		limit = s.cfg.PerTransactionLimit
		r, found, err := s.compliance.PerTransactionLimit(ctx)
		if err != nil {
			return fmt.Errorf("resolve per transaction limit: %w", err)
		}
		if found && s.usable(r, acc) {
			limit = r.Amount
		}
	}
	if amount.GreaterThan(limit) {
		return fmt.Errorf("%s > %s: %w", amount, limit, domain.ErrPerTransactionLimitExceeded)
	}
	return nil
}

// checkDaily sums today's completed and pending outgoing transfers. The account limit is
// capped by an ingested daily rule.
func (s *Service) checkDaily(ctx context.Context, acc account.Account, txn transaction.Transaction) error {
	limit := acc.DailyLimit()
	if !limit.IsPositive() {
		limit = s.cfg.DailyLimit
	}
	r, found, err := s.compliance.DailyLimit(ctx)
	if err != nil {
		return fmt.Errorf("resolve daily limit: %w", err)
	}
	if found && s.usable(r, acc) && r.Amount.LessThan(limit) {
		limit = r.Amount
	}

	spent, err := s.ledger.SumOutgoingSince(ctx, acc.ID(), startOfDay(txn.CreatedAt()), txn.ID())
	if err != nil {
		return fmt.Errorf("sum outgoing: %w", err)
	}
	if total := spent.Add(txn.Amount()); total.GreaterThan(limit) {
		return fmt.Errorf("%s + %s > %s: %w", spent, txn.Amount(), limit, domain.ErrDailyLimitExceeded)
	}
	return nil
}

func (s *Service) checkSanctions(ctx context.Context, ben account.Beneficiary) error {
	res, err := s.compliance.CheckSanctions(ctx, ben.Country(), ben.Name())
	if err != nil {
		return fmt.Errorf("check sanctions: %w", err)
	}
	if res.Matched {
		return fmt.Errorf("%s %q (%s): %w", res.EntityType, res.Value, res.Source, domain.ErrSanctionsMatch)
	}
	return nil
}

// usable reports whether a limit rule applies to the account currency.
func (s *Service) usable(r rule.LimitPayload, acc account.Account) bool {
	if r.Currency == "" || r.Currency == acc.Currency() {
		return true
	}
	s.logger.Debug("limit rule in foreign currency ignored",
		zap.String("rule_currency", r.Currency),
		zap.String("account_currency", acc.Currency()),
	)
	return false
}

// execute debits and credits once every check passed.
func (s *Service) execute(ctx context.Context, txn transaction.Transaction) (transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return s.reject(ctx, txn, err)
	}
	done, err := txn.Finalize(transaction.StatusCompleted, transaction.ReasonNone, s.now())
	if err != nil {
		return s.reject(ctx, txn, err)
	}
	// past this point the debit must not be torn by the caller going away
	if err := s.ledger.Complete(context.WithoutCancel(ctx), done); err != nil {
		return s.reject(ctx, txn, fmt.Errorf("complete: %w", err))
	}
	s.record(done, nil)
	return done, nil
}

// reject persists a BLOCKED or FAILED outcome for a PENDING transaction.
func (s *Service) reject(ctx context.Context, txn transaction.Transaction, cause error) (transaction.Transaction, error) {
	status, reason := classify(cause)
	final, err := txn.Finalize(status, reason, s.now())
	if err != nil {
		return txn, fmt.Errorf("finalize: %w", err)
	}
	if err := s.ledger.Finalize(context.WithoutCancel(ctx), final); err != nil {
		s.logger.Error("persist transfer outcome",
			zap.String("transaction_id", txn.ID()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return txn, fmt.Errorf("record %s outcome: %w", status, errors.Join(cause, err))
	}
	s.record(final, cause)
	return final, &OutcomeError{Status: status, Reason: reason, Err: cause, Transaction: final}
}

func (s *Service) record(txn transaction.Transaction, cause error) {
	reason := string(txn.Reason())
	if reason == "" {
		reason = "none"
	}
	metrics.TransfersTotal.WithLabelValues(string(txn.Status()), reason).Inc()

	fields := []zap.Field{
		zap.String("transaction_id", txn.ID()),
		zap.String("reference_number", txn.ReferenceNumber()),
		zap.String("sender_account_id", txn.SenderAccountID()),
		zap.String("amount", txn.Amount().String()),
		zap.String("status", string(txn.Status())),
		zap.String("reason", string(txn.Reason())),
		zap.String("stage", string(txn.Stage())),
	}
	switch txn.Status() {
	case transaction.StatusFailed:
		s.logger.Error("transfer decided", append(fields, zap.Error(cause))...)
	case transaction.StatusBlocked:
		s.logger.Warn("transfer decided", append(fields, zap.Error(cause))...)
	default:
		s.logger.Info("transfer decided", fields...)
	}
}

// classify maps a check error to the terminal status and reason.
func classify(err error) (transaction.Status, transaction.Reason) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return transaction.StatusBlocked, transaction.ReasonInsufficientBalance
	case errors.Is(err, domain.ErrPerTransactionLimitExceeded):
		return transaction.StatusBlocked, transaction.ReasonPerTransactionLimitExceeded
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return transaction.StatusBlocked, transaction.ReasonDailyLimitExceeded
	case errors.Is(err, domain.ErrSanctionsMatch):
		return transaction.StatusBlocked, transaction.ReasonSanctionsMatch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return transaction.StatusFailed, transaction.ReasonCancelled
	default:
		return transaction.StatusFailed, transaction.ReasonInternalError
	}
}

// startOfDay returns local midnight of t's day.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
