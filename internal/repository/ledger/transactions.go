package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/transaction"
)

// CreatePending records a new PENDING transaction.
func (s *Store) CreatePending(ctx context.Context, t transaction.Transaction) error {
	if t.Status() != transaction.StatusPending {
		return fmt.Errorf("create %s transaction: %w", t.Status(), domain.ErrInvalidTransition)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, reference_number, sender_account_id, beneficiary_id, receiver_account_id,
			amount, currency, status, reason, stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID(), t.ReferenceNumber(), t.SenderAccountID(), t.BeneficiaryID(), nullString(t.ReceiverAccountID()),
		t.Amount().String(), t.Currency(), string(t.Status()), string(t.Reason()), string(t.Stage()),
		t.CreatedAt().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("creating transaction %s: %w", t.ID(), err)
	}
	return nil
}

// Finalize records a BLOCKED or FAILED outcome. Balances are untouched.
// Only a PENDING row can be finalized.
func (s *Store) Finalize(ctx context.Context, t transaction.Transaction) error {
	switch t.Status() {
	case transaction.StatusBlocked, transaction.StatusFailed:
	default:
		return fmt.Errorf("finalize as %s: %w", t.Status(), domain.ErrInvalidTransition)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, reason = ?, stage = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(t.Status()), string(t.Reason()), string(t.Stage()), t.CompletedAt().UTC().UnixNano(),
		t.ID(), string(transaction.StatusPending))
	if err != nil {
		return fmt.Errorf("finalizing transaction %s: %w", t.ID(), err)
	}
	return s.checkTransitioned(ctx, s.db, res, t.ID())
}

// Complete debits the sender, credits the internal receiver if any and marks the
// transaction COMPLETED in one SQL transaction. The debit fails with
// ErrInsufficientBalance if the balance no longer covers the amount.
func (s *Store) Complete(ctx context.Context, t transaction.Transaction) error {
	if t.Status() != transaction.StatusCompleted {
		return fmt.Errorf("complete as %s: %w", t.Status(), domain.ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := adjustBalance(ctx, tx, t.SenderAccountID(), t.Amount().Neg()); err != nil {
		return err
	}
	if t.ReceiverAccountID() != "" {
		if err := adjustBalance(ctx, tx, t.ReceiverAccountID(), t.Amount()); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = ?, reason = '', stage = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(transaction.StatusCompleted), string(t.Stage()), t.CompletedAt().UTC().UnixNano(),
		t.ID(), string(transaction.StatusPending))
	if err != nil {
		return fmt.Errorf("completing transaction %s: %w", t.ID(), err)
	}
	if err := s.checkTransitioned(ctx, tx, res, t.ID()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", t.ID(), err)
	}
	return nil
}

func adjustBalance(ctx context.Context, tx *sql.Tx, accountID string, delta decimal.Decimal) error {
	acc, err := getAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	next := acc.Balance().Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("debit %s from %s: %w", delta.Neg(), accountID, domain.ErrInsufficientBalance)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, next.String(), accountID); err != nil {
		return fmt.Errorf("updating balance of %s: %w", accountID, err)
	}
	return nil
}

func (s *Store) checkTransitioned(ctx context.Context, q queryRower, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return fmt.Errorf("transaction %s already %s: %w", id, status, domain.ErrInvalidTransition)
}

// SumOutgoingSince adds up the sender's COMPLETED and PENDING amounts created at or
// after since, leaving out excludeID.
func (s *Store) SumOutgoingSince(ctx context.Context, accountID string, since time.Time, excludeID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE sender_account_id = ? AND created_at >= ? AND id <> ? AND status IN (?, ?)
	`, accountID, since.UTC().UnixNano(), excludeID,
		string(transaction.StatusCompleted), string(transaction.StatusPending))
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing outgoing of %s: %w", accountID, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scanning amount: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing amount %q: %w", raw, err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

const transactionColumns = `id, reference_number, sender_account_id, beneficiary_id, receiver_account_id,
	amount, currency, status, reason, stage, created_at, completed_at`

// GetTransaction returns a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id string) (transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return transaction.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns the most recent transactions sent by an account.
func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]transaction.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_id = ? ORDER BY created_at DESC, id LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(sc scanner) (transaction.Transaction, error) {
	var id, ref, sender, beneficiary, amount, currency, status, reason, stage string
	var receiver sql.NullString
	var created int64
	var completed sql.NullInt64
	if err := sc.Scan(&id, &ref, &sender, &beneficiary, &receiver, &amount, &currency,
		&status, &reason, &stage, &created, &completed); err != nil {
		return transaction.Transaction{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("amount of %s: %w", id, err)
	}
	var completedAt time.Time
	if completed.Valid {
		completedAt = time.Unix(0, completed.Int64).UTC()
	}
	return transaction.Reconstruct(
		id, ref, sender, beneficiary, receiver.String, amt, currency,
		transaction.Status(status), transaction.Reason(reason), transaction.Stage(stage),
		time.Unix(0, created).UTC(), completedAt,
	), nil
}
