package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
)

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, a account.Account) error {
	var perTx sql.NullString
	if v, ok := a.PerTransactionLimit(); ok {
		perTx = sql.NullString{String: v.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, holder_name, balance, daily_limit, per_tx_limit, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID(), a.HolderName(), a.Balance().String(), a.DailyLimit().String(), perTx, a.Currency(),
		time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("creating account %s: %w", a.ID(), err)
	}
	return nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	return getAccount(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q queryRower, id string) (account.Account, error) {
	var holder, balance, daily, currency string
	var perTx sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT holder_name, balance, daily_limit, per_tx_limit, currency FROM accounts WHERE id = ?
	`, id).Scan(&holder, &balance, &daily, &perTx, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrAccountNotFound)
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("getting account %s: %w", id, err)
	}

	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return account.Account{}, fmt.Errorf("account %s balance: %w", id, err)
	}
	dl, err := decimal.NewFromString(daily)
	if err != nil {
		return account.Account{}, fmt.Errorf("account %s daily limit: %w", id, err)
	}
	var override *decimal.Decimal
	if perTx.Valid {
		v, err := decimal.NewFromString(perTx.String)
		if err != nil {
			return account.Account{}, fmt.Errorf("account %s per transaction limit: %w", id, err)
		}
		override = &v
	}
	return account.Reconstruct(id, holder, bal, dl, override, currency), nil
}

// CreateBeneficiary inserts a beneficiary. The owner must exist.
func (s *Store) CreateBeneficiary(ctx context.Context, b account.Beneficiary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO beneficiaries (id, owner_account_id, name, country, bank, iban, receiver_account_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID(), b.OwnerAccountID(), b.Name(), b.Country(), b.Bank(), b.IBAN(),
		nullString(b.ReceiverAccountID()), b.Active(), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("creating beneficiary %s: %w", b.ID(), err)
	}
	return nil
}

const beneficiaryColumns = `id, owner_account_id, name, country, bank, iban, receiver_account_id, active`

// GetBeneficiary returns a beneficiary by ID.
func (s *Store) GetBeneficiary(ctx context.Context, id string) (account.Beneficiary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = ?`, id)
	b, err := scanBeneficiary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Beneficiary{}, fmt.Errorf("beneficiary %s: %w", id, domain.ErrBeneficiaryNotFound)
	}
	if err != nil {
		return account.Beneficiary{}, fmt.Errorf("getting beneficiary %s: %w", id, err)
	}
	return b, nil
}

// ListBeneficiaries returns the beneficiaries registered by an account, ordered by name.
func (s *Store) ListBeneficiaries(ctx context.Context, ownerAccountID string) ([]account.Beneficiary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE owner_account_id = ? ORDER BY name, id
	`, ownerAccountID)
	if err != nil {
		return nil, fmt.Errorf("listing beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []account.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning beneficiary: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(sc scanner) (account.Beneficiary, error) {
	var id, owner, name, country, bank, iban string
	var receiver sql.NullString
	var active bool
	if err := sc.Scan(&id, &owner, &name, &country, &bank, &iban, &receiver, &active); err != nil {
		return account.Beneficiary{}, err
	}
	return account.ReconstructBeneficiary(id, owner, name, country, bank, iban, receiver.String, active), nil
}
