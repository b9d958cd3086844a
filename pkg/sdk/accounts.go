package transferguard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/transferguard/internal/domain"
	"github.com/kailas-cloud/transferguard/internal/domain/account"
)

// DefaultCurrency is used for accounts created without a currency.
const DefaultCurrency = "BHD"

// Account is a sender account. Amounts are decimal strings.
type Account struct {
	ID                  string
	HolderName          string
	Balance             string
	DailyLimit          string
	PerTransactionLimit string // optional override
	Currency            string
}

// Beneficiary is a transfer destination registered by an account.
type Beneficiary struct {
	ID                string
	OwnerAccountID    string
	Name              string
	Country           string
	Bank              string
	IBAN              string
	ReceiverAccountID string // set when the beneficiary holds an account in the same ledger
	Active            bool
}

// AccountService manages ledger accounts and beneficiaries.
type AccountService struct {
	ledger   ledgerStore
	currency string
	obs      *observer
}

// Create stores a new account.
func (s *AccountService) Create(ctx context.Context, a Account) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("account.create", start, err) }()

	balance, err := parseAmount(a.Balance, true)
	if err != nil {
		return err
	}
	daily, err := parseAmount(a.DailyLimit, false)
	if err != nil {
		return err
	}
	var perTx *decimal.Decimal
	if a.PerTransactionLimit != "" {
		v, err := parseAmount(a.PerTransactionLimit, false)
		if err != nil {
			return err
		}
		perTx = &v
	}
	currency := a.Currency
	if currency == "" {
		currency = s.currency
	}

	acc, err := account.New(a.ID, a.HolderName, balance, daily, perTx, currency)
	if err != nil {
		return fmt.Errorf("account %s: %w", a.ID, err)
	}
	if err = s.ledger.CreateAccount(ctx, acc); err != nil {
		return fmt.Errorf("create account %s: %w", a.ID, err)
	}
	return nil
}

// Get returns an account with its current balance.
func (s *AccountService) Get(ctx context.Context, id string) (out Account, err error) {
	start := time.Now()
	defer func() { s.obs.observe("account.get", start, err) }()

	acc, err := s.ledger.GetAccount(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	out = Account{
		ID:         acc.ID(),
		HolderName: acc.HolderName(),
		Balance:    acc.Balance().String(),
		DailyLimit: acc.DailyLimit().String(),
		Currency:   acc.Currency(),
	}
	if v, ok := acc.PerTransactionLimit(); ok {
		out.PerTransactionLimit = v.String()
	}
	return out, nil
}

// AddBeneficiary registers an active beneficiary for b.OwnerAccountID.
func (s *AccountService) AddBeneficiary(ctx context.Context, b Beneficiary) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("beneficiary.create", start, err) }()

	ben, err := account.NewBeneficiary(b.ID, b.OwnerAccountID, b.Name, b.Country, b.Bank, b.IBAN, b.ReceiverAccountID)
	if err != nil {
		return fmt.Errorf("beneficiary %s: %w", b.ID, err)
	}
	if err = s.ledger.CreateBeneficiary(ctx, ben); err != nil {
		return fmt.Errorf("create beneficiary %s: %w", b.ID, err)
	}
	return nil
}

// Beneficiaries lists the beneficiaries of an account.
func (s *AccountService) Beneficiaries(ctx context.Context, ownerAccountID string) (out []Beneficiary, err error) {
	start := time.Now()
	defer func() { s.obs.observe("beneficiary.list", start, err) }()

	bens, err := s.ledger.ListBeneficiaries(ctx, ownerAccountID)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	out = make([]Beneficiary, len(bens))
	for i, b := range bens {
		out[i] = Beneficiary{
			ID: b.ID(), OwnerAccountID: b.OwnerAccountID(), Name: b.Name(), Country: b.Country(),
			Bank: b.Bank(), IBAN: b.IBAN(), ReceiverAccountID: b.ReceiverAccountID(), Active: b.Active(),
		}
	}
	return out, nil
}

func parseAmount(raw string, allowZero bool) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() || (!allowZero && v.IsZero()) {
		return decimal.Decimal{}, fmt.Errorf("amount %q: %w", raw, domain.ErrInvalidAmount)
	}
	return v, nil
}
