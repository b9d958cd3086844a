package account

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Account is a sender account. Balance changes only through ledger-consistent debit/credit.
type Account struct {
	id                  string
	holderName          string
	balance             decimal.Decimal
	dailyLimit          decimal.Decimal
	perTransactionLimit *decimal.Decimal
	currency            string
}

// New validates and creates an Account. perTxLimit is an optional override.
func New(
	id, holderName string, balance, dailyLimit decimal.Decimal,
	perTxLimit *decimal.Decimal, currency string,
) (Account, error) {
	if id == "" {
		return Account{}, fmt.Errorf("account ID is required")
	}
	if balance.IsNegative() {
		return Account{}, fmt.Errorf("balance must not be negative")
	}
	if !dailyLimit.IsPositive() {
		return Account{}, fmt.Errorf("daily limit must be positive")
	}
	if perTxLimit != nil && !perTxLimit.IsPositive() {
		return Account{}, fmt.Errorf("per transaction limit must be positive")
	}
	if currency == "" {
		return Account{}, fmt.Errorf("currency is required")
	}
	return Reconstruct(id, holderName, balance, dailyLimit, perTxLimit, currency), nil
}

// Reconstruct creates an Account without validation (storage hydration).
func Reconstruct(
	id, holderName string, balance, dailyLimit decimal.Decimal,
	perTxLimit *decimal.Decimal, currency string,
) Account {
	a := Account{
		id: id, holderName: holderName, balance: balance,
		dailyLimit: dailyLimit, currency: currency,
	}
	if perTxLimit != nil {
		v := *perTxLimit
		a.perTransactionLimit = &v
	}
	return a
}

func (a Account) ID() string { return a.id }
func (a Account) HolderName() string { return a.holderName }
func (a Account) Balance() decimal.Decimal { return a.balance }
func (a Account) DailyLimit() decimal.Decimal { return a.dailyLimit }
func (a Account) Currency() string { return a.currency }

// PerTransactionLimit returns the account override, if any.
func (a Account) PerTransactionLimit() (decimal.Decimal, bool) {
	if a.perTransactionLimit == nil {
		return decimal.Zero, false
	}
	return *a.perTransactionLimit, true
}

// CanCover reports whether the balance covers amount.
func (a Account) CanCover(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(a.balance)
}
