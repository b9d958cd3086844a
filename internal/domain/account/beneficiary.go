package account

import "fmt"

// Beneficiary is a transfer target registered by one account holder.
// Country is the sanctions-check input.
type Beneficiary struct {
	id                string
	ownerAccountID    string
	name              string
	country           string
	bank              string
	iban              string
	receiverAccountID string
	active            bool
}

// NewBeneficiary validates and creates an active Beneficiary.
// receiverAccountID is set when the beneficiary holds an account in this ledger.
func NewBeneficiary(id, ownerAccountID, name, country, bank, iban, receiverAccountID string) (Beneficiary, error) {
	if id == "" {
		return Beneficiary{}, fmt.Errorf("beneficiary ID is required")
	}
	if ownerAccountID == "" {
		return Beneficiary{}, fmt.Errorf("owner account ID is required")
	}
	if name == "" {
		return Beneficiary{}, fmt.Errorf("beneficiary name is required")
	}
	if country == "" {
		return Beneficiary{}, fmt.Errorf("beneficiary country is required")
	}
	if receiverAccountID == ownerAccountID {
		return Beneficiary{}, fmt.Errorf("beneficiary cannot receive into the owner account")
	}
	return ReconstructBeneficiary(id, ownerAccountID, name, country, bank, iban, receiverAccountID, true), nil
}

// ReconstructBeneficiary creates a Beneficiary without validation (storage hydration).
func ReconstructBeneficiary(
	id, ownerAccountID, name, country, bank, iban, receiverAccountID string, active bool,
) Beneficiary {
	return Beneficiary{
		id: id, ownerAccountID: ownerAccountID, name: name, country: country,
		bank: bank, iban: iban, receiverAccountID: receiverAccountID, active: active,
	}
}

func (b Beneficiary) ID() string { return b.id }
func (b Beneficiary) OwnerAccountID() string { return b.ownerAccountID }
func (b Beneficiary) Name() string { return b.name }
func (b Beneficiary) Country() string { return b.country }
func (b Beneficiary) Bank() string { return b.bank }
func (b Beneficiary) IBAN() string { return b.iban }
func (b Beneficiary) ReceiverAccountID() string { return b.receiverAccountID }
func (b Beneficiary) Active() bool { return b.active }

// UsableBy reports whether the sender may transfer to this beneficiary.
func (b Beneficiary) UsableBy(senderAccountID string) bool {
	return b.active && b.ownerAccountID == senderAccountID
}
