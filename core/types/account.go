package types

import "math/big"

// Account holds the native-coin balance for one address. Vault reserves live
// on a module treasury account; depositors and redeemers are debited and
// credited here before any ledger mutation is considered committed.
type Account struct {
	Balance *big.Int
}

// NewAccount returns an account with a zeroed balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Normalize backfills nil fields so callers can mutate without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}
