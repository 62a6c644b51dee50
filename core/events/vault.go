package events

import "math/big"

const (
	// TypeVaultDeposit marks a native-coin deposit minted onto the ledger.
	TypeVaultDeposit = "vault.deposit"
	// TypeVaultRedeem marks a redemption paid out of vault reserves.
	TypeVaultRedeem = "vault.redeem"
	// TypeVaultRateChanged marks a tier-driven step down of the offered rate.
	TypeVaultRateChanged = "vault.rate_changed"
	// TypeVaultInterestAccrued marks an accrual application, clamped or not.
	TypeVaultInterestAccrued = "vault.interest_accrued"
)

// VaultDeposit records an accepted deposit and the rate it locked.
type VaultDeposit struct {
	Depositor [20]byte
	Amount    *big.Int
	RateBps   uint64
}

// EventType satisfies the events.Event interface.
func (VaultDeposit) EventType() string { return TypeVaultDeposit }

// VaultRedeem records a redemption and its proportional payout.
type VaultRedeem struct {
	Holder [20]byte
	Amount *big.Int
	Payout *big.Int
}

// EventType satisfies the events.Event interface.
func (VaultRedeem) EventType() string { return TypeVaultRedeem }

// VaultRateChanged records the offered rate stepping down a tier.
type VaultRateChanged struct {
	OldRateBps uint64
	NewRateBps uint64
	Tier       uint64
}

// EventType satisfies the events.Event interface.
func (VaultRateChanged) EventType() string { return TypeVaultRateChanged }

// VaultInterestAccrued records one accrual application. Clamped reports
// whether the circuit breaker reduced the naive interest.
type VaultInterestAccrued struct {
	Periods uint64
	Net     *big.Int
	Fee     *big.Int
	Clamped bool
}

// EventType satisfies the events.Event interface.
func (VaultInterestAccrued) EventType() string { return TypeVaultInterestAccrued }
