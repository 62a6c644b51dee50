package vault

import (
	"math/big"

	"tidechain/crypto"
)

// VaultState is the global accrual and reserve state.
type VaultState struct {
	// ActiveRateBps is the rate currently offered to new deposits. It only
	// steps down as tiers are crossed; an operator rate reset is the sole
	// way back up.
	ActiveRateBps uint64
	// TotalReserve is the native coin held against outstanding claims.
	TotalReserve *big.Int
	// LastAccrualTime is the unix time interest was last applied. Zero
	// means the vault has never accrued; the first call arms it.
	LastAccrualTime int64
}

// Normalize backfills nil fields.
func (v *VaultState) Normalize() *VaultState {
	if v == nil {
		return &VaultState{TotalReserve: big.NewInt(0)}
	}
	if v.TotalReserve == nil {
		v.TotalReserve = big.NewInt(0)
	}
	return v
}

// Position tracks one depositor's reserve contribution.
type Position struct {
	// Address is the depositor.
	Address crypto.Address
	// Reserve is the native coin this depositor's claims are backed by.
	Reserve *big.Int
	// Deposited is the cumulative lifetime deposit volume, checked against
	// the per-address cap.
	Deposited *big.Int
}

// Normalize backfills nil fields.
func (p *Position) Normalize() *Position {
	if p.Reserve == nil {
		p.Reserve = big.NewInt(0)
	}
	if p.Deposited == nil {
		p.Deposited = big.NewInt(0)
	}
	return p
}
