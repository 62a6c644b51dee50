package ledger

import (
	"math/big"

	"tidechain/crypto"
)

// Supply captures the global accounting pair the ledger maintains. Claims are
// proportional-ownership units; the reported supply is the rebased token
// total all claims sum to. Amounts are wei-denominated big integers.
type Supply struct {
	// TotalClaims is the sum of all holder claim balances. It changes only
	// on mint and burn.
	TotalClaims *big.Int
	// ReportedSupply is the rebased total balance. It changes on mint, burn
	// and rebase.
	ReportedSupply *big.Int
}

// Normalize backfills nil fields so arithmetic never needs nil checks.
func (s *Supply) Normalize() *Supply {
	if s == nil {
		return &Supply{TotalClaims: big.NewInt(0), ReportedSupply: big.NewInt(0)}
	}
	if s.TotalClaims == nil {
		s.TotalClaims = big.NewInt(0)
	}
	if s.ReportedSupply == nil {
		s.ReportedSupply = big.NewInt(0)
	}
	return s
}

// Holder is one account's position on the ledger.
type Holder struct {
	// Address is the account identifier.
	Address crypto.Address
	// Claims is the holder's proportional ownership unit count.
	Claims *big.Int
	// RateBps is the interest rate locked to the holder at first mint,
	// in basis points.
	RateBps uint64
	// RateSet records whether RateBps has been assigned. A holder whose
	// claims drop to zero keeps the locked rate.
	RateSet bool
}

// Normalize backfills nil fields.
func (h *Holder) Normalize() *Holder {
	if h.Claims == nil {
		h.Claims = big.NewInt(0)
	}
	return h
}
