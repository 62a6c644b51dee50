package events

import "math/big"

const (
	// TypeLedgerMinted marks new claims issued against the reported supply.
	TypeLedgerMinted = "ledger.minted"
	// TypeLedgerBurned marks claims destroyed.
	TypeLedgerBurned = "ledger.burned"
	// TypeLedgerTransferred marks claims moved between holders.
	TypeLedgerTransferred = "ledger.transferred"
	// TypeLedgerRebased marks a reported-supply increase with claim counts
	// untouched.
	TypeLedgerRebased = "ledger.rebased"
)

// LedgerMinted records a mint: the token amount credited, the claims issued
// for it, and the rate the holder carries afterwards.
type LedgerMinted struct {
	Holder  [20]byte
	Amount  *big.Int
	Claims  *big.Int
	RateBps uint64
}

// EventType satisfies the events.Event interface.
func (LedgerMinted) EventType() string { return TypeLedgerMinted }

// LedgerBurned records a burn of claims from a holder.
type LedgerBurned struct {
	Holder [20]byte
	Amount *big.Int
	Claims *big.Int
}

// EventType satisfies the events.Event interface.
func (LedgerBurned) EventType() string { return TypeLedgerBurned }

// LedgerTransferred records a claim move between two holders.
type LedgerTransferred struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Claims *big.Int
}

// EventType satisfies the events.Event interface.
func (LedgerTransferred) EventType() string { return TypeLedgerTransferred }

// LedgerRebased records a global supply rebase.
type LedgerRebased struct {
	Delta       *big.Int
	SupplyAfter *big.Int
}

// EventType satisfies the events.Event interface.
func (LedgerRebased) EventType() string { return TypeLedgerRebased }
