package bridge

import (
	"math/big"

	"tidechain/crypto"
)

// Route is the configuration for one bridge direction to a peer deployment.
// Admin-set; persists until overwritten.
type Route struct {
	// ID identifies the route on both sides.
	ID uint64
	// Peer is the address of the paired endpoint's signing key on the
	// other partition. Inbound envelopes must recover to it.
	Peer crypto.Address
	// Enabled gates both sending and receiving on the route.
	Enabled bool
	// FeeBps is the source-side protocol fee in basis points.
	FeeBps uint64
	// PerMessageCap bounds single transfers. Nil or zero disables.
	PerMessageCap *big.Int
	// DailyCap bounds per-calendar-day volume. Nil or zero disables.
	DailyCap *big.Int
	// Limiter is the inbound token-bucket configuration. A zero Burst
	// disables it.
	Limiter BucketParams
}

// Normalize backfills nil fields.
func (r *Route) Normalize() *Route {
	if r.PerMessageCap == nil {
		r.PerMessageCap = big.NewInt(0)
	}
	if r.DailyCap == nil {
		r.DailyCap = big.NewInt(0)
	}
	return r
}

// State is the persistence surface shared by the send and receive endpoints
// of one deployment. Outbound and inbound usage are tracked independently,
// matching the two sides' independent day-bucket counters.
type State interface {
	GetRoute(id uint64) (*Route, error)
	PutRoute(route *Route) error
	GetOutboundUsage(route uint64) (*Usage, error)
	PutOutboundUsage(route uint64, usage *Usage) error
	GetInboundUsage(route uint64) (*Usage, error)
	PutInboundUsage(route uint64, usage *Usage) error
	GetBucket(route uint64) (*Bucket, error)
	PutBucket(route uint64, bucket *Bucket) error
	GetFeeBalance() (*big.Int, error)
	PutFeeBalance(balance *big.Int) error
	GetNonce() (uint64, error)
	PutNonce(nonce uint64) error
	MarkTransferProcessed(id string) error
}

// TokenLedger is the slice of the shares ledger bridge endpoints operate:
// senders burn and re-mint fees, receivers mint with the carried rate.
type TokenLedger interface {
	Mint(to crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error)
	Burn(from crypto.Address, amount *big.Int) (*big.Int, error)
	BalanceOf(addr crypto.Address) (*big.Int, error)
	LockedRate(addr crypto.Address) (uint64, bool, error)
}

// Fabric is the external messaging layer that carries envelopes between
// partitions. Delivery is assumed exactly-once; Dispatch must not invoke the
// destination synchronously.
type Fabric interface {
	// Fee quotes the transport cost of one dispatch, paid from the
	// endpoint's prefunded fee balance.
	Fee() *big.Int
	// Dispatch hands the envelope to the transport. An error aborts the
	// whole send before any ledger mutation.
	Dispatch(env *SignedEnvelope) error
}
