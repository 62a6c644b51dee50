package ledger

import (
	"errors"
	"math/big"

	"tidechain/core/events"
	"tidechain/crypto"
)

var (
	errNilState            = errors.New("ledger engine: state not configured")
	errInvalidAmount       = errors.New("ledger engine: amount must be positive")
	errNullHolder          = errors.New("ledger engine: null holder address")
	errInvalidRate         = errors.New("ledger engine: rate exceeds 10000 bps")
	errInsufficientBalance = errors.New("ledger engine: insufficient balance")
	errInsufficientClaims  = errors.New("ledger engine: insufficient claims")
	errNegativeDelta       = errors.New("ledger engine: rebase delta must not be negative")
)

var basisPoints = big.NewInt(10_000)

// MaxRateBps bounds every locked rate the ledger will record.
const MaxRateBps uint64 = 10_000

// State is the persistence surface the ledger engine mutates. Implementations
// must return a nil Holder (not an error) for addresses never seen.
type State interface {
	GetSupply() (*Supply, error)
	PutSupply(*Supply) error
	GetHolder(addr crypto.Address) (*Holder, error)
	PutHolder(*Holder) error
}

// Minter is the capability handed to components allowed to issue claims
// (the vault and bridge receivers). The returned value is the claims issued.
type Minter interface {
	Mint(to crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error)
}

// Burner is the capability handed to components allowed to destroy claims
// (the vault and bridge senders). The returned value is the claims removed.
type Burner interface {
	Burn(from crypto.Address, amount *big.Int) (*big.Int, error)
}

// Rebaser is the capability that lets the vault apply accrued interest to
// every holder at once.
type Rebaser interface {
	Rebase(delta *big.Int) (*big.Int, error)
}

// Engine implements the shares ledger: proportional-ownership claims over a
// rebased reported supply, with a locked interest rate per holder.
type Engine struct {
	state   State
	emitter events.Emitter
}

// NewEngine constructs a ledger engine over the provided state.
func NewEngine(state State) *Engine {
	return &Engine{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter wires an event sink. A nil emitter restores the noop default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Mint credits a holder with amount tokens, issuing claims at the current
// claims/supply ratio (1:1 on the bootstrap mint). The holder's locked rate
// is assigned only if it has never been set; later mints, including bridge
// mints carrying a different rate, leave it untouched.
func (e *Engine) Mint(to crypto.Address, amount *big.Int, rateBps uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if to.IsZero() {
		return nil, errNullHolder
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if rateBps > MaxRateBps {
		return nil, errInvalidRate
	}

	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}

	// Claims truncate toward zero. A dust mint below one claim's value issues
	// nothing; the amount still raises the reported supply, so truncation
	// accrues to existing holders rather than granting a full claim.
	claims := new(big.Int)
	if supply.TotalClaims.Sign() == 0 {
		claims.Set(amount)
	} else {
		claims.Mul(amount, supply.TotalClaims)
		claims.Quo(claims, supply.ReportedSupply)
	}

	holder, err := e.ensureHolder(to)
	if err != nil {
		return nil, err
	}
	holder.Claims = new(big.Int).Add(holder.Claims, claims)
	if !holder.RateSet {
		holder.RateBps = rateBps
		holder.RateSet = true
	}

	supply.TotalClaims = new(big.Int).Add(supply.TotalClaims, claims)
	supply.ReportedSupply = new(big.Int).Add(supply.ReportedSupply, amount)

	if err := e.state.PutHolder(holder); err != nil {
		return nil, err
	}
	if err := e.state.PutSupply(supply); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LedgerMinted{
		Holder:  addressKey(to),
		Amount:  new(big.Int).Set(amount),
		Claims:  new(big.Int).Set(claims),
		RateBps: holder.RateBps,
	})
	return claims, nil
}

// Burn removes amount tokens from a holder, destroying the corresponding
// claims. It fails when the holder's spendable balance is below amount.
func (e *Engine) Burn(from crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if from.IsZero() {
		return nil, errNullHolder
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	if supply.TotalClaims.Sign() == 0 || supply.ReportedSupply.Sign() == 0 {
		return nil, errInsufficientBalance
	}

	holder, err := e.ensureHolder(from)
	if err != nil {
		return nil, err
	}
	if balanceFor(holder.Claims, supply).Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}

	claims := new(big.Int).Mul(amount, supply.TotalClaims)
	claims.Quo(claims, supply.ReportedSupply)
	if claims.Cmp(holder.Claims) > 0 {
		claims = new(big.Int).Set(holder.Claims)
	}

	holder.Claims = new(big.Int).Sub(holder.Claims, claims)
	supply.TotalClaims = new(big.Int).Sub(supply.TotalClaims, claims)
	supply.ReportedSupply = new(big.Int).Sub(supply.ReportedSupply, amount)

	if err := e.state.PutHolder(holder); err != nil {
		return nil, err
	}
	if err := e.state.PutSupply(supply); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LedgerBurned{
		Holder: addressKey(from),
		Amount: new(big.Int).Set(amount),
		Claims: new(big.Int).Set(claims),
	})
	return claims, nil
}

// Transfer moves amount tokens between holders at the current ratio. Integer
// division rounds the moved claims down, so the receiver may gain slightly
// less value than requested.
func (e *Engine) Transfer(from, to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if from.IsZero() || to.IsZero() {
		return errNullHolder
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	supply, err := e.loadSupply()
	if err != nil {
		return err
	}
	if supply.TotalClaims.Sign() == 0 || supply.ReportedSupply.Sign() == 0 {
		return errInsufficientClaims
	}

	claims := new(big.Int).Mul(amount, supply.TotalClaims)
	claims.Quo(claims, supply.ReportedSupply)

	sender, err := e.ensureHolder(from)
	if err != nil {
		return err
	}
	if sender.Claims.Cmp(claims) < 0 {
		return errInsufficientClaims
	}
	receiver, err := e.ensureHolder(to)
	if err != nil {
		return err
	}

	sender.Claims = new(big.Int).Sub(sender.Claims, claims)
	receiver.Claims = new(big.Int).Add(receiver.Claims, claims)

	if err := e.state.PutHolder(sender); err != nil {
		return err
	}
	if err := e.state.PutHolder(receiver); err != nil {
		return err
	}

	e.emitter.Emit(events.LedgerTransferred{
		From:   addressKey(from),
		To:     addressKey(to),
		Amount: new(big.Int).Set(amount),
		Claims: claims,
	})
	return nil
}

// Rebase adds delta to the reported supply without touching any claim count,
// raising every holder's spendable balance proportionally in O(1). It returns
// the reported supply after the rebase.
func (e *Engine) Rebase(delta *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if delta == nil || delta.Sign() < 0 {
		return nil, errNegativeDelta
	}

	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	if delta.Sign() == 0 {
		return new(big.Int).Set(supply.ReportedSupply), nil
	}

	supply.ReportedSupply = new(big.Int).Add(supply.ReportedSupply, delta)
	if err := e.state.PutSupply(supply); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LedgerRebased{
		Delta:       new(big.Int).Set(delta),
		SupplyAfter: new(big.Int).Set(supply.ReportedSupply),
	})
	return new(big.Int).Set(supply.ReportedSupply), nil
}

// OverrideLockedRate rewrites a holder's locked rate. This is the privileged
// synchronization hook used when reconciling rates across deployments; every
// ordinary mint path goes through first-mint-wins instead.
func (e *Engine) OverrideLockedRate(addr crypto.Address, rateBps uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if addr.IsZero() {
		return errNullHolder
	}
	if rateBps > MaxRateBps {
		return errInvalidRate
	}
	holder, err := e.ensureHolder(addr)
	if err != nil {
		return err
	}
	holder.RateBps = rateBps
	holder.RateSet = true
	return e.state.PutHolder(holder)
}

// BalanceOf returns the holder's spendable balance:
// claims * reportedSupply / totalClaims, zero when no claims exist.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	holder, err := e.ensureHolder(addr)
	if err != nil {
		return nil, err
	}
	return balanceFor(holder.Claims, supply), nil
}

// ClaimsOf returns the holder's raw claim count.
func (e *Engine) ClaimsOf(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	holder, err := e.ensureHolder(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(holder.Claims), nil
}

// LockedRate returns the holder's locked rate and whether one was ever
// assigned.
func (e *Engine) LockedRate(addr crypto.Address) (uint64, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, errNilState
	}
	holder, err := e.ensureHolder(addr)
	if err != nil {
		return 0, false, err
	}
	return holder.RateBps, holder.RateSet, nil
}

// TotalClaims returns the aggregate claim count.
func (e *Engine) TotalClaims() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(supply.TotalClaims), nil
}

// ReportedSupply returns the rebased total supply.
func (e *Engine) ReportedSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(supply.ReportedSupply), nil
}

// ClaimsForAmount converts a token amount to claims at the current ratio.
// During bootstrap (no claims outstanding) the ratio is 1:1.
func (e *Engine) ClaimsForAmount(amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	if supply.TotalClaims.Sign() == 0 || supply.ReportedSupply.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	claims := new(big.Int).Mul(amount, supply.TotalClaims)
	return claims.Quo(claims, supply.ReportedSupply), nil
}

// AmountForClaims converts claims back to a token amount at the current
// ratio. Round-trips lose at most truncation precision.
func (e *Engine) AmountForClaims(claims *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if claims == nil || claims.Sign() < 0 {
		return nil, errInvalidAmount
	}
	supply, err := e.loadSupply()
	if err != nil {
		return nil, err
	}
	return balanceFor(claims, supply), nil
}

func (e *Engine) loadSupply() (*Supply, error) {
	supply, err := e.state.GetSupply()
	if err != nil {
		return nil, err
	}
	return supply.Normalize(), nil
}

func (e *Engine) ensureHolder(addr crypto.Address) (*Holder, error) {
	holder, err := e.state.GetHolder(addr)
	if err != nil {
		return nil, err
	}
	if holder == nil {
		holder = &Holder{Address: addr}
	}
	return holder.Normalize(), nil
}

func balanceFor(claims *big.Int, supply *Supply) *big.Int {
	if claims == nil || claims.Sign() == 0 || supply.TotalClaims.Sign() == 0 {
		return big.NewInt(0)
	}
	balance := new(big.Int).Mul(claims, supply.ReportedSupply)
	return balance.Quo(balance, supply.TotalClaims)
}

func addressKey(addr crypto.Address) [20]byte {
	var key [20]byte
	copy(key[:], addr.Bytes())
	return key
}
