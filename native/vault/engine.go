package vault

import (
	"errors"
	"math/big"
	"time"

	"tidechain/core/events"
	"tidechain/core/types"
	"tidechain/crypto"
	"tidechain/native/common"
	"tidechain/native/ledger"
)

var (
	errNilState            = errors.New("vault engine: state not configured")
	errNilLedger           = errors.New("vault engine: ledger not configured")
	errInvalidAmount       = errors.New("vault engine: amount must be positive")
	errNotAllowed          = errors.New("vault engine: depositor not on allow list")
	errBelowMinimum        = errors.New("vault engine: deposit below minimum")
	errAddressCap          = errors.New("vault engine: per-address deposit cap exceeded")
	errGlobalCap           = errors.New("vault engine: global deposit cap exceeded")
	errInsufficientFunds   = errors.New("vault engine: insufficient native balance")
	errInsufficientBalance = errors.New("vault engine: insufficient token balance")
	errSlippage            = errors.New("vault engine: payout below minimum out")
	errReserveDrained      = errors.New("vault engine: reserve cannot cover payout")
)

var basisPoints = big.NewInt(10_000)

const moduleName = common.ModuleVault

// TokenLedger is the slice of the shares ledger the vault is privileged to
// operate: it mints deposits, burns redemptions, and rebases accrued
// interest onto every holder.
type TokenLedger interface {
	ledger.Minter
	ledger.Burner
	ledger.Rebaser
	BalanceOf(addr crypto.Address) (*big.Int, error)
	ClaimsForAmount(amount *big.Int) (*big.Int, error)
	TotalClaims() (*big.Int, error)
	ReportedSupply() (*big.Int, error)
}

// State is the persistence surface for vault bookkeeping and the native-coin
// accounts deposits and payouts settle against.
type State interface {
	GetVault() (*VaultState, error)
	PutVault(*VaultState) error
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(*Position) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
	IsAllowListed(addr crypto.Address) (bool, error)
}

// Engine implements the accrual vault: tiered rate-setting, periodic interest
// with a circuit breaker and protocol fee split, and proportional redemption.
type Engine struct {
	state   State
	ledger  TokenLedger
	params  Params
	module  crypto.Address
	pauses  common.PauseView
	emitter events.Emitter
	clock   func() time.Time
}

// NewEngine constructs a vault over the given ledger capabilities. The module
// address is the treasury account reserves settle into.
func NewEngine(moduleAddr crypto.Address, tokens TokenLedger, params Params) *Engine {
	return &Engine{
		module:  moduleAddr,
		ledger:  tokens,
		params:  params,
		emitter: events.NoopEmitter{},
		clock:   time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.state = state
}

// SetPauses wires the pause switchboard consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter wires an event sink.
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

// SetClock overrides the time source. Tests drive accrual with this.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Params returns the current economics configuration.
func (e *Engine) Params() Params {
	return e.params
}

// SetParams replaces the economics configuration after validation.
func (e *Engine) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.params = params
	return nil
}

// Deposit accepts amount native coin from the depositor and mints the same
// token amount onto the ledger at the currently offered rate. Crossing a
// deposit tier lowers the rate for later deposits, never the current one.
func (e *Engine) Deposit(depositor crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	if e.params.RequireAllowList {
		allowed, err := e.state.IsAllowListed(depositor)
		if err != nil {
			return err
		}
		if !allowed {
			return errNotAllowed
		}
	}
	if e.params.MinDeposit != nil && e.params.MinDeposit.Sign() > 0 && amount.Cmp(e.params.MinDeposit) < 0 {
		return errBelowMinimum
	}

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	position, err := e.ensurePosition(depositor)
	if err != nil {
		return err
	}

	if e.params.PerAddressCap != nil && e.params.PerAddressCap.Sign() > 0 {
		cumulative := new(big.Int).Add(position.Deposited, amount)
		if cumulative.Cmp(e.params.PerAddressCap) > 0 {
			return errAddressCap
		}
	}
	if e.params.GlobalCap != nil && e.params.GlobalCap.Sign() > 0 {
		projected := new(big.Int).Add(vault.TotalReserve, amount)
		if projected.Cmp(e.params.GlobalCap) > 0 {
			return errGlobalCap
		}
	}

	depositorAcc, err := e.loadAccount(depositor)
	if err != nil {
		return err
	}
	if depositorAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientFunds
	}
	moduleAcc, err := e.loadAccount(e.module)
	if err != nil {
		return err
	}

	if err := e.accrue(vault); err != nil {
		return err
	}
	// The rebase and fee mint inside accrue write through immediately, so the
	// advanced accrual timestamp must land with them even if a later step
	// fails. Otherwise the next accrual would re-apply the same period.
	if err := e.state.PutVault(vault); err != nil {
		return err
	}

	lockedRate := vault.ActiveRateBps
	if _, err := e.ledger.Mint(depositor, amount, lockedRate); err != nil {
		return err
	}

	depositorAcc.Balance = new(big.Int).Sub(depositorAcc.Balance, amount)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
	if err := e.state.PutAccount(depositor, depositorAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.module, moduleAcc); err != nil {
		return err
	}

	vault.TotalReserve = new(big.Int).Add(vault.TotalReserve, amount)
	position.Reserve = new(big.Int).Add(position.Reserve, amount)
	position.Deposited = new(big.Int).Add(position.Deposited, amount)

	e.applyTierSchedule(vault)

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutVault(vault); err != nil {
		return err
	}

	e.emitter.Emit(events.VaultDeposit{
		Depositor: addressKey(depositor),
		Amount:    new(big.Int).Set(amount),
		RateBps:   lockedRate,
	})
	return nil
}

// Redeem burns amount tokens and pays the holder their proportional share of
// the reserve. The minOut guard rejects payouts below the holder's floor.
// All bookkeeping commits before the native coin moves.
func (e *Engine) Redeem(holder crypto.Address, amount, minOut *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.accrue(vault); err != nil {
		return nil, err
	}
	// Commit the advanced accrual timestamp before any check that can still
	// reject the redemption; the rebase it accounts for is already applied.
	if err := e.state.PutVault(vault); err != nil {
		return nil, err
	}

	balance, err := e.ledger.BalanceOf(holder)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}

	claims, err := e.ledger.ClaimsForAmount(amount)
	if err != nil {
		return nil, err
	}
	totalClaims, err := e.ledger.TotalClaims()
	if err != nil {
		return nil, err
	}
	if totalClaims.Sign() == 0 {
		return nil, errInsufficientBalance
	}

	payout := new(big.Int).Mul(vault.TotalReserve, claims)
	payout.Quo(payout, totalClaims)
	if minOut != nil && payout.Cmp(minOut) < 0 {
		return nil, errSlippage
	}
	if payout.Cmp(vault.TotalReserve) > 0 {
		return nil, errReserveDrained
	}

	moduleAcc, err := e.loadAccount(e.module)
	if err != nil {
		return nil, err
	}
	if moduleAcc.Balance.Cmp(payout) < 0 {
		return nil, errReserveDrained
	}
	holderAcc, err := e.loadAccount(holder)
	if err != nil {
		return nil, err
	}

	if _, err := e.ledger.Burn(holder, amount); err != nil {
		return nil, err
	}

	vault.TotalReserve = new(big.Int).Sub(vault.TotalReserve, payout)
	position, err := e.ensurePosition(holder)
	if err != nil {
		return nil, err
	}
	if position.Reserve.Cmp(payout) < 0 {
		position.Reserve = big.NewInt(0)
	} else {
		position.Reserve = new(big.Int).Sub(position.Reserve, payout)
	}

	if err := e.state.PutPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(vault); err != nil {
		return nil, err
	}

	// Native coin moves only after every book entry above is committed.
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, payout)
	holderAcc.Balance = new(big.Int).Add(holderAcc.Balance, payout)
	if err := e.state.PutAccount(e.module, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(holder, holderAcc); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultRedeem{
		Holder: addressKey(holder),
		Amount: new(big.Int).Set(amount),
		Payout: new(big.Int).Set(payout),
	})
	return payout, nil
}

// AccrueInterest applies any interest due since the last accrual. Standalone
// entry point for schedulers; deposit and redeem invoke the same logic.
func (e *Engine) AccrueInterest() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.accrue(vault); err != nil {
		return err
	}
	return e.state.PutVault(vault)
}

// accrue computes and applies interest in place on the loaded vault state.
// The caller persists the vault record.
func (e *Engine) accrue(vault *VaultState) error {
	now := e.clock().Unix()
	if vault.LastAccrualTime == 0 {
		vault.LastAccrualTime = now
		return nil
	}
	elapsed := now - vault.LastAccrualTime
	period := int64(e.params.AccrualPeriodSeconds)
	if period <= 0 || elapsed < period {
		return nil
	}
	periods := uint64(elapsed / period)

	supply, err := e.ledger.ReportedSupply()
	if err != nil {
		return err
	}
	if supply.Sign() == 0 || vault.ActiveRateBps == 0 {
		vault.LastAccrualTime = now
		return nil
	}

	periodsBig := new(big.Int).SetUint64(periods)
	raw := new(big.Int).Mul(supply, new(big.Int).SetUint64(vault.ActiveRateBps))
	raw.Mul(raw, periodsBig)
	raw.Quo(raw, basisPoints)
	raw.Quo(raw, new(big.Int).SetUint64(e.params.PeriodsPerYear()))

	clamped := new(big.Int).Set(raw)
	limit := new(big.Int).Mul(supply, new(big.Int).SetUint64(e.params.MaxDailyAccrualBps))
	limit.Mul(limit, periodsBig)
	limit.Quo(limit, basisPoints)
	wasClamped := false
	if e.params.MaxDailyAccrualBps > 0 && clamped.Cmp(limit) > 0 {
		clamped.Set(limit)
		wasClamped = true
	}

	// The accrual timestamp always advances, even for zero interest.
	vault.LastAccrualTime = now
	if clamped.Sign() == 0 {
		return nil
	}

	fee := new(big.Int).Mul(clamped, new(big.Int).SetUint64(e.params.ProtocolFeeBps))
	fee.Quo(fee, basisPoints)
	net := new(big.Int).Sub(clamped, fee)

	if net.Sign() > 0 {
		if _, err := e.ledger.Rebase(net); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if _, err := e.ledger.Mint(e.params.FeeRecipient, fee, vault.ActiveRateBps); err != nil {
			return err
		}
	}

	e.emitter.Emit(events.VaultInterestAccrued{
		Periods: periods,
		Net:     net,
		Fee:     fee,
		Clamped: wasClamped,
	})
	return nil
}

// applyTierSchedule lowers the active rate when the reserve has crossed into
// a deeper tier. The rate never rises here.
func (e *Engine) applyTierSchedule(vault *VaultState) {
	target := e.params.TargetRate(vault.TotalReserve)
	if target >= vault.ActiveRateBps {
		return
	}
	old := vault.ActiveRateBps
	vault.ActiveRateBps = target
	tier := new(big.Int).Quo(vault.TotalReserve, e.params.TierSize)
	e.emitter.Emit(events.VaultRateChanged{
		OldRateBps: old,
		NewRateBps: target,
		Tier:       tier.Uint64(),
	})
}

// ResetRate restores the offered rate to the tier-schedule target, or to the
// base rate when the reserve is empty. Operator-only; the node enforces that.
func (e *Engine) ResetRate() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	vault.ActiveRateBps = e.params.TargetRate(vault.TotalReserve)
	return e.state.PutVault(vault)
}

// EmergencyWithdraw sweeps part of the reserve to a recovery address. The
// reserve decrement commits before the coin moves, matching redeem ordering.
func (e *Engine) EmergencyWithdraw(to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if vault.TotalReserve.Cmp(amount) < 0 {
		return errReserveDrained
	}
	moduleAcc, err := e.loadAccount(e.module)
	if err != nil {
		return err
	}
	if moduleAcc.Balance.Cmp(amount) < 0 {
		return errReserveDrained
	}
	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}

	vault.TotalReserve = new(big.Int).Sub(vault.TotalReserve, amount)
	if err := e.state.PutVault(vault); err != nil {
		return err
	}

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(e.module, moduleAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// ActiveRate returns the rate currently offered to new deposits.
func (e *Engine) ActiveRate() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	vault, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	return vault.ActiveRateBps, nil
}

// TotalReserve returns the native coin backing outstanding claims.
func (e *Engine) TotalReserve() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(vault.TotalReserve), nil
}

func (e *Engine) loadVault() (*VaultState, error) {
	vault, err := e.state.GetVault()
	if err != nil {
		return nil, err
	}
	vault = vault.Normalize()
	if vault.ActiveRateBps == 0 && vault.TotalReserve.Sign() == 0 && vault.LastAccrualTime == 0 {
		vault.ActiveRateBps = e.params.BaseRateBps
	}
	return vault, nil
}

func (e *Engine) ensurePosition(addr crypto.Address) (*Position, error) {
	position, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Address: addr}
	}
	return position.Normalize(), nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Normalize(), nil
}

func addressKey(addr crypto.Address) [20]byte {
	var key [20]byte
	copy(key[:], addr.Bytes())
	return key
}
