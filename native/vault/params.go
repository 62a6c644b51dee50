package vault

import (
	"errors"
	"math/big"

	"tidechain/crypto"
)

var (
	errTierSize      = errors.New("vault params: tier size must be positive")
	errAccrualPeriod = errors.New("vault params: accrual period must be positive")
	errBaseRate      = errors.New("vault params: base rate exceeds 10000 bps")
	errMinimumRate   = errors.New("vault params: minimum rate above base rate")
	errProtocolFee   = errors.New("vault params: protocol fee exceeds 10000 bps")
	errFeeRecipient  = errors.New("vault params: protocol fee requires a fee recipient")
)

const secondsPerYear = 31_536_000

// Params groups the operator-controlled economics of the vault.
type Params struct {
	// BaseRateBps is the rate offered before any tier has been crossed.
	BaseRateBps uint64
	// TierDecrementBps is subtracted from the offered rate per tier crossed.
	TierDecrementBps uint64
	// MinimumRateBps floors the offered rate regardless of tier depth.
	MinimumRateBps uint64
	// TierSize is the reserve volume that advances the schedule one tier.
	TierSize *big.Int
	// AccrualPeriodSeconds is the cadence interest is applied at.
	AccrualPeriodSeconds uint64
	// MaxDailyAccrualBps clamps the interest applied per accrual period,
	// expressed against the reported supply.
	MaxDailyAccrualBps uint64
	// ProtocolFeeBps is the share of accrued interest minted to the fee
	// recipient instead of rebased to holders.
	ProtocolFeeBps uint64
	// FeeRecipient receives the protocol's share of accrued interest.
	FeeRecipient crypto.Address
	// MinDeposit rejects dust deposits. Zero disables the check.
	MinDeposit *big.Int
	// PerAddressCap bounds cumulative deposits per address. Zero disables.
	PerAddressCap *big.Int
	// GlobalCap bounds the total reserve. Zero disables.
	GlobalCap *big.Int
	// RequireAllowList restricts deposits to allow-listed addresses.
	RequireAllowList bool
}

// Validate rejects configurations the engine cannot operate under.
func (p Params) Validate() error {
	if p.TierSize == nil || p.TierSize.Sign() <= 0 {
		return errTierSize
	}
	if p.AccrualPeriodSeconds == 0 || p.AccrualPeriodSeconds > secondsPerYear {
		return errAccrualPeriod
	}
	if p.BaseRateBps > 10_000 {
		return errBaseRate
	}
	if p.MinimumRateBps > p.BaseRateBps {
		return errMinimumRate
	}
	if p.ProtocolFeeBps > 10_000 {
		return errProtocolFee
	}
	if p.ProtocolFeeBps > 0 && p.FeeRecipient.IsZero() {
		return errFeeRecipient
	}
	return nil
}

// PeriodsPerYear derives the annualisation divisor from the accrual cadence.
func (p Params) PeriodsPerYear() uint64 {
	if p.AccrualPeriodSeconds == 0 {
		return 0
	}
	periods := uint64(secondsPerYear) / p.AccrualPeriodSeconds
	if periods == 0 {
		periods = 1
	}
	return periods
}

// TargetRate computes the tier-schedule rate for the given reserve volume.
func (p Params) TargetRate(totalReserve *big.Int) uint64 {
	if totalReserve == nil || totalReserve.Sign() <= 0 || p.TierSize == nil || p.TierSize.Sign() <= 0 {
		return p.BaseRateBps
	}
	tier := new(big.Int).Quo(totalReserve, p.TierSize)
	discount := new(big.Int).Mul(tier, new(big.Int).SetUint64(p.TierDecrementBps))
	base := new(big.Int).SetUint64(p.BaseRateBps)
	floor := new(big.Int).SetUint64(p.MinimumRateBps)
	target := new(big.Int).Sub(base, discount)
	if target.Cmp(floor) < 0 {
		return p.MinimumRateBps
	}
	return target.Uint64()
}
