package bridge

import (
	"errors"
	"math/big"
)

var (
	ErrPerMessageCap = errors.New("bridge limits: per-message cap exceeded")
	ErrDailyCap      = errors.New("bridge limits: daily cap exceeded")
	ErrBucketDrained = errors.New("bridge limits: rate limiter exhausted")
)

// SecondsPerDay fixes the calendar-day length used by the rolling cap. The
// counter resets on day-number boundaries (unix time / SecondsPerDay), not on
// a sliding 24-hour window.
const SecondsPerDay = 86_400

// DayBucket is the integer day number for a unix timestamp.
func DayBucket(now int64) uint64 {
	if now <= 0 {
		return 0
	}
	return uint64(now) / SecondsPerDay
}

// Usage is the rolling daily counter kept per route, independently on each
// side of the bridge.
type Usage struct {
	// DayBucket is the day number DailySpent was last charged in.
	DayBucket uint64
	// DailySpent accumulates the value moved during the current day.
	DailySpent *big.Int
}

// Normalize backfills nil fields.
func (u *Usage) Normalize() *Usage {
	if u == nil {
		return &Usage{DailySpent: big.NewInt(0)}
	}
	if u.DailySpent == nil {
		u.DailySpent = big.NewInt(0)
	}
	return u
}

// ApplyDailyCap rolls the usage into the current day and charges amount
// against the cap. A nil or non-positive cap disables the check but still
// accumulates usage. On rejection the prior usage is returned unchanged.
func ApplyDailyCap(capAmount *big.Int, usage *Usage, day uint64, amount *big.Int) (*Usage, error) {
	usage = usage.Normalize()
	next := &Usage{DayBucket: usage.DayBucket, DailySpent: new(big.Int).Set(usage.DailySpent)}
	if next.DayBucket != day {
		next.DayBucket = day
		next.DailySpent = big.NewInt(0)
	}
	if amount != nil {
		next.DailySpent.Add(next.DailySpent, amount)
	}
	if capAmount != nil && capAmount.Sign() > 0 && next.DailySpent.Cmp(capAmount) > 0 {
		return usage, ErrDailyCap
	}
	return next, nil
}

// CheckPerMessageCap rejects a transfer above the per-message cap. Nil or
// non-positive caps disable the check.
func CheckPerMessageCap(capAmount, amount *big.Int) error {
	if capAmount == nil || capAmount.Sign() <= 0 {
		return nil
	}
	if amount != nil && amount.Cmp(capAmount) > 0 {
		return ErrPerMessageCap
	}
	return nil
}

// BucketParams configures the continuous token-bucket limiter applied to
// inbound messages on the generalized multi-route variant.
type BucketParams struct {
	// RefillPerSecond is the token refill rate.
	RefillPerSecond uint64
	// Burst caps the bucket; zero disables the limiter entirely.
	Burst uint64
	// CostPerMessage is the fixed debit per inbound message.
	CostPerMessage uint64
}

// Enabled reports whether the limiter applies.
func (p BucketParams) Enabled() bool { return p.Burst > 0 }

// Bucket is the persisted limiter state for one route.
type Bucket struct {
	// Tokens currently available.
	Tokens uint64
	// LastRefill is the unix time of the last lazy refill. Zero marks a
	// bucket never used; it starts full.
	LastRefill int64
}

// TakeFromBucket lazily refills the bucket to now and debits one message
// cost. On rejection the refreshed (but undebited) bucket is returned so the
// refill is not lost.
func TakeFromBucket(params BucketParams, bucket *Bucket, now int64) (*Bucket, error) {
	if !params.Enabled() {
		return bucket, nil
	}
	next := &Bucket{LastRefill: now}
	if bucket == nil || bucket.LastRefill == 0 {
		next.Tokens = params.Burst
	} else {
		next.Tokens = bucket.Tokens
		if now > bucket.LastRefill {
			// A gap long enough to refill the whole burst saturates the
			// bucket before any multiplication can wrap.
			elapsed := uint64(now - bucket.LastRefill)
			if params.RefillPerSecond > 0 && elapsed >= params.Burst/params.RefillPerSecond+1 {
				next.Tokens = params.Burst
			} else {
				next.Tokens += elapsed * params.RefillPerSecond
			}
		} else {
			next.LastRefill = bucket.LastRefill
		}
		if next.Tokens > params.Burst {
			next.Tokens = params.Burst
		}
	}
	cost := params.CostPerMessage
	if cost == 0 {
		cost = 1
	}
	if next.Tokens < cost {
		return next, ErrBucketDrained
	}
	next.Tokens -= cost
	return next, nil
}
