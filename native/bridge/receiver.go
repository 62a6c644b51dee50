package bridge

import (
	"errors"
	"time"

	"tidechain/core/events"
	"tidechain/crypto"
	"tidechain/native/common"
)

var (
	errNilEnvelope = errors.New("bridge engine: nil envelope")
	errUnknownPeer = errors.New("bridge engine: envelope signer is not the route peer")
	errInvalidRate = errors.New("bridge engine: carried rate exceeds 10000 bps")
)

// Receiver is the destination-side endpoint, invoked by the messaging fabric
// rather than by users. It validates the envelope's origin and limits, then
// mints claims preserving the carried rate. A recipient who already holds a
// locked rate keeps it; the ledger assigns rates on first mint only.
type Receiver struct {
	state   State
	ledger  TokenLedger
	pauses  common.PauseView
	emitter events.Emitter
	clock   func() time.Time
}

// NewReceiver constructs the destination-side endpoint.
func NewReceiver(tokens TokenLedger) *Receiver {
	return &Receiver{
		ledger:  tokens,
		emitter: events.NoopEmitter{},
		clock:   time.Now,
	}
}

// SetState wires the endpoint to the external persistence layer.
func (r *Receiver) SetState(state State) {
	if r == nil {
		return
	}
	r.state = state
}

// SetPauses wires the pause switchboard.
func (r *Receiver) SetPauses(p common.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetEmitter wires an event sink.
func (r *Receiver) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetClock overrides the time source used for day buckets and the token
// bucket refill.
func (r *Receiver) SetClock(clock func() time.Time) {
	if r == nil || clock == nil {
		return
	}
	r.clock = clock
}

// Receive validates and applies one inbound envelope. Validation failures
// reject the message with no partial mutation and without notifying the
// sender; the fabric's delivery guarantee makes replays its problem, not
// ours.
func (r *Receiver) Receive(signed *SignedEnvelope) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if r.ledger == nil {
		return errNilLedger
	}
	if signed == nil {
		return errNilEnvelope
	}
	env := signed.Envelope
	if err := r.receive(signed); err != nil {
		r.emitter.Emit(events.BridgeRejected{
			Route:      env.RouteID,
			TransferID: env.TransferID,
			Reason:     err.Error(),
		})
		return err
	}
	return nil
}

func (r *Receiver) receive(signed *SignedEnvelope) error {
	if err := common.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	env := signed.Envelope
	if len(env.Legs) == 0 {
		return errNoLegs
	}
	if env.RateBps > 10_000 {
		return errInvalidRate
	}
	for _, leg := range env.Legs {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return errInvalidAmount
		}
		if zeroKey(leg.Recipient) {
			return errNullRecipient
		}
	}

	route, err := r.state.GetRoute(env.RouteID)
	if err != nil {
		return err
	}
	if route == nil {
		return errRouteNotFound
	}
	route = route.Normalize()
	if !route.Enabled {
		return errRouteDisabled
	}
	if route.Peer.IsZero() {
		return errPeerNotSet
	}

	// Origin check: the envelope must recover to the configured peer. The
	// transport's origin claim is trusted; this binds it cryptographically.
	signer, err := signed.SignerAddress()
	if err != nil {
		return err
	}
	if !signer.Equal(route.Peer) {
		return errUnknownPeer
	}

	total := env.Total()
	if err := CheckPerMessageCap(route.PerMessageCap, total); err != nil {
		return err
	}

	now := r.clock().Unix()
	usage, err := r.state.GetInboundUsage(env.RouteID)
	if err != nil {
		return err
	}
	usage, err = ApplyDailyCap(route.DailyCap, usage, DayBucket(now), total)
	if err != nil {
		return err
	}

	bucket, err := r.state.GetBucket(env.RouteID)
	if err != nil {
		return err
	}
	bucket, err = TakeFromBucket(route.Limiter, bucket, now)
	if err != nil {
		// Persist the lazy refill even when the message is rejected.
		if putErr := r.state.PutBucket(env.RouteID, bucket); putErr != nil {
			return putErr
		}
		return err
	}

	for _, leg := range env.Legs {
		recipient := crypto.NewAddress(crypto.TidePrefix, append([]byte(nil), leg.Recipient[:]...))
		if _, err := r.ledger.Mint(recipient, leg.Amount, env.RateBps); err != nil {
			return err
		}
	}

	if err := r.state.PutInboundUsage(env.RouteID, usage); err != nil {
		return err
	}
	if route.Limiter.Enabled() {
		if err := r.state.PutBucket(env.RouteID, bucket); err != nil {
			return err
		}
	}
	if err := r.state.MarkTransferProcessed(env.TransferID); err != nil {
		return err
	}

	r.emitter.Emit(events.BridgeReceived{
		Route:      env.RouteID,
		TransferID: env.TransferID,
		Amount:     total,
		RateBps:    env.RateBps,
		Recipients: len(env.Legs),
	})
	return nil
}
