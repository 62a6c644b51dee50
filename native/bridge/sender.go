package bridge

import (
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"

	"tidechain/core/events"
	"tidechain/crypto"
	"tidechain/native/common"
)

var (
	errNilState          = errors.New("bridge engine: state not configured")
	errNilLedger         = errors.New("bridge engine: ledger not configured")
	errNilFabric         = errors.New("bridge engine: fabric not configured")
	errNilKey            = errors.New("bridge engine: signing key not configured")
	errInvalidAmount     = errors.New("bridge engine: amount must be positive")
	errNullRecipient     = errors.New("bridge engine: null recipient address")
	errRouteNotFound     = errors.New("bridge engine: route not configured")
	errRouteDisabled     = errors.New("bridge engine: route disabled")
	errPeerNotSet        = errors.New("bridge engine: route peer not configured")
	errInsufficientFunds = errors.New("bridge engine: insufficient token balance")
	errTransportFunds    = errors.New("bridge engine: fee balance cannot cover transport")
)

var basisPoints = big.NewInt(10_000)

const moduleName = common.ModuleBridge

// Sender is the source-side endpoint: it burns claims, emits a signed
// envelope carrying the holder's locked rate, and re-mints the protocol fee
// locally so combined supply across both partitions stays neutral.
type Sender struct {
	state        State
	ledger       TokenLedger
	fabric       Fabric
	key          *crypto.PrivateKey
	feeRecipient crypto.Address
	pauses       common.PauseView
	emitter      events.Emitter
	clock        func() time.Time
}

// NewSender constructs the source-side endpoint. The key signs every
// outbound envelope; its address is what the paired receiver expects as peer.
func NewSender(tokens TokenLedger, fabric Fabric, key *crypto.PrivateKey, feeRecipient crypto.Address) *Sender {
	return &Sender{
		ledger:       tokens,
		fabric:       fabric,
		key:          key,
		feeRecipient: feeRecipient,
		emitter:      events.NoopEmitter{},
		clock:        time.Now,
	}
}

// SetState wires the endpoint to the external persistence layer.
func (s *Sender) SetState(state State) {
	if s == nil {
		return
	}
	s.state = state
}

// SetPauses wires the pause switchboard.
func (s *Sender) SetPauses(p common.PauseView) {
	if s == nil {
		return
	}
	s.pauses = p
}

// SetEmitter wires an event sink.
func (s *Sender) SetEmitter(emitter events.Emitter) {
	if s == nil {
		return
	}
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SetClock overrides the time source used for day buckets.
func (s *Sender) SetClock(clock func() time.Time) {
	if s == nil || clock == nil {
		return
	}
	s.clock = clock
}

// Send burns amount from the caller and dispatches a single-recipient
// envelope on the route. Returns the transfer id assigned to the envelope.
func (s *Sender) Send(caller crypto.Address, routeID uint64, recipient crypto.Address, amount *big.Int) (string, error) {
	if recipient.IsZero() {
		return "", errNullRecipient
	}
	return s.send(caller, routeID, []Leg{{Recipient: addressKey(recipient), Amount: amount}})
}

// SendBatch burns the sum of all legs from the caller and dispatches one
// envelope carrying every recipient. Caps and limits are charged once
// against the total.
func (s *Sender) SendBatch(caller crypto.Address, routeID uint64, legs []Leg) (string, error) {
	return s.send(caller, routeID, legs)
}

func (s *Sender) send(caller crypto.Address, routeID uint64, legs []Leg) (string, error) {
	if s == nil || s.state == nil {
		return "", errNilState
	}
	if s.ledger == nil {
		return "", errNilLedger
	}
	if s.fabric == nil {
		return "", errNilFabric
	}
	if s.key == nil {
		return "", errNilKey
	}
	if err := common.Guard(s.pauses, moduleName); err != nil {
		return "", err
	}
	if len(legs) == 0 {
		return "", errNoLegs
	}
	for _, leg := range legs {
		if leg.Amount == nil || leg.Amount.Sign() <= 0 {
			return "", errInvalidAmount
		}
		if zeroKey(leg.Recipient) {
			return "", errNullRecipient
		}
	}

	route, err := s.loadRoute(routeID)
	if err != nil {
		return "", err
	}

	gross := new(big.Int)
	for _, leg := range legs {
		gross.Add(gross, leg.Amount)
	}
	if err := CheckPerMessageCap(route.PerMessageCap, gross); err != nil {
		return "", err
	}

	day := DayBucket(s.clock().Unix())
	usage, err := s.state.GetOutboundUsage(routeID)
	if err != nil {
		return "", err
	}
	usage, err = ApplyDailyCap(route.DailyCap, usage, day, gross)
	if err != nil {
		return "", err
	}

	balance, err := s.ledger.BalanceOf(caller)
	if err != nil {
		return "", err
	}
	if balance.Cmp(gross) < 0 {
		return "", errInsufficientFunds
	}

	// Transport cost is checked before any burn side effect is visible.
	transportFee := s.fabric.Fee()
	feeBalance, err := s.state.GetFeeBalance()
	if err != nil {
		return "", err
	}
	if feeBalance == nil {
		feeBalance = big.NewInt(0)
	}
	if transportFee != nil && feeBalance.Cmp(transportFee) < 0 {
		return "", errTransportFunds
	}

	rate, _, err := s.ledger.LockedRate(caller)
	if err != nil {
		return "", err
	}

	fee := new(big.Int)
	netLegs := make([]Leg, len(legs))
	for i, leg := range legs {
		legFee := new(big.Int).Mul(leg.Amount, new(big.Int).SetUint64(route.FeeBps))
		legFee.Quo(legFee, basisPoints)
		fee.Add(fee, legFee)
		netLegs[i] = Leg{Recipient: leg.Recipient, Amount: new(big.Int).Sub(leg.Amount, legFee)}
	}
	net := new(big.Int).Sub(gross, fee)

	nonce, err := s.state.GetNonce()
	if err != nil {
		return "", err
	}
	env := Envelope{
		RouteID:    routeID,
		Nonce:      nonce + 1,
		TransferID: uuid.NewString(),
		RateBps:    rate,
		Legs:       netLegs,
	}
	signed, err := Sign(env, s.key)
	if err != nil {
		return "", err
	}

	// The burn precedes the dispatch so a destination mint can never exist
	// without its source burn. All inputs were validated above; from here only
	// storage faults can interrupt the sequence.
	if _, err := s.ledger.Burn(caller, gross); err != nil {
		return "", err
	}
	if fee.Sign() > 0 {
		if _, err := s.ledger.Mint(s.feeRecipient, fee, rate); err != nil {
			return "", err
		}
	}

	if err := s.fabric.Dispatch(signed); err != nil {
		// The envelope never reached the fabric, so the local debit must not
		// stand: unwind the fee mint and restore the caller's balance.
		if fee.Sign() > 0 {
			if _, unwindErr := s.ledger.Burn(s.feeRecipient, fee); unwindErr != nil {
				return "", errors.Join(err, unwindErr)
			}
		}
		if _, unwindErr := s.ledger.Mint(caller, gross, rate); unwindErr != nil {
			return "", errors.Join(err, unwindErr)
		}
		return "", err
	}

	if transportFee != nil && transportFee.Sign() > 0 {
		feeBalance = new(big.Int).Sub(feeBalance, transportFee)
		if err := s.state.PutFeeBalance(feeBalance); err != nil {
			return "", err
		}
	}
	if err := s.state.PutNonce(nonce + 1); err != nil {
		return "", err
	}
	if err := s.state.PutOutboundUsage(routeID, usage); err != nil {
		return "", err
	}

	s.emitter.Emit(events.BridgeSent{
		Route:      routeID,
		TransferID: env.TransferID,
		Sender:     addressKey(caller),
		Gross:      gross,
		Fee:        fee,
		Net:        net,
		RateBps:    rate,
	})
	return env.TransferID, nil
}

// FundFees tops up the prefunded transport fee balance. Operator-only.
func (s *Sender) FundFees(amount *big.Int) error {
	if s == nil || s.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	balance, err := s.state.GetFeeBalance()
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	return s.state.PutFeeBalance(new(big.Int).Add(balance, amount))
}

func (s *Sender) loadRoute(id uint64) (*Route, error) {
	route, err := s.state.GetRoute(id)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, errRouteNotFound
	}
	route = route.Normalize()
	if !route.Enabled {
		return nil, errRouteDisabled
	}
	if route.Peer.IsZero() {
		return nil, errPeerNotSet
	}
	return route, nil
}

func addressKey(addr crypto.Address) [20]byte {
	var key [20]byte
	copy(key[:], addr.Bytes())
	return key
}

func zeroKey(key [20]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
