package bridge

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"tidechain/core/events"
	"tidechain/crypto"
	"tidechain/native/common"
	"tidechain/native/ledger"
)

// mockState backs one partition: bridge bookkeeping plus the ledger records
// the partition's token engine operates on.
type mockState struct {
	routes    map[uint64]*Route
	outbound  map[uint64]*Usage
	inbound   map[uint64]*Usage
	buckets   map[uint64]*Bucket
	fee       *big.Int
	nonce     uint64
	processed map[string]bool

	supply  *ledger.Supply
	holders map[[20]byte]*ledger.Holder
}

func newMockState() *mockState {
	return &mockState{
		routes:    make(map[uint64]*Route),
		outbound:  make(map[uint64]*Usage),
		inbound:   make(map[uint64]*Usage),
		buckets:   make(map[uint64]*Bucket),
		processed: make(map[string]bool),
		holders:   make(map[[20]byte]*ledger.Holder),
	}
}

func (m *mockState) GetRoute(id uint64) (*Route, error) { return m.routes[id], nil }
func (m *mockState) PutRoute(route *Route) error        { m.routes[route.ID] = route; return nil }
func (m *mockState) GetOutboundUsage(route uint64) (*Usage, error) {
	return m.outbound[route], nil
}
func (m *mockState) PutOutboundUsage(route uint64, usage *Usage) error {
	m.outbound[route] = usage
	return nil
}
func (m *mockState) GetInboundUsage(route uint64) (*Usage, error) {
	return m.inbound[route], nil
}
func (m *mockState) PutInboundUsage(route uint64, usage *Usage) error {
	m.inbound[route] = usage
	return nil
}
func (m *mockState) GetBucket(route uint64) (*Bucket, error) { return m.buckets[route], nil }
func (m *mockState) PutBucket(route uint64, bucket *Bucket) error {
	m.buckets[route] = bucket
	return nil
}
func (m *mockState) GetFeeBalance() (*big.Int, error) { return m.fee, nil }
func (m *mockState) PutFeeBalance(b *big.Int) error   { m.fee = b; return nil }
func (m *mockState) GetNonce() (uint64, error)        { return m.nonce, nil }
func (m *mockState) PutNonce(nonce uint64) error      { m.nonce = nonce; return nil }
func (m *mockState) MarkTransferProcessed(id string) error {
	m.processed[id] = true
	return nil
}

func (m *mockState) GetSupply() (*ledger.Supply, error) { return m.supply, nil }
func (m *mockState) PutSupply(s *ledger.Supply) error   { m.supply = s; return nil }
func (m *mockState) GetHolder(addr crypto.Address) (*ledger.Holder, error) {
	var key [20]byte
	copy(key[:], addr.Bytes())
	return m.holders[key], nil
}
func (m *mockState) PutHolder(h *ledger.Holder) error {
	var key [20]byte
	copy(key[:], h.Address.Bytes())
	m.holders[key] = h
	return nil
}

func testAddr(seed byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = seed
	raw[19] = seed
	return crypto.NewAddress(crypto.TidePrefix, raw)
}

var feeRecipient = crypto.NewAddress(crypto.FeePrefix, append(make([]byte, 19), 0xFE))

// partition bundles one side of the bridge: its state, token engine and both
// endpoints.
type partition struct {
	state    *mockState
	tokens   *ledger.Engine
	sender   *Sender
	receiver *Receiver
	key      *crypto.PrivateKey
	now      time.Time
}

func newPartition(t *testing.T, fabric Fabric) *partition {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	state := newMockState()
	tokens := ledger.NewEngine(state)

	p := &partition{
		state:  state,
		tokens: tokens,
		key:    key,
		now:    time.Unix(1_700_000_000, 0),
	}
	clock := func() time.Time { return p.now }

	p.sender = NewSender(tokens, fabric, key, feeRecipient)
	p.sender.SetState(state)
	p.sender.SetClock(clock)

	p.receiver = NewReceiver(tokens)
	p.receiver.SetState(state)
	p.receiver.SetClock(clock)
	return p
}

func (p *partition) setRoute(route *Route) {
	p.state.routes[route.ID] = route.Normalize()
}

func (p *partition) mint(t *testing.T, addr crypto.Address, amount int64, rateBps uint64) {
	t.Helper()
	if _, err := p.tokens.Mint(addr, big.NewInt(amount), rateBps); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (p *partition) balance(t *testing.T, addr crypto.Address) *big.Int {
	t.Helper()
	bal, err := p.tokens.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

// newBridge wires a source and destination partition over one in-process
// fabric, with route 7 configured on both sides.
func newBridge(t *testing.T, route Route) (*partition, *partition, *QueueFabric) {
	t.Helper()
	fabric := NewQueueFabric(big.NewInt(0))
	source := newPartition(t, fabric)
	dest := newPartition(t, fabric)

	srcRoute := route
	srcRoute.ID = 7
	srcRoute.Enabled = true
	srcRoute.Peer = dest.key.PubKey().Address()
	source.setRoute(&srcRoute)

	dstRoute := route
	dstRoute.ID = 7
	dstRoute.Enabled = true
	dstRoute.Peer = source.key.PubKey().Address()
	dest.setRoute(&dstRoute)

	return source, dest, fabric
}

func TestSendBurnsAndCarriesLockedRate(t *testing.T) {
	source, dest, fabric := newBridge(t, Route{FeeBps: 500})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 600)

	transferID, err := source.sender.Send(alice, 7, bob, big.NewInt(100))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if transferID == "" {
		t.Fatal("empty transfer id")
	}

	// The full amount burns; the 5% protocol fee re-mints locally.
	if got := source.balance(t, alice); got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("alice balance = %s, want 900", got)
	}
	if got := source.balance(t, feeRecipient); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("fee recipient balance = %s, want 5", got)
	}
	if fabric.Pending() != 1 {
		t.Fatalf("pending envelopes = %d, want 1", fabric.Pending())
	}

	if errs := fabric.Deliver(dest.receiver); len(errs) != 0 {
		t.Fatalf("deliver: %v", errs)
	}
	if got := dest.balance(t, bob); got.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("bob balance = %s, want net 95", got)
	}
	rate, set, err := dest.tokens.LockedRate(bob)
	if err != nil {
		t.Fatalf("locked rate: %v", err)
	}
	if !set || rate != 600 {
		t.Fatalf("bob locked rate = (%d, %v), want carried (600, true)", rate, set)
	}
	if !dest.state.processed[transferID] {
		t.Fatal("transfer not marked processed")
	}
}

func TestReceivePreservesExistingRate(t *testing.T) {
	source, dest, fabric := newBridge(t, Route{})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 600)
	dest.mint(t, bob, 50, 300)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if errs := fabric.Deliver(dest.receiver); len(errs) != 0 {
		t.Fatalf("deliver: %v", errs)
	}

	// Bob already held a locked rate; the carried 600 does not replace it.
	rate, set, _ := dest.tokens.LockedRate(bob)
	if !set || rate != 300 {
		t.Fatalf("bob locked rate = (%d, %v), want original (300, true)", rate, set)
	}
	if got := dest.balance(t, bob); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("bob balance = %s, want 150", got)
	}
}

func TestSendBatch(t *testing.T) {
	source, dest, fabric := newBridge(t, Route{FeeBps: 1_000})
	alice := testAddr(1)
	source.mint(t, alice, 1_000, 0)

	legs := []Leg{
		{Recipient: addressKey(testAddr(2)), Amount: big.NewInt(100)},
		{Recipient: addressKey(testAddr(3)), Amount: big.NewInt(200)},
	}
	if _, err := source.sender.SendBatch(alice, 7, legs); err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if got := source.balance(t, alice); got.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("alice balance = %s, want 700", got)
	}
	if got := source.balance(t, feeRecipient); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("fee recipient = %s, want 30", got)
	}

	if errs := fabric.Deliver(dest.receiver); len(errs) != 0 {
		t.Fatalf("deliver: %v", errs)
	}
	if got := dest.balance(t, testAddr(2)); got.Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("first leg = %s, want 90", got)
	}
	if got := dest.balance(t, testAddr(3)); got.Cmp(big.NewInt(180)) != 0 {
		t.Fatalf("second leg = %s, want 180", got)
	}
}

func TestSendRejectsWithoutBurning(t *testing.T) {
	source, _, fabric := newBridge(t, Route{PerMessageCap: big.NewInt(50)})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 0)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(60)); !errors.Is(err, ErrPerMessageCap) {
		t.Fatalf("got %v, want %v", err, ErrPerMessageCap)
	}
	if got := source.balance(t, alice); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("alice balance = %s, want untouched 1000", got)
	}
	if fabric.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", fabric.Pending())
	}

	if _, err := source.sender.Send(alice, 99, bob, big.NewInt(10)); !errors.Is(err, errRouteNotFound) {
		t.Fatalf("unknown route: got %v, want %v", err, errRouteNotFound)
	}
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(2_000)); !errors.Is(err, errInsufficientFunds) {
		t.Fatalf("overdraw: got %v, want %v", err, errInsufficientFunds)
	}
}

func TestSendDailyCapResetsNextDay(t *testing.T) {
	source, _, _ := newBridge(t, Route{DailyCap: big.NewInt(150)})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 10_000, 0)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); !errors.Is(err, ErrDailyCap) {
		t.Fatalf("got %v, want %v", err, ErrDailyCap)
	}
	// A smaller send still fits under the cap.
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(50)); err != nil {
		t.Fatalf("fill to cap: %v", err)
	}

	source.now = source.now.Add(24 * time.Hour)
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); err != nil {
		t.Fatalf("next day: %v", err)
	}
}

func TestSendRequiresTransportFeeBalance(t *testing.T) {
	fabric := NewQueueFabric(big.NewInt(10))
	source := newPartition(t, fabric)
	dest := newPartition(t, fabric)
	source.setRoute(&Route{ID: 7, Enabled: true, Peer: dest.key.PubKey().Address()})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 0)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); !errors.Is(err, errTransportFunds) {
		t.Fatalf("got %v, want %v", err, errTransportFunds)
	}

	if err := source.sender.FundFees(big.NewInt(25)); err != nil {
		t.Fatalf("fund fees: %v", err)
	}
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(100)); err != nil {
		t.Fatalf("send after funding: %v", err)
	}
	if source.state.fee.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("fee balance = %s, want 15", source.state.fee)
	}
}

func TestSendNonceIncrements(t *testing.T) {
	source, _, fabric := newBridge(t, Route{})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 0)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(10)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(10)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if source.state.nonce != 2 {
		t.Fatalf("nonce = %d, want 2", source.state.nonce)
	}
	_ = fabric
}

func TestReceiveRejectsUnknownPeer(t *testing.T) {
	_, dest, _ := newBridge(t, Route{})
	intruder, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	env := Envelope{
		RouteID:    7,
		Nonce:      1,
		TransferID: "forged",
		RateBps:    600,
		Legs:       []Leg{{Recipient: addressKey(testAddr(2)), Amount: big.NewInt(100)}},
	}
	signed, err := Sign(env, intruder)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := dest.receiver.Receive(signed); !errors.Is(err, errUnknownPeer) {
		t.Fatalf("got %v, want %v", err, errUnknownPeer)
	}
	if got := dest.balance(t, testAddr(2)); got.Sign() != 0 {
		t.Fatalf("forged envelope minted %s", got)
	}
	if dest.state.processed["forged"] {
		t.Fatal("forged transfer marked processed")
	}
}

func TestReceiveRejectsExcessiveRate(t *testing.T) {
	source, dest, _ := newBridge(t, Route{})
	env := Envelope{
		RouteID:    7,
		Nonce:      1,
		TransferID: "hot",
		RateBps:    10_001,
		Legs:       []Leg{{Recipient: addressKey(testAddr(2)), Amount: big.NewInt(100)}},
	}
	signed, err := Sign(env, source.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := dest.receiver.Receive(signed); !errors.Is(err, errInvalidRate) {
		t.Fatalf("got %v, want %v", err, errInvalidRate)
	}
}

func TestReceiveTokenBucketThrottles(t *testing.T) {
	source, dest, fabric := newBridge(t, Route{Limiter: BucketParams{RefillPerSecond: 0, Burst: 1}})
	alice := testAddr(1)
	bob := testAddr(2)
	source.mint(t, alice, 1_000, 0)

	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(10)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := source.sender.Send(alice, 7, bob, big.NewInt(10)); err != nil {
		t.Fatalf("send: %v", err)
	}

	errs := fabric.Deliver(dest.receiver)
	if len(errs) != 1 || !errors.Is(errs[0], ErrBucketDrained) {
		t.Fatalf("deliver errors = %v, want one %v", errs, ErrBucketDrained)
	}
	// Only the first envelope landed.
	if got := dest.balance(t, bob); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("bob balance = %s, want 10", got)
	}
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

func TestReceiveRejectionEmitsEvent(t *testing.T) {
	_, dest, _ := newBridge(t, Route{})
	rec := &recordingEmitter{}
	dest.receiver.SetEmitter(rec)

	intruder, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env := Envelope{
		RouteID:    7,
		Nonce:      1,
		TransferID: "forged",
		Legs:       []Leg{{Recipient: addressKey(testAddr(2)), Amount: big.NewInt(1)}},
	}
	signed, err := Sign(env, intruder)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := dest.receiver.Receive(signed); err == nil {
		t.Fatal("expected rejection")
	}
	var rejections int
	for _, kind := range rec.types {
		if kind == events.TypeBridgeRejected {
			rejections++
		}
	}
	if rejections != 1 {
		t.Fatalf("rejection events = %d, want 1", rejections)
	}
}

func TestPauseBlocksBothDirections(t *testing.T) {
	source, dest, fabric := newBridge(t, Route{})
	pauses := common.NewSwitchboard()
	pauses.SetPaused(common.ModuleBridge, true)
	source.sender.SetPauses(pauses)
	dest.receiver.SetPauses(pauses)

	alice := testAddr(1)
	source.mint(t, alice, 1_000, 0)
	if _, err := source.sender.Send(alice, 7, testAddr(2), big.NewInt(10)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("send: got %v, want %v", err, common.ErrModulePaused)
	}

	pauses.SetPaused(common.ModuleBridge, false)
	if _, err := source.sender.Send(alice, 7, testAddr(2), big.NewInt(10)); err != nil {
		t.Fatalf("send after resume: %v", err)
	}
	pauses.SetPaused(common.ModuleBridge, true)
	errs := fabric.Deliver(dest.receiver)
	if len(errs) != 1 || !errors.Is(errs[0], common.ErrModulePaused) {
		t.Fatalf("deliver errors = %v, want one %v", errs, common.ErrModulePaused)
	}
}

// faultFabric charges no fee and fails every dispatch.
type faultFabric struct{ err error }

func (f *faultFabric) Fee() *big.Int                  { return big.NewInt(0) }
func (f *faultFabric) Dispatch(*SignedEnvelope) error { return f.err }

func TestSendUnwindsBurnWhenDispatchFails(t *testing.T) {
	dispatchErr := errors.New("fabric offline")
	source := newPartition(t, &faultFabric{err: dispatchErr})
	source.setRoute(&Route{ID: 7, Enabled: true, FeeBps: 500, Peer: testAddr(9)})
	alice := testAddr(1)
	source.mint(t, alice, 1_000, 600)

	if _, err := source.sender.Send(alice, 7, testAddr(2), big.NewInt(100)); !errors.Is(err, dispatchErr) {
		t.Fatalf("send: got %v, want %v", err, dispatchErr)
	}

	// The burn and local fee mint must not survive a failed dispatch.
	if bal := source.balance(t, alice); bal.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("alice balance = %s, want 1000", bal)
	}
	if bal := source.balance(t, feeRecipient); bal.Sign() != 0 {
		t.Fatalf("fee recipient balance = %s, want 0", bal)
	}
	if source.state.nonce != 0 {
		t.Fatalf("nonce = %d, want 0", source.state.nonce)
	}
	if usage := source.state.outbound[7]; usage != nil {
		t.Fatalf("outbound usage recorded for undispatched message: %+v", usage)
	}
}
