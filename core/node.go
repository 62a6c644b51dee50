package core

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"tidechain/core/events"
	"tidechain/core/state"
	"tidechain/crypto"
	"tidechain/native/bridge"
	"tidechain/native/common"
	"tidechain/native/ledger"
	"tidechain/native/vault"
	"tidechain/storage"
)

var (
	ErrUnauthorized = errors.New("node: caller is not the operator")
	errNilDatabase  = errors.New("node: database not configured")
	errNilFabric    = errors.New("node: bridge fabric not configured")
	errNilKey       = errors.New("node: bridge signing key not configured")
)

// Config wires a node's collaborators and economics.
type Config struct {
	// Operator is the sole address allowed through the admin surface.
	Operator crypto.Address
	// VaultModule is the treasury account vault reserves settle into.
	VaultModule crypto.Address
	// VaultParams is the initial economics configuration.
	VaultParams vault.Params
	// BridgeKey signs outbound envelopes; its address is this endpoint's
	// peer identity on other partitions.
	BridgeKey *crypto.PrivateKey
	// BridgeFeeRecipient receives source-side bridge fees.
	BridgeFeeRecipient crypto.Address
	// Fabric is the cross-partition transport.
	Fabric bridge.Fabric
	// Emitter receives engine events. Nil discards them.
	Emitter events.Emitter
	// Clock overrides the time source. Nil uses the wall clock.
	Clock func() time.Time
}

// Node owns the ledger, vault and bridge engines over one state manager and
// serializes every public entry point behind a single mutex: one call runs to
// completion before the next observes state, the discipline the engines are
// written against.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	manager  *state.Manager
	ledger   *ledger.Engine
	vault    *vault.Engine
	sender   *bridge.Sender
	receiver *bridge.Receiver
	pauses   *common.Switchboard
	operator crypto.Address
}

// NewNode constructs and wires a node over the given storage backend.
func NewNode(db storage.Database, cfg Config) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if cfg.Fabric == nil {
		return nil, errNilFabric
	}
	if cfg.BridgeKey == nil {
		return nil, errNilKey
	}
	if err := cfg.VaultParams.Validate(); err != nil {
		return nil, err
	}

	manager, err := state.NewManager(db)
	if err != nil {
		return nil, err
	}

	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	pauses := common.NewSwitchboard()

	ledgerEngine := ledger.NewEngine(manager)
	ledgerEngine.SetEmitter(emitter)

	vaultEngine := vault.NewEngine(cfg.VaultModule, ledgerEngine, cfg.VaultParams)
	vaultEngine.SetState(manager)
	vaultEngine.SetPauses(pauses)
	vaultEngine.SetEmitter(emitter)

	sender := bridge.NewSender(ledgerEngine, cfg.Fabric, cfg.BridgeKey, cfg.BridgeFeeRecipient)
	sender.SetState(manager)
	sender.SetPauses(pauses)
	sender.SetEmitter(emitter)

	receiver := bridge.NewReceiver(ledgerEngine)
	receiver.SetState(manager)
	receiver.SetPauses(pauses)
	receiver.SetEmitter(emitter)

	if cfg.Clock != nil {
		vaultEngine.SetClock(cfg.Clock)
		sender.SetClock(cfg.Clock)
		receiver.SetClock(cfg.Clock)
	}

	return &Node{
		db:       db,
		manager:  manager,
		ledger:   ledgerEngine,
		vault:    vaultEngine,
		sender:   sender,
		receiver: receiver,
		pauses:   pauses,
		operator: cfg.Operator,
	}, nil
}

// --- vault surface ---

// Deposit accepts native coin from the depositor and mints ledger claims at
// the currently offered rate.
func (n *Node) Deposit(depositor crypto.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.Deposit(depositor, amount)
}

// Redeem burns tokens for a proportional share of the reserve.
func (n *Node) Redeem(holder crypto.Address, amount, minOut *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.Redeem(holder, amount, minOut)
}

// AccrueInterest applies any interest due. Safe to call from a scheduler.
func (n *Node) AccrueInterest() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.AccrueInterest()
}

// --- bridge surface ---

// BridgeSend burns from the caller and dispatches a single-recipient
// envelope on the route.
func (n *Node) BridgeSend(caller crypto.Address, routeID uint64, recipient crypto.Address, amount *big.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sender.Send(caller, routeID, recipient, amount)
}

// BridgeSendBatch dispatches one envelope carrying several recipients.
func (n *Node) BridgeSendBatch(caller crypto.Address, routeID uint64, legs []bridge.Leg) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sender.SendBatch(caller, routeID, legs)
}

// BridgeReceive applies one inbound envelope. Only the messaging fabric
// should call this.
func (n *Node) BridgeReceive(signed *bridge.SignedEnvelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receiver.Receive(signed)
}

// --- queries ---

// Balance returns the holder's spendable token balance.
func (n *Node) Balance(addr crypto.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.BalanceOf(addr)
}

// Claims returns the holder's raw claim count.
func (n *Node) Claims(addr crypto.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.ClaimsOf(addr)
}

// LockedRate returns the holder's locked rate and whether one is assigned.
func (n *Node) LockedRate(addr crypto.Address) (uint64, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.LockedRate(addr)
}

// TotalClaims returns the aggregate claim count.
func (n *Node) TotalClaims() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.TotalClaims()
}

// ReportedSupply returns the rebased total supply.
func (n *Node) ReportedSupply() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.ReportedSupply()
}

// ActiveRate returns the rate offered to the next deposit.
func (n *Node) ActiveRate() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.ActiveRate()
}

// TotalReserve returns the native coin backing outstanding claims.
func (n *Node) TotalReserve() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vault.TotalReserve()
}

// NativeBalance returns an address's native-coin account balance.
func (n *Node) NativeBalance(addr crypto.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.manager.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Normalize().Balance), nil
}

// TransferProcessed reports whether an inbound transfer id was applied here.
func (n *Node) TransferProcessed(id string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.manager.TransferProcessed(id)
}

// --- admin surface (operator only) ---

func (n *Node) authorize(caller crypto.Address) error {
	if n.operator.IsZero() || !caller.Equal(n.operator) {
		return ErrUnauthorized
	}
	return nil
}

// SetRoute installs or overwrites a bridge route.
func (n *Node) SetRoute(caller crypto.Address, route *bridge.Route) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.manager.PutRoute(route)
}

// SetVaultParams replaces the vault economics after validation.
func (n *Node) SetVaultParams(caller crypto.Address, params vault.Params) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.vault.SetParams(params)
}

// SetAllowListed flips an address's deposit allow-list membership.
func (n *Node) SetAllowListed(caller, addr crypto.Address, allowed bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.manager.SetAllowListed(addr, allowed)
}

// SetPaused pauses or resumes a module.
func (n *Node) SetPaused(caller crypto.Address, module string, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	n.pauses.SetPaused(module, paused)
	return nil
}

// FundBridgeFees tops up the transport fee balance.
func (n *Node) FundBridgeFees(caller crypto.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.sender.FundFees(amount)
}

// CreditBalance seeds an address's native-coin account. This is how value
// enters the partition from outside the engine's scope.
func (n *Node) CreditBalance(caller, to crypto.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("node: credit amount must be positive")
	}
	acc, err := n.manager.GetAccount(to)
	if err != nil {
		return err
	}
	acc = acc.Normalize()
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return n.manager.PutAccount(to, acc)
}

// EmergencyWithdraw sweeps reserve to a recovery address.
func (n *Node) EmergencyWithdraw(caller, to crypto.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.vault.EmergencyWithdraw(to, amount)
}

// ResetRate restores the offered rate to the tier-schedule target.
func (n *Node) ResetRate(caller crypto.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.vault.ResetRate()
}

// SyncLockedRate overwrites a holder's locked rate, the privileged
// cross-deployment reconciliation hook.
func (n *Node) SyncLockedRate(caller, holder crypto.Address, rateBps uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.authorize(caller); err != nil {
		return err
	}
	return n.ledger.OverrideLockedRate(holder, rateBps)
}

// Paused lists the currently paused modules.
func (n *Node) Paused() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pauses.Paused()
}

// Close releases the storage backend.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
