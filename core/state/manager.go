// Package state persists the engine records into a key-value backend. Stored
// records mirror the in-memory types with big integers flattened to decimal
// strings, so the RLP encoding stays canonical across versions.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tidechain/core/types"
	"tidechain/crypto"
	"tidechain/native/bridge"
	"tidechain/native/ledger"
	"tidechain/native/vault"
	"tidechain/storage"
)

var errNilDatabase = errors.New("state: database not configured")

// Manager implements the ledger, vault and bridge state interfaces over one
// storage backend. The node owns a single Manager and hands it to every
// engine; call serialization happens above, in the node.
type Manager struct {
	db storage.Database
}

// NewManager wraps a storage backend.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	return &Manager{db: db}, nil
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, record interface{}) error {
	raw, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func bigToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stringToBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed big integer %q", s)
	}
	return v, nil
}

// --- ledger.State ---

type storedSupply struct {
	TotalClaims    string
	ReportedSupply string
}

// GetSupply implements ledger.State.
func (m *Manager) GetSupply() (*ledger.Supply, error) {
	var record storedSupply
	found, err := m.get(supplyKey, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	claims, err := stringToBig(record.TotalClaims)
	if err != nil {
		return nil, err
	}
	supply, err := stringToBig(record.ReportedSupply)
	if err != nil {
		return nil, err
	}
	return &ledger.Supply{TotalClaims: claims, ReportedSupply: supply}, nil
}

// PutSupply implements ledger.State.
func (m *Manager) PutSupply(supply *ledger.Supply) error {
	if supply == nil {
		return nil
	}
	return m.put(supplyKey, &storedSupply{
		TotalClaims:    bigToString(supply.TotalClaims),
		ReportedSupply: bigToString(supply.ReportedSupply),
	})
}

type storedHolder struct {
	Address [20]byte
	Prefix  string
	Claims  string
	RateBps uint64
	RateSet bool
}

// GetHolder implements ledger.State.
func (m *Manager) GetHolder(addr crypto.Address) (*ledger.Holder, error) {
	var record storedHolder
	found, err := m.get(addrKey(holderPrefix, addr.Bytes()), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	claims, err := stringToBig(record.Claims)
	if err != nil {
		return nil, err
	}
	raw := append([]byte(nil), record.Address[:]...)
	return &ledger.Holder{
		Address: crypto.NewAddress(crypto.AddressPrefix(record.Prefix), raw),
		Claims:  claims,
		RateBps: record.RateBps,
		RateSet: record.RateSet,
	}, nil
}

// PutHolder implements ledger.State.
func (m *Manager) PutHolder(holder *ledger.Holder) error {
	if holder == nil {
		return nil
	}
	var record storedHolder
	copy(record.Address[:], holder.Address.Bytes())
	record.Prefix = string(holder.Address.Prefix())
	record.Claims = bigToString(holder.Claims)
	record.RateBps = holder.RateBps
	record.RateSet = holder.RateSet
	return m.put(addrKey(holderPrefix, holder.Address.Bytes()), &record)
}

// --- vault.State ---

type storedVault struct {
	ActiveRateBps   uint64
	TotalReserve    string
	LastAccrualTime uint64
}

// GetVault implements vault.State.
func (m *Manager) GetVault() (*vault.VaultState, error) {
	var record storedVault
	found, err := m.get(vaultKey, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	reserve, err := stringToBig(record.TotalReserve)
	if err != nil {
		return nil, err
	}
	return &vault.VaultState{
		ActiveRateBps:   record.ActiveRateBps,
		TotalReserve:    reserve,
		LastAccrualTime: int64(record.LastAccrualTime),
	}, nil
}

// PutVault implements vault.State.
func (m *Manager) PutVault(v *vault.VaultState) error {
	if v == nil {
		return nil
	}
	return m.put(vaultKey, &storedVault{
		ActiveRateBps:   v.ActiveRateBps,
		TotalReserve:    bigToString(v.TotalReserve),
		LastAccrualTime: uint64(v.LastAccrualTime),
	})
}

type storedPosition struct {
	Address   [20]byte
	Prefix    string
	Reserve   string
	Deposited string
}

// GetPosition implements vault.State.
func (m *Manager) GetPosition(addr crypto.Address) (*vault.Position, error) {
	var record storedPosition
	found, err := m.get(addrKey(positionPrefix, addr.Bytes()), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	reserve, err := stringToBig(record.Reserve)
	if err != nil {
		return nil, err
	}
	deposited, err := stringToBig(record.Deposited)
	if err != nil {
		return nil, err
	}
	raw := append([]byte(nil), record.Address[:]...)
	return &vault.Position{
		Address:   crypto.NewAddress(crypto.AddressPrefix(record.Prefix), raw),
		Reserve:   reserve,
		Deposited: deposited,
	}, nil
}

// PutPosition implements vault.State.
func (m *Manager) PutPosition(position *vault.Position) error {
	if position == nil {
		return nil
	}
	var record storedPosition
	copy(record.Address[:], position.Address.Bytes())
	record.Prefix = string(position.Address.Prefix())
	record.Reserve = bigToString(position.Reserve)
	record.Deposited = bigToString(position.Deposited)
	return m.put(addrKey(positionPrefix, position.Address.Bytes()), &record)
}

type storedAccount struct {
	Balance string
}

// GetAccount implements vault.State.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	var record storedAccount
	found, err := m.get(addrKey(accountPrefix, addr.Bytes()), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return types.NewAccount(), nil
	}
	balance, err := stringToBig(record.Balance)
	if err != nil {
		return nil, err
	}
	return &types.Account{Balance: balance}, nil
}

// PutAccount implements vault.State.
func (m *Manager) PutAccount(addr crypto.Address, acc *types.Account) error {
	if acc == nil {
		return nil
	}
	return m.put(addrKey(accountPrefix, addr.Bytes()), &storedAccount{
		Balance: bigToString(acc.Balance),
	})
}

// IsAllowListed implements vault.State.
func (m *Manager) IsAllowListed(addr crypto.Address) (bool, error) {
	return m.db.Has(addrKey(allowPrefix, addr.Bytes()))
}

// SetAllowListed flips an address's allow-list membership.
func (m *Manager) SetAllowListed(addr crypto.Address, allowed bool) error {
	key := addrKey(allowPrefix, addr.Bytes())
	if allowed {
		return m.db.Put(key, []byte{1})
	}
	return m.db.Delete(key)
}

// --- bridge.State ---

type storedRoute struct {
	ID            uint64
	Peer          [20]byte
	PeerPrefix    string
	Enabled       bool
	FeeBps        uint64
	PerMessageCap string
	DailyCap      string
	RefillPerSec  uint64
	Burst         uint64
	Cost          uint64
}

// GetRoute implements bridge.State.
func (m *Manager) GetRoute(id uint64) (*bridge.Route, error) {
	var record storedRoute
	found, err := m.get(routeKey(routePrefix, id), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	perMessage, err := stringToBig(record.PerMessageCap)
	if err != nil {
		return nil, err
	}
	daily, err := stringToBig(record.DailyCap)
	if err != nil {
		return nil, err
	}
	raw := append([]byte(nil), record.Peer[:]...)
	return &bridge.Route{
		ID:            record.ID,
		Peer:          crypto.NewAddress(crypto.AddressPrefix(record.PeerPrefix), raw),
		Enabled:       record.Enabled,
		FeeBps:        record.FeeBps,
		PerMessageCap: perMessage,
		DailyCap:      daily,
		Limiter: bridge.BucketParams{
			RefillPerSecond: record.RefillPerSec,
			Burst:           record.Burst,
			CostPerMessage:  record.Cost,
		},
	}, nil
}

// PutRoute implements bridge.State.
func (m *Manager) PutRoute(route *bridge.Route) error {
	if route == nil {
		return nil
	}
	var record storedRoute
	record.ID = route.ID
	copy(record.Peer[:], route.Peer.Bytes())
	record.PeerPrefix = string(route.Peer.Prefix())
	record.Enabled = route.Enabled
	record.FeeBps = route.FeeBps
	record.PerMessageCap = bigToString(route.PerMessageCap)
	record.DailyCap = bigToString(route.DailyCap)
	record.RefillPerSec = route.Limiter.RefillPerSecond
	record.Burst = route.Limiter.Burst
	record.Cost = route.Limiter.CostPerMessage
	return m.put(routeKey(routePrefix, route.ID), &record)
}

type storedUsage struct {
	DayBucket  uint64
	DailySpent string
}

func (m *Manager) getUsage(prefix []byte, route uint64) (*bridge.Usage, error) {
	var record storedUsage
	found, err := m.get(routeKey(prefix, route), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	spent, err := stringToBig(record.DailySpent)
	if err != nil {
		return nil, err
	}
	return &bridge.Usage{DayBucket: record.DayBucket, DailySpent: spent}, nil
}

func (m *Manager) putUsage(prefix []byte, route uint64, usage *bridge.Usage) error {
	if usage == nil {
		return nil
	}
	return m.put(routeKey(prefix, route), &storedUsage{
		DayBucket:  usage.DayBucket,
		DailySpent: bigToString(usage.DailySpent),
	})
}

// GetOutboundUsage implements bridge.State.
func (m *Manager) GetOutboundUsage(route uint64) (*bridge.Usage, error) {
	return m.getUsage(outUsagePrefix, route)
}

// PutOutboundUsage implements bridge.State.
func (m *Manager) PutOutboundUsage(route uint64, usage *bridge.Usage) error {
	return m.putUsage(outUsagePrefix, route, usage)
}

// GetInboundUsage implements bridge.State.
func (m *Manager) GetInboundUsage(route uint64) (*bridge.Usage, error) {
	return m.getUsage(inUsagePrefix, route)
}

// PutInboundUsage implements bridge.State.
func (m *Manager) PutInboundUsage(route uint64, usage *bridge.Usage) error {
	return m.putUsage(inUsagePrefix, route, usage)
}

type storedBucket struct {
	Tokens     uint64
	LastRefill uint64
}

// GetBucket implements bridge.State.
func (m *Manager) GetBucket(route uint64) (*bridge.Bucket, error) {
	var record storedBucket
	found, err := m.get(routeKey(bucketPrefix, route), &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &bridge.Bucket{Tokens: record.Tokens, LastRefill: int64(record.LastRefill)}, nil
}

// PutBucket implements bridge.State.
func (m *Manager) PutBucket(route uint64, bucket *bridge.Bucket) error {
	if bucket == nil {
		return nil
	}
	return m.put(routeKey(bucketPrefix, route), &storedBucket{
		Tokens:     bucket.Tokens,
		LastRefill: uint64(bucket.LastRefill),
	})
}

type storedBigInt struct {
	Value string
}

// GetFeeBalance implements bridge.State.
func (m *Manager) GetFeeBalance() (*big.Int, error) {
	var record storedBigInt
	found, err := m.get(feeBalanceKey, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return stringToBig(record.Value)
}

// PutFeeBalance implements bridge.State.
func (m *Manager) PutFeeBalance(balance *big.Int) error {
	return m.put(feeBalanceKey, &storedBigInt{Value: bigToString(balance)})
}

type storedNonce struct {
	Nonce uint64
}

// GetNonce implements bridge.State.
func (m *Manager) GetNonce() (uint64, error) {
	var record storedNonce
	found, err := m.get(nonceKey, &record)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return record.Nonce, nil
}

// PutNonce implements bridge.State.
func (m *Manager) PutNonce(nonce uint64) error {
	return m.put(nonceKey, &storedNonce{Nonce: nonce})
}

// MarkTransferProcessed implements bridge.State. The record is an audit
// trail; delivery dedup stays with the fabric.
func (m *Manager) MarkTransferProcessed(id string) error {
	return m.db.Put(stringKey(processedPrefix, id), []byte{1})
}

// TransferProcessed reports whether a transfer id has been applied here.
func (m *Manager) TransferProcessed(id string) (bool, error) {
	return m.db.Has(stringKey(processedPrefix, id))
}
