package events

import "math/big"

const (
	// TypeBridgeSent marks a source-side burn and envelope dispatch.
	TypeBridgeSent = "bridge.sent"
	// TypeBridgeReceived marks a destination-side validated mint.
	TypeBridgeReceived = "bridge.received"
	// TypeBridgeRejected marks an inbound envelope dropped by validation.
	TypeBridgeRejected = "bridge.rejected"
)

// BridgeSent records an outbound transfer: gross amount burned, fee re-minted
// locally, and net value carried in the envelope.
type BridgeSent struct {
	Route      uint64
	TransferID string
	Sender     [20]byte
	Gross      *big.Int
	Fee        *big.Int
	Net        *big.Int
	RateBps    uint64
}

// EventType satisfies the events.Event interface.
func (BridgeSent) EventType() string { return TypeBridgeSent }

// BridgeReceived records an inbound transfer minted on this side.
type BridgeReceived struct {
	Route      uint64
	TransferID string
	Amount     *big.Int
	RateBps    uint64
	Recipients int
}

// EventType satisfies the events.Event interface.
func (BridgeReceived) EventType() string { return TypeBridgeReceived }

// BridgeRejected records an inbound envelope dropped by validation, with the
// failure reason for operators. The sender is never notified.
type BridgeRejected struct {
	Route      uint64
	TransferID string
	Reason     string
}

// EventType satisfies the events.Event interface.
func (BridgeRejected) EventType() string { return TypeBridgeRejected }
