package bridge

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tidechain/crypto"
)

// envelopeDomain separates bridge envelope digests from any other signed
// payload in the system.
var envelopeDomain = []byte("tidechain/bridge/envelope/v1")

var (
	errNoLegs       = errors.New("bridge message: envelope carries no recipients")
	errNilSignature = errors.New("bridge message: missing signature")
)

// Leg is one recipient credit inside a transfer envelope. Amount is the net
// value minted on the destination, after the source-side fee.
type Leg struct {
	Recipient [20]byte
	Amount    *big.Int
}

// Envelope is the authenticated payload a sender endpoint emits and the
// paired receiver validates. RateBps is the sending holder's locked rate,
// preserved across the bridge.
type Envelope struct {
	RouteID    uint64
	Nonce      uint64
	TransferID string
	RateBps    uint64
	Legs       []Leg
}

// Total sums the leg amounts.
func (e *Envelope) Total() *big.Int {
	total := new(big.Int)
	for _, leg := range e.Legs {
		if leg.Amount != nil {
			total.Add(total, leg.Amount)
		}
	}
	return total
}

// Digest returns the keccak256 hash the endpoint key signs: the domain tag
// followed by the canonical RLP encoding of the envelope.
func (e *Envelope) Digest() ([]byte, error) {
	if len(e.Legs) == 0 {
		return nil, errNoLegs
	}
	encoded, err := rlp.EncodeToBytes(e)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(envelopeDomain, encoded), nil
}

// SignedEnvelope pairs an envelope with the recoverable signature produced by
// the sending endpoint's key.
type SignedEnvelope struct {
	Envelope  Envelope
	Signature []byte
}

// Sign produces a signed envelope using the endpoint key.
func Sign(env Envelope, key *crypto.PrivateKey) (*SignedEnvelope, error) {
	digest, err := env.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &SignedEnvelope{Envelope: env, Signature: sig}, nil
}

// SignerAddress recovers the address that signed the envelope. Receivers
// compare it against the configured peer for the route.
func (s *SignedEnvelope) SignerAddress() (crypto.Address, error) {
	if s == nil || len(s.Signature) == 0 {
		return crypto.Address{}, errNilSignature
	}
	digest, err := s.Envelope.Digest()
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.RecoverAddress(digest, s.Signature)
}

// Encode serialises the signed envelope for the messaging fabric.
func (s *SignedEnvelope) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(s)
}

// DecodeEnvelope parses a signed envelope off the wire.
func DecodeEnvelope(raw []byte) (*SignedEnvelope, error) {
	var signed SignedEnvelope
	if err := rlp.DecodeBytes(raw, &signed); err != nil {
		return nil, err
	}
	return &signed, nil
}
