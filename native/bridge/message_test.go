package bridge

import (
	"math/big"
	"testing"

	"tidechain/crypto"
)

func testLeg(seed byte, amount int64) Leg {
	var key [20]byte
	key[0] = seed
	key[19] = seed
	return Leg{Recipient: key, Amount: big.NewInt(amount)}
}

func TestSignRecoversSigner(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env := Envelope{
		RouteID:    7,
		Nonce:      1,
		TransferID: "transfer-1",
		RateBps:    600,
		Legs:       []Leg{testLeg(1, 95)},
	}

	signed, err := Sign(env, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := signed.SignerAddress()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !signer.Equal(key.PubKey().Address()) {
		t.Fatalf("recovered %s, want %s", signer, key.PubKey().Address())
	}
}

func TestTamperedEnvelopeRecoversDifferentSigner(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env := Envelope{
		RouteID:    7,
		Nonce:      1,
		TransferID: "transfer-1",
		RateBps:    600,
		Legs:       []Leg{testLeg(1, 95)},
	}
	signed, err := Sign(env, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	signed.Envelope.Legs[0].Amount = big.NewInt(9_500)
	signer, err := signed.SignerAddress()
	if err == nil && signer.Equal(key.PubKey().Address()) {
		t.Fatal("tampered envelope still recovers the original signer")
	}
}

func TestEnvelopeEncodeRoundTrip(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env := Envelope{
		RouteID:    3,
		Nonce:      42,
		TransferID: "transfer-42",
		RateBps:    250,
		Legs:       []Leg{testLeg(1, 10), testLeg(2, 20)},
	}
	signed, err := Sign(env, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := signed.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Envelope.RouteID != env.RouteID || decoded.Envelope.Nonce != env.Nonce {
		t.Fatalf("decoded header = %+v", decoded.Envelope)
	}
	if decoded.Envelope.TransferID != env.TransferID {
		t.Fatalf("transfer id = %q, want %q", decoded.Envelope.TransferID, env.TransferID)
	}
	if decoded.Envelope.RateBps != env.RateBps {
		t.Fatalf("rate = %d, want %d", decoded.Envelope.RateBps, env.RateBps)
	}
	if len(decoded.Envelope.Legs) != 2 {
		t.Fatalf("legs = %d, want 2", len(decoded.Envelope.Legs))
	}
	if decoded.Envelope.Total().Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("total = %s, want 30", decoded.Envelope.Total())
	}

	// Signature survives the round trip.
	signer, err := decoded.SignerAddress()
	if err != nil {
		t.Fatalf("recover after decode: %v", err)
	}
	if !signer.Equal(key.PubKey().Address()) {
		t.Fatalf("recovered %s after decode, want %s", signer, key.PubKey().Address())
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Fatal("expected decode error")
	}
}
