package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable prefix carried by bech32 addresses.
type AddressPrefix string

const (
	// TidePrefix marks holder addresses on the token ledger.
	TidePrefix AddressPrefix = "tide"
	// FeePrefix marks module treasury addresses (fee recipients, vault reserve).
	FeePrefix AddressPrefix = "fee"
)

// AddressLength is the raw byte length of every ledger address.
const AddressLength = 20

// Address is a 20-byte account identifier with a display prefix. The prefix
// is presentation only; equality and storage keys use the raw bytes.
type Address struct {
	prefix AddressPrefix
	raw    []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, raw: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.raw
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is unset or all-zero bytes. The ledger
// treats the zero address as the null identity and refuses it everywhere.
func (a Address) IsZero() bool {
	if len(a.raw) == 0 {
		return true
	}
	for _, b := range a.raw {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equal compares raw address bytes, ignoring the display prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.raw, other.raw)
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("decoded address is %d bytes, want %d", len(conv), AddressLength)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(TidePrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Sign produces a 65-byte recoverable secp256k1 signature over a 32-byte
// digest. Bridge endpoints sign outbound transfer envelopes with this.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, fmt.Errorf("crypto: nil private key")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	return ethcrypto.Sign(digest, k.PrivateKey)
}

// RecoverAddress recovers the signer address from a recoverable signature
// over the given digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(digest) != 32 {
		return Address{}, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return NewAddress(TidePrefix, ethcrypto.PubkeyToAddress(*pub).Bytes()), nil
}

// Keccak256 hashes the concatenation of the inputs with legacy keccak, the
// digest bridge envelopes are signed over.
func Keccak256(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}
