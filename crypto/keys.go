package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	// AccountPrefix marks addresses controlled by a private key.
	AccountPrefix AddressPrefix = "wesc"
	// CustodyPrefix marks derived custody slots that have no private key.
	CustodyPrefix AddressPrefix = "wcst"
)

// AddressLength is the size in bytes of every identity handle.
const AddressLength = 20

// Address represents a 20-byte identity with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// AccountAddress wraps a raw identity handle for display.
func AccountAddress(raw [AddressLength]byte) Address {
	return NewAddress(AccountPrefix, raw[:])
}

// CustodyAddress wraps a derived custody slot for display.
func CustodyAddress(raw [AddressLength]byte) Address {
	return NewAddress(CustodyPrefix, raw[:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
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
	return a.bytes
}

// Array returns the raw identity handle.
func (a Address) Array() [AddressLength]byte {
	var out [AddressLength]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
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
		return Address{}, fmt.Errorf("address must decode to %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAccount decodes a bech32 account address into its raw handle. Custody
// addresses are rejected because no party can act as one.
func ParseAccount(addrStr string) ([AddressLength]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	if addr.Prefix() != AccountPrefix {
		return [AddressLength]byte{}, fmt.Errorf("unexpected address prefix %q", addr.Prefix())
	}
	return addr.Array(), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
