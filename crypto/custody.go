package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// custodySeed namespaces custody derivations from every other keccak use.
const custodySeed = "escrow"

var (
	// ErrOnCurve is returned when a (payer, payee, bump) triple hashes onto a
	// valid secp256k1 x-coordinate; such an address could have a private key.
	ErrOnCurve = errors.New("crypto: custody seed resolves to a curve point")
	// ErrNoViableBump is returned when every bump lands on the curve.
	ErrNoViableBump = errors.New("crypto: no off-curve custody address for pair")
)

func custodyDigest(payer, payee [AddressLength]byte, bump uint8) []byte {
	return crypto.Keccak256([]byte(custodySeed), payer[:], payee[:], []byte{bump})
}

// onCurve reports whether digest is the x-coordinate of a secp256k1 point.
func onCurve(digest []byte) bool {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], digest)
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}

// CreateCustodyAddress re-derives the custody slot for the pair using a
// previously recorded bump.
func CreateCustodyAddress(payer, payee [AddressLength]byte, bump uint8) ([AddressLength]byte, error) {
	digest := custodyDigest(payer, payee, bump)
	if onCurve(digest) {
		return [AddressLength]byte{}, ErrOnCurve
	}
	var out [AddressLength]byte
	copy(out[:], digest[len(digest)-AddressLength:])
	return out, nil
}

// FindCustodyAddress searches bumps from 255 downwards and returns the first
// off-curve custody address for the pair together with its bump.
func FindCustodyAddress(payer, payee [AddressLength]byte) ([AddressLength]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateCustodyAddress(payer, payee, uint8(bump))
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return [AddressLength]byte{}, 0, ErrNoViableBump
}

// CustodySigner is the authority to move value out of one custody slot. It
// can only be obtained by re-deriving the slot through SignAsCustody.
type CustodySigner struct {
	address [AddressLength]byte
	ok      bool
}

// SignAsCustody reconstructs the signing authority of the pair's custody slot
// from the two identities and the recorded bump.
func SignAsCustody(payer, payee [AddressLength]byte, bump uint8) (CustodySigner, error) {
	addr, err := CreateCustodyAddress(payer, payee, bump)
	if err != nil {
		return CustodySigner{}, err
	}
	return CustodySigner{address: addr, ok: true}, nil
}

// Address returns the custody slot the signer controls.
func (s CustodySigner) Address() [AddressLength]byte { return s.address }

// Valid reports whether the signer came from SignAsCustody.
func (s CustodySigner) Valid() bool { return s.ok }
