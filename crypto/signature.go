package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = 65

var errBadSignatureLength = errors.New("crypto: signature must be 65 bytes")

// Keccak256 hashes the concatenation of the supplied chunks.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// Sign produces a recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(digest, k.PrivateKey)
}

// RecoverSigner returns the account handle whose key produced sig over digest.
func RecoverSigner(digest, sig []byte) ([AddressLength]byte, error) {
	if len(sig) != SignatureLength {
		return [AddressLength]byte{}, errBadSignatureLength
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return [AddressLength]byte{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	var out [AddressLength]byte
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}
