package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// ScryptParams sets the key-derivation cost of a party keystore.
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt is the default cost used by escrowctl keygen.
	StandardScrypt = ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	// LightScrypt trades strength for speed. Use it for throwaway keys.
	LightScrypt = ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// SaveToKeystore writes key to an Ethereum v3 keystore file at path using the
// standard scrypt cost.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWithParams(path, key, passphrase, StandardScrypt)
}

// SaveToKeystoreWithParams writes key to path, creating the parent directory
// with 0700 permissions. An existing file at path is replaced.
func SaveToKeystoreWithParams(path string, key *PrivateKey, passphrase string, params ScryptParams) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if params.N <= 0 || params.P <= 0 {
		return fmt.Errorf("crypto: invalid scrypt params n=%d p=%d", params.N, params.P)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, ".keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, params.N, params.P)
	account, err := ks.ImportECDSA(key.PrivateKey, passphrase)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(account.URL.Path, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
