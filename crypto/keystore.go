package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

var (
	ErrNilKey    = errors.New("crypto: nil private key")
	ErrEmptyPath = errors.New("crypto: empty keystore path")
)

// KeystoreStrength selects the scrypt cost used when encrypting a key.
type KeystoreStrength int

const (
	StrengthStandard KeystoreStrength = iota
	// StrengthLight trades brute-force resistance for speed. Only for
	// throwaway keys.
	StrengthLight
)

func (s KeystoreStrength) params() (int, int) {
	if s == StrengthLight {
		return keystore.LightScryptN, keystore.LightScryptP
	}
	return keystore.StandardScryptN, keystore.StandardScryptP
}

// SaveToKeystore writes key to an Ethereum v3 keystore file at path using the
// standard scrypt cost.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWith(path, key, passphrase, StrengthStandard)
}

// SaveToKeystoreWith writes key to an Ethereum v3 keystore file at path. The
// parent directory is created with 0700 permissions and the file is replaced
// atomically.
func SaveToKeystoreWith(path string, key *PrivateKey, passphrase string, strength KeystoreStrength) error {
	if key == nil || key.PrivateKey == nil {
		return ErrNilKey
	}
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore dir: %w", err)
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return fmt.Errorf("crypto: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	n, p := strength.params()
	ks := keystore.NewKeyStore(tmpDir, n, p)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: keystore file missing after import")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore: %w", err)
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
