package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrKeystorePath     = errors.New("crypto: empty keystore path")
	ErrKeystoreMismatch = errors.New("crypto: keystore address does not match its key")
)

// Operator and CLI keys are unlocked on every start, so the light scrypt
// parameters are used.
const (
	keystoreScryptN = keystore.LightScryptN
	keystoreScryptP = keystore.LightScryptP
)

// SaveToKeystore encrypts key into a v3 keystore file at path. The file is
// written to a temporary sibling first and renamed into place, so a crash
// never leaves a truncated keystore behind.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return ErrKeystorePath
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	blob, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.Address().Common(),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystoreScryptN, keystoreScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// KeystoreAddress reads the account recorded in a keystore file without
// decrypting it.
func KeystoreAddress(path string) (Address, error) {
	if path == "" {
		return Address{}, ErrKeystorePath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Address{}, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return Address{}, fmt.Errorf("crypto: keystore %s: %w", path, err)
	}
	if !common.IsHexAddress(header.Address) {
		return Address{}, fmt.Errorf("crypto: keystore %s has no address", path)
	}
	return Address(common.HexToAddress(header.Address)), nil
}

// LoadFromKeystore decrypts the key stored at path and checks it against the
// address the file advertises.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	declared, err := KeystoreAddress(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: unlock keystore %s: %w", path, err)
	}
	key := &PrivateKey{PrivateKey: decrypted.PrivateKey}
	if key.Address() != declared {
		return nil, ErrKeystoreMismatch
	}
	return key, nil
}
