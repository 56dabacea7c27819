// Package wallet resolves the trading key from the encrypted secret store,
// a mnemonic, or the plain private key file.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betbot/nadsniper/pkg/secretstore"
)

// PlaceholderKey is written into a freshly created key file.
const PlaceholderKey = "YOUR_PRIVATE_KEY_HERE_WITHOUT_0x_PREFIX"

var (
	// ErrKeyFileCreated means the key file did not exist and a placeholder was written.
	ErrKeyFileCreated = errors.New("wallet: private key file created, edit it with your private key")
	// ErrPlaceholderKey means the key file still holds the placeholder.
	ErrPlaceholderKey = errors.New("wallet: private key file still contains the placeholder")
)

// SecretGetter is satisfied by *secretstore.Store.
type SecretGetter interface {
	GetString(key string) (string, bool, error)
}

type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// Source describes where to look for the key. Secrets is consulted first when set.
type Source struct {
	KeyFile        string
	Secrets        SecretGetter
	DerivationPath string
}

func Load(src Source) (*Signer, error) {
	if src.Secrets != nil {
		s, found, err := fromSecrets(src.Secrets, src.DerivationPath)
		if err != nil {
			return nil, err
		}
		if found {
			return s, nil
		}
	}
	return fromFile(src.KeyFile, src.DerivationPath)
}

func fromSecrets(sg SecretGetter, derivationPath string) (*Signer, bool, error) {
	pk, found, err := sg.GetString(secretstore.KeyPrivateKey)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", secretstore.KeyPrivateKey, err)
	}
	if found && strings.TrimSpace(pk) != "" {
		s, err := FromHex(pk)
		return s, err == nil, err
	}
	mn, found, err := sg.GetString(secretstore.KeyMnemonic)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", secretstore.KeyMnemonic, err)
	}
	if found && strings.TrimSpace(mn) != "" {
		s, err := FromMnemonic(mn, derivationPath)
		return s, err == nil, err
	}
	return nil, false, nil
}

func fromFile(path, derivationPath string) (*Signer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("wallet: private key file path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		if err := os.WriteFile(path, []byte(PlaceholderKey), 0o600); err != nil {
			return nil, fmt.Errorf("create private key file: %w", err)
		}
		return nil, ErrKeyFileCreated
	}

	raw := strings.TrimSpace(string(b))
	switch {
	case raw == PlaceholderKey:
		return nil, ErrPlaceholderKey
	case strings.Contains(raw, " "):
		// a mnemonic phrase
		return FromMnemonic(raw, derivationPath)
	default:
		return FromHex(raw)
	}
}

// FromHex parses a hex private key with or without 0x prefix.
func FromHex(raw string) (*Signer, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// FromMnemonic derives the account at derivationPath.
func FromMnemonic(mnemonic, derivationPath string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	derivationPath = strings.TrimSpace(derivationPath)
	if mnemonic == "" {
		return nil, errors.New("wallet: mnemonic is required")
	}
	if derivationPath == "" {
		derivationPath = "m/44'/60'/0'/0/0"
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid derivation path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive failed: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("wallet: private key failed: %w", err)
	}
	return &Signer{Key: key, Address: acct.Address}, nil
}
