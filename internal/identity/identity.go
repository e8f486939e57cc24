// Package identity handles loading, generating, and persisting ed25519
// keypairs. Keys are stored as PEM/PKCS8 files with 0600 permissions;
// solana-keygen JSON keypair files are accepted as well so that existing
// deployment key material can be used unchanged.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// LoadOrCreateIdentity loads an existing identity or creates a new one
// from the given key path.
//
// The function will:
// 1. Check if a key file exists at the given path
// 2. If it exists, load and validate the key
// 3. If it doesn't exist (or is empty), generate a new keypair and save it
// 4. Create an Identity instance from the keypair
func LoadOrCreateIdentity(keyPath string) (*Identity, error) {
	info, err := os.Stat(keyPath)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		privKey, err := generateAndSaveKeyPair(keyPath)
		if err != nil {
			return nil, err
		}
		return NewIdentity(privKey), nil
	}
	if err != nil {
		return nil, err
	}
	return LoadIdentity(keyPath)
}

// LoadIdentity loads an identity that must already exist. A missing file is
// reported as an error wrapping os.ErrNotExist.
func LoadIdentity(keyPath string) (*Identity, error) {
	privKey, err := loadKeyPair(keyPath)
	if err != nil {
		return nil, err
	}
	return NewIdentity(privKey), nil
}

// GenerateKeyFile writes a fresh PEM keypair to keyPath, refusing to
// overwrite an existing file.
func GenerateKeyFile(keyPath string) (*Identity, error) {
	if _, err := os.Stat(keyPath); err == nil {
		return nil, fmt.Errorf("key file %s already exists", keyPath)
	}
	privKey, err := generateAndSaveKeyPair(keyPath)
	if err != nil {
		return nil, err
	}
	return NewIdentity(privKey), nil
}

func generateAndSaveKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}

	x509Encoded, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}

	pemBlock := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: x509Encoded,
	}

	file, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := pem.Encode(file, pemBlock); err != nil {
		return nil, err
	}

	return priv, nil
}

func loadKeyPair(keyPath string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	// solana-keygen writes the 64 byte secret as a JSON array
	if trimmed := bytes.TrimSpace(keyData); len(trimmed) > 0 && trimmed[0] == '[' {
		priv, err := solana.PrivateKeyFromSolanaKeygenFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("parse keygen file: %w", err)
		}
		if len(priv) != ed25519.PrivateKeySize {
			return nil, errors.New("keygen file does not hold an ed25519 keypair")
		}
		return ed25519.PrivateKey(priv), nil
	}

	pemBlock, _ := pem.Decode(keyData)
	if pemBlock == nil {
		return nil, errors.New("failed to decode PEM block from key file")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}

	privKey, ok := genericKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an ed25519 private key")
	}

	return privKey, nil
}
