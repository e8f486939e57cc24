// Package identity manages ed25519 keypairs and signing utilities. archwall
// uses two of them: the fixed key material that addresses the shared list
// account, and the key behind the local keyfile wallet. This package exposes
// an Identity abstraction for signing and verifying messages and for
// retrieving the base58 address used by the ledger.
package identity

import (
	"crypto/ed25519"

	"github.com/gagliardetto/solana-go"
)

// Identity represents a keypair held by this process
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  solana.PublicKey
}

// NewIdentity creates a new Identity from a private key
func NewIdentity(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	return &Identity{
		privateKey: privKey,
		publicKey:  solana.PublicKeyFromBytes(pubKey),
	}
}

// Sign signs the provided message with the identity's private key
func (i *Identity) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(i.privateKey, message), nil
}

// Verify verifies a signature against a message using the identity's public key
func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(i.publicKey[:]), message, signature)
}

// PublicKey returns the ledger public key
func (i *Identity) PublicKey() solana.PublicKey {
	return i.publicKey
}

// Address returns the base58 encoded public key.
// This is the canonical account identifier on the ledger.
func (i *Identity) Address() string {
	return i.publicKey.String()
}
