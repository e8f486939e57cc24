package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// TransactionType names a list program instruction.
type TransactionType string

const (
	TxInitializeAccount TransactionType = "initialize_account"
	TxAppendEntry       TransactionType = "append_entry"
)

// Signer is anything that can sign on behalf of a public key without
// exposing the private key.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) ([]byte, error)
}

// Transaction is the unsigned envelope submitted to the list program.
type Transaction struct {
	Type      TransactionType `json:"type"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// InitializeAccountPayload creates the list account owned by Owner.
type InitializeAccountPayload struct {
	Account solana.PublicKey `json:"account"`
	Owner   solana.PublicKey `json:"owner"`
}

// AppendEntryPayload appends Link to the list account.
type AppendEntryPayload struct {
	Account   solana.PublicKey `json:"account"`
	Submitter solana.PublicKey `json:"submitter"`
	Link      string           `json:"link"`
}

// Signature is one signer's signature over the encoded transaction.
type Signature struct {
	PublicKey solana.PublicKey `json:"public_key"`
	Signature []byte           `json:"signature"`
}

// SignedTransaction carries the encoded transaction and every signature
// collected for it.
type SignedTransaction struct {
	Tx         json.RawMessage `json:"tx"`
	Signatures []Signature     `json:"signatures"`
}

// NewTransaction builds a transaction with a fresh nonce so that two
// identical instructions never encode to the same bytes.
func NewTransaction(txType TransactionType, payload interface{}) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", txType, err)
	}
	return &Transaction{
		Type:      txType,
		Nonce:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Sign encodes the transaction and collects a signature from each signer.
// A signer appearing twice signs once.
func (tx *Transaction) Sign(signers ...Signer) (*SignedTransaction, error) {
	if len(signers) == 0 {
		return nil, errors.New("transaction needs at least one signer")
	}
	txBytes, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	signed := &SignedTransaction{Tx: txBytes}
	seen := make(map[solana.PublicKey]bool, len(signers))
	for _, s := range signers {
		pub := s.PublicKey()
		if seen[pub] {
			continue
		}
		seen[pub] = true
		sig, err := s.Sign(txBytes)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", pub, err)
		}
		signed.Signatures = append(signed.Signatures, Signature{PublicKey: pub, Signature: sig})
	}
	return signed, nil
}

// Verify reports whether every carried signature is valid.
func (st *SignedTransaction) Verify() bool {
	if len(st.Signatures) == 0 {
		return false
	}
	for _, s := range st.Signatures {
		if !ed25519.Verify(ed25519.PublicKey(s.PublicKey[:]), st.Tx, s.Signature) {
			return false
		}
	}
	return true
}

// SignedBy reports whether pub is among the signers.
func (st *SignedTransaction) SignedBy(pub solana.PublicKey) bool {
	for _, s := range st.Signatures {
		if s.PublicKey.Equals(pub) {
			return true
		}
	}
	return false
}

// GetTransaction decodes the inner transaction.
func (st *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(st.Tx, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
