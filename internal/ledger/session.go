// Package ledger defines the contract between archwall and the distributed
// ledger that stores the shared list. A Session reads account state and
// submits signed transactions; concrete sessions live in the comet, solana
// and local subpackages. The ledger is treated as a trusted oracle: a
// session reports success or one of the error kinds in errors.go and never
// retries on its own, because ledger transactions are not idempotent.
package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"archwall.mini/aw/internal/types"
)

// Signer signs transaction messages for a public key. Wallet identities and
// the list account key material both implement it.
type Signer = types.Signer

// Op names one of the two mutating operations of the list program.
type Op string

const (
	OpInitializeAccount Op = "initialize_account"
	OpAppendEntry       Op = "append_entry"
)

// Instruction is a backend-neutral call into the list program. Each session
// serializes it per its program interface definition.
type Instruction struct {
	Op        Op
	Account   solana.PublicKey // the list account
	Authority solana.PublicKey // owner for initialize, submitter for append
	Link      string           // append only
}

// InitializeAccount builds the instruction that creates the list account
// with owner as bootstrapper and an empty entry sequence.
func InitializeAccount(account, owner solana.PublicKey) Instruction {
	return Instruction{Op: OpInitializeAccount, Account: account, Authority: owner}
}

// AppendEntry builds the instruction that appends link to the list.
func AppendEntry(account, submitter solana.PublicKey, link string) Instruction {
	return Instruction{Op: OpAppendEntry, Account: account, Authority: submitter, Link: link}
}

// AccountSnapshot is the decoded account as read at some ledger height.
type AccountSnapshot struct {
	Address solana.PublicKey  `json:"address"`
	Account types.ListAccount `json:"account"`
	Height  uint64            `json:"height"` // block height or slot of the read
}

// Receipt confirms a transaction reached the session's commitment level.
type Receipt struct {
	ID         string           `json:"id"` // tx hash or signature
	Height     uint64           `json:"height"`
	Commitment types.Commitment `json:"commitment"`
}

// Session is one connection to the ledger bound to an identity, an endpoint
// and a commitment level.
type Session interface {
	// FetchAccount returns ErrNotFound when the address was never
	// initialized and a network error when the ledger cannot be reached.
	FetchAccount(ctx context.Context, address solana.PublicKey) (*AccountSnapshot, error)
	// SubmitTransaction blocks until the ledger confirms the transaction at
	// the session's commitment level.
	SubmitTransaction(ctx context.Context, instructions []Instruction, signers []Signer) (*Receipt, error)
	Endpoint() string
	Commitment() types.Commitment
}
