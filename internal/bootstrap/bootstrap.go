// Package bootstrap creates the shared list account exactly once. The
// account address comes from fixed key material; whoever initializes it
// becomes its owner.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/ledger"
)

// Result reports what EnsureAccount did.
type Result struct {
	AlreadyExists bool
	Receipt       *ledger.Receipt // set when an initialization was submitted
}

// Bootstrapper checks and initializes one list account.
type Bootstrapper struct {
	session ledger.Session
	account ledger.Signer
	log     zerolog.Logger
}

// New binds a bootstrapper to the account key material.
func New(session ledger.Session, account ledger.Signer, log zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{
		session: session,
		account: account,
		log: log.With().
			Str("component", "bootstrap").
			Str("account", account.PublicKey().String()).
			Logger(),
	}
}

// Address is the list account address.
func (b *Bootstrapper) Address() solana.PublicKey { return b.account.PublicKey() }

// Check reports whether the account exists. A missing account is not an
// error; network and ledger errors are returned as they are.
func (b *Bootstrapper) Check(ctx context.Context) (bool, error) {
	_, err := b.session.FetchAccount(ctx, b.Address())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ledger.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// EnsureAccount initializes the account with owner unless it already
// exists. It submits nothing when the account is present, and nothing when
// existence could not be determined.
func (b *Bootstrapper) EnsureAccount(ctx context.Context, owner ledger.Signer) (*Result, error) {
	exists, err := b.Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("check list account: %w", err)
	}
	if exists {
		b.log.Debug().Msg("List account already exists")
		return &Result{AlreadyExists: true}, nil
	}

	b.log.Info().Str("owner", owner.PublicKey().String()).Msg("Initializing list account")
	receipt, err := b.session.SubmitTransaction(ctx,
		[]ledger.Instruction{ledger.InitializeAccount(b.Address(), owner.PublicKey())},
		[]ledger.Signer{owner, b.account})
	if err != nil {
		return nil, fmt.Errorf("initialize list account: %w", err)
	}
	return &Result{Receipt: receipt}, nil
}
