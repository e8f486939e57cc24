// Package ledgertest provides an in-process ledger with call counting and
// fault injection for tests of code that uses ledger.Session.
package ledgertest

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/ledger/local"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/types"
)

// Ledger wraps a local session. Fault fields are read on every call; set
// them between steps of a test.
type Ledger struct {
	*local.Session

	mu        sync.Mutex
	fetches   int
	submits   []ledger.Instruction
	fetchErr  error
	submitErr error
	gate      chan struct{}
}

// New returns a ledger over a fresh list program.
func New() *Ledger {
	return &Ledger{Session: local.New(program.NewApp(zerolog.New(io.Discard)), types.CommitmentConfirmed)}
}

// FailFetch makes every FetchAccount return err until cleared with nil.
func (l *Ledger) FailFetch(err error) {
	l.mu.Lock()
	l.fetchErr = err
	l.mu.Unlock()
}

// FailSubmit makes every SubmitTransaction return err until cleared.
func (l *Ledger) FailSubmit(err error) {
	l.mu.Lock()
	l.submitErr = err
	l.mu.Unlock()
}

// Hold makes SubmitTransaction block until the returned release func is
// called or the context ends.
func (l *Ledger) Hold() (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.gate = gate
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.gate = nil
			l.mu.Unlock()
			close(gate)
		})
	}
}

// Fetches returns how many reads reached the ledger.
func (l *Ledger) Fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}

// Submitted returns every instruction that reached the ledger, including
// failed ones.
func (l *Ledger) Submitted() []ledger.Instruction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.Instruction, len(l.submits))
	copy(out, l.submits)
	return out
}

// Count returns how many submitted instructions had op.
func (l *Ledger) Count(op ledger.Op) int {
	n := 0
	for _, ix := range l.Submitted() {
		if ix.Op == op {
			n++
		}
	}
	return n
}

func (l *Ledger) FetchAccount(ctx context.Context, address solana.PublicKey) (*ledger.AccountSnapshot, error) {
	l.mu.Lock()
	l.fetches++
	err := l.fetchErr
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.Session.FetchAccount(ctx, address)
}

func (l *Ledger) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Signer) (*ledger.Receipt, error) {
	l.mu.Lock()
	l.submits = append(l.submits, instructions...)
	err := l.submitErr
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ledger.NetworkError("submit transaction", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return l.Session.SubmitTransaction(ctx, instructions, signers)
}

// Keys returns fresh identities for the account key material and a wallet.
func Keys(t testing.TB) (account, wallet *identity.Identity) {
	t.Helper()
	dir := t.TempDir()
	account, err := identity.LoadOrCreateIdentity(filepath.Join(dir, "account.pem"))
	if err != nil {
		t.Fatalf("account key: %v", err)
	}
	wallet, err = identity.LoadOrCreateIdentity(filepath.Join(dir, "wallet.pem"))
	if err != nil {
		t.Fatalf("wallet key: %v", err)
	}
	return account, wallet
}
