package comet

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/types"
)

// appRPC answers RPC calls from an in-memory list program, the way a
// single-validator node would.
type appRPC struct {
	app     *program.App
	err     error
	commits int
}

func (f *appRPC) BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTx, error) {
	if f.err != nil {
		return nil, f.err
	}
	check, _ := f.app.CheckTx(ctx, &abci.RequestCheckTx{Tx: tx})
	if check.Code == program.CodeTypeOK {
		f.finalize(ctx, tx)
	}
	return &ctypes.ResultBroadcastTx{Code: check.Code, Log: check.Log, Hash: tx.Hash()}, nil
}

func (f *appRPC) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTxCommit, error) {
	if f.err != nil {
		return nil, f.err
	}
	check, _ := f.app.CheckTx(ctx, &abci.RequestCheckTx{Tx: tx})
	res := &ctypes.ResultBroadcastTxCommit{CheckTx: *check, Hash: tx.Hash()}
	if check.Code != program.CodeTypeOK {
		return res, nil
	}
	exec := f.finalize(ctx, tx)
	res.TxResult = *exec
	res.Height = f.app.Height()
	return res, nil
}

func (f *appRPC) ABCIQueryWithOptions(ctx context.Context, path string, data cmtbytes.HexBytes, _ rpcclient.ABCIQueryOptions) (*ctypes.ResultABCIQuery, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp, _ := f.app.Query(ctx, &abci.RequestQuery{Path: path, Data: data})
	return &ctypes.ResultABCIQuery{Response: *resp}, nil
}

func (f *appRPC) finalize(ctx context.Context, tx cmttypes.Tx) *abci.ExecTxResult {
	resp, _ := f.app.FinalizeBlock(ctx, &abci.RequestFinalizeBlock{Txs: [][]byte{tx}, Height: f.app.Height() + 1})
	_, _ = f.app.Commit(ctx, &abci.RequestCommit{})
	f.commits++
	return resp.TxResults[0]
}

func keys(t *testing.T) (owner, account *identity.Identity) {
	t.Helper()
	dir := t.TempDir()
	owner, err := identity.LoadOrCreateIdentity(filepath.Join(dir, "owner.pem"))
	if err != nil {
		t.Fatalf("owner identity: %v", err)
	}
	account, err = identity.LoadOrCreateIdentity(filepath.Join(dir, "account.pem"))
	if err != nil {
		t.Fatalf("account identity: %v", err)
	}
	return owner, account
}

func TestFetchAccountNotFound(t *testing.T) {
	_, account := keys(t)
	s := newWithClient(&appRPC{app: program.NewApp(zerolog.New(io.Discard))}, types.CommitmentConfirmed)

	_, err := s.FetchAccount(context.Background(), account.PublicKey())
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchAccountNetworkError(t *testing.T) {
	_, account := keys(t)
	s := newWithClient(&appRPC{err: errors.New("connection refused")}, types.CommitmentConfirmed)

	_, err := s.FetchAccount(context.Background(), account.PublicKey())
	if ledger.KindOf(err) != ledger.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if errors.Is(err, ledger.ErrNotFound) {
		t.Fatal("transport failure must not look like an absent account")
	}
}

func TestSubmitCommitThenFetch(t *testing.T) {
	owner, account := keys(t)
	rpc := &appRPC{app: program.NewApp(zerolog.New(io.Discard))}
	s := newWithClient(rpc, types.CommitmentFinalized)
	ctx := context.Background()

	receipt, err := s.SubmitTransaction(ctx,
		[]ledger.Instruction{ledger.InitializeAccount(account.PublicKey(), owner.PublicKey())},
		[]ledger.Signer{account, owner})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if receipt.Height != 1 || receipt.ID == "" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	if _, err := s.SubmitTransaction(ctx,
		[]ledger.Instruction{ledger.AppendEntry(account.PublicKey(), owner.PublicKey(), "https://x/1.gif")},
		[]ledger.Signer{owner}); err != nil {
		t.Fatalf("append: %v", err)
	}

	snap, err := s.FetchAccount(ctx, account.PublicKey())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if links := snap.Account.Links(); len(links) != 1 || links[0] != "https://x/1.gif" {
		t.Fatalf("unexpected links: %v", links)
	}
}

func TestSubmitRejected(t *testing.T) {
	owner, account := keys(t)
	s := newWithClient(&appRPC{app: program.NewApp(zerolog.New(io.Discard))}, types.CommitmentConfirmed)

	// append to an account that does not exist yet
	_, err := s.SubmitTransaction(context.Background(),
		[]ledger.Instruction{ledger.AppendEntry(account.PublicKey(), owner.PublicKey(), "https://x/1.gif")},
		[]ledger.Signer{owner})
	if !errors.Is(err, ledger.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestSubmitProcessedUsesSync(t *testing.T) {
	owner, account := keys(t)
	rpc := &appRPC{app: program.NewApp(zerolog.New(io.Discard))}
	s := newWithClient(rpc, types.CommitmentProcessed)

	receipt, err := s.SubmitTransaction(context.Background(),
		[]ledger.Instruction{ledger.InitializeAccount(account.PublicKey(), owner.PublicKey())},
		[]ledger.Signer{account, owner})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if receipt.Commitment != types.CommitmentProcessed || receipt.Height != 0 {
		t.Fatalf("unexpected receipt for processed commitment: %+v", receipt)
	}
}

func TestEncodeInstructionsRequiresOne(t *testing.T) {
	owner, account := keys(t)
	ix := ledger.AppendEntry(account.PublicKey(), owner.PublicKey(), "a")
	if _, err := EncodeInstructions([]ledger.Instruction{ix, ix}, []ledger.Signer{owner}); err == nil {
		t.Fatal("expected error for two instructions")
	}
	if _, err := EncodeInstructions(nil, []ledger.Signer{owner}); err == nil {
		t.Fatal("expected error for zero instructions")
	}
}

func TestLazyClientConstruction(t *testing.T) {
	s := New("", types.CommitmentConfirmed)
	if s.Endpoint() != DefaultEndpoint {
		t.Fatalf("expected default endpoint, got %s", s.Endpoint())
	}
	if s.client != nil {
		t.Fatal("client should not be created before first use")
	}
}
