// Package local runs the list program in-process and exposes it as a ledger
// session. Every submitted transaction is checked, finalized in its own
// block and committed before SubmitTransaction returns, so all commitment
// levels are reached at once.
package local

import (
	"context"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/gagliardetto/solana-go"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/ledger/comet"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/types"
)

// Endpoint is reported as the session endpoint.
const Endpoint = "local"

// Session drives a program.App directly.
type Session struct {
	app        *program.App
	commitment types.Commitment
}

// New creates a session over app. Several sessions may share one app.
func New(app *program.App, commitment types.Commitment) *Session {
	return &Session{app: app, commitment: commitment}
}

func (s *Session) Endpoint() string { return Endpoint }

func (s *Session) Commitment() types.Commitment { return s.commitment }

func (s *Session) FetchAccount(ctx context.Context, address solana.PublicKey) (*ledger.AccountSnapshot, error) {
	const op = "fetch account"
	if err := ctx.Err(); err != nil {
		return nil, ledger.NetworkError(op, err)
	}

	resp, err := s.app.Query(ctx, &abci.RequestQuery{Path: program.QueryAccountPath, Data: address[:]})
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}
	switch resp.Code {
	case program.CodeTypeOK:
	case program.CodeTypeNotFound:
		return nil, ledger.NotFound(op)
	default:
		return nil, ledger.Rejected(op, "query code %d: %s", resp.Code, resp.Log)
	}

	acct, err := comet.DecodeAccount(resp.Value)
	if err != nil {
		return nil, ledger.Rejected(op, "decode account: %v", err)
	}
	return &ledger.AccountSnapshot{Address: address, Account: acct, Height: uint64(resp.Height)}, nil
}

func (s *Session) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Signer) (*ledger.Receipt, error) {
	const op = "submit transaction"

	txBytes, err := comet.EncodeInstructions(instructions, signers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ledger.NetworkError(op, err)
	}

	check, err := s.app.CheckTx(ctx, &abci.RequestCheckTx{Tx: txBytes})
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}
	if check.Code != program.CodeTypeOK {
		return nil, ledger.Rejected(op, "check failed with code %d: %s", check.Code, check.Log)
	}

	height := s.app.Height() + 1
	block, err := s.app.FinalizeBlock(ctx, &abci.RequestFinalizeBlock{Txs: [][]byte{txBytes}, Height: height})
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}
	if _, err := s.app.Commit(ctx, &abci.RequestCommit{}); err != nil {
		return nil, ledger.NetworkError(op, err)
	}
	if res := block.TxResults[0]; res.Code != program.CodeTypeOK {
		return nil, ledger.Rejected(op, "deliver failed with code %d: %s", res.Code, res.Log)
	}

	return &ledger.Receipt{
		ID:         fmt.Sprintf("%X", cmttypes.Tx(txBytes).Hash()),
		Height:     uint64(height),
		Commitment: s.commitment,
	}, nil
}
