// Package comet provides a ledger session against a CometBFT network that
// runs the archwall list program. Writes are broadcast through the node's
// RPC endpoint and reads go through ABCI queries.
//
// Commitment levels map onto CometBFT broadcast modes:
//   - processed: broadcast_tx_sync, returns once CheckTx passes
//   - confirmed, finalized: broadcast_tx_commit, returns once the
//     transaction is in a committed block (CometBFT has instant finality)
package comet

import (
	"context"
	"fmt"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/gagliardetto/solana-go"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/types"
)

// DefaultEndpoint is the RPC address of a local CometBFT node.
const DefaultEndpoint = "http://localhost:26657"

// rpcClient is the part of the CometBFT RPC client the session uses.
type rpcClient interface {
	BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTx, error)
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
	ABCIQueryWithOptions(ctx context.Context, path string, data cmtbytes.HexBytes, opts rpcclient.ABCIQueryOptions) (*ctypes.ResultABCIQuery, error)
}

// Session talks to one CometBFT node.
type Session struct {
	endpoint   string
	commitment types.Commitment

	once    sync.Once
	client  rpcClient
	initErr error
}

// New creates a session for the node at endpoint. The RPC client is built
// on first use, so construction never fails; a bad endpoint surfaces as a
// network error from the first read or write.
func New(endpoint string, commitment types.Commitment) *Session {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Session{endpoint: endpoint, commitment: commitment}
}

func newWithClient(client rpcClient, commitment types.Commitment) *Session {
	s := &Session{endpoint: "test", commitment: commitment, client: client}
	s.once.Do(func() {})
	return s
}

// Endpoint returns the node RPC address.
func (s *Session) Endpoint() string { return s.endpoint }

// Commitment returns the session's commitment level.
func (s *Session) Commitment() types.Commitment { return s.commitment }

func (s *Session) rpc() (rpcClient, error) {
	s.once.Do(func() {
		c, err := rpchttp.New(s.endpoint, "/websocket")
		if err != nil {
			s.initErr = fmt.Errorf("create CometBFT client for %s: %w", s.endpoint, err)
			return
		}
		s.client = c
	})
	return s.client, s.initErr
}

// FetchAccount reads the list account through the program's account query.
func (s *Session) FetchAccount(ctx context.Context, address solana.PublicKey) (*ledger.AccountSnapshot, error) {
	const op = "fetch account"

	c, err := s.rpc()
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}

	res, err := c.ABCIQueryWithOptions(ctx, program.QueryAccountPath, cmtbytes.HexBytes(address[:]), rpcclient.ABCIQueryOptions{})
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}

	resp := res.Response
	switch resp.Code {
	case program.CodeTypeOK:
	case program.CodeTypeNotFound:
		return nil, ledger.NotFound(op)
	default:
		return nil, ledger.Rejected(op, "query code %d: %s", resp.Code, resp.Log)
	}

	acct, err := DecodeAccount(resp.Value)
	if err != nil {
		return nil, ledger.Rejected(op, "decode account: %v", err)
	}
	return &ledger.AccountSnapshot{
		Address: address,
		Account: acct,
		Height:  uint64(resp.Height),
	}, nil
}

// SubmitTransaction signs and broadcasts the instruction, waiting as long
// as the commitment level requires.
func (s *Session) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Signer) (*ledger.Receipt, error) {
	const op = "submit transaction"

	txBytes, err := EncodeInstructions(instructions, signers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c, err := s.rpc()
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}

	if s.commitment == types.CommitmentProcessed {
		res, err := c.BroadcastTxSync(ctx, cmttypes.Tx(txBytes))
		if err != nil {
			return nil, ledger.NetworkError(op, err)
		}
		if res.Code != program.CodeTypeOK {
			return nil, rejectedCode(op, "check", res.Code, res.Log)
		}
		return &ledger.Receipt{ID: res.Hash.String(), Commitment: s.commitment}, nil
	}

	res, err := c.BroadcastTxCommit(ctx, cmttypes.Tx(txBytes))
	if err != nil {
		return nil, ledger.NetworkError(op, err)
	}
	if err := checkCommit(op, res.CheckTx, res.TxResult); err != nil {
		return nil, err
	}
	return &ledger.Receipt{
		ID:         res.Hash.String(),
		Height:     uint64(res.Height),
		Commitment: s.commitment,
	}, nil
}

func checkCommit(op string, check abci.ResponseCheckTx, exec abci.ExecTxResult) error {
	if check.Code != program.CodeTypeOK {
		return rejectedCode(op, "check", check.Code, check.Log)
	}
	if exec.Code != program.CodeTypeOK {
		return rejectedCode(op, "deliver", exec.Code, exec.Log)
	}
	return nil
}

func rejectedCode(op, phase string, code uint32, log string) error {
	return ledger.Rejected(op, "%s failed with code %d: %s", phase, code, log)
}
