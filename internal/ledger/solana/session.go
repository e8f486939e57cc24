// Package solana provides a ledger session against a Solana cluster that
// runs the list program as an Anchor program. Transactions are assembled
// locally, signed through ledger.Signer (so wallet keys never enter this
// process) and sent with preflight at the session's commitment. The session
// then polls signature status until that commitment is reached.
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/types"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 500 * time.Millisecond

type rpcClient interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Options configures a Session.
type Options struct {
	Endpoint     string // URL or devnet, testnet, mainnet-beta, localnet
	ProgramID    solana.PublicKey
	Commitment   types.Commitment
	PollInterval time.Duration
}

// Session talks to one Solana RPC node.
type Session struct {
	endpoint     string
	programID    solana.PublicKey
	commitment   types.Commitment
	pollInterval time.Duration

	once   sync.Once
	client rpcClient
}

// New creates a session. The RPC client is built on first use.
func New(opts Options) *Session {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Session{
		endpoint:     ResolveEndpoint(opts.Endpoint),
		programID:    opts.ProgramID,
		commitment:   opts.Commitment,
		pollInterval: poll,
	}
}

// ResolveEndpoint maps a cluster moniker to its public RPC URL. Anything
// else is returned unchanged.
func ResolveEndpoint(endpoint string) string {
	switch strings.ToLower(endpoint) {
	case "devnet":
		return rpc.DevNet_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "mainnet-beta", "mainnet":
		return rpc.MainNetBeta_RPC
	case "localnet", "":
		return rpc.LocalNet_RPC
	}
	return endpoint
}

func (s *Session) Endpoint() string { return s.endpoint }

func (s *Session) Commitment() types.Commitment { return s.commitment }

func (s *Session) rpc() rpcClient {
	s.once.Do(func() {
		s.client = rpc.New(s.endpoint)
	})
	return s.client
}

func (s *Session) rpcCommitment() rpc.CommitmentType {
	switch s.commitment {
	case types.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case types.CommitmentFinalized:
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// FetchAccount reads and decodes the list account.
func (s *Session) FetchAccount(ctx context.Context, address solana.PublicKey) (*ledger.AccountSnapshot, error) {
	const op = "fetch account"

	res, err := s.rpc().GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: s.rpcCommitment(),
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ledger.NotFound(op)
		}
		return nil, classify(op, err)
	}

	info := res.Value
	data := info.Data.GetBinary()
	// a funded address the program never initialized
	if info.Owner.Equals(solana.SystemProgramID) && len(data) == 0 {
		return nil, ledger.NotFound(op)
	}
	if !s.programID.IsZero() && !info.Owner.Equals(s.programID) {
		return nil, ledger.Rejected(op, "account %s is owned by %s, not the list program", address, info.Owner)
	}

	acct, err := DecodeAccount(data)
	if err != nil {
		return nil, ledger.Rejected(op, "%v", err)
	}
	return &ledger.AccountSnapshot{Address: address, Account: acct, Height: res.Context.Slot}, nil
}

// SubmitTransaction builds, signs and sends one transaction carrying all
// instructions, then waits for the session commitment.
func (s *Session) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Signer) (*ledger.Receipt, error) {
	const op = "submit transaction"

	if len(instructions) == 0 {
		return nil, fmt.Errorf("%s: no instructions", op)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%s: no signers", op)
	}
	ixs := make([]solana.Instruction, 0, len(instructions))
	for _, ix := range instructions {
		built, err := BuildInstruction(s.programID, ix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ixs = append(ixs, built)
	}

	c := s.rpc()
	bh, err := c.GetLatestBlockhash(ctx, s.rpcCommitment())
	if err != nil {
		return nil, classify(op, err)
	}
	if bh == nil || bh.Value == nil {
		return nil, ledger.NetworkError(op, errors.New("empty blockhash response"))
	}

	// the first signer pays fees
	tx, err := solana.NewTransaction(ixs, bh.Value.Blockhash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("%s: build transaction: %w", op, err)
	}
	if err := SignTransaction(tx, signers); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sig, err := c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.rpcCommitment(),
	})
	if err != nil {
		return nil, classify(op, err)
	}

	slot, err := s.awaitCommitment(ctx, sig)
	if err != nil {
		return nil, err
	}
	return &ledger.Receipt{ID: sig.String(), Height: slot, Commitment: s.commitment}, nil
}

// SignTransaction fills tx.Signatures in the order the message lists its
// signers. Every required signer must be among signers.
func SignTransaction(tx *solana.Transaction, signers []ledger.Signer) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	required := tx.Message.Signers()
	tx.Signatures = make([]solana.Signature, 0, len(required))
	for _, key := range required {
		var signer ledger.Signer
		for _, s := range signers {
			if s.PublicKey().Equals(key) {
				signer = s
				break
			}
		}
		if signer == nil {
			return fmt.Errorf("missing signer for %s", key)
		}
		raw, err := signer.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", key, err)
		}
		tx.Signatures = append(tx.Signatures, solana.SignatureFromBytes(raw))
	}
	return nil
}

func (s *Session) awaitCommitment(ctx context.Context, sig solana.Signature) (uint64, error) {
	const op = "await confirmation"

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		res, err := s.rpc().GetSignatureStatuses(ctx, false, sig)
		switch {
		case err == nil && len(res.Value) > 0 && res.Value[0] != nil:
			st := res.Value[0]
			if st.Err != nil {
				return 0, ledger.Rejected(op, "transaction %s failed: %v", sig, st.Err)
			}
			if reached(st.ConfirmationStatus, s.commitment) {
				return st.Slot, nil
			}
		case err != nil && !errors.Is(err, rpc.ErrNotFound):
			return 0, classify(op, err)
		}

		select {
		case <-ctx.Done():
			return 0, ledger.NetworkError(op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want types.Commitment) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	wantRank := map[types.Commitment]int{
		types.CommitmentProcessed: 1,
		types.CommitmentConfirmed: 2,
		types.CommitmentFinalized: 3,
	}[want]
	if wantRank == 0 {
		wantRank = 2
	}
	return rank[status] >= wantRank
}

// classify maps JSON-RPC errors (preflight failures, bad params) to
// rejections and everything else to network errors.
func classify(op string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return ledger.Rejected(op, "rpc error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	return ledger.NetworkError(op, err)
}
