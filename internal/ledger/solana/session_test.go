package solana

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/types"
)

var testProgramID = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

type fakeRPC struct {
	account  *rpc.Account
	getErr   error
	sendErr  error
	statuses []rpc.ConfirmationStatusType
	txErr    interface{}

	sent  *solana.Transaction
	polls int
}

func (f *fakeRPC) GetAccountInfoWithOpts(_ context.Context, _ solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.account == nil {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{RPCContext: rpc.RPCContext{Context: rpc.Context{Slot: 42}}, Value: f.account}, nil
}

func (f *fakeRPC) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{
		Blockhash: solana.HashFromBytes(make([]byte, 32)),
	}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, &jsonrpc.RPCError{Code: -32003, Message: err.Error()}
	}
	f.sent = tx
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	i := f.polls
	f.polls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{{
		Slot:               100 + uint64(i),
		ConfirmationStatus: f.statuses[i],
		Err:                f.txErr,
	}}}, nil
}

func newSession(f *fakeRPC, commitment types.Commitment) *Session {
	s := New(Options{Endpoint: "localnet", ProgramID: testProgramID, Commitment: commitment, PollInterval: time.Millisecond})
	s.client = f
	s.once.Do(func() {})
	return s
}

func newIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), name+".pem"))
	if err != nil {
		t.Fatalf("identity %s: %v", name, err)
	}
	return id
}

func TestDiscriminators(t *testing.T) {
	if got := hex.EncodeToString(initializeAccountDiscriminator[:]); got != "4a73635dc5456707" {
		t.Errorf("initialize_account discriminator = %s", got)
	}
	if got := hex.EncodeToString(listAccountDiscriminator[:]); got != "77a6d99bd487c4ba" {
		t.Errorf("ListAccount discriminator = %s", got)
	}
}

func TestAccountCodec(t *testing.T) {
	owner := newIdentity(t, "owner")
	acct := types.ListAccount{Owner: owner.PublicKey(), Entries: []types.Entry{
		{Link: "https://x/1.gif", Submitter: owner.PublicKey()},
		{Link: "https://x/2.gif", Submitter: owner.PublicKey()},
	}}

	data, err := EncodeAccount(acct)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// space reserved by the program beyond the current entries
	data = append(data, make([]byte, 64)...)

	got, err := DecodeAccount(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Owner.Equals(owner.PublicKey()) || len(got.Entries) != 2 || got.Entries[1].Link != "https://x/2.gif" {
		t.Fatalf("unexpected account %+v", got)
	}

	data[0] ^= 0xff
	if _, err := DecodeAccount(data); err == nil {
		t.Fatal("expected discriminator mismatch")
	}
}

func TestFetchAccountKinds(t *testing.T) {
	owner := newIdentity(t, "owner")
	addr := newIdentity(t, "account").PublicKey()
	data, err := EncodeAccount(types.ListAccount{Owner: owner.PublicKey(), Entries: []types.Entry{}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	testCases := []struct {
		name string
		rpc  *fakeRPC
		want ledger.Kind
	}{
		{"missing", &fakeRPC{}, ledger.KindNotFound},
		{"system owned", &fakeRPC{account: &rpc.Account{Owner: solana.SystemProgramID, Data: rpc.DataBytesOrJSONFromBytes(nil)}}, ledger.KindNotFound},
		{"foreign owner", &fakeRPC{account: &rpc.Account{Owner: solana.SystemProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}}, ledger.KindRejected},
		{"transport", &fakeRPC{getErr: errors.New("dial tcp: connection refused")}, ledger.KindNetwork},
		{"present", &fakeRPC{account: &rpc.Account{Owner: testProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}}, ledger.KindNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := newSession(tc.rpc, types.CommitmentConfirmed).FetchAccount(context.Background(), addr)
			if got := ledger.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tc.want, err)
			}
			if tc.want == ledger.KindNone && (snap.Height != 42 || len(snap.Account.Entries) != 0) {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
		})
	}
}

func TestSubmitWaitsForCommitment(t *testing.T) {
	owner := newIdentity(t, "owner")
	account := newIdentity(t, "account")
	f := &fakeRPC{statuses: []rpc.ConfirmationStatusType{
		rpc.ConfirmationStatusProcessed,
		rpc.ConfirmationStatusProcessed,
		rpc.ConfirmationStatusConfirmed,
	}}
	s := newSession(f, types.CommitmentConfirmed)

	receipt, err := s.SubmitTransaction(context.Background(),
		[]ledger.Instruction{ledger.InitializeAccount(account.PublicKey(), owner.PublicKey())},
		[]ledger.Signer{owner, account})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.polls != 3 || receipt.Height != 102 {
		t.Fatalf("polls=%d receipt=%+v", f.polls, receipt)
	}
	if !f.sent.Message.AccountKeys[0].Equals(owner.PublicKey()) {
		t.Errorf("fee payer should be the first signer")
	}
	if len(f.sent.Signatures) != 2 {
		t.Errorf("expected two signatures, got %d", len(f.sent.Signatures))
	}
}

func TestSubmitMissingSigner(t *testing.T) {
	owner := newIdentity(t, "owner")
	account := newIdentity(t, "account")
	s := newSession(&fakeRPC{statuses: []rpc.ConfirmationStatusType{rpc.ConfirmationStatusFinalized}}, types.CommitmentFinalized)

	_, err := s.SubmitTransaction(context.Background(),
		[]ledger.Instruction{ledger.InitializeAccount(account.PublicKey(), owner.PublicKey())},
		[]ledger.Signer{owner})
	if err == nil {
		t.Fatal("expected error without the account signer")
	}
}

func TestSubmitFailures(t *testing.T) {
	owner := newIdentity(t, "owner")
	account := newIdentity(t, "account")
	ix := []ledger.Instruction{ledger.AppendEntry(account.PublicKey(), owner.PublicKey(), "https://x/1.gif")}

	testCases := []struct {
		name string
		rpc  *fakeRPC
		want ledger.Kind
	}{
		{"preflight", &fakeRPC{sendErr: &jsonrpc.RPCError{Code: -32002, Message: "simulation failed"}}, ledger.KindRejected},
		{"transport", &fakeRPC{sendErr: errors.New("EOF")}, ledger.KindNetwork},
		{"program error", &fakeRPC{statuses: []rpc.ConfirmationStatusType{rpc.ConfirmationStatusProcessed}, txErr: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}, ledger.KindRejected},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newSession(tc.rpc, types.CommitmentConfirmed).SubmitTransaction(context.Background(), ix, []ledger.Signer{owner})
			if got := ledger.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tc.want, err)
			}
		})
	}
}

func TestSubmitTimeoutIsNetwork(t *testing.T) {
	owner := newIdentity(t, "owner")
	account := newIdentity(t, "account")
	s := newSession(&fakeRPC{statuses: []rpc.ConfirmationStatusType{rpc.ConfirmationStatusProcessed}}, types.CommitmentFinalized)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.SubmitTransaction(ctx,
		[]ledger.Instruction{ledger.AppendEntry(account.PublicKey(), owner.PublicKey(), "a")},
		[]ledger.Signer{owner})
	if ledger.KindOf(err) != ledger.KindNetwork {
		t.Fatalf("expected network kind, got %v", err)
	}
}

func TestResolveEndpoint(t *testing.T) {
	if ResolveEndpoint("devnet") != rpc.DevNet_RPC || ResolveEndpoint("") != rpc.LocalNet_RPC {
		t.Fatal("monikers not resolved")
	}
	if ResolveEndpoint("http://node:8899") != "http://node:8899" {
		t.Fatal("URL should pass through")
	}
}
