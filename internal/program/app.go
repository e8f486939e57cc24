// Package program contains the list program: the ABCI application that a
// CometBFT network runs to hold the shared list account. It implements
// transaction validation (CheckTx) and execution (FinalizeBlock) for the two
// instructions of the program interface, initialize_account and
// append_entry, and answers account reads through Query. Signatures are
// validated here and state transitions are applied here.
package program

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"archwall.mini/aw/internal/types"
)

const (
	CodeTypeOK            uint32 = 0
	CodeTypeEncodingError uint32 = 1
	CodeTypeAuthError     uint32 = 2
	CodeTypeInvalidTx     uint32 = 3
	CodeTypeNotFound      uint32 = 4
	CodeTypeAlreadyExists uint32 = 5
	CodeTypeUnknownQuery  uint32 = 6
	CodeTypeDuplicate     uint32 = 7
)

// QueryAccountPath is the ABCI query path for reading a list account. The
// query data is the raw 32 byte account address.
const QueryAccountPath = "/account"

// App implements the ABCI interface for the list program.
type App struct {
	abci.BaseApplication

	mu      sync.RWMutex
	state   map[solana.PublicKey]types.ListAccount
	applied map[string]struct{} // nonces of applied transactions
	height  int64
	appHash []byte
	log     zerolog.Logger
}

// NewApp creates an application with no accounts.
func NewApp(log zerolog.Logger) *App {
	return &App{
		state:   make(map[solana.PublicKey]types.ListAccount),
		applied: make(map[string]struct{}),
		log:   log.With().Str("component", "program").Logger(),
	}
}

// Account returns a copy of the list account at address.
func (app *App) Account(address solana.PublicKey) (types.ListAccount, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	acct, ok := app.state[address]
	if !ok {
		return types.ListAccount{}, false
	}
	return copyAccount(acct), true
}

// Height returns the last finalized block height.
func (app *App) Height() int64 {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.height
}

func (app *App) Info(_ context.Context, _ *abci.RequestInfo) (*abci.ResponseInfo, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return &abci.ResponseInfo{
		Data:             "archwall-list",
		Version:          types.Version,
		LastBlockHeight:  app.height,
		LastBlockAppHash: app.appHash,
	}, nil
}

func (app *App) Query(_ context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	if req.Path != QueryAccountPath {
		return &abci.ResponseQuery{Code: CodeTypeUnknownQuery, Log: "unknown query path " + req.Path}, nil
	}
	if len(req.Data) != solana.PublicKeyLength {
		return &abci.ResponseQuery{Code: CodeTypeEncodingError, Log: "query data must be a 32 byte address"}, nil
	}
	address := solana.PublicKeyFromBytes(req.Data)

	app.mu.RLock()
	acct, ok := app.state[address]
	height := app.height
	app.mu.RUnlock()

	if !ok {
		return &abci.ResponseQuery{Code: CodeTypeNotFound, Log: "account not found", Height: height}, nil
	}
	value, err := json.Marshal(acct)
	if err != nil {
		return &abci.ResponseQuery{Code: CodeTypeEncodingError, Log: err.Error()}, nil
	}
	return &abci.ResponseQuery{Code: CodeTypeOK, Key: req.Data, Value: value, Height: height}, nil
}

func (app *App) CheckTx(_ context.Context, req *abci.RequestCheckTx) (*abci.ResponseCheckTx, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if _, code, log := app.validate(req.Tx); code != CodeTypeOK {
		return &abci.ResponseCheckTx{Code: code, Log: log}, nil
	}
	return &abci.ResponseCheckTx{Code: CodeTypeOK}, nil
}

func (app *App) FinalizeBlock(_ context.Context, req *abci.RequestFinalizeBlock) (*abci.ResponseFinalizeBlock, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	results := make([]*abci.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		code, log := app.deliver(raw)
		results[i] = &abci.ExecTxResult{Code: code, Log: log}
	}

	app.height = req.Height
	app.appHash = app.hashState()
	return &abci.ResponseFinalizeBlock{TxResults: results, AppHash: app.appHash}, nil
}

func (app *App) Commit(_ context.Context, _ *abci.RequestCommit) (*abci.ResponseCommit, error) {
	return &abci.ResponseCommit{}, nil
}

// decoded is a validated transaction ready to apply.
type decoded struct {
	tx      *types.Transaction
	init    *types.InitializeAccountPayload
	appendE *types.AppendEntryPayload
}

// validate checks encoding, signatures, authorization and state
// preconditions. Callers hold app.mu.
func (app *App) validate(raw []byte) (*decoded, uint32, string) {
	var signedTx types.SignedTransaction
	if err := json.Unmarshal(raw, &signedTx); err != nil {
		return nil, CodeTypeEncodingError, "failed to decode signed tx"
	}
	if !signedTx.Verify() {
		return nil, CodeTypeAuthError, "invalid signature"
	}
	tx, err := signedTx.GetTransaction()
	if err != nil {
		return nil, CodeTypeEncodingError, "failed to decode inner tx"
	}
	if tx.Nonce == "" {
		return nil, CodeTypeInvalidTx, "transaction nonce is empty"
	}
	if _, ok := app.applied[tx.Nonce]; ok {
		return nil, CodeTypeDuplicate, "transaction already applied"
	}

	d := &decoded{tx: tx}
	switch tx.Type {
	case types.TxInitializeAccount:
		var p types.InitializeAccountPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return nil, CodeTypeEncodingError, "failed to decode initialize_account payload"
		}
		if !signedTx.SignedBy(p.Account) {
			return nil, CodeTypeAuthError, "account key must sign initialization"
		}
		if !signedTx.SignedBy(p.Owner) {
			return nil, CodeTypeAuthError, "owner must sign initialization"
		}
		if _, ok := app.state[p.Account]; ok {
			return nil, CodeTypeAlreadyExists, "account already initialized"
		}
		d.init = &p

	case types.TxAppendEntry:
		var p types.AppendEntryPayload
		if err := json.Unmarshal(tx.Payload, &p); err != nil {
			return nil, CodeTypeEncodingError, "failed to decode append_entry payload"
		}
		if !signedTx.SignedBy(p.Submitter) {
			return nil, CodeTypeAuthError, "submitter must sign append"
		}
		link := strings.TrimSpace(p.Link)
		if link == "" {
			return nil, CodeTypeInvalidTx, "entry link is empty"
		}
		if len(link) > types.MaxLinkLength {
			return nil, CodeTypeInvalidTx, fmt.Sprintf("entry link longer than %d bytes", types.MaxLinkLength)
		}
		if _, ok := app.state[p.Account]; !ok {
			return nil, CodeTypeNotFound, "account not initialized"
		}
		p.Link = link
		d.appendE = &p

	default:
		return nil, CodeTypeInvalidTx, "unknown transaction type"
	}
	return d, CodeTypeOK, ""
}

// deliver validates against the current state and applies. Callers hold
// app.mu for writing.
func (app *App) deliver(raw []byte) (uint32, string) {
	d, code, log := app.validate(raw)
	if code != CodeTypeOK {
		return code, log
	}
	app.applied[d.tx.Nonce] = struct{}{}

	switch {
	case d.init != nil:
		app.state[d.init.Account] = types.ListAccount{Owner: d.init.Owner, Entries: []types.Entry{}}
		app.log.Info().
			Str("account", d.init.Account.String()).
			Str("owner", d.init.Owner.String()).
			Msg("Initialized list account")

	case d.appendE != nil:
		acct := app.state[d.appendE.Account]
		acct.Entries = append(acct.Entries, types.Entry{Link: d.appendE.Link, Submitter: d.appendE.Submitter})
		app.state[d.appendE.Account] = acct
		app.log.Info().
			Str("account", d.appendE.Account.String()).
			Int("entries", len(acct.Entries)).
			Msg("Appended entry")
	}
	return CodeTypeOK, ""
}

// hashState is a BLAKE3 digest of the accounts ordered by address followed
// by the sorted applied nonces.
func (app *App) hashState() []byte {
	addrs := make([]solana.PublicKey, 0, len(app.state))
	for a := range app.state {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	h := blake3.New()
	enc := json.NewEncoder(h)
	for _, a := range addrs {
		h.Write(a[:])
		_ = enc.Encode(app.state[a])
	}

	nonces := make([]string, 0, len(app.applied))
	for n := range app.applied {
		nonces = append(nonces, n)
	}
	sort.Strings(nonces)
	for _, n := range nonces {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

func copyAccount(acct types.ListAccount) types.ListAccount {
	entries := make([]types.Entry, len(acct.Entries))
	copy(entries, acct.Entries)
	return types.ListAccount{Owner: acct.Owner, Entries: entries}
}
