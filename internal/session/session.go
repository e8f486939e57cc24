// Package session opens ledger sessions. A Session binds one wallet identity
// to a backend, an endpoint and a commitment level, and is recreated
// whenever the identity or endpoint changes.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/config"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/ledger/comet"
	"archwall.mini/aw/internal/ledger/local"
	solledger "archwall.mini/aw/internal/ledger/solana"
	"archwall.mini/aw/internal/program"
	"archwall.mini/aw/internal/types"
)

const (
	BackendComet  = "comet"
	BackendSolana = "solana"
	BackendLocal  = "local"
)

// Options selects and configures the backend.
type Options struct {
	Backend      string
	Endpoint     string
	Commitment   types.Commitment
	ProgramID    solana.PublicKey
	PollInterval time.Duration
	// App is the in-process program for the local backend. A fresh one is
	// created when nil.
	App *program.App
}

// OptionsFromConfig validates the ledger settings in cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	commitment, err := types.ParseCommitment(cfg.Commitment)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Backend:      strings.ToLower(cfg.Backend),
		Endpoint:     cfg.Endpoint,
		Commitment:   commitment,
		PollInterval: cfg.PollInterval.Duration,
	}
	switch opts.Backend {
	case BackendComet, BackendLocal:
	case BackendSolana:
		if cfg.ProgramID == "" {
			return Options{}, fmt.Errorf("program_id is required for the solana backend")
		}
		if opts.ProgramID, err = solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
			return Options{}, fmt.Errorf("invalid program_id: %w", err)
		}
	default:
		return Options{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return opts, nil
}

// Session is a ledger.Session bound to an identity.
type Session struct {
	ledger.Session
	id       string
	identity ledger.Signer
	log      zerolog.Logger
}

// Open constructs a session. It never dials; connection problems surface
// from the first read or write.
func Open(identity ledger.Signer, opts Options, log zerolog.Logger) *Session {
	var backend ledger.Session
	switch opts.Backend {
	case BackendSolana:
		backend = solledger.New(solledger.Options{
			Endpoint:     opts.Endpoint,
			ProgramID:    opts.ProgramID,
			Commitment:   opts.Commitment,
			PollInterval: opts.PollInterval,
		})
	case BackendLocal:
		app := opts.App
		if app == nil {
			app = program.NewApp(log)
		}
		backend = local.New(app, opts.Commitment)
	default:
		backend = comet.New(opts.Endpoint, opts.Commitment)
	}

	id := uuid.New().String()
	return &Session{
		Session:  backend,
		id:       id,
		identity: identity,
		log: log.With().
			Str("component", "session").
			Str("session", id).
			Str("identity", identity.PublicKey().String()).
			Logger(),
	}
}

// ID identifies this session in logs and client state.
func (s *Session) ID() string { return s.id }

// Identity returns the wallet identity the session is bound to.
func (s *Session) Identity() ledger.Signer { return s.identity }

func (s *Session) FetchAccount(ctx context.Context, address solana.PublicKey) (*ledger.AccountSnapshot, error) {
	start := time.Now()
	snap, err := s.Session.FetchAccount(ctx, address)
	ev := s.log.Debug()
	if err != nil && ledger.KindOf(err) != ledger.KindNotFound {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("account", address.String()).
		Str("kind", string(ledger.KindOf(err))).
		Dur("took", time.Since(start)).
		Msg("Fetched account")
	return snap, err
}

func (s *Session) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signers []ledger.Signer) (*ledger.Receipt, error) {
	start := time.Now()
	receipt, err := s.Session.SubmitTransaction(ctx, instructions, signers)
	if err != nil {
		s.log.Warn().Err(err).
			Str("kind", string(ledger.KindOf(err))).
			Dur("took", time.Since(start)).
			Msg("Transaction failed")
		return nil, err
	}
	s.log.Info().
		Str("tx", receipt.ID).
		Uint64("height", receipt.Height).
		Dur("took", time.Since(start)).
		Msg("Transaction confirmed")
	return receipt, nil
}
