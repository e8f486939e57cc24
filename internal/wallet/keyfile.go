package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/trust"
)

// errNotTrusted is returned by a silent connect for an unknown wallet.
var errNotTrusted = errors.New("wallet has not trusted this client")

// KeyfileWallet is a local wallet provider backed by a key file. Approval
// prompts go through an Approver and approvals are remembered in a trust
// store so later runs can connect silently.
type KeyfileWallet struct {
	keyFile  string
	store    *trust.Store
	approver Approver
	log      zerolog.Logger

	mu sync.Mutex
	id *identity.Identity
}

// NewKeyfileWallet creates a provider for the key at keyFile. A nil store
// trusts nobody across runs.
func NewKeyfileWallet(keyFile string, store *trust.Store, approver Approver, log zerolog.Logger) *KeyfileWallet {
	if approver == nil {
		approver = StaticApprover{}
	}
	return &KeyfileWallet{
		keyFile:  keyFile,
		store:    store,
		approver: approver,
		log:      log.With().Str("component", "keyfile-wallet").Logger(),
	}
}

// Capability exposes the wallet to an Adapter.
func (w *KeyfileWallet) Capability() *Capability {
	return &Capability{
		Name:        "keyfile",
		Connect:     w.connect,
		Sign:        w.sign,
		IsAvailable: w.isAvailable,
		Disconnect:  w.disconnect,
	}
}

func (w *KeyfileWallet) isAvailable() bool {
	_, err := os.Stat(w.keyFile)
	return err == nil
}

func (w *KeyfileWallet) connect(ctx context.Context, opts ConnectOptions) (solana.PublicKey, error) {
	id, err := identity.LoadIdentity(w.keyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return solana.PublicKey{}, ErrProviderUnavailable
		}
		return solana.PublicKey{}, fmt.Errorf("load wallet key: %w", err)
	}
	addr := id.Address()

	trusted := w.store != nil && w.store.IsTrusted(addr)
	switch {
	case trusted:
		if err := w.store.Touch(addr); err != nil {
			w.log.Warn().Err(err).Str("address", addr).Msg("Failed to record wallet use")
		}
	case opts.OnlyIfTrusted:
		return solana.PublicKey{}, errNotTrusted
	default:
		ok, err := w.approver.ApproveConnect(ctx, addr)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("approval prompt: %w", err)
		}
		if !ok {
			return solana.PublicKey{}, ErrUserRejected
		}
		if w.store != nil {
			if err := w.store.Trust(addr, "keyfile"); err != nil {
				w.log.Warn().Err(err).Str("address", addr).Msg("Failed to remember trusted wallet")
			}
		}
	}

	w.mu.Lock()
	w.id = id
	w.mu.Unlock()
	return id.PublicKey(), nil
}

func (w *KeyfileWallet) sign(message []byte) ([]byte, error) {
	w.mu.Lock()
	id := w.id
	w.mu.Unlock()
	if id == nil {
		return nil, errors.New("wallet not connected")
	}

	ok, err := w.approver.ApproveSign(id.Address(), message)
	if err != nil {
		return nil, fmt.Errorf("approval prompt: %w", err)
	}
	if !ok {
		return nil, ErrUserRejected
	}
	return id.Sign(message)
}

func (w *KeyfileWallet) disconnect(context.Context) error {
	w.mu.Lock()
	w.id = nil
	w.mu.Unlock()
	return nil
}
