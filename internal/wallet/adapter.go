// Package wallet adapts a wallet provider to archwall. The provider is an
// external capability that hands out a public address and signs messages
// for it; archwall never sees the private key. Adapter validates the
// capability once and exposes silent and explicit connection.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

var (
	// ErrProviderUnavailable means no usable wallet capability is present.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	// ErrUserRejected means the user declined an approval prompt.
	ErrUserRejected = errors.New("user rejected the request")
)

// ConnectOptions are passed to Capability.Connect.
type ConnectOptions struct {
	// OnlyIfTrusted forbids prompting; the provider connects only if the
	// user approved this client before.
	OnlyIfTrusted bool
}

// Capability is what a wallet provider offers. Connect and Sign are
// required; the rest are optional and may be nil.
type Capability struct {
	Name string

	Connect func(ctx context.Context, opts ConnectOptions) (solana.PublicKey, error)
	Sign    func(message []byte) ([]byte, error)

	IsAvailable func() bool
	Disconnect  func(ctx context.Context) error
}

func (c *Capability) validate() error {
	switch {
	case c == nil:
		return errors.New("no wallet capability")
	case c.Connect == nil:
		return errors.New("wallet capability has no connect")
	case c.Sign == nil:
		return errors.New("wallet capability has no sign")
	}
	return nil
}

// Identity is a connected wallet: its address plus the provider's sign
// function. It implements ledger.Signer.
type Identity struct {
	address solana.PublicKey
	sign    func([]byte) ([]byte, error)
}

// PublicKey returns the wallet address.
func (i *Identity) PublicKey() solana.PublicKey { return i.address }

// Sign asks the provider to sign message.
func (i *Identity) Sign(message []byte) ([]byte, error) { return i.sign(message) }

func (i *Identity) String() string { return i.address.String() }

// Adapter wraps one provider capability.
type Adapter struct {
	cap *Capability
	log zerolog.Logger
}

// NewAdapter validates c. An invalid or nil capability yields an adapter
// that reports the provider as unavailable.
func NewAdapter(c *Capability, log zerolog.Logger) *Adapter {
	log = log.With().Str("component", "wallet").Logger()
	if err := c.validate(); err != nil {
		log.Warn().Err(err).Msg("Wallet provider not usable")
		return &Adapter{log: log}
	}
	if c.Name != "" {
		log = log.With().Str("provider", c.Name).Logger()
	}
	return &Adapter{cap: c, log: log}
}

// IsAvailable reports whether a provider is present.
func (a *Adapter) IsAvailable() bool {
	if a.cap == nil {
		return false
	}
	if a.cap.IsAvailable == nil {
		return true
	}
	return a.cap.IsAvailable()
}

// TryAutoConnect connects only if the user trusted this client before. It
// never prompts, and any failure is logged and reported as not connected.
func (a *Adapter) TryAutoConnect(ctx context.Context) (*Identity, bool) {
	if !a.IsAvailable() {
		a.log.Info().Msg("No wallet provider found")
		return nil, false
	}
	addr, err := a.cap.Connect(ctx, ConnectOptions{OnlyIfTrusted: true})
	if err != nil {
		a.log.Info().Err(err).Msg("Silent connect declined")
		return nil, false
	}
	a.log.Info().Str("address", addr.String()).Msg("Connected with trusted wallet")
	return a.identity(addr), true
}

// Connect may prompt the user. It fails with ErrProviderUnavailable or
// ErrUserRejected; other provider errors are wrapped as they are.
func (a *Adapter) Connect(ctx context.Context) (*Identity, error) {
	if !a.IsAvailable() {
		return nil, ErrProviderUnavailable
	}
	addr, err := a.cap.Connect(ctx, ConnectOptions{})
	if err != nil {
		a.log.Warn().Err(err).Msg("Wallet connect failed")
		if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrUserRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("wallet connect: %w", err)
	}
	a.log.Info().Str("address", addr.String()).Msg("Connected with wallet")
	return a.identity(addr), nil
}

// Disconnect tells the provider to forget the connection when it supports
// that.
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.cap == nil || a.cap.Disconnect == nil {
		return nil
	}
	return a.cap.Disconnect(ctx)
}

func (a *Adapter) identity(addr solana.PublicKey) *Identity {
	return &Identity{address: addr, sign: a.cap.Sign}
}
