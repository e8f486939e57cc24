package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/trust"
)

func quietLog() zerolog.Logger { return zerolog.New(io.Discard) }

func setupKeyfile(t *testing.T, approver Approver) (*KeyfileWallet, *identity.Identity, *trust.Store) {
	t.Helper()
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "wallet.pem")
	id, err := identity.GenerateKeyFile(keyFile)
	if err != nil {
		t.Fatalf("GenerateKeyFile: %v", err)
	}
	store, err := trust.NewStore(filepath.Join(dir, "trust.db"))
	if err != nil {
		t.Fatalf("trust.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewKeyfileWallet(keyFile, store, approver, quietLog()), id, store
}

func TestAdapterRejectsIncompleteCapability(t *testing.T) {
	testCases := []struct {
		name string
		cap  *Capability
	}{
		{"nil", nil},
		{"no connect", &Capability{Sign: func([]byte) ([]byte, error) { return nil, nil }}},
		{"no sign", &Capability{Connect: func(context.Context, ConnectOptions) (solana.PublicKey, error) { return solana.PublicKey{}, nil }}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdapter(tc.cap, quietLog())
			if a.IsAvailable() {
				t.Fatal("incomplete capability reported available")
			}
			if _, err := a.Connect(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
				t.Fatalf("expected ErrProviderUnavailable, got %v", err)
			}
			if _, ok := a.TryAutoConnect(context.Background()); ok {
				t.Fatal("silent connect should fail")
			}
		})
	}
}

func TestSilentConnectNeverPrompts(t *testing.T) {
	prompts := 0
	cap := &Capability{
		Connect: func(_ context.Context, opts ConnectOptions) (solana.PublicKey, error) {
			if !opts.OnlyIfTrusted {
				prompts++
			}
			return solana.PublicKey{}, errors.New("not trusted")
		},
		Sign: func([]byte) ([]byte, error) { return nil, nil },
	}
	a := NewAdapter(cap, quietLog())
	if _, ok := a.TryAutoConnect(context.Background()); ok {
		t.Fatal("expected not connected")
	}
	if prompts != 0 {
		t.Fatalf("silent connect prompted %d times", prompts)
	}
}

func TestKeyfileFirstConnectPromptsThenTrusted(t *testing.T) {
	w, id, store := setupKeyfile(t, AutoApprover)
	a := NewAdapter(w.Capability(), quietLog())
	ctx := context.Background()

	if _, ok := a.TryAutoConnect(ctx); ok {
		t.Fatal("untrusted wallet must not connect silently")
	}

	got, err := a.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !got.PublicKey().Equals(id.PublicKey()) {
		t.Fatalf("address = %s, want %s", got, id.Address())
	}
	if !store.IsTrusted(id.Address()) {
		t.Fatal("approval should be remembered")
	}

	// a later run connects silently
	again, ok := NewAdapter(w.Capability(), quietLog()).TryAutoConnect(ctx)
	if !ok || !again.PublicKey().Equals(id.PublicKey()) {
		t.Fatal("trusted wallet should connect silently")
	}
	rec, err := store.Get(id.Address())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.LastUsed.IsZero() {
		t.Fatal("silent reconnect should record wallet use")
	}
}

func TestKeyfileUserRejects(t *testing.T) {
	w, id, store := setupKeyfile(t, StaticApprover{Connect: false})
	a := NewAdapter(w.Capability(), quietLog())

	if _, err := a.Connect(context.Background()); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if store.IsTrusted(id.Address()) {
		t.Fatal("rejected wallet must not be trusted")
	}
}

func TestKeyfileMissingKeyIsUnavailable(t *testing.T) {
	w := NewKeyfileWallet(filepath.Join(t.TempDir(), "absent.pem"), nil, AutoApprover, quietLog())
	a := NewAdapter(w.Capability(), quietLog())
	if a.IsAvailable() {
		t.Fatal("wallet without key file reported available")
	}
	if _, err := a.Connect(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestKeyfileSigning(t *testing.T) {
	w, id, _ := setupKeyfile(t, AutoApprover)
	a := NewAdapter(w.Capability(), quietLog())

	wid, err := a.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	msg := []byte("append https://x/1.gif")
	sig, err := wid.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(id.PublicKey().Bytes()), msg, sig) {
		t.Fatal("signature does not verify")
	}

	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := wid.Sign(msg); err == nil {
		t.Fatal("signing after disconnect should fail")
	}
}

func TestKeyfileSignRejected(t *testing.T) {
	w, _, _ := setupKeyfile(t, StaticApprover{Connect: true, Sign: false})
	wid, err := NewAdapter(w.Capability(), quietLog()).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := wid.Sign([]byte("tx")); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestPromptApprover(t *testing.T) {
	out := &bytes.Buffer{}
	p := NewPromptApprover(strings.NewReader("yes\nn\n"), out)

	ok, err := p.ApproveConnect(context.Background(), "addr")
	if err != nil || !ok {
		t.Fatalf("first answer should approve: ok=%v err=%v", ok, err)
	}
	ok, err = p.ApproveSign("addr", []byte("tx"))
	if err != nil || ok {
		t.Fatalf("second answer should reject: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(out.String(), "connect to wallet addr") {
		t.Fatalf("prompt not written: %q", out.String())
	}
	if _, err := p.ApproveSign("addr", []byte("tx")); err == nil {
		t.Fatal("exhausted input should error")
	}
}
