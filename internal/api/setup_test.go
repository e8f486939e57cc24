package api

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/client"
	"archwall.mini/aw/internal/identity"
	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/ledger/ledgertest"
	"archwall.mini/aw/internal/logger"
	"archwall.mini/aw/internal/trust"
	"archwall.mini/aw/internal/wallet"
)

type fixture struct {
	svc     *Service
	machine *client.Machine
	ledger  *ledgertest.Ledger
	store   *trust.Store
	ring    *logger.Ring
}

// setupTest wires a service to a real machine backed by an in-process
// ledger and a temporary trust database.
func setupTest(t *testing.T, approver wallet.Approver) *fixture {
	t.Helper()
	dir := t.TempDir()

	ring := logger.NewRing(100)
	log := logger.NewLogger("info", io.Discard, ring)

	keyFile := filepath.Join(dir, "wallet.pem")
	if _, err := identity.GenerateKeyFile(keyFile); err != nil {
		t.Fatalf("Failed to create wallet key: %v", err)
	}
	account, err := identity.LoadOrCreateIdentity(filepath.Join(dir, "account.pem"))
	if err != nil {
		t.Fatalf("Failed to create account key: %v", err)
	}
	store, err := trust.NewStore(filepath.Join(dir, "trust.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledgertest.New()
	adapter := wallet.NewAdapter(wallet.NewKeyfileWallet(keyFile, store, approver, log).Capability(), log)
	m := client.New(client.Options{
		Wallet:  adapter,
		Account: account,
		Open:    func(*wallet.Identity) ledger.Session { return l },
		Log:     log,
	})

	return &fixture{
		svc:     NewService(m, store, ring, zerolog.New(io.Discard)),
		machine: m,
		ledger:  l,
		store:   store,
		ring:    ring,
	}
}
