package bootstrap

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"archwall.mini/aw/internal/ledger"
	"archwall.mini/aw/internal/ledger/ledgertest"
)

func TestEnsureAccountIsIdempotent(t *testing.T) {
	l := ledgertest.New()
	account, wallet := ledgertest.Keys(t)
	b := New(l, account, zerolog.New(io.Discard))
	ctx := context.Background()

	res, err := b.EnsureAccount(ctx, wallet)
	if err != nil {
		t.Fatalf("first EnsureAccount: %v", err)
	}
	if res.AlreadyExists || res.Receipt == nil {
		t.Fatalf("first call should initialize: %+v", res)
	}

	for i := 0; i < 5; i++ {
		res, err := b.EnsureAccount(ctx, wallet)
		if err != nil {
			t.Fatalf("EnsureAccount %d: %v", i, err)
		}
		if !res.AlreadyExists {
			t.Fatalf("call %d should find the account", i)
		}
	}

	if n := l.Count(ledger.OpInitializeAccount); n != 1 {
		t.Fatalf("expected exactly one initialization, got %d", n)
	}

	snap, err := l.FetchAccount(ctx, account.PublicKey())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !snap.Account.Owner.Equals(wallet.PublicKey()) || len(snap.Account.Entries) != 0 {
		t.Fatalf("unexpected account %+v", snap.Account)
	}
}

func TestEnsureAccountNeverInitializesOnNetworkError(t *testing.T) {
	l := ledgertest.New()
	account, wallet := ledgertest.Keys(t)
	b := New(l, account, zerolog.New(io.Discard))

	l.FailFetch(ledger.NetworkError("fetch account", errors.New("timeout")))
	_, err := b.EnsureAccount(context.Background(), wallet)
	if ledger.KindOf(err) != ledger.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if len(l.Submitted()) != 0 {
		t.Fatal("no transaction may be submitted when existence is unknown")
	}
}

func TestEnsureAccountInitFailureLeavesAccountAbsent(t *testing.T) {
	l := ledgertest.New()
	account, wallet := ledgertest.Keys(t)
	b := New(l, account, zerolog.New(io.Discard))
	ctx := context.Background()

	l.FailSubmit(ledger.Rejected("submit transaction", "insufficient funds"))
	if _, err := b.EnsureAccount(ctx, wallet); !errors.Is(err, ledger.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	exists, err := b.Check(ctx)
	if err != nil || exists {
		t.Fatalf("account should still be absent: exists=%v err=%v", exists, err)
	}

	// retry succeeds once the fault clears
	l.FailSubmit(nil)
	res, err := b.EnsureAccount(ctx, wallet)
	if err != nil || res.AlreadyExists {
		t.Fatalf("retry should initialize: res=%+v err=%v", res, err)
	}
}

func TestCheck(t *testing.T) {
	l := ledgertest.New()
	account, _ := ledgertest.Keys(t)
	b := New(l, account, zerolog.New(io.Discard))

	exists, err := b.Check(context.Background())
	if err != nil || exists {
		t.Fatalf("fresh ledger: exists=%v err=%v", exists, err)
	}
	if !b.Address().Equals(account.PublicKey()) {
		t.Fatal("address should come from the account key material")
	}
}
