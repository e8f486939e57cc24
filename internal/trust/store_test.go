package trust

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "trust.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func TestTrustLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	const addr = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

	if store.IsTrusted(addr) {
		t.Fatal("fresh store should trust nobody")
	}
	if _, err := store.Get(addr); !errors.Is(err, ErrNotTrusted) {
		t.Fatalf("expected ErrNotTrusted, got %v", err)
	}

	if err := store.Trust(addr, "laptop"); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	rec, err := store.Get(addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Label != "laptop" || rec.TrustedAt.IsZero() || !rec.LastUsed.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
	first := rec.TrustedAt

	if err := store.Trust(addr, "desktop"); err != nil {
		t.Fatalf("re-Trust: %v", err)
	}
	if err := store.Touch(addr); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	rec, _ = store.Get(addr)
	if rec.Label != "desktop" || !rec.TrustedAt.Equal(first) || rec.LastUsed.IsZero() {
		t.Fatalf("re-trust should keep trusted_at and update label: %+v", rec)
	}

	if err := store.Revoke(addr); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if store.IsTrusted(addr) {
		t.Fatal("revoked address still trusted")
	}
	if err := store.Revoke(addr); !errors.Is(err, ErrNotTrusted) {
		t.Fatalf("second revoke: expected ErrNotTrusted, got %v", err)
	}
}

func TestTrustRequiresAddress(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Trust("  ", ""); err == nil {
		t.Fatal("expected error for blank address")
	}
}

func TestListOrderedAndNotifies(t *testing.T) {
	store, _ := newTestStore(t)
	for _, a := range []string{"c", "a", "b"} {
		if err := store.Trust(a, ""); err != nil {
			t.Fatalf("Trust %s: %v", a, err)
		}
	}

	select {
	case <-store.Updates():
	default:
		t.Fatal("expected an update notification")
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 || records[0].Address != "a" || records[2].Address != "c" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestCorruptDatabaseRestoredFromBackup(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.Trust("kept", ""); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if _, err := store.BackupCurrent(5); err != nil {
		t.Fatalf("BackupCurrent: %v", err)
	}
	store.Close()

	dbFile := filepath.Join(dir, "trust.db")
	os.Remove(dbFile + "-wal")
	os.Remove(dbFile + "-shm")
	if err := os.WriteFile(dbFile, []byte("definitely not sqlite, just some bytes to break the header"), 0o600); err != nil {
		t.Fatalf("corrupt db: %v", err)
	}

	reopened, err := NewStore(dbFile)
	if err != nil {
		t.Fatalf("reopen corrupt store: %v", err)
	}
	defer reopened.Close()
	if !reopened.IsTrusted("kept") {
		t.Fatal("record from backup should be restored")
	}
}

func TestBackupsArePruned(t *testing.T) {
	store, dir := newTestStore(t)
	for i := 0; i < 6; i++ {
		if err := store.Trust(fmt.Sprintf("addr-%d", i), ""); err != nil {
			t.Fatalf("Trust: %v", err)
		}
		if _, err := store.BackupCurrent(3); err != nil {
			t.Fatalf("BackupCurrent %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("read backups: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 backups after pruning, got %d", len(entries))
	}
}
