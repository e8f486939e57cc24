// Package trust records which wallet identities have approved this client.
// A wallet that approved once may be reconnected silently on later runs;
// every other connection needs an explicit approval. Records live in SQLite.
package trust

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "trust.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultMaxBackups    = 10
)

var errNoBackups = errors.New("no trust backups available")

// ErrNotTrusted is returned by Get for an unknown address.
var ErrNotTrusted = errors.New("wallet not trusted")

// Record is one trusted wallet.
type Record struct {
	Address   string    `json:"address"`
	Label     string    `json:"label,omitempty"`
	TrustedAt time.Time `json:"trusted_at"`
	LastUsed  time.Time `json:"last_used,omitempty"`
}

// Store persists trust records.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
	updates   chan struct{}
}

type backupInfo struct {
	path      string
	timestamp int64
}

// NewStore opens (or creates) the trust database at filePath. An unreadable
// database is replaced by the latest backup, or by an empty database when
// no backup exists.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &Store{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
		updates:   make(chan struct{}, 1),
	}

	if err := s.tryOpenOrRecover(); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(); err != nil {
		_ = s.closeDB()
		if recErr := s.recoverDatabase(err); recErr != nil {
			return nil, recErr
		}
		if err := s.ensureSchema(); err != nil {
			_ = s.closeDB()
			return nil, err
		}
	}

	return s, nil
}

// Updates returns a channel that receives a value whenever records change.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

func (s *Store) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *Store) tryOpenOrRecover() error {
	if err := s.openDB(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			return recErr
		}
	}
	return nil
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(s.file)))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) recoverDatabase(openErr error) error {
	if err := s.restoreLatestBackup(); err != nil {
		if !errors.Is(err, errNoBackups) {
			return fmt.Errorf("restore database after %v: %w", openErr, err)
		}
		if cleanErr := s.resetDatabaseFiles(); cleanErr != nil {
			return fmt.Errorf("reset database after %v: %w", openErr, cleanErr)
		}
		if err := s.openDB(); err != nil {
			return fmt.Errorf("create fresh database after %v: %w", openErr, err)
		}
	}
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) resetDatabaseFiles() error {
	_ = s.closeDB()

	var firstErr error
	for _, path := range []string{s.file, s.file + "-wal", s.file + "-shm"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
	}
	return firstErr
}

func (s *Store) restoreLatestBackup() error {
	prefix, ext := s.backupNaming()
	backups, err := listBackups(s.backupDir, prefix, ext)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return errNoBackups
	}

	latest := backups[len(backups)-1]
	if err := s.resetDatabaseFiles(); err != nil {
		return err
	}
	if err := copyFile(latest.path, s.file); err != nil {
		return fmt.Errorf("copy backup %s: %w", filepath.Base(latest.path), err)
	}
	return s.openDB()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS trusted_wallets (
		address TEXT PRIMARY KEY,
		label TEXT,
		trusted_at TEXT NOT NULL,
		last_used TEXT
	)`)
	if err != nil {
		return fmt.Errorf("create trusted_wallets table: %w", err)
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

// IsTrusted reports whether address approved this client before. Lookup
// errors count as not trusted.
func (s *Store) IsTrusted(address string) bool {
	_, err := s.Get(address)
	return err == nil
}

// Get returns the record for address or ErrNotTrusted.
func (s *Store) Get(address string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT address, label, trusted_at, last_used FROM trusted_wallets WHERE address = ?`, address)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotTrusted
		}
		return nil, err
	}
	return &rec, nil
}

// Trust records address as approved. Trusting an address again keeps its
// original trusted_at and updates the label.
func (s *Store) Trust(address, label string) error {
	if strings.TrimSpace(address) == "" {
		return errors.New("address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO trusted_wallets (address, label, trusted_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET label = excluded.label`,
		address, label, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("trust wallet: %w", err)
	}
	s.notify()
	return nil
}

// Touch updates the last-used time of a trusted address.
func (s *Store) Touch(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE trusted_wallets SET last_used = ? WHERE address = ?`, formatTime(time.Now()), address)
	if err != nil {
		return fmt.Errorf("touch wallet: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotTrusted
	}
	return nil
}

// Revoke forgets address so the next connection prompts again.
func (s *Store) Revoke(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM trusted_wallets WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("revoke wallet: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotTrusted
	}
	s.notify()
	return nil
}

// List returns all records ordered by address.
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT address, label, trusted_at, last_used FROM trusted_wallets ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list trusted wallets: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// BackupCurrent writes a snapshot of the database to a timestamped file in
// the backups directory and prunes the oldest beyond maxBackups.
func (s *Store) BackupCurrent(maxBackups int) (string, error) {
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backup directory: %w", err)
	}

	prefix, ext := s.backupNaming()
	timestamp := time.Now().Unix()
	var backupPath string
	for {
		backupPath = filepath.Join(s.backupDir, fmt.Sprintf("%s-%d%s", prefix, timestamp, ext))
		if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		timestamp++
	}

	s.mu.Lock()
	escaped := strings.ReplaceAll(backupPath, "'", "''")
	_, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", escaped))
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}

	pruneBackups(s.backupDir, prefix, ext, maxBackups)
	return backupPath, nil
}

func (s *Store) backupNaming() (prefix, ext string) {
	base := filepath.Base(s.file)
	ext = filepath.Ext(base)
	prefix = strings.TrimSuffix(base, ext)
	if prefix == "" {
		prefix = base
	}
	return prefix, ext
}

func listBackups(dir, prefix, ext string) ([]backupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []backupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ext) {
			continue
		}
		tsPart := strings.TrimPrefix(strings.TrimSuffix(name, ext), prefix+"-")
		ts, err := strconv.ParseInt(tsPart, 10, 64)
		if err != nil {
			info, statErr := entry.Info()
			if statErr != nil {
				continue
			}
			ts = info.ModTime().Unix()
		}
		backups = append(backups, backupInfo{path: filepath.Join(dir, name), timestamp: ts})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].timestamp == backups[j].timestamp {
			return backups[i].path < backups[j].path
		}
		return backups[i].timestamp < backups[j].timestamp
	})
	return backups, nil
}

func pruneBackups(dir, prefix, ext string, maxBackups int) {
	backups, err := listBackups(dir, prefix, ext)
	if err != nil || len(backups) <= maxBackups {
		return
	}
	for i := 0; i < len(backups)-maxBackups; i++ {
		_ = os.Remove(backups[i].path)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		address, label      sql.NullString
		trustedAt, lastUsed sql.NullString
	)
	if err := scanner.Scan(&address, &label, &trustedAt, &lastUsed); err != nil {
		return Record{}, err
	}
	return Record{
		Address:   address.String,
		Label:     label.String,
		TrustedAt: parseTime(trustedAt.String),
		LastUsed:  parseTime(lastUsed.String),
	}, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}
