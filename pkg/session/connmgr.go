// Package session is the Connection Manager, Portal & Prepared-Statement
// Manager, and per-connection cache wiring described in spec.md §3/§4.3/
// §4.5. Grounded on the teacher's pkg/db/{db,pool}.go (dual read-write/
// read-only *sql.DB handles, WAL pragma setup, process-wide connection
// pool) and pkg/pgwire/prepared.go (map-based prepared-statement/portal
// bookkeeping), generalized per SPEC_FULL.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pgsqlite-go/pgsqlite/pkg/catalog"
)

// PragmaConfig is the set of connection-level PRAGMAs the gateway applies
// to every database it opens, sourced from cmd/pgsqlite's configuration
// surface (SPEC_FULL §3).
type PragmaConfig struct {
	JournalMode string // "WAL" or "DELETE"
	Synchronous string // "NORMAL", "FULL", "OFF"
	CacheSizeKB int    // negative means KB of RAM rather than pages
	MMapSize    int64  // set on the read-write handle only
}

// DefaultPragmaConfig mirrors original_source/src/config.rs's defaults.
func DefaultPragmaConfig() PragmaConfig {
	return PragmaConfig{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		CacheSizeKB: -64000,
		MMapSize:    268435456,
	}
}

// CheckpointMode is the mode a WAL checkpoint runs in.
type CheckpointMode int

const (
	CheckpointPassive CheckpointMode = iota
	CheckpointRestart
	CheckpointTruncate
)

var checkpointPRAGMAs = map[CheckpointMode]string{
	CheckpointPassive:  "PRAGMA wal_checkpoint(PASSIVE)",
	CheckpointRestart:  "PRAGMA wal_checkpoint(RESTART)",
	CheckpointTruncate: "PRAGMA wal_checkpoint(TRUNCATE)",
}

// Database is a single SQLite-file-backed database, exposed through a
// read-write handle (capped at one open connection, matching SQLite's own
// single-writer model) and a pooled read-only handle. The executor runs
// every statement, SELECTs included, on the read-write handle; the
// read-only handle serves StmtReadOnly.
type Database struct {
	path   string
	pragma PragmaConfig
	rwdb   *sql.DB
	rodb   *sql.DB

	// peers is the set of other sessions' read-only connections against
	// this same file, swept with a passive checkpoint after each commit
	// so their view of the database doesn't fall arbitrarily far behind
	// the writer (spec.md's "WAL peer refresh" requirement; the teacher
	// only ever checkpoints the writer's own connection).
	peersMu sync.Mutex
	peers   []*sql.DB
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenDatabase opens (creating if necessary) a SQLite file at dbPath with
// the gateway's standard pragma set, returning a Database with both its
// read-write and read-only handles ready.
func OpenDatabase(dbPath string, pragma PragmaConfig) (*Database, error) {
	rwdb, err := openSQLiteDB(dbPath, false, pragma)
	if err != nil {
		return nil, err
	}
	rodb, err := openSQLiteDB(dbPath, true, pragma)
	if err != nil {
		rwdb.Close()
		return nil, err
	}
	return &Database{path: dbPath, pragma: pragma, rwdb: rwdb, rodb: rodb}, nil
}

func openSQLiteDB(dbPath string, readOnly bool, pragma PragmaConfig) (*sql.DB, error) {
	if !fileExists(dbPath) {
		f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	dsn := makeDSN(dbPath, readOnly, pragma)
	db, err := sql.Open(catalog.DriverName, dsn)
	if err != nil {
		return nil, err
	}

	if readOnly {
		db.SetConnMaxIdleTime(30 * time.Second)
		db.SetConnMaxLifetime(0)
		return db, nil
	}

	if _, err := db.Exec("PRAGMA wal_autocheckpoint=0"); err != nil {
		return nil, fmt.Errorf("pgsqlite: disabling autocheckpoint: %w", err)
	}
	if pragma.MMapSize > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA mmap_size=%d", pragma.MMapSize)); err != nil {
			return nil, fmt.Errorf("pgsqlite: setting mmap_size: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pgsqlite: opening %s: %w", dbPath, err)
	}

	if pragma.JournalMode == "WAL" && !fileExists(dbPath+"-wal") {
		// Force creation of the WAL file so read-only peer connections
		// can open it immediately, per the SQLite WAL documentation.
		if _, err := db.Exec("BEGIN IMMEDIATE"); err != nil {
			return nil, err
		}
		if _, err := db.Exec("ROLLBACK"); err != nil {
			return nil, err
		}
	}

	db.SetConnMaxLifetime(0)
	db.SetMaxOpenConns(1)
	return db, nil
}

func makeDSN(path string, readOnly bool, pragma PragmaConfig) string {
	opts := url.Values{}
	opts.Add("_fk", "false")
	if pragma.JournalMode == "" || pragma.JournalMode == "WAL" {
		opts.Add("_journal", "WAL")
	} else {
		opts.Add("_journal", pragma.JournalMode)
	}
	if readOnly {
		opts.Add("mode", "ro")
	}
	sync := strings.ToLower(pragma.Synchronous)
	if sync == "" {
		sync = "normal"
	}
	opts.Add("_sync", sync)
	opts.Add("cache", "shared")
	opts.Add("_busy_timeout", "3000")
	if pragma.CacheSizeKB != 0 {
		opts.Add("_cache_size", strconv.Itoa(pragma.CacheSizeKB))
	}
	return fmt.Sprintf("file:%s?%s", path, opts.Encode())
}

// RegisterPeer adds another session's read-only handle against this same
// file to the WAL peer-refresh sweep. Nothing in this module calls it, so
// the sweep covers only handles a caller registers.
func (d *Database) RegisterPeer(rodb *sql.DB) {
	d.peersMu.Lock()
	defer d.peersMu.Unlock()
	d.peers = append(d.peers, rodb)
}

// RefreshPeers runs a passive checkpoint on the writer and then on every
// registered peer read-only handle (a peer's checkpoint error is
// ignored), bounding how far behind a long-lived reader connection can
// fall after a commit. Passive checkpoints never block writers or block
// on readers, so this is safe to call after every transaction commit.
func (d *Database) RefreshPeers(ctx context.Context) error {
	if _, _, _, err := d.checkpoint(CheckpointPassive); err != nil {
		return err
	}
	d.peersMu.Lock()
	peers := append([]*sql.DB(nil), d.peers...)
	d.peersMu.Unlock()
	for _, peer := range peers {
		_, _ = peer.ExecContext(ctx, checkpointPRAGMAs[CheckpointPassive])
	}
	return nil
}

func (d *Database) checkpoint(mode CheckpointMode) (ok, pages, moved int, err error) {
	err = d.rwdb.QueryRow(checkpointPRAGMAs[mode]).Scan(&ok, &pages, &moved)
	return
}

// Checkpoint runs a blocking (RESTART or TRUNCATE) WAL checkpoint.
func (d *Database) Checkpoint(mode CheckpointMode) error {
	ok, pages, moved, err := d.checkpoint(mode)
	if err != nil {
		return fmt.Errorf("pgsqlite: checkpointing WAL: %w", err)
	}
	if ok != 0 {
		return fmt.Errorf("pgsqlite: incomplete WAL checkpoint (%d ok, %d pages, %d moved)", ok, pages, moved)
	}
	return nil
}

// ReadWrite returns the single-connection read-write handle.
func (d *Database) ReadWrite() *sql.DB { return d.rwdb }

// ReadOnly returns the pooled read-only handle.
func (d *Database) ReadOnly() *sql.DB { return d.rodb }

// StmtReadOnly reports whether a statement is read-only, using SQLite's
// own sqlite3_stmt_readonly() via go-sqlite3's raw-connection escape
// hatch, exactly as the teacher's db.StmtReadOnlyWithConn does.
func (d *Database) StmtReadOnly(ctx context.Context, query string) (bool, error) {
	conn, err := d.rodb.Conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var readOnly bool
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("pgsqlite: unexpected driver connection type %T", driverConn)
		}
		stmt, err := c.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		readOnly = stmt.(*sqlite3.SQLiteStmt).Readonly()
		return nil
	})
	if err != nil {
		return false, err
	}
	return readOnly, nil
}

// Close closes both handles.
func (d *Database) Close() error {
	rwErr := d.rwdb.Close()
	roErr := d.rodb.Close()
	if rwErr != nil {
		return rwErr
	}
	return roErr
}

// Name returns the database's logical name (its filename without the
// .db extension), used as the PostgreSQL "database" the client connected
// to.
func (d *Database) Name() string {
	return strings.TrimSuffix(filepath.Base(d.path), ".db")
}

// Manager is the process-wide registry of open Databases, keyed by file
// path, so two client connections to the same logical database share one
// set of handles (and therefore one writer) instead of opening the file
// twice. Grounded on the teacher's pkg/db/pool.go sync.Map-backed pool.
type Manager struct {
	mu      sync.Mutex
	open    map[string]*Database
	dataDir string
	pragma  PragmaConfig
}

func NewManager(dataDir string, pragma PragmaConfig) *Manager {
	return &Manager{open: map[string]*Database{}, dataDir: dataDir, pragma: pragma}
}

// Open returns the Database for the given logical name, opening it if
// this is the first connection to request it.
func (m *Manager) Open(name string) (*Database, error) {
	path := filepath.Join(m.dataDir, name+".db")

	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.open[path]; ok {
		return db, nil
	}
	db, err := OpenDatabase(path, m.pragma)
	if err != nil {
		return nil, err
	}
	m.open[path] = db
	return db, nil
}

// CloseAll closes every open Database, used on graceful shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, db := range m.open {
		db.Close()
		delete(m.open, path)
	}
}
