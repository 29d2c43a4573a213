package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
	"github.com/pgsqlite-go/pgsqlite/pkg/migration"
	"github.com/pgsqlite-go/pgsqlite/pkg/session/cache"
)

// TransactionStatus is the single byte PostgreSQL's ReadyForQuery message
// reports so clients (and connection poolers like pgbouncer) know whether
// it's safe to send another statement outside an explicit transaction.
// Grounded on spec.md §4.4; the teacher hardcodes 'I' (pkg/pgwire/conn.go)
// since it never opens explicit transactions itself.
type TransactionStatus byte

const (
	TxIdle   TransactionStatus = 'I'
	TxActive TransactionStatus = 'T'
	TxFailed TransactionStatus = 'E'
)

// Session is the full state of one client connection: its backing
// database, run-time parameters, prepared statements/portals, and
// per-connection caches. Grounded on the teacher's pkg/pgwire.ClientConn
// (which bundled only the bare prepStmts/portals maps) generalized to
// also own the pieces original_source/src/session/mod.rs's SessionState
// bundles (parameters, a result cache, an enum cache).
type Session struct {
	ID       int32
	Database *Database
	Store    *metadata.Store

	Params  *Parameters
	Portals *PortalManager

	ResultCache *cache.ResultCache
	EnumCache   *cache.EnumCache

	mu       sync.Mutex
	txStatus TransactionStatus
	tx       *sql.Tx
}

// Config bundles the cache sizing knobs cmd/pgsqlite exposes as flags,
// per SPEC_FULL.md §3.
type Config struct {
	MaxPortals         int
	MaxStatements      int
	ResultCacheEntries int
	ResultCacheMaxRows int
	ResultCacheTTL     time.Duration
	EnumCacheTTL       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPortals:         100,
		MaxStatements:      100,
		ResultCacheEntries: 1000,
		ResultCacheMaxRows: 10000,
		ResultCacheTTL:     60 * time.Second,
		EnumCacheTTL:       5 * time.Minute,
	}
}

// NewSession wires a fresh connection's state around an already-open
// Database, running pending migrations against it first so the session
// never observes a half-migrated schema.
func NewSession(ctx context.Context, id int32, db *Database, log migration.Logger, cfg Config) (*Session, error) {
	store := metadata.NewStore(db.ReadWrite())
	runner := migration.NewRunner(db.ReadWrite(), log)
	if _, err := runner.RunPending(ctx); err != nil {
		return nil, err
	}

	if drifts, err := metadata.DetectDrift(ctx, db.ReadWrite(), store); err != nil {
		log.V(1).Info("schema drift check failed", "error", err.Error())
	} else {
		for _, d := range drifts {
			log.Info("schema drift detected", "kind", d.Kind.String(), "table", d.TableName, "column", d.ColumnName, "recorded", d.Recorded, "live", d.Live)
		}
	}

	portals := NewPortalManager(cfg.MaxPortals)
	portals.SetMaxStatements(cfg.MaxStatements)

	return &Session{
		ID:          id,
		Database:    db,
		Store:       store,
		Params:      NewParameters(),
		Portals:     portals,
		ResultCache: cache.NewResultCache(cfg.ResultCacheEntries, cfg.ResultCacheMaxRows, cfg.ResultCacheTTL),
		EnumCache:   cache.NewEnumCache(cfg.EnumCacheTTL),
		txStatus:    TxIdle,
	}, nil
}

// TxStatus reports the current transaction status byte for ReadyForQuery.
func (s *Session) TxStatus() TransactionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txStatus
}

// Begin opens an explicit transaction, used when the client issues BEGIN
// or when a simple-query message contains more than one statement (the
// PostgreSQL wire protocol implicitly wraps a multi-statement Query
// message in a transaction).
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return nil
	}
	tx, err := s.Database.ReadWrite().BeginTx(ctx, nil)
	if err != nil {
		s.txStatus = TxFailed
		return err
	}
	s.tx = tx
	s.txStatus = TxActive
	return nil
}

// Commit commits the open transaction, if any, and refreshes WAL peers so
// concurrent read-only sessions observe the change promptly.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	if tx == nil {
		s.setStatus(TxIdle)
		return nil
	}
	if err := tx.Commit(); err != nil {
		s.setStatus(TxFailed)
		return err
	}
	s.setStatus(TxIdle)
	s.ResultCache.Invalidate()
	return s.Database.RefreshPeers(ctx)
}

// Rollback aborts the open transaction, if any.
func (s *Session) Rollback() error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	s.setStatus(TxIdle)
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// MarkFailed transitions the session into the "current transaction is
// aborted" state PostgreSQL enters after a statement error inside an
// explicit transaction; every subsequent statement, COMMIT included, is
// rejected until a ROLLBACK.
func (s *Session) MarkFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		s.txStatus = TxFailed
	}
}

func (s *Session) setStatus(status TransactionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txStatus = status
}

// Tx returns the currently open transaction, or nil outside one.
func (s *Session) Tx() *sql.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

// InTransaction reports whether an explicit transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Close releases the session's portal/statement state. The underlying
// Database is owned by the Manager, not the Session, and outlives it.
func (s *Session) Close() {
	_ = s.Rollback()
	s.Portals.CloseAll()
}
