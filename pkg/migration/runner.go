package migration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const lockTimeout = 300 * time.Second

const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at REAL DEFAULT (strftime('%s', 'now')),
	updated_at REAL DEFAULT (strftime('%s', 'now'))
);
CREATE TABLE IF NOT EXISTS __pgsqlite_migrations (
	version            INTEGER PRIMARY KEY,
	name               TEXT NOT NULL,
	description        TEXT,
	applied_at         REAL NOT NULL,
	execution_time_ms  INTEGER,
	checksum           TEXT NOT NULL,
	status             TEXT CHECK(status IN ('pending','running','completed','failed','rolled_back')),
	error_message      TEXT,
	rolled_back_at     REAL
);
CREATE TABLE IF NOT EXISTS __pgsqlite_migration_locks (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	locked_by  TEXT NOT NULL,
	locked_at  REAL NOT NULL,
	expires_at REAL NOT NULL
);
`

// Runner applies pending migrations to a single database's connection,
// guarded by an advisory lock row so multiple gateway processes opening
// the same file don't race each other's schema changes.
type Runner struct {
	db        *sql.DB
	processID string
	log       Logger
}

func NewRunner(db *sql.DB, log Logger) *Runner {
	return &Runner{
		db:        db,
		processID: fmt.Sprintf("%d:%s", os.Getpid(), uuid.NewString()),
		log:       log,
	}
}

// CheckSchemaVersion returns an error if the database's applied schema
// version is behind the built-in registry's maximum, without applying any
// migration (it does create the bootstrap ledger tables if they are
// absent) — used on startup when migrations are not auto-applied.
func (r *Runner) CheckSchemaVersion(ctx context.Context) error {
	if err := r.ensureBootstrapTables(ctx); err != nil {
		return err
	}
	current, err := r.currentVersion(ctx)
	if err != nil {
		return err
	}
	target := MaxVersion()
	if current < target {
		return fmt.Errorf("pgsqlite: schema is outdated (have %d, need %d); run with migrations enabled", current, target)
	}
	return nil
}

// RunPending applies every migration newer than the database's current
// version, in order, returning the versions actually applied.
func (r *Runner) RunPending(ctx context.Context) ([]uint32, error) {
	if err := r.ensureBootstrapTables(ctx); err != nil {
		return nil, err
	}
	if err := r.acquireLock(ctx); err != nil {
		return nil, err
	}
	defer r.releaseLock(ctx)

	return r.runPendingLocked(ctx)
}

func (r *Runner) ensureBootstrapTables(ctx context.Context) error {
	exists, err := r.tableExists(ctx, "__pgsqlite_metadata")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = r.db.ExecContext(ctx, bootstrapDDL)
	if err != nil {
		return fmt.Errorf("pgsqlite: creating bootstrap tables: %w", err)
	}
	return nil
}

func (r *Runner) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Runner) runPendingLocked(ctx context.Context) ([]uint32, error) {
	current, err := r.currentVersion(ctx)
	if err != nil {
		return nil, err
	}
	target := MaxVersion()
	if current >= target {
		r.log.V(1).Info("schema up to date", "version", current)
		return nil, nil
	}

	if current == 0 {
		legacy, err := r.hasLegacySchema(ctx)
		if err != nil {
			return nil, err
		}
		if legacy {
			r.log.Info("detected pre-migration database with existing schema")
			if err := r.markExistingSchemaAsVersion1(ctx); err != nil {
				return nil, err
			}
			return r.runPendingLocked(ctx)
		}
	}

	var applied []uint32
	for _, m := range Registry {
		if m.Version <= current {
			continue
		}
		for _, dep := range m.Dependencies {
			ok, err := r.migrationApplied(ctx, dep)
			if err != nil {
				return applied, err
			}
			if !ok {
				return applied, fmt.Errorf("pgsqlite: migration %d depends on %d, which hasn't been applied", m.Version, dep)
			}
		}

		existing, found, err := r.migrationChecksum(ctx, m.Version)
		if err != nil {
			return applied, err
		}
		if found && existing != m.Checksum() {
			return applied, fmt.Errorf("pgsqlite: migration %d has been modified (checksum mismatch)", m.Version)
		}

		if err := r.apply(ctx, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	r.log.Info("applying migration", "version", m.Version, "description", m.Description)
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgsqlite: starting migration %d: %w", m.Version, err)
	}

	now := float64(time.Now().Unix())
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO __pgsqlite_migrations (version, name, description, applied_at, checksum, status)
		VALUES (?, ?, ?, ?, ?, 'running')`,
		m.Version, m.Name, m.Description, now, m.Checksum()); err != nil {
		tx.Rollback()
		return fmt.Errorf("pgsqlite: recording migration %d start: %w", m.Version, err)
	}

	runErr := runAction(ctx, tx, m.Up)

	if runErr != nil {
		tx.Rollback()
		r.recordFailure(ctx, m.Version, runErr)
		r.log.Error(runErr, "migration failed", "version", m.Version)
		return fmt.Errorf("pgsqlite: migration %d failed: %w", m.Version, runErr)
	}

	elapsed := time.Since(start).Milliseconds()
	if _, err := tx.ExecContext(ctx,
		`UPDATE __pgsqlite_migrations SET status = 'completed', execution_time_ms = ? WHERE version = ?`,
		elapsed, m.Version); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO __pgsqlite_metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)`,
		m.Version, float64(time.Now().Unix())); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgsqlite: committing migration %d: %w", m.Version, err)
	}
	r.log.Info("migration completed", "version", m.Version, "elapsed_ms", elapsed)
	return nil
}

func runAction(ctx context.Context, tx *sql.Tx, a Action) error {
	if a.SQL != "" {
		if _, err := tx.ExecContext(ctx, a.SQL); err != nil {
			return err
		}
	}
	for _, stmt := range a.SQLBatch {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if a.Func != nil {
		return a.Func(ctx, tx)
	}
	return nil
}

// recordFailure runs outside the failed migration's own (now rolled-back)
// transaction, on its own auto-committing statement, exactly as
// original_source/src/migration/runner.rs records failures after the
// ROLLBACK.
func (r *Runner) recordFailure(ctx context.Context, version uint32, cause error) {
	_, _ = r.db.ExecContext(ctx,
		`UPDATE __pgsqlite_migrations SET status = 'failed', error_message = ? WHERE version = ?`,
		cause.Error(), version)
}

func (r *Runner) acquireLock(ctx context.Context) error {
	now := float64(time.Now().Unix())
	expires := now + lockTimeout.Seconds()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO __pgsqlite_migration_locks (id, locked_by, locked_at, expires_at) VALUES (1, ?, ?, ?)`,
		r.processID, now, expires)
	if err == nil {
		return nil
	}

	var lockedBy string
	var expiresAt float64
	row := r.db.QueryRowContext(ctx, `SELECT locked_by, expires_at FROM __pgsqlite_migration_locks WHERE id = 1`)
	if scanErr := row.Scan(&lockedBy, &expiresAt); scanErr != nil {
		return fmt.Errorf("pgsqlite: acquiring migration lock: %w", err)
	}

	if expiresAt < now {
		_, err := r.db.ExecContext(ctx,
			`UPDATE __pgsqlite_migration_locks SET locked_by = ?, locked_at = ?, expires_at = ? WHERE id = 1`,
			r.processID, now, expires)
		if err != nil {
			return fmt.Errorf("pgsqlite: stealing expired migration lock: %w", err)
		}
		return nil
	}

	return fmt.Errorf("pgsqlite: migration lock held by %s, expires at %s", lockedBy, time.Unix(int64(expiresAt), 0))
}

func (r *Runner) releaseLock(ctx context.Context) {
	_, _ = r.db.ExecContext(ctx,
		`DELETE FROM __pgsqlite_migration_locks WHERE id = 1 AND locked_by = ?`, r.processID)
}

func (r *Runner) currentVersion(ctx context.Context) (uint32, error) {
	exists, err := r.tableExists(ctx, "__pgsqlite_metadata")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var value string
	err = r.db.QueryRowContext(ctx, `SELECT value FROM __pgsqlite_metadata WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version uint32
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, nil
	}
	return version, nil
}

func (r *Runner) hasLegacySchema(ctx context.Context) (bool, error) {
	return r.tableExists(ctx, "__pgsqlite_schema")
}

func (r *Runner) markExistingSchemaAsVersion1(ctx context.Context) error {
	r.log.Info("marking existing database as version 1")
	now := float64(time.Now().Unix())
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO __pgsqlite_metadata (key, value) VALUES ('schema_version', '1')`); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO __pgsqlite_migrations (version, name, description, applied_at, checksum, status, execution_time_ms)
		VALUES (1, 'initial_schema', 'Create pgsqlite system tables', ?, 'pre-existing', 'completed', 0)`, now)
	return err
}

func (r *Runner) migrationApplied(ctx context.Context, version uint32) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM __pgsqlite_migrations WHERE version = ? AND status = 'completed'`, version).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) migrationChecksum(ctx context.Context, version uint32) (string, bool, error) {
	var checksum string
	err := r.db.QueryRowContext(ctx,
		`SELECT checksum FROM __pgsqlite_migrations WHERE version = ?`, version).Scan(&checksum)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return checksum, true, nil
}
