// Package storage owns the embedded SQLite database and every connection
// to it. It is the leaf of the dependency graph: nothing here imports any
// other internal package except the error taxonomy.
//
// The database runs in WAL mode with a busy_timeout on every connection,
// and concurrent writers are bounded by a weighted semaphore so a burst of
// mutation tasks cannot starve each other's retry budgets.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kittclouds/nodespace/internal/nodeerr"
)

// schema creates the core tables. JSON columns hold the schema-validated
// property bag and schema definitions verbatim; referential integrity is
// enforced by SQLite foreign keys, so every stored reference points at an
// existing node.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	node_type TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	container_node_id TEXT REFERENCES nodes(id) ON DELETE SET NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	version INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	modified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_container ON nodes(container_node_id);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);

CREATE TABLE IF NOT EXISTS has_child (
	parent_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	child_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	rank REAL NOT NULL,
	PRIMARY KEY (parent_id, child_id)
);

CREATE INDEX IF NOT EXISTS idx_has_child_rank ON has_child(parent_id, rank);
CREATE UNIQUE INDEX IF NOT EXISTS idx_has_child_child ON has_child(child_id);

CREATE TABLE IF NOT EXISTS mentions (
	source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	PRIMARY KEY (source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_mentions_target ON mentions(target_id);

CREATE TABLE IF NOT EXISTS schemas (
	node_type TEXT PRIMARY KEY,
	definition TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);
`

// Store owns the embedded SQLite database and mediates all access to it.
type Store struct {
	db      *sql.DB
	writers *semaphore.Weighted
	log     *zap.Logger
}

// Options configures Open.
type Options struct {
	// Path is the database file, or ":memory:" for an ephemeral store.
	Path string
	// BusyTimeoutMillis sets the SQLite busy_timeout pragma.
	BusyTimeoutMillis int
	// MaxWriters bounds the concurrent-write semaphore. Zero falls back
	// to 4; the host may tune it lower or higher.
	MaxWriters int64
	Log        *zap.Logger
}

// Open opens (creating if necessary) the database at opts.Path in WAL mode
// and applies the core schema. Schema initialization failure is fatal: the
// caller gets an error and no Store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.BusyTimeoutMillis <= 0 {
		opts.BusyTimeoutMillis = 5000
	}
	if opts.MaxWriters <= 0 {
		opts.MaxWriters = 4
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	dsn := buildDSN(opts.Path, opts.BusyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", opts.Path, err)
	}
	if opts.Path == ":memory:" {
		// Each pooled connection to ":memory:" would otherwise get its own
		// empty database; pinning the pool to one connection keeps every
		// statement on the same in-memory instance.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:      db,
		writers: semaphore.NewWeighted(opts.MaxWriters),
		log:     log,
	}

	// PRAGMA busy_timeout and PRAGMA journal_mode return a result row that
	// must be consumed, or the connection is left holding a pending result
	// set. The DSN pragmas above already apply per-connection; re-asserting
	// and consuming them on the pool's first connection makes a
	// misconfigured DSN fail at Open time rather than at first use.
	if err := consumePragma(ctx, db, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMillis)); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply busy_timeout: %w", err)
	}
	if opts.Path != ":memory:" {
		if err := consumePragma(ctx, db, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: apply journal_mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}

	log.Info("storage opened", zap.String("path", opts.Path), zap.Int64("max_writers", opts.MaxWriters))
	return s, nil
}

// buildDSN assembles a ncruces/go-sqlite3 DSN with the pragmas applied to
// every new connection the pool opens (file:...?_pragma=busy_timeout(5000)).
func buildDSN(path string, busyTimeoutMillis int) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(" + itoa(busyTimeoutMillis) + ")&_pragma=foreign_keys(ON)"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)",
		path, busyTimeoutMillis)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// consumePragma executes a PRAGMA statement that returns a single-row
// result set and discards the value, satisfying SQLite's requirement that
// the row be read before the statement is considered complete.
func consumePragma(ctx context.Context, db *sql.DB, stmt string) error {
	var discard any
	row := db.QueryRowContext(ctx, stmt)
	if err := row.Scan(&discard); err != nil {
		return err
	}
	return nil
}

// Close closes the database. No connection may outlive this call.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint forces a WAL checkpoint, folding the write-ahead log back into
// the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return classify(err)
	}
	return nil
}

// Execute runs a write statement outside an explicit transaction, bounded
// by the writer-slot semaphore. Most writes should instead go through
// Transaction so multi-statement updates (e.g. a reorder touching several
// has_child rows) are atomic.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("storage: acquire writer slot: %w", err)
	}
	defer s.writers.Release(1)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// Query runs a read statement. Readers are not bounded by the writer
// semaphore; WAL mode lets them proceed concurrently with a writer.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// QueryRow runs a read statement expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn within a single SQL transaction acquired under the
// writer-slot semaphore. No connection used by fn escapes this call.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("storage: acquire writer slot: %w", err)
	}
	defer s.writers.Release(1)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("storage: rollback failed", zap.Error(rbErr))
		}
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// HasValueOutside implements internal/schema.DataChecker against the live
// nodes table: it reports whether any node of nodeType holds a non-null
// value for field that isn't in allowed (RemoveField passes allowed=nil,
// meaning "any non-null value at all"). Property matching happens in Go
// rather than a SQL JSON predicate since the properties column's shape is
// caller-defined and not worth indexing for what is an infrequent
// migration-safety check.
func (s *Store) HasValueOutside(nodeType, field string, allowed []string) (bool, error) {
	ctx := context.Background()
	rows, err := s.Query(ctx, `SELECT properties FROM nodes WHERE node_type = ?`, nodeType)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	allowedSet := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		allowedSet[v] = true
	}

	for rows.Next() {
		var propsJSON string
		if err := rows.Scan(&propsJSON); err != nil {
			return false, err
		}
		if propsJSON == "" {
			continue
		}
		var props map[string]any
		if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
			return false, err
		}
		v, present := props[field]
		if !present || v == nil {
			continue
		}
		if allowed == nil {
			return true, nil
		}
		sv, ok := v.(string)
		if !ok || !allowedSet[sv] {
			return true, nil
		}
	}
	return false, rows.Err()
}

// classify maps a driver/SQL error onto the nodeerr taxonomy. The exact
// structured error type exposed by the driver varies by constraint;
// matching against the SQLite message text is the portable approach
// whenever a driver's error isn't already a typed nodeerr.Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*nodeerr.Error); ok {
		return err
	}
	if err == sql.ErrNoRows {
		return nodeerr.New(nodeerr.KindNotFound, "no rows", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"):
		return nodeerr.New(nodeerr.KindUniqueViolation, err.Error(), err)
	case strings.Contains(msg, "foreign key constraint"):
		return nodeerr.New(nodeerr.KindForeignKeyViolation, err.Error(), err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return nodeerr.New(nodeerr.KindBusy, err.Error(), err)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "corrupt"):
		return nodeerr.New(nodeerr.KindCorrupt, err.Error(), err)
	default:
		return err
	}
}
