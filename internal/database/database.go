package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const backendSQLite = "sqlite"

// Index declares a secondary lookup on a document field. Multi indexes
// match any element of an array field.
type Index struct {
	Name  string
	Field string
	Multi bool
}

// DocStore is a collection-oriented JSON document store. Both the local
// SQLite database and the record-store helper implement it.
type DocStore interface {
	EnsureCollection(ctx context.Context, name string, indexes []Index) error
	Get(ctx context.Context, collection, id string, dst any) error
	GetMany(ctx context.Context, collection string, ids []string) ([][]byte, error)
	Put(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([][]byte, error)
	Query(ctx context.Context, collection, index, key string) ([][]byte, error)
	Count(ctx context.Context, collection string) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Database is the SQLite implementation of DocStore.
type Database struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	indexMu sync.RWMutex
	indexes map[string]map[string]Index
}

var _ DocStore = (*Database)(nil)

// New opens (creating if needed) the SQLite catalog at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:      db,
		dbPath:  dbPath,
		indexes: make(map[string]map[string]Index),
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(collection, updated_at);
	`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureCollection registers the collection's secondary indexes. Scalar
// indexes are backed by SQLite expression indexes over json_extract.
func (d *Database) EnsureCollection(ctx context.Context, name string, indexes []Index) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("ensure_collection", start, err) }()

	if !identPattern.MatchString(name) {
		err = fmt.Errorf("invalid collection name %q", name)
		return err
	}

	byName := make(map[string]Index, len(indexes))
	for _, idx := range indexes {
		if !identPattern.MatchString(idx.Name) || !identPattern.MatchString(idx.Field) {
			err = fmt.Errorf("invalid index %q on field %q", idx.Name, idx.Field)
			return err
		}
		byName[idx.Name] = idx
		if idx.Multi {
			continue
		}

		ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		stmt := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_%s ON records(collection, json_extract(body, '$.%s'))`,
			name, idx.Name, idx.Field)
		d.mu.Lock()
		_, err = d.db.ExecContext(ctx, stmt)
		d.mu.Unlock()
		cancel()
		if err != nil {
			return fmt.Errorf("create index %s on %s: %w", idx.Name, name, err)
		}
	}

	d.indexMu.Lock()
	d.indexes[name] = byName
	d.indexMu.Unlock()
	return nil
}

// Get decodes the document into dst. A missing document yields an error
// wrapping apperrors.ErrNotFound.
func (d *Database) Get(ctx context.Context, collection, id string, dst any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var body string
	err = d.db.QueryRowContext(ctx,
		"SELECT body FROM records WHERE collection = ? AND id = ?", collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return fmt.Errorf("%s/%s: %w", collection, id, apperrors.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), dst)
}

// GetMany returns the raw documents for the ids that exist, in no
// particular order.
func (d *Database) GetMany(ctx context.Context, collection string, ids []string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("get_many", start, err) }()

	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	query := "SELECT body FROM records WHERE collection = ? AND id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"

	var out [][]byte
	out, err = d.queryBodies(ctx, query, args...)
	return out, err
}

// Put inserts or replaces a document.
func (d *Database) Put(ctx context.Context, collection, id string, doc any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put", start, err) }()

	var body []byte
	body, err = json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO records (collection, id, body, updated_at)
	VALUES (?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(collection, id) DO UPDATE SET
		body = excluded.body,
		updated_at = excluded.updated_at
	`, collection, id, string(body))
	return err
}

// Delete removes a document; deleting a missing document is not an error.
func (d *Database) Delete(ctx context.Context, collection, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM records WHERE collection = ? AND id = ?", collection, id)
	return err
}

// List returns every document of a collection in insertion order.
func (d *Database) List(ctx context.Context, collection string) ([][]byte, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list", start, err) }()

	var out [][]byte
	out, err = d.queryBodies(ctx, "SELECT body FROM records WHERE collection = ? ORDER BY rowid", collection)
	return out, err
}

// Query returns the documents whose indexed field equals key.
func (d *Database) Query(ctx context.Context, collection, index, key string) ([][]byte, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("query", start, err) }()

	d.indexMu.RLock()
	idx, ok := d.indexes[collection][index]
	d.indexMu.RUnlock()
	if !ok {
		err = fmt.Errorf("unknown index %s on collection %s", index, collection)
		return nil, err
	}

	var query string
	if idx.Multi {
		query = fmt.Sprintf(`
		SELECT r.body FROM records r, json_each(r.body, '$.%s') j
		WHERE r.collection = ? AND j.value = ?
		ORDER BY r.rowid`, idx.Field)
	} else {
		query = fmt.Sprintf(`
		SELECT body FROM records
		WHERE collection = ? AND json_extract(body, '$.%s') = ?
		ORDER BY rowid`, idx.Field)
	}

	var out [][]byte
	out, err = d.queryBodies(ctx, query, collection, key)
	return out, err
}

// Count returns the number of documents in a collection.
func (d *Database) Count(ctx context.Context, collection string) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE collection = ?", collection).Scan(&n)
	return n, err
}

// Reset removes every document from every collection.
func (d *Database) Reset(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("reset", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM records")
	return err
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

func (d *Database) queryBodies(ctx context.Context, query string, args ...any) ([][]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close rows: %v", closeErr)
		}
	}()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, []byte(body))
	}
	return out, rows.Err()
}

// recordQuery records store operation metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(backendSQLite, operation, status).Inc()
	metrics.StoreOperationDuration.WithLabelValues(backendSQLite, operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if dbInfo, err := os.Stat(dbPath); err == nil && dbInfo.Mode().Perm()&0o200 == 0 {
		logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
	}

	// WAL and SHM files left behind by another user break writes
	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		info, err := os.Stat(p)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", p, info.Mode())
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", p, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", p)
		}
	}

	return nil
}
