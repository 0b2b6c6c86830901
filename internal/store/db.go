package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// DB wraps a SQLite database connection for issue and cluster storage.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set connection pool to 1 for SQLite
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &DB{db: sqlDB}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conn returns the underlying *sql.DB for advanced use cases.
func (d *DB) Conn() *sql.DB {
	return d.db
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	if err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (d *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT,
			state TEXT NOT NULL,
			labels TEXT,
			milestone TEXT,
			target_version TEXT,
			comments INTEGER NOT NULL DEFAULT 0,
			reactions INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			embedding TEXT,
			embedding_model TEXT,
			embedding_hash TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			closed_at TEXT,
			fetched_at TEXT NOT NULL,
			UNIQUE(repo, number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_repo_state ON issues(repo, state)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_embedding_reuse ON issues(repo, embedding_model, embedding_hash)`,
		`CREATE TABLE IF NOT EXISTS issue_products (
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			product TEXT NOT NULL,
			PRIMARY KEY(repo, number, product)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issue_products_product ON issue_products(repo, product)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			repo TEXT PRIMARY KEY,
			last_synced_at TEXT,
			last_issue_number INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS clusters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo TEXT NOT NULL,
			product TEXT NOT NULL,
			target_version TEXT NOT NULL,
			centroid TEXT NOT NULL,
			size INTEGER NOT NULL,
			popularity REAL NOT NULL,
			representative INTEGER,
			threshold REAL NOT NULL,
			top_k INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_bucket ON clusters(repo, product)`,
		`CREATE TABLE IF NOT EXISTS cluster_map (
			repo TEXT NOT NULL,
			number INTEGER NOT NULL,
			cluster_id INTEGER NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
			similarity REAL NOT NULL,
			assigned_at TEXT NOT NULL,
			PRIMARY KEY(repo, number, cluster_id)
		)`,
		`CREATE TABLE IF NOT EXISTS release_state (
			repo TEXT PRIMARY KEY,
			tag TEXT,
			name TEXT,
			url TEXT,
			version TEXT,
			published_at TEXT,
			updated_at TEXT NOT NULL
		)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}
