package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the bot database and brings its schema up to date.
// WAL plus a busy timeout keeps the long-polling handlers from tripping over
// each other; SQLite still prefers a single writer, so the pool is capped.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_foreign_keys=on", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	d := &DB{db}
	if err := d.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		tg_id TEXT PRIMARY KEY,
		passport TEXT,
		birthdate TEXT,
		full_name TEXT,
		registered_at TEXT,
		is_manager INTEGER DEFAULT 0,
		supervisor_tg_id TEXT
	);

	CREATE TABLE IF NOT EXISTS tardy_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_tg_id TEXT NOT NULL,
		manager_tg_id  TEXT,
		reason TEXT NOT NULL,
		start_time TEXT,
		end_time   TEXT,
		submitted_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_tardy_manager_status
		ON tardy_requests(manager_tg_id, status);
	`
	if _, err := d.Exec(schema); err != nil {
		return err
	}

	// Databases created by earlier versions predate some columns.
	migrations := []struct {
		table, column, decl string
	}{
		{"users", "is_manager", "INTEGER DEFAULT 0"},
		{"users", "supervisor_tg_id", "TEXT"},
		{"tardy_requests", "start_time", "TEXT"},
		{"tardy_requests", "end_time", "TEXT"},
	}
	for _, m := range migrations {
		if err := d.addColumnIfMissing(m.table, m.column, m.decl); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) addColumnIfMissing(table, column, decl string) error {
	rows, err := d.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = d.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}
