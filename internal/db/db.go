package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS drafts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('basic','cloze')),
			front TEXT NOT NULL DEFAULT '',
			back TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			slide_topic TEXT NOT NULL DEFAULT '',
			slide_number INTEGER NOT NULL DEFAULT 0,
			rationale TEXT NOT NULL DEFAULT '',
			due DATETIME,
			stability REAL NOT NULL DEFAULT 0,
			difficulty REAL NOT NULL DEFAULT 0,
			elapsed_days INTEGER NOT NULL DEFAULT 0,
			scheduled_days INTEGER NOT NULL DEFAULT 0,
			reps INTEGER NOT NULL DEFAULT 0,
			lapses INTEGER NOT NULL DEFAULT 0,
			state INTEGER NOT NULL DEFAULT 0,
			last_review DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_run ON drafts(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_due ON drafts(due);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
