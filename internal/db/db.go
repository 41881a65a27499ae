package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the threat database at path and migrates it.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			url TEXT NOT NULL UNIQUE,
			published_date TEXT NOT NULL,
			content TEXT,
			summary TEXT,
			threat_risk TEXT,
			category TEXT,
			recommendations TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS iocs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			ioc_type TEXT NOT NULL,
			ioc_value TEXT NOT NULL,
			context TEXT,
			UNIQUE(article_id, ioc_type, ioc_value),
			FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS kql_queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL,
			query_name TEXT NOT NULL,
			query_type TEXT NOT NULL,
			platform TEXT,
			kql_query TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_date);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_risk ON articles(threat_risk);`,
		`CREATE INDEX IF NOT EXISTS idx_iocs_article ON iocs(article_id);`,
		`CREATE INDEX IF NOT EXISTS idx_iocs_type ON iocs(ioc_type);`,
		`CREATE INDEX IF NOT EXISTS idx_kql_article ON kql_queries(article_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// Older databases predate ingest bookkeeping.
	if err := ensureColumn(ctx, db, "articles", "ingested_at", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(ctx, db, "articles", "source_feed", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, table, column, columnDDL string) error {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name string
		var typ string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+columnDDL)
	return err
}
