// Package db opens the DuckDB feature store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir    string
	DBName     string   // empty for an in-memory database
	Extensions []string // installed and loaded best-effort, e.g. "spatial"
}

const schema = `
CREATE TABLE IF NOT EXISTS features (
	project      VARCHAR NOT NULL,
	id           VARCHAR NOT NULL,
	feature_type VARCHAR NOT NULL DEFAULT '',
	status       VARCHAR NOT NULL DEFAULT '',
	title        VARCHAR NOT NULL DEFAULT '',
	geometry     VARCHAR,
	properties   VARCHAR NOT NULL,
	imported_at  TIMESTAMP NOT NULL DEFAULT current_timestamp,
	PRIMARY KEY (project, id)
);
CREATE INDEX IF NOT EXISTS features_type ON features (project, feature_type);
`

// Open opens a database and applies the schema.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DBName != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb %q: %w", dsn, err)
	}

	for _, ext := range cfg.Extensions {
		// Extensions might be unavailable offline; the store works without them.
		_, _ = conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}

	if err := Migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate creates the tables the service needs.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
