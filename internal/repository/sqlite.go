package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verdantgoods/riskd/internal/domain"
	_ "modernc.org/sqlite"
)

// sqlitePragmas tune the standalone tier for its mixed workload: every
// score writes a transaction row while velocity and AOV queries read
// concurrently. WAL keeps readers unblocked during those writes, and
// the busy timeout absorbs writer contention from the chargeback
// worker.
var sqlitePragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=busy_timeout(5000)",
	"_pragma=foreign_keys(ON)",
}

// openSQLite opens the local database file, creating its directory if
// needed. modernc.org/sqlite is pure Go, so the standalone tier builds
// without CGO.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./riskd.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?%s", path, strings.Join(sqlitePragmas, "&"))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}
