// Package db persists agreement experiment runs in SQLite.
package db

import (
	"database/sql"
	"strings"

	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle used by the run store.
type DB struct {
	*sql.DB
	log *zap.SugaredLogger
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens (or creates) the database at path, applies the connection
// pragmas and migrates the schema to the latest version.
func Open(path string, logger *zap.SugaredLogger) (*DB, error) {
	db, err := OpenUnmigrated(path, logger)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenUnmigrated opens the database and applies the pragmas without
// touching the schema, so a dirty migration state can be inspected and
// forced.
func OpenUnmigrated(path string, logger *zap.SugaredLogger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// each connection to an in-memory database sees its own schema
		sqlDB.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, errors.Wrapf(err, "apply %q", p)
		}
	}
	return &DB{DB: sqlDB, log: logging.OrNop(logger)}, nil
}
