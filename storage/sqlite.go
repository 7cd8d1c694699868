package storage

import (
	"database/sql"
	"fmt"

	"github.com/eddielth/mesh-trans/logger"
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "SQLite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		measurement TEXT NOT NULL,
		field TEXT NOT NULL,
		value REAL NOT NULL,
		ts INTEGER NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_measurement_ts ON measurements(measurement, ts)`,
	},
	placeholder: questionMark,
}

// SQLiteStorage is the embedded SQLite backend
type SQLiteStorage struct {
	*sqlStorage
	dsn string
}

// NewSQLiteStorage opens (and creates) the database file named by dsn
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQLite database failed: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite ping failed: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{
		sqlStorage: newSQLStorage(db, sqliteDialect),
		dsn:        dsn,
	}

	if err := storage.InitDatabase(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize SQLite database failed: %w", err)
	}

	logger.Info("SQLite storage initialized: %s", dsn)
	return storage, nil
}
