package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eddielth/mesh-trans/logger"
	"github.com/eddielth/mesh-trans/transformer"
)

// DatabaseType
type DatabaseType string

const (
	// MySQL
	MySQL DatabaseType = "mysql"
	// PostgreSQL
	PostgreSQL DatabaseType = "postgresql"
	// SQLite
	SQLite DatabaseType = "sqlite"
)

// DatabaseStorage
type DatabaseStorage interface {
	StorageBackend
	// InitDatabase creates the measurements table if missing
	InitDatabase() error
}

// NewDatabaseStorage opens the backend for dbType
func NewDatabaseStorage(dbType string, dsn string) (DatabaseStorage, error) {
	switch DatabaseType(dbType) {
	case MySQL:
		return NewMySQLStorage(dsn)
	case PostgreSQL:
		return NewPostgreSQLStorage(dsn)
	case SQLite:
		return NewSQLiteStorage(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// dialect captures what differs between the SQL backends
type dialect struct {
	name        string
	schema      []string
	placeholder func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// sqlStorage stores one row per field in the measurements table
type sqlStorage struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStorage(db *sql.DB, d dialect) *sqlStorage {
	return &sqlStorage{db: db, dialect: d}
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)
}

// InitDatabase creates the measurements table and its index
func (s *sqlStorage) InitDatabase() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create measurements table failed: %w", err)
		}
	}

	logger.Info("%s measurements table initialized", s.dialect.name)
	return nil
}

// Store inserts all fields of all records in one transaction
func (s *sqlStorage) Store(ctx context.Context, records []transformer.Record) (err error) {
	valueStrings := make([]string, 0)
	valueArgs := make([]interface{}, 0)
	n := 1

	for _, record := range records {
		names := make([]string, 0, len(record.Fields))
		for name := range record.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			valueStrings = append(valueStrings, fmt.Sprintf("(%s, %s, %s, %s)",
				s.dialect.placeholder(n), s.dialect.placeholder(n+1), s.dialect.placeholder(n+2), s.dialect.placeholder(n+3)))
			valueArgs = append(valueArgs, record.Measurement, name, record.Fields[name], record.Timestamp)
			n += 4
		}
	}

	if len(valueStrings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			logger.Error("%s transaction rolled back: %v", s.dialect.name, err)
		}
	}()

	query := fmt.Sprintf("INSERT INTO measurements (measurement, field, value, ts) VALUES %s",
		strings.Join(valueStrings, ", "))
	if _, err = tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("insert measurements failed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}

	logger.Debug("stored %d records to %s", len(records), s.dialect.name)
	return nil
}

// Close closes the database connection
func (s *sqlStorage) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close %s connection failed: %w", s.dialect.name, err)
		}
		logger.Info("%s connection closed", s.dialect.name)
	}
	return nil
}
