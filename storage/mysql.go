package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/eddielth/mesh-trans/logger"
	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name: "MySQL",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS measurements (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		measurement VARCHAR(255) NOT NULL,
		field VARCHAR(255) NOT NULL,
		value DOUBLE NOT NULL,
		ts BIGINT NOT NULL,
		INDEX idx_measurement_ts (measurement, ts)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	placeholder: questionMark,
}

// MySQLStorage is the MySQL backend
type MySQLStorage struct {
	*sqlStorage
	dsn      string
	database string
}

// NewMySQLStorage creates the database if needed and opens it
func NewMySQLStorage(dsn string) (*MySQLStorage, error) {
	database, serverDSN, err := parseMySQLDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MySQL DSN failed: %w", err)
	}

	// connect without a database first so it can be created
	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL server failed: %w", err)
	}
	defer serverDB.Close()

	_, err = serverDB.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", database))
	if err != nil {
		return nil, fmt.Errorf("create database failed: %w", err)
	}

	logger.Info("ensured MySQL database %s exists", database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL database failed: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("MySQL ping failed: %w", err)
	}
	configurePool(db)

	storage := &MySQLStorage{
		sqlStorage: newSQLStorage(db, mysqlDialect),
		dsn:        dsn,
		database:   database,
	}

	if err := storage.InitDatabase(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize MySQL database failed: %w", err)
	}

	logger.Info("MySQL storage initialized")
	return storage, nil
}

// parseMySQLDSN splits a DSN into the database name and a DSN without it
func parseMySQLDSN(dsn string) (database string, serverDSN string, err error) {
	parts := strings.Split(dsn, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid DSN, cannot extract database name")
	}

	// the last part may carry parameters
	dbParts := strings.Split(parts[len(parts)-1], "?")
	database = dbParts[0]
	if database == "" {
		return "", "", fmt.Errorf("invalid DSN, empty database name")
	}

	serverDSN = strings.Join(parts[:len(parts)-1], "/") + "/"
	if len(dbParts) > 1 {
		serverDSN += "?" + dbParts[1]
	}

	return database, serverDSN, nil
}
