package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/transformer"
)

func sampleRecords() []transformer.Record {
	return []transformer.Record{
		{
			Measurement: "gateway_env",
			Fields:      map[string]float64{"temperature": 21.5, "humidity": 40},
			Timestamp:   1700000000000,
		},
	}
}

func TestSQLStorageStoreMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStorage(db, mysqlDialect)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO measurements (measurement, field, value, ts) VALUES (?, ?, ?, ?), (?, ?, ?, ?)")).
		WithArgs(
			"gateway_env", "humidity", 40.0, int64(1700000000000),
			"gateway_env", "temperature", 21.5, int64(1700000000000),
		).
		WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	require.NoError(t, s.Store(context.Background(), sampleRecords()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageStorePostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStorage(db, postgresDialect)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, s.Store(context.Background(), sampleRecords()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStorage(db, sqliteDialect)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO measurements").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.Store(context.Background(), sampleRecords())
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageSkipsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStorage(db, mysqlDialect)
	require.NoError(t, s.Store(context.Background(), nil))
	require.NoError(t, s.Store(context.Background(), []transformer.Record{{Measurement: "x_env"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStorageInitDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStorage(db, postgresDialect)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS measurements").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_measurement_ts").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.InitDatabase())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Store(context.Background(), sampleRecords()))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM measurements WHERE measurement = ?", "gateway_env").Scan(&count))
	assert.Equal(t, 2, count)

	var value float64
	require.NoError(t, s.db.QueryRow("SELECT value FROM measurements WHERE field = ?", "temperature").Scan(&value))
	assert.Equal(t, 21.5, value)
}

func TestParseMySQLDSN(t *testing.T) {
	database, server, err := parseMySQLDSN("user:pass@tcp(localhost:3306)/mesh?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, "mesh", database)
	assert.Equal(t, "user:pass@tcp(localhost:3306)/?parseTime=true", server)

	_, _, err = parseMySQLDSN("nodatabase")
	assert.Error(t, err)
	_, _, err = parseMySQLDSN("user@tcp(localhost)/")
	assert.Error(t, err)
}

func TestParsePostgreSQLDSN(t *testing.T) {
	database, server, err := parsePostgreSQLDSN("postgres://u:p@localhost:5432/mesh?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "mesh", database)
	assert.Equal(t, "postgres://u:p@localhost:5432/postgres?sslmode=disable", server)

	database, server, err = parsePostgreSQLDSN("host=localhost user=u dbname=mesh sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "mesh", database)
	assert.Equal(t, "host=localhost user=u sslmode=disable dbname=postgres", server)

	_, _, err = parsePostgreSQLDSN("host=localhost")
	assert.Error(t, err)
}

func TestNewDatabaseStorageUnsupported(t *testing.T) {
	_, err := NewDatabaseStorage("influx", "whatever")
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)

	records := sampleRecords()
	records = append(records, transformer.Record{
		Measurement: "../escape/node_ff_position",
		Fields:      map[string]float64{"latitude": 37.7749},
		Timestamp:   1,
	})

	require.NoError(t, fs.Store(context.Background(), records))
	require.NoError(t, fs.Store(context.Background(), records[:1]))

	f, err := os.Open(filepath.Join(dir, "gateway_env.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []transformer.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r transformer.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, records[0], lines[0])

	_, err = os.Stat(filepath.Join(dir, "_escape_node_ff_position.jsonl"))
	assert.NoError(t, err)
}

type fakeBackend struct {
	stored [][]transformer.Record
	err    error
	closed bool
}

func (f *fakeBackend) Store(_ context.Context, records []transformer.Record) error {
	f.stored = append(f.stored, records)
	return f.err
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestManagerFanOut(t *testing.T) {
	failing := &fakeBackend{err: errors.New("boom")}
	ok := &fakeBackend{}

	m := NewManager([]StorageBackend{failing})
	m.AddBackend(ok)
	assert.Equal(t, 2, m.Len())

	err := m.Store(context.Background(), sampleRecords())
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, failing.stored, 1)
	assert.Len(t, ok.stored, 1)

	require.NoError(t, m.Store(context.Background(), nil))
	assert.Len(t, ok.stored, 1)

	m.Close()
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestNewManagerFromConfig(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManagerFromConfig(config.StorageConfig{
		File: config.FileStorageConfig{Enabled: true, Path: dir},
		Database: config.DatabaseStorageConfig{
			Enabled: true,
			Type:    "sqlite",
			DSN:     filepath.Join(dir, "mesh.db"),
		},
	})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 2, m.Len())

	_, err = NewManagerFromConfig(config.StorageConfig{
		Database: config.DatabaseStorageConfig{Enabled: true, Type: "oracle"},
	})
	assert.Error(t, err)
}
