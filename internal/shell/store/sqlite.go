package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jmoiron/sqlx"
	gosqlite3 "github.com/mattn/go-sqlite3"
)

// sqliteUnicodeDriver is mattn/go-sqlite3 with lower() replaced by a Unicode
// aware fold. The built-in lower() only folds ASCII, which breaks
// case-insensitive name matching for names like "Ärzte Panel".
const sqliteUnicodeDriver = "sqlite3_unicode"

func init() {
	sql.Register(sqliteUnicodeDriver, &gosqlite3.SQLiteDriver{
		ConnectHook: func(conn *gosqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
	sqlx.BindDriver(sqliteUnicodeDriver, sqlx.QUESTION)
}

// NewSQLiteStore opens a SQLite database and runs migrations.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sqlx.Open(sqliteUnicodeDriver, dsn+sep+"_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// A single connection keeps ":memory:" databases alive and shared, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}
	if err := runMigrations(driver, "migrations/sqlite", "sqlite3"); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLStore{db: db, dialect: sqliteDialect{}}, nil
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return DriverSQLite }

func (sqliteDialect) isUniqueViolation(err error) bool {
	var sqliteErr gosqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == gosqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
