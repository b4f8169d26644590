package store

import (
	"database/sql"
	"errors"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE Postgres reports for a unique index clash.
const uniqueViolation = "23505"

// NewPostgresStore connects to Postgres and runs migrations.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, NewStoreError("NewPostgresStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewPostgresStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := migratePostgres(dsn); err != nil {
		db.Close()
		return nil, NewStoreError("NewPostgresStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLStore{db: db, dialect: postgresDialect{}}, nil
}

// NewPostgresStoreWithDB wraps an already open handle without migrating.
func NewPostgresStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: sqlx.NewDb(db, DriverPostgres), dialect: postgresDialect{}}
}

// migratePostgres runs migrations on a dedicated handle; the migrate driver
// pins one connection and closes the pool when done.
func migratePostgres(dsn string) error {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return err
	}
	defer driver.Close()

	return runMigrations(driver, "migrations/postgres", DriverPostgres)
}

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }

func (postgresDialect) isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
