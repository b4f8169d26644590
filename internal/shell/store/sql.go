package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lablink/labtemplates/internal/core/domain"
)

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// dialect holds what differs between the SQL backends.
type dialect interface {
	name() string
	isUniqueViolation(err error) bool
}

// =============================================================================
// SQLStore
// =============================================================================

// SQLStore implements Store on a pooled database handle. Every call is
// auto-committed unless it runs inside WithTx.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
}

func (s *SQLStore) CreateTemplate(ctx context.Context, template *domain.Template) error {
	return createTemplate(ctx, s.db, s.dialect, template)
}

func (s *SQLStore) FindTemplateByName(ctx context.Context, name string, facilityID int) (*domain.Template, error) {
	return findTemplateByName(ctx, s.db, name, facilityID)
}

func (s *SQLStore) FindTemplatesByNames(ctx context.Context, names []string, facilityID int) ([]domain.Template, error) {
	return findTemplatesByNames(ctx, s.db, names, facilityID)
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return listTemplates(ctx, s.db)
}

func (s *SQLStore) GetTemplate(ctx context.Context, id int) (*domain.Template, error) {
	return getTemplate(ctx, s.db, id)
}

func (s *SQLStore) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	return updateTemplate(ctx, s.db, s.dialect, template)
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Driver returns the name of the SQL backend.
func (s *SQLStore) Driver() string {
	return s.dialect.name()
}

// PoolConfig sizes the connection pool. Zero values keep the driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigurePool applies pool limits. SQLite keeps its single long-lived
// connection, since an in-memory database dies with it.
func (s *SQLStore) ConfigurePool(cfg PoolConfig) {
	if s.dialect.name() == DriverSQLite {
		return
	}
	if cfg.MaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		s.db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		s.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txStore{tx: tx, dialect: s.dialect}

	// A panicking fn must not leave the transaction holding the connection.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txStore implements Store within a transaction.
type txStore struct {
	tx      *sqlx.Tx
	dialect dialect
}

func (s *txStore) CreateTemplate(ctx context.Context, template *domain.Template) error {
	return createTemplate(ctx, s.tx, s.dialect, template)
}

func (s *txStore) FindTemplateByName(ctx context.Context, name string, facilityID int) (*domain.Template, error) {
	return findTemplateByName(ctx, s.tx, name, facilityID)
}

func (s *txStore) FindTemplatesByNames(ctx context.Context, names []string, facilityID int) ([]domain.Template, error) {
	return findTemplatesByNames(ctx, s.tx, names, facilityID)
}

func (s *txStore) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return listTemplates(ctx, s.tx)
}

func (s *txStore) GetTemplate(ctx context.Context, id int) (*domain.Template, error) {
	return getTemplate(ctx, s.tx, id)
}

func (s *txStore) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	return updateTemplate(ctx, s.tx, s.dialect, template)
}

func (s *txStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

const templateColumns = `id, name, service_id, fields, created_by, facility_id, created_at, updated_at`

// templateRow represents a lab_templates row in the database.
type templateRow struct {
	ID         int           `db:"id"`
	Name       string        `db:"name"`
	ServiceID  sql.NullInt64 `db:"service_id"`
	Fields     []byte        `db:"fields"`
	CreatedBy  sql.NullInt64 `db:"created_by"`
	FacilityID sql.NullInt64 `db:"facility_id"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func createTemplate(ctx context.Context, exec executor, d dialect, template *domain.Template) error {
	fieldsJSON, err := marshalFields(template.Fields)
	if err != nil {
		return NewStoreError("CreateTemplate", "template", template.Name, "failed to serialize fields", ErrInvalidData)
	}

	now := timestamp()
	query := exec.Rebind(`
		INSERT INTO lab_templates (
			name, service_id, fields, created_by, facility_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int
	err = exec.QueryRowxContext(ctx, query,
		template.Name,
		nullInt(template.ServiceID),
		fieldsJSON,
		nullInt(template.CreatedBy),
		nullInt(template.FacilityID),
		now,
		now,
	).Scan(&id)
	if err != nil {
		if d.isUniqueViolation(err) {
			return NewStoreError("CreateTemplate", "template", template.Name, "template with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("CreateTemplate", "template", template.Name, err.Error(), err)
	}

	template.ID = id
	template.CreatedAt = now
	template.UpdatedAt = now
	if template.Fields == nil {
		template.Fields = []domain.Field{}
	}
	return nil
}

func findTemplateByName(ctx context.Context, exec executor, name string, facilityID int) (*domain.Template, error) {
	query := exec.Rebind(`SELECT ` + templateColumns + ` FROM lab_templates
		WHERE ` + nameContains + ` AND facility_id = ?
		ORDER BY id LIMIT 1`)

	var row templateRow
	err := exec.GetContext(ctx, &row, query, containsPattern(name), facilityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, NewStoreError("FindTemplateByName", "template", name, err.Error(), err)
	}

	return rowToTemplate(&row)
}

func findTemplatesByNames(ctx context.Context, exec executor, names []string, facilityID int) ([]domain.Template, error) {
	if len(names) == 0 {
		return []domain.Template{}, nil
	}

	clauses := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, n := range names {
		clauses[i] = nameContains
		args = append(args, containsPattern(n))
	}
	args = append(args, facilityID)

	query := exec.Rebind(`SELECT ` + templateColumns + ` FROM lab_templates
		WHERE (` + strings.Join(clauses, " OR ") + `) AND facility_id = ?
		ORDER BY id`)

	var rows []templateRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("FindTemplatesByNames", "template", strings.Join(names, ","), err.Error(), err)
	}

	return rowsToTemplates(rows)
}

func listTemplates(ctx context.Context, exec executor) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM lab_templates ORDER BY id`

	var rows []templateRow
	if err := exec.SelectContext(ctx, &rows, query); err != nil {
		return nil, NewStoreError("ListTemplates", "template", "", err.Error(), err)
	}

	return rowsToTemplates(rows)
}

func getTemplate(ctx context.Context, exec executor, id int) (*domain.Template, error) {
	query := exec.Rebind(`SELECT ` + templateColumns + ` FROM lab_templates WHERE id = ?`)
	key := strconv.Itoa(id)

	var row templateRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTemplate", "template", key, "template not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTemplate", "template", key, err.Error(), err)
	}

	return rowToTemplate(&row)
}

func updateTemplate(ctx context.Context, exec executor, d dialect, template *domain.Template) error {
	key := strconv.Itoa(template.ID)

	fieldsJSON, err := marshalFields(template.Fields)
	if err != nil {
		return NewStoreError("UpdateTemplate", "template", key, "failed to serialize fields", ErrInvalidData)
	}

	now := timestamp()
	query := exec.Rebind(`
		UPDATE lab_templates SET
			name = ?,
			service_id = ?,
			fields = ?,
			created_by = ?,
			facility_id = ?,
			updated_at = ?
		WHERE id = ?`)

	result, err := exec.ExecContext(ctx, query,
		template.Name,
		nullInt(template.ServiceID),
		fieldsJSON,
		nullInt(template.CreatedBy),
		nullInt(template.FacilityID),
		now,
		template.ID,
	)
	if err != nil {
		if d.isUniqueViolation(err) {
			return NewStoreError("UpdateTemplate", "template", key, "template with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("UpdateTemplate", "template", key, err.Error(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateTemplate", "template", key, "failed to read affected rows", err)
	}
	if rowsAffected == 0 {
		return NewStoreError("UpdateTemplate", "template", key, "template not found", ErrNotFound)
	}

	// Read back what was persisted so the caller sees the stored timestamps.
	stored, err := getTemplate(ctx, exec, template.ID)
	if err != nil {
		return err
	}
	*template = *stored
	return nil
}

// =============================================================================
// Query Helpers
// =============================================================================

// nameContains matches a LIKE pattern against the name, ignoring case.
const nameContains = `LOWER(name) LIKE LOWER(?) ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern that matches s anywhere, with LIKE
// wildcards in s matched literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// timestamp returns the current time at the precision both backends keep.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func marshalFields(fields []domain.Field) (string, error) {
	if fields == nil {
		fields = []domain.Field{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

// rowToTemplate converts a database row to a domain.Template.
func rowToTemplate(row *templateRow) (*domain.Template, error) {
	fields := []domain.Field{}
	if len(row.Fields) > 0 && string(row.Fields) != "null" {
		if err := json.Unmarshal(row.Fields, &fields); err != nil {
			return nil, NewStoreError("rowToTemplate", "template", strconv.Itoa(row.ID), "failed to parse fields", ErrInvalidData)
		}
	}

	return &domain.Template{
		ID:         row.ID,
		Name:       row.Name,
		ServiceID:  intPtr(row.ServiceID),
		Fields:     fields,
		CreatedBy:  intPtr(row.CreatedBy),
		FacilityID: intPtr(row.FacilityID),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

func rowsToTemplates(rows []templateRow) ([]domain.Template, error) {
	templates := make([]domain.Template, 0, len(rows))
	for i := range rows {
		template, err := rowToTemplate(&rows[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, *template)
	}
	return templates, nil
}
