package store

import (
	"context"
	"fmt"

	"github.com/lablink/labtemplates/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for lab templates.
type Store interface {
	// CreateTemplate inserts a template and fills in its ID and timestamps.
	CreateTemplate(ctx context.Context, template *domain.Template) error

	// FindTemplateByName returns the first template whose name contains name
	// (case-insensitive) within the facility, or nil when there is none.
	FindTemplateByName(ctx context.Context, name string, facilityID int) (*domain.Template, error)

	// FindTemplatesByNames returns every template of the facility whose name
	// contains any of names. No match yields an empty slice, not an error.
	FindTemplatesByNames(ctx context.Context, names []string, facilityID int) ([]domain.Template, error)

	// ListTemplates returns all templates of all facilities.
	ListTemplates(ctx context.Context) ([]domain.Template, error)

	GetTemplate(ctx context.Context, id int) (*domain.Template, error)

	// UpdateTemplate replaces every column except id and created_at.
	UpdateTemplate(ctx context.Context, template *domain.Template) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Drivers
// =============================================================================

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// New opens the store for the given driver and runs migrations.
func New(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, "postgresql":
		return NewPostgresStore(dsn)
	case DriverSQLite, "sqlite":
		return NewSQLiteStore(dsn)
	default:
		return nil, NewStoreError("New", "", "", fmt.Sprintf("unsupported driver %q", driver), ErrConnectionFailed)
	}
}
