// Package seed loads template seed files into the store.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lablink/labtemplates/internal/core/domain"
	coreseed "github.com/lablink/labtemplates/internal/core/seed"
	"github.com/lablink/labtemplates/internal/shell/store"
)

// Result counts what a seeding run did.
type Result struct {
	Created int
	Skipped int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) ([]*domain.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return coreseed.ParseSeedFile(content)
}

// Apply creates every template whose name is not taken yet. Running it again
// with the same templates creates nothing. All inserts share one transaction.
func Apply(ctx context.Context, s store.Store, templates []*domain.Template, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var result Result
	err := s.WithTx(ctx, func(tx store.Store) error {
		result = Result{}
		for _, template := range templates {
			exists, err := nameTaken(ctx, tx, template)
			if err != nil {
				return err
			}
			if exists {
				logger.Debug("seed template already present", "name", template.Name)
				result.Skipped++
				continue
			}

			if err := tx.CreateTemplate(ctx, template); err != nil {
				return fmt.Errorf("seed %q: %w", template.Name, err)
			}
			logger.Info("seeded template", "name", template.Name, "template_id", template.ID)
			result.Created++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ApplyFile loads path and applies it.
func ApplyFile(ctx context.Context, s store.Store, path string, logger *slog.Logger) (Result, error) {
	templates, err := LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, s, templates, logger)
}

// nameTaken reports whether any facility already has a template of that
// name; names are unique across the whole table.
func nameTaken(ctx context.Context, s store.Store, template *domain.Template) (bool, error) {
	all, err := s.ListTemplates(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range all {
		if strings.EqualFold(t.Name, template.Name) {
			return true, nil
		}
	}
	return false, nil
}
