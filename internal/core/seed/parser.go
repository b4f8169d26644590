// Package seed parses template seed files.
// This is a pure function package - no I/O, no side effects.
package seed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lablink/labtemplates/internal/core/domain"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyInput    = errors.New("seed file is empty")
	ErrNoTemplates   = errors.New("seed file defines no templates")
	ErrDuplicateSeed = errors.New("template name appears twice in seed file")

	// ErrFacilityRequired is returned for an entry without facility_id.
	// An explicit 0 is a valid facility.
	ErrFacilityRequired = errors.New("facility_id is required")
)

// File is the YAML layout of a seed file:
//
//	templates:
//	  - name: Widal Test
//	    facility_id: 1
//	    fields:
//	      - {label: O Titre, name: o_titre, type: select, options: ["1:20", "1:80"]}
type File struct {
	Templates []Entry `yaml:"templates"`
}

// Entry is one template in a seed file.
type Entry struct {
	Name       string         `yaml:"name"`
	FacilityID *int           `yaml:"facility_id"`
	ServiceID  *int           `yaml:"service_id,omitempty"`
	CreatedBy  *int           `yaml:"created_by,omitempty"`
	Fields     []domain.Field `yaml:"fields"`
}

// ParseSeedFile turns YAML content into unsaved templates, validated the same
// way as templates created over HTTP.
func ParseSeedFile(content []byte) ([]*domain.Template, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, ErrEmptyInput
	}

	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, ErrNoTemplates
	}

	seen := make(map[string]bool, len(file.Templates))
	templates := make([]*domain.Template, 0, len(file.Templates))
	for i, entry := range file.Templates {
		key := strings.ToLower(strings.TrimSpace(entry.Name))
		if seen[key] {
			return nil, fmt.Errorf("templates[%d] %q: %w", i, entry.Name, ErrDuplicateSeed)
		}
		seen[key] = true

		if entry.FacilityID == nil {
			return nil, fmt.Errorf("templates[%d] %q: %w", i, entry.Name, ErrFacilityRequired)
		}

		template, err := domain.NewTemplate(entry.Name, *entry.FacilityID, entry.Fields)
		if err != nil {
			return nil, fmt.Errorf("templates[%d] %q: %w", i, entry.Name, err)
		}
		template.ServiceID = entry.ServiceID
		template.CreatedBy = entry.CreatedBy
		templates = append(templates, template)
	}

	return templates, nil
}
