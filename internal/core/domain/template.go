// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNameRequired     = errors.New("name is required")
	ErrFieldInvalidType = errors.New("invalid field type")
	ErrFieldLabel       = errors.New("field label is required")
	ErrFieldName        = errors.New("field name is required")
)

// =============================================================================
// Field Types
// =============================================================================

// FieldType is the input kind of a form field.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "checkbox"
)

// FieldTypes lists every accepted field type in display order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeTextarea,
	FieldTypeSelect,
	FieldTypeRadio,
	FieldTypeCheckbox,
}

// IsValid checks if the field type is one of the closed enumeration.
func (ft FieldType) IsValid() bool {
	switch ft {
	case FieldTypeText, FieldTypeNumber, FieldTypeTextarea,
		FieldTypeSelect, FieldTypeRadio, FieldTypeCheckbox:
		return true
	default:
		return false
	}
}

// IsChoice reports whether the type picks from a list of options.
func (ft FieldType) IsChoice() bool {
	return ft == FieldTypeSelect || ft == FieldTypeRadio || ft == FieldTypeCheckbox
}

// =============================================================================
// Field
// =============================================================================

// Field describes one input of a lab test form. Fields are stored embedded in
// their template, never as rows of their own.
type Field struct {
	Label   string    `json:"label" yaml:"label"`
	Name    string    `json:"name" yaml:"name"`
	Type    FieldType `json:"type" yaml:"type"`
	Unit    *string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Range   *string   `json:"range,omitempty" yaml:"range,omitempty"`
	Options []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// =============================================================================
// Template
// =============================================================================

// Template is a named, facility-scoped lab test form definition.
type Template struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	ServiceID  *int      `json:"service_id,omitempty"`
	Fields     []Field   `json:"fields"`
	CreatedBy  *int      `json:"created_by,omitempty"`
	FacilityID *int      `json:"facility_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewTemplate builds an unsaved template after checking the fields that the
// HTTP layer would otherwise reject. Any facility id is a valid scope, zero
// included. ID and timestamps are assigned by the store.
func NewTemplate(name string, facilityID int, fields []Field) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []Field{}
	}
	return &Template{
		Name:       name,
		Fields:     fields,
		FacilityID: &facilityID,
	}, nil
}

// =============================================================================
// Validation Functions (Pure)
// =============================================================================

// ValidateFields checks each field for a label, a key and a known type.
// The first failing field is reported with its index.
func ValidateFields(fields []Field) error {
	for i, f := range fields {
		if f.Label == "" {
			return &FieldError{Index: i, Err: ErrFieldLabel}
		}
		if f.Name == "" {
			return &FieldError{Index: i, Err: ErrFieldName}
		}
		if !f.Type.IsValid() {
			return &FieldError{Index: i, Err: ErrFieldInvalidType}
		}
	}
	return nil
}

// FieldError locates a validation failure inside a field list.
type FieldError struct {
	Index int
	Err   error
}

func (e *FieldError) Error() string {
	return "fields[" + strconv.Itoa(e.Index) + "]: " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
