package api

import (
	"encoding/json"
	"time"

	"github.com/lablink/labtemplates/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// FieldRequest is one form field in a template request.
type FieldRequest struct {
	Label   string   `json:"label" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Type    string   `json:"type" validate:"required,fieldtype" enum:"text,number,textarea,select,radio,checkbox"`
	Unit    *string  `json:"unit,omitempty"`
	Range   *string  `json:"range,omitempty"`
	Options []string `json:"options,omitempty"`
}

// CreateTemplateRequest is the request body for creating a template.
// facility_id must be present; 0 is a valid facility.
type CreateTemplateRequest struct {
	Name       string         `json:"name" validate:"required"`
	FacilityID *int           `json:"facility_id" validate:"required"`
	ServiceID  *int           `json:"service_id,omitempty"`
	Fields     []FieldRequest `json:"fields" validate:"dive"`
	CreatedBy  *int           `json:"created_by,omitempty"`
}

// UpdateTemplateRequest is the request body for replacing a template.
// Omitted service_id and created_by keep their stored values.
type UpdateTemplateRequest struct {
	Name       string         `json:"name" validate:"required"`
	FacilityID *int           `json:"facility_id" validate:"required"`
	ServiceID  *int           `json:"service_id,omitempty"`
	Fields     []FieldRequest `json:"fields" validate:"dive"`
	CreatedBy  *int           `json:"created_by,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// TemplateResponse is the response for template operations.
type TemplateResponse struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	ServiceID  *int           `json:"service_id"`
	Fields     []domain.Field `json:"fields"`
	CreatedBy  *int           `json:"created_by"`
	FacilityID *int           `json:"facility_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// VerifyTokenResponse confirms an accepted credential.
type VerifyTokenResponse struct {
	Message string          `json:"message"`
	User    json.RawMessage `json:"user,omitempty"`
}

// ValidationErrorResponse is the 422 body.
type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness check.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversions
// =============================================================================

func toDomainFields(fields []FieldRequest) []domain.Field {
	out := make([]domain.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, domain.Field{
			Label:   f.Label,
			Name:    f.Name,
			Type:    domain.FieldType(f.Type),
			Unit:    f.Unit,
			Range:   f.Range,
			Options: f.Options,
		})
	}
	return out
}

func templateToResponse(t *domain.Template) TemplateResponse {
	fields := t.Fields
	if fields == nil {
		fields = []domain.Field{}
	}
	return TemplateResponse{
		ID:         t.ID,
		Name:       t.Name,
		ServiceID:  t.ServiceID,
		Fields:     fields,
		CreatedBy:  t.CreatedBy,
		FacilityID: t.FacilityID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func templatesToResponse(templates []domain.Template) []TemplateResponse {
	resp := make([]TemplateResponse, 0, len(templates))
	for i := range templates {
		resp = append(resp, templateToResponse(&templates[i]))
	}
	return resp
}
