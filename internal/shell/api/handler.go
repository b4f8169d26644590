// Package api provides HTTP handlers for the lab templates API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lablink/labtemplates/internal/core/auth"
	"github.com/lablink/labtemplates/internal/core/domain"
	"github.com/lablink/labtemplates/internal/core/validation"
	mw "github.com/lablink/labtemplates/internal/shell/api/middleware"
	"github.com/lablink/labtemplates/internal/shell/api/openapi"
	"github.com/lablink/labtemplates/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store     store.Store
	validator *validation.Validator
	auth      *mw.AuthMiddleware
	metrics   *mw.Metrics
	docs      *openapi.Generator
	logger    *slog.Logger
}

// NewHandler creates a new API handler. Every template route is checked
// against resolver before it runs. A nil metrics gets a fresh registry.
func NewHandler(s store.Store, resolver mw.ProfileResolver, metrics *mw.Metrics, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if metrics == nil {
		metrics = mw.NewMetrics()
	}
	return &Handler{
		store:     s,
		validator: validation.New(),
		auth:      mw.NewAuthMiddleware(mw.AuthConfig{Resolver: resolver, Logger: l}),
		metrics:   metrics,
		docs:      NewDocument(),
		logger:    l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.metrics.Handler)
	r.Use(mw.RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Open endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Method(http.MethodGet, "/metrics", h.metrics.Exposition())
	r.Get("/openapi.json", h.docs.Handler())

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Handler)

		r.Get("/templates", h.handleListTemplatesByNames)
		r.Get("/templates/lookup", h.handleLookupTemplate)
		r.Post("/templates", h.handleCreateTemplate)
		r.Put("/templates/{id}", h.handleUpdateTemplate)
		r.Get("/all-templates", h.handleListAllTemplates)
		r.Get("/verify-token", h.handleVerifyToken)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set(auth.HeaderRequestID, reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "check", "database", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Template Read Handlers
// =============================================================================

func (h *Handler) handleListTemplatesByNames(w http.ResponseWriter, r *http.Request) {
	names := nonBlank(r.URL.Query()["name"])
	facilityID, problems := facilityParam(r, names)
	if len(problems) > 0 {
		h.writeValidationError(w, problems)
		return
	}

	templates, err := h.store.FindTemplatesByNames(r.Context(), names, facilityID)
	if err != nil {
		h.logger.Error("failed to find templates", "names", names, "facility_id", facilityID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to look up templates")
		return
	}
	if len(templates) == 0 {
		h.writeError(w, http.StatusNotFound, "No templates found")
		return
	}

	h.writeJSON(w, http.StatusOK, templatesToResponse(templates))
}

func (h *Handler) handleLookupTemplate(w http.ResponseWriter, r *http.Request) {
	names := nonBlank([]string{r.URL.Query().Get("name")})
	facilityID, problems := facilityParam(r, names)
	if len(problems) > 0 {
		h.writeValidationError(w, problems)
		return
	}

	template, err := h.store.FindTemplateByName(r.Context(), names[0], facilityID)
	if err != nil {
		h.logger.Error("failed to look up template", "name", names[0], "facility_id", facilityID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to look up template")
		return
	}
	if template == nil {
		h.writeError(w, http.StatusNotFound, "Template not found")
		return
	}

	h.writeJSON(w, http.StatusOK, templateToResponse(template))
}

// handleListAllTemplates returns every template of every facility. A store
// failure is logged and reported as an empty list.
func (h *Handler) handleListAllTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates(r.Context())
	if err != nil {
		h.logger.Error("failed to list templates", "error", err)
		templates = nil
	}

	h.writeJSON(w, http.StatusOK, templatesToResponse(templates))
}

// =============================================================================
// Template Write Handlers
// =============================================================================

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if problem := decodeBody(r, &req); problem != nil {
		h.writeValidationError(w, []validation.Problem{*problem})
		return
	}
	if problems := h.validator.Validate(req); len(problems) > 0 {
		h.writeValidationError(w, problems)
		return
	}

	ctx := r.Context()
	facilityID := *req.FacilityID
	template, err := domain.NewTemplate(req.Name, facilityID, toDomainFields(req.Fields))
	if err != nil {
		// Validate already enforces these rules.
		h.writeValidationError(w, []validation.Problem{{Path: "body", Message: err.Error()}})
		return
	}
	template.ServiceID = req.ServiceID
	template.CreatedBy = req.CreatedBy
	if template.CreatedBy == nil {
		if userID := auth.FromContext(ctx).UserID(); userID != 0 {
			template.CreatedBy = &userID
		}
	}
	h.warnChoiceFieldsWithoutOptions(template)

	existing, err := h.store.FindTemplatesByNames(ctx, []string{template.Name}, facilityID)
	if err != nil {
		h.logger.Error("failed to check for duplicate template", "name", template.Name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}
	for _, t := range existing {
		if strings.EqualFold(t.Name, template.Name) {
			h.writeError(w, http.StatusConflict, "Template with this name already exists for this facility")
			return
		}
	}

	if err := h.store.CreateTemplate(ctx, template); err != nil {
		if store.IsDuplicate(err) {
			h.writeError(w, http.StatusConflict, "Template with this name already exists")
			return
		}
		h.logger.Error("failed to create template", "name", template.Name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	h.logger.Info("template created", "template_id", template.ID, "facility_id", facilityID)
	h.writeJSON(w, http.StatusCreated, templateToResponse(template))
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.writeValidationError(w, []validation.Problem{{Path: "path.id", Message: "input should be a valid integer"}})
		return
	}

	var req UpdateTemplateRequest
	if problem := decodeBody(r, &req); problem != nil {
		h.writeValidationError(w, []validation.Problem{*problem})
		return
	}
	if problems := h.validator.Validate(req); len(problems) > 0 {
		h.writeValidationError(w, problems)
		return
	}

	ctx := r.Context()
	var updated *domain.Template
	err = h.store.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}

		existing.Name = req.Name
		existing.FacilityID = req.FacilityID
		existing.Fields = toDomainFields(req.Fields)
		if req.ServiceID != nil {
			existing.ServiceID = req.ServiceID
		}
		if req.CreatedBy != nil {
			existing.CreatedBy = req.CreatedBy
		}
		h.warnChoiceFieldsWithoutOptions(existing)

		if err := tx.UpdateTemplate(ctx, existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		switch {
		case store.IsNotFound(err):
			h.writeError(w, http.StatusNotFound, "Template not found")
		case store.IsDuplicate(err):
			h.writeError(w, http.StatusConflict, "Template with this name already exists")
		default:
			h.logger.Error("failed to update template", "template_id", id, "error", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to update template")
		}
		return
	}

	h.logger.Info("template updated", "template_id", id)
	h.writeJSON(w, http.StatusOK, templateToResponse(updated))
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	resp := VerifyTokenResponse{Message: "Token is valid"}
	if authCtx.Profile != nil {
		resp.User = authCtx.Profile.Raw
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// warnChoiceFieldsWithoutOptions logs choice fields that offer nothing to pick.
func (h *Handler) warnChoiceFieldsWithoutOptions(t *domain.Template) {
	for _, i := range validation.ChoiceFieldsWithoutOptions(t.Fields) {
		h.logger.Warn("choice field has no options",
			"template", t.Name,
			"field", t.Fields[i].Name,
			"type", t.Fields[i].Type,
		)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, mw.ErrorResponse{Message: message})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, problems []validation.Problem) {
	h.writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: validation.Details(problems),
	})
}

// decodeBody decodes a JSON request body, describing a failure as a
// validation problem.
func decodeBody(r *http.Request, v any) *validation.Problem {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if err == nil {
		// Exactly one JSON value; only whitespace may follow it.
		if dec.Decode(&struct{}{}) != io.EOF {
			return &validation.Problem{Path: "body", Message: "invalid JSON"}
		}
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &validation.Problem{
			Path:    typeErr.Field,
			Message: "input should be a valid " + jsonTypeName(typeErr.Type),
		}
	}
	return &validation.Problem{Path: "body", Message: "invalid JSON"}
}

func jsonTypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Pointer:
		return jsonTypeName(t.Elem())
	default:
		return t.Kind().String()
	}
}

// facilityParam reads the required facility_id query parameter. names are
// the already parsed name parameters, checked for presence here so both
// problems are reported together.
func facilityParam(r *http.Request, names []string) (int, []validation.Problem) {
	var problems []validation.Problem
	if len(names) == 0 {
		problems = append(problems, validation.Problem{Path: "query.name", Message: "field required"})
	}

	raw := r.URL.Query().Get("facility_id")
	facilityID, err := strconv.Atoi(raw)
	switch {
	case raw == "":
		problems = append(problems, validation.Problem{Path: "query.facility_id", Message: "field required"})
	case err != nil:
		problems = append(problems, validation.Problem{
			Path:    "query.facility_id",
			Message: fmt.Sprintf("input should be a valid integer, got %q", raw),
		})
	}
	return facilityID, problems
}

// nonBlank drops empty and whitespace-only values.
func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
