package api

import (
	"net/http"

	mw "github.com/lablink/labtemplates/internal/shell/api/middleware"
	"github.com/lablink/labtemplates/internal/shell/api/openapi"
)

// NewDocument describes every route served by Handler.Routes.
func NewDocument(opts ...openapi.Option) *openapi.Generator {
	g := openapi.NewGenerator(opts...)

	facility := openapi.Param{Name: "facility_id", Type: "integer", Required: true}
	templateErrors := func(codes ...int) map[int]any {
		errs := map[int]any{http.StatusUnauthorized: mw.ErrorResponse{}}
		for _, code := range codes {
			if code == http.StatusUnprocessableEntity {
				errs[code] = ValidationErrorResponse{}
				continue
			}
			errs[code] = mw.ErrorResponse{}
		}
		return errs
	}

	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/templates",
		OperationID: "listTemplatesByNames",
		Summary:     "List a facility's templates whose names contain any of the given names",
		Tag:         "Templates",
		Secured:     true,
		Query:       []openapi.Param{{Name: "name", Required: true, Repeated: true}, facility},
		Response:    []TemplateResponse{},
		Errors:      templateErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/templates/lookup",
		OperationID: "lookupTemplate",
		Summary:     "Get the first template of a facility whose name contains name",
		Tag:         "Templates",
		Secured:     true,
		Query:       []openapi.Param{{Name: "name", Required: true}, facility},
		Response:    TemplateResponse{},
		Errors:      templateErrors(http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodPost,
		Path:        "/templates",
		OperationID: "createTemplate",
		Summary:     "Create a template",
		Tag:         "Templates",
		Secured:     true,
		Request:     CreateTemplateRequest{},
		Response:    TemplateResponse{},
		Status:      http.StatusCreated,
		Errors:      templateErrors(http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodPut,
		Path:        "/templates/{id}",
		OperationID: "updateTemplate",
		Summary:     "Replace a template",
		Tag:         "Templates",
		Secured:     true,
		PathParams:  []openapi.Param{{Name: "id", Type: "integer"}},
		Request:     UpdateTemplateRequest{},
		Response:    TemplateResponse{},
		Errors:      templateErrors(http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/all-templates",
		OperationID: "listAllTemplates",
		Summary:     "List every template",
		Tag:         "Templates",
		Secured:     true,
		Query:       []openapi.Param{{Name: "facility_id", Type: "integer"}},
		Response:    []TemplateResponse{},
		Errors:      templateErrors(),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/verify-token",
		OperationID: "verifyToken",
		Summary:     "Check the Authorization credential",
		Tag:         "Auth",
		Secured:     true,
		Response:    VerifyTokenResponse{},
		Errors:      templateErrors(http.StatusBadGateway, http.StatusServiceUnavailable),
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/health",
		OperationID: "health",
		Tag:         "Operations",
		Response:    HealthResponse{},
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/ready",
		OperationID: "ready",
		Tag:         "Operations",
		Response:    ReadyResponse{},
		Errors:      map[int]any{http.StatusServiceUnavailable: ReadyResponse{}},
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/metrics",
		OperationID: "metrics",
		Summary:     "Prometheus metrics",
		Tag:         "Operations",
	})
	g.RegisterRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/openapi.json",
		OperationID: "openapi",
		Summary:     "This document",
		Tag:         "Operations",
	})

	return g
}
