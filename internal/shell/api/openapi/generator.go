// Package openapi provides reflective OpenAPI 3.0 document generation for
// the plain JSON routes of the API.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered routes, reflecting
// request and response structs into component schemas.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	routes      []Route
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Route describes one HTTP operation.
type Route struct {
	Method      string
	Path        string // chi-style path, e.g. "/templates/{id}"
	OperationID string
	Summary     string
	Tag         string
	Secured     bool // requires the Authorization header

	Query      []Param
	PathParams []Param

	Request  any         // body model, nil for none
	Response any         // success body model, nil for none
	Status   int         // success status, defaults to 200
	Errors   map[int]any // error status -> body model
}

// Param describes a query or path parameter.
type Param struct {
	Name     string
	Type     string // "string" or "integer"
	Required bool
	Repeated bool
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Lab Templates API",
		version:     "1.0.0",
		description: "Facility-scoped lab test form templates",
		routes:      make([]Route, 0),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterRoute adds an operation to the document.
func (g *Generator) RegisterRoute(route Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, route)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				"credential": &openapi3.SecuritySchemeRef{
					Value: openapi3.NewSecurityScheme().
						WithType("apiKey").
						WithIn("header").
						WithName("Authorization"),
				},
			},
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	for _, route := range g.routes {
		g.addRoute(spec, route)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) addRoute(spec *openapi3.T, route Route) {
	op := &openapi3.Operation{
		OperationID: route.OperationID,
		Summary:     route.Summary,
		Responses:   &openapi3.Responses{},
	}
	if route.Tag != "" {
		op.Tags = []string{route.Tag}
	}
	if route.Secured {
		op.Security = &openapi3.SecurityRequirements{{"credential": []string{}}}
	}

	for _, p := range route.PathParams {
		op.Parameters = append(op.Parameters, paramRef(p, "path"))
	}
	for _, p := range route.Query {
		op.Parameters = append(op.Parameters, paramRef(p, "query"))
	}

	if route.Request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(g.schemaRef(spec, route.Request)),
		}
	}

	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	op.Responses.Set(strconv.Itoa(status), responseRef(http.StatusText(status), g.schemaRef(spec, route.Response)))

	codes := make([]int, 0, len(route.Errors))
	for code := range route.Errors {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		op.Responses.Set(strconv.Itoa(code), responseRef(http.StatusText(code), g.schemaRef(spec, route.Errors[code])))
	}

	item := spec.Paths.Value(route.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(route.Path, item)
	}
	item.SetOperation(route.Method, op)
}

func paramRef(p Param, in string) *openapi3.ParameterRef {
	typ := p.Type
	if typ == "" {
		typ = "string"
	}
	schema := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}}}
	if p.Repeated {
		schema = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: schema}}
	}
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     p.Name,
			In:       in,
			Required: p.Required || in == "path",
			Schema:   schema,
		},
	}
}

func responseRef(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	resp := openapi3.NewResponse().WithDescription(description)
	if schema != nil {
		resp.WithJSONSchemaRef(schema)
	}
	return &openapi3.ResponseRef{Value: resp}
}

// schemaRef registers the model's struct type as a component and returns a
// reference to it. Slices become arrays of the element component.
func (g *Generator) schemaRef(spec *openapi3.T, model any) *openapi3.SchemaRef {
	if model == nil {
		return nil
	}
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice {
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.schemaRef(spec, reflect.New(t.Elem()).Elem().Interface()),
			},
		}
	}
	if t.Kind() != reflect.Struct || t == reflect.TypeOf(time.Time{}) {
		return g.goTypeToSchema(t)
	}

	if _, ok := spec.Components.Schemas[t.Name()]; !ok {
		spec.Components.Schemas[t.Name()] = g.extractSchema(model)
	}
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + t.Name()}
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema extracts an OpenAPI schema from a Go struct. Fields tagged
// validate:"required" are listed as required.
func (g *Generator) extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		// Get JSON tag
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		// Parse JSON tag for name
		name := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
		}

		propSchema := g.goTypeToSchema(field.Type)
		if propSchema == nil {
			continue
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			for _, v := range strings.Split(enum, ",") {
				propSchema.Value.Enum = append(propSchema.Value.Enum, v)
			}
		}
		schema.Properties[name] = propSchema

		for _, rule := range strings.Split(field.Tag.Get("validate"), ",") {
			if rule == "required" {
				schema.Required = append(schema.Required, name)
			}
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	// json.RawMessage is free-form JSON.
	if t == reflect.TypeOf(json.RawMessage(nil)) {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		elemSchema := g.goTypeToSchema(t.Elem())
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: elemSchema,
			},
		}

	case reflect.Map:
		valueSchema := g.goTypeToSchema(t.Elem())
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: valueSchema},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(reflect.New(t).Interface())

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}
