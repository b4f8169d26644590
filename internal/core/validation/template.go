package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lablink/labtemplates/internal/core/domain"
)

// =============================================================================
// Problem
// =============================================================================

// Problem is a single validation failure located by its JSON path.
type Problem struct {
	Path    string
	Message string
}

// String renders the problem as "<path>: <message>".
func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// Details renders every problem for an error response body.
func Details(problems []Problem) []string {
	details := make([]string, 0, len(problems))
	for _, p := range problems {
		details = append(details, p.String())
	}
	return details
}

// =============================================================================
// Validator
// =============================================================================

// Validator validates request structs. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with JSON field naming and the fieldtype rule.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("fieldtype", func(fl validator.FieldLevel) bool {
		return domain.FieldType(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v}
}

// Validate checks req against its struct tags. It returns nil when req is valid.
func (v *Validator) Validate(req any) []Problem {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Problem{{Message: err.Error()}}
	}

	problems := make([]Problem, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, Problem{
			Path:    fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return problems
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// fieldPath turns "CreateTemplateRequest.fields[0].type" into "fields.0.type".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "fieldtype":
		return fmt.Sprintf("input should be %s", allowedTypes())
	case "min":
		return fmt.Sprintf("should have at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("input should be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}

// allowedTypes renders the enumeration as "'text', 'number', ... or 'checkbox'".
func allowedTypes() string {
	quoted := make([]string, len(domain.FieldTypes))
	for i, ft := range domain.FieldTypes {
		quoted[i] = "'" + string(ft) + "'"
	}
	last := len(quoted) - 1
	return strings.Join(quoted[:last], ", ") + " or " + quoted[last]
}

// =============================================================================
// Advisory Checks
// =============================================================================

// ChoiceFieldsWithoutOptions returns the indexes of select, radio and checkbox
// fields that carry no options. These are accepted; callers may log them.
func ChoiceFieldsWithoutOptions(fields []domain.Field) []int {
	var idx []int
	for i, f := range fields {
		if f.Type.IsChoice() && len(f.Options) == 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
