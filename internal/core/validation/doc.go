// Package validation checks API request payloads before they reach the store.
//
// Request structs declare their rules with `validate` struct tags. The
// package wraps go-playground/validator, reports failures by JSON path and
// registers the "fieldtype" rule for the closed set of form field types.
//
// # Usage
//
//	v := validation.New()
//	if problems := v.Validate(req); len(problems) > 0 {
//	    // Return 422 with problems rendered as "<path>: <message>"
//	}
package validation
