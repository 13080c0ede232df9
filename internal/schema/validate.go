// Package schema wraps github.com/xeipuuv/gojsonschema for JSON Schema
// validation and implements the dataflow compatibility checker between an
// upstream task's output schema and a downstream task's input schema.
// Grounded on station's pkg/schema/export_helper.go (validateDataAgainstSchema)
// and internal/workflows/schema_checker.go (SchemaChecker.CheckCompatibility).
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"flowcore/internal/types"
)

// FieldErrorKind is the closed set of validation failure kinds spec §4.1
// requires every field-level error to carry.
type FieldErrorKind string

const (
	KindMissingRequired FieldErrorKind = "missing-required"
	KindTypeMismatch    FieldErrorKind = "type-mismatch"
	KindEnumViolation   FieldErrorKind = "enum-violation"
	KindAdditionalProp  FieldErrorKind = "additional-property"
)

// FieldError is one gojsonschema.ResultError translated into spec §4.1's
// {path, kind, message} shape: a JSON-pointer-style path to the offending
// field, a closed-vocabulary kind, and a human-readable message.
type FieldError struct {
	Path    string
	Kind    FieldErrorKind
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return string(e.Kind) + ": " + e.Message
	}
	return e.Path + " (" + string(e.Kind) + "): " + e.Message
}

// ValidationResult is the outcome of validating a value against a schema: it
// never returns a bare error for a data mismatch, only for malformed schema
// JSON itself (spec §4.1's "schema-invalid" failure mode).
type ValidationResult struct {
	Valid  bool
	Errors []FieldError
}

// Validate checks value against schema (both already decoded into
// map[string]any form, e.g. from YAML/JSON). A nil or empty schema is
// treated as "anything is valid".
func Validate(schema map[string]any, value any) (ValidationResult, error) {
	if len(schema) == 0 {
		return ValidationResult{Valid: true}, nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return ValidationResult{}, types.NewError(types.KindSchemaInvalid, "schema is not serializable").
			WithContext("cause", err.Error())
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return ValidationResult{}, types.NewError(types.KindSchemaInvalid, "value is not serializable").
			WithContext("cause", err.Error())
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	valueLoader := gojsonschema.NewBytesLoader(valueJSON)

	result, err := gojsonschema.Validate(schemaLoader, valueLoader)
	if err != nil {
		return ValidationResult{}, types.NewError(types.KindSchemaInvalid, "schema could not be compiled").
			WithContext("cause", err.Error())
	}

	if result.Valid() {
		return ValidationResult{Valid: true}, nil
	}

	fieldErrs := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		fieldErrs = append(fieldErrs, FieldError{
			Path:    fieldToPointer(desc.Field()),
			Kind:    kindFromGojsonschemaType(desc.Type()),
			Message: desc.Description(),
		})
	}
	return ValidationResult{Valid: false, Errors: fieldErrs}, nil
}

// fieldToPointer converts gojsonschema's dotted Field() ("(root).items.0.name")
// into a JSON-pointer-style path ("/items/0/name").
func fieldToPointer(field string) string {
	field = strings.TrimPrefix(field, "(root)")
	field = strings.TrimPrefix(field, ".")
	if field == "" {
		return "/"
	}
	return "/" + strings.ReplaceAll(field, ".", "/")
}

// kindFromGojsonschemaType maps gojsonschema's internal ResultError.Type()
// discriminator onto spec §4.1's closed kind vocabulary. Type() values that
// don't correspond 1:1 to a spec kind (length/pattern/multiple-of style
// constraint violations) bucket under type-mismatch, the closest of the
// four kinds to "the value doesn't satisfy the schema's shape".
func kindFromGojsonschemaType(t string) FieldErrorKind {
	switch t {
	case "required":
		return KindMissingRequired
	case "invalid_type", "number_any_of", "number_one_of", "number_all_of", "number_not":
		return KindTypeMismatch
	case "enum":
		return KindEnumViolation
	case "additional_property_not_allowed":
		return KindAdditionalProp
	default:
		return KindTypeMismatch
	}
}

// ValidateSchemaItself reports whether schema is well-formed JSON Schema,
// independent of any value. Used at workflow/task admission time.
func ValidateSchemaItself(schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return types.NewError(types.KindSchemaInvalid, "schema is not serializable").
			WithContext("cause", err.Error())
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON)); err != nil {
		return types.NewError(types.KindSchemaInvalid, fmt.Sprintf("invalid schema: %v", err))
	}
	return nil
}
