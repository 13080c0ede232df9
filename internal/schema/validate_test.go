package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

func TestValidate_EmptySchemaAlwaysValid(t *testing.T) {
	result, err := Validate(nil, map[string]any{"anything": true})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	s := objSchema(map[string]any{
		"name": map[string]any{"type": "string"},
	}, "name")

	result, err := Validate(s, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidate_TypeMismatch(t *testing.T) {
	s := objSchema(map[string]any{
		"count": map[string]any{"type": "integer"},
	})

	result, err := Validate(s, map[string]any{"count": "not-a-number"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidate_Passes(t *testing.T) {
	s := objSchema(map[string]any{
		"name":  map[string]any{"type": "string"},
		"count": map[string]any{"type": "integer"},
	}, "name")

	result, err := Validate(s, map[string]any{"name": "a", "count": 3})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateSchemaItself_Malformed(t *testing.T) {
	err := ValidateSchemaItself(map[string]any{
		"properties": map[string]any{
			"x": map[string]any{"$ref": "#/definitions/doesNotExist"},
		},
	})
	require.Error(t, err)
}
