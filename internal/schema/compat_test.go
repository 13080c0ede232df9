package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatible_MissingRequiredIsIssue(t *testing.T) {
	output := objSchema(map[string]any{
		"id": map[string]any{"type": "string"},
	})
	input := objSchema(map[string]any{
		"id":   map[string]any{"type": "string"},
		"name": map[string]any{"type": "string"},
	}, "name")

	result := Compatible(output, input)
	assert.False(t, result.Compatible)
	assert.NotEmpty(t, result.Issues)
}

func TestCompatible_MissingOptionalIsWarningOnly(t *testing.T) {
	output := objSchema(map[string]any{
		"id": map[string]any{"type": "string"},
	})
	input := objSchema(map[string]any{
		"id":       map[string]any{"type": "string"},
		"nickname": map[string]any{"type": "string"},
	}, "id")

	result := Compatible(output, input)
	assert.True(t, result.Compatible)
	assert.NotEmpty(t, result.Warnings)
}

func TestCompatible_IntegerSatisfiesNumber(t *testing.T) {
	output := objSchema(map[string]any{
		"count": map[string]any{"type": "integer"},
	})
	input := objSchema(map[string]any{
		"count": map[string]any{"type": "number"},
	}, "count")

	result := Compatible(output, input)
	assert.True(t, result.Compatible)
}

func TestCompatible_TypeMismatchIsIssue(t *testing.T) {
	output := objSchema(map[string]any{
		"count": map[string]any{"type": "string"},
	})
	input := objSchema(map[string]any{
		"count": map[string]any{"type": "integer"},
	}, "count")

	result := Compatible(output, input)
	assert.False(t, result.Compatible)
	assert.NotEmpty(t, result.Issues)
}

func TestCompatible_EmptySchemasAreCompatible(t *testing.T) {
	result := Compatible(nil, nil)
	assert.True(t, result.Compatible)
}
