package schema

import "fmt"

// Compatibility is the result of checking one dataflow edge: does an
// upstream task's output schema satisfy a downstream task's input schema.
// Directly modeled on station's SchemaCompatibility{Compatible,Issues,Warnings}.
type Compatibility struct {
	Compatible bool
	Issues     []string
	Warnings   []string
}

// Compatible checks whether every required field of inputSchema is present
// in outputSchema with a compatible type, per spec §4.1/§4.3. Missing
// optional fields produce a Warning, not an Issue; type mismatches on
// required or shared fields produce Issues and flip Compatible to false.
func Compatible(outputSchema, inputSchema map[string]any) Compatibility {
	result := Compatibility{Compatible: true}

	if len(outputSchema) == 0 || len(inputSchema) == 0 {
		return result
	}

	inputRequired := extractRequired(inputSchema)
	inputProps := extractProperties(inputSchema)
	outputProps := extractProperties(outputSchema)

	for _, field := range inputRequired {
		if _, ok := outputProps[field]; !ok {
			result.Compatible = false
			result.Issues = append(result.Issues,
				fmt.Sprintf("input requires field %q but the upstream output schema does not provide it", field))
		}
	}

	required := make(map[string]bool, len(inputRequired))
	for _, r := range inputRequired {
		required[r] = true
	}

	for name, inputDef := range inputProps {
		outputDef, ok := outputProps[name]
		if !ok {
			if required[name] {
				continue // already reported above
			}
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("input expects optional field %q which the upstream output may not provide", name))
			continue
		}
		if err := checkTypeCompatibility(name, outputDef, inputDef); err != "" {
			result.Compatible = false
			result.Issues = append(result.Issues, err)
		}
	}

	return result
}

func extractRequired(s map[string]any) []string {
	var out []string
	if raw, ok := s["required"].([]any); ok {
		for _, r := range raw {
			if str, ok := r.(string); ok {
				out = append(out, str)
			}
		}
	}
	return out
}

func extractProperties(s map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	if raw, ok := s["properties"].(map[string]any); ok {
		for name, def := range raw {
			if m, ok := def.(map[string]any); ok {
				out[name] = m
			}
		}
	}
	return out
}

func checkTypeCompatibility(field string, outputDef, inputDef map[string]any) string {
	outputType, _ := outputDef["type"].(string)
	inputType, _ := inputDef["type"].(string)
	if outputType == "" || inputType == "" {
		return ""
	}
	if !typesCompatible(outputType, inputType) {
		return fmt.Sprintf("field %q: output type %q is not compatible with input type %q", field, outputType, inputType)
	}
	if outputType == "array" && inputType == "array" {
		outputItems, _ := outputDef["items"].(map[string]any)
		inputItems, _ := inputDef["items"].(map[string]any)
		if outputItems != nil && inputItems != nil {
			oit, _ := outputItems["type"].(string)
			iit, _ := inputItems["type"].(string)
			if oit != "" && iit != "" && !typesCompatible(oit, iit) {
				return fmt.Sprintf("field %q: array item type %q is not compatible with expected %q", field, oit, iit)
			}
		}
	}
	return ""
}

// typesCompatible allows the one widening conversion JSON Schema implies:
// an integer output can satisfy a number input.
func typesCompatible(outputType, inputType string) bool {
	if outputType == inputType {
		return true
	}
	return outputType == "integer" && inputType == "number"
}
