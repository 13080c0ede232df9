package orchestrator

import "flowcore/internal/template"

// collectTemplateRefs walks an arbitrarily nested input map and returns
// every `{{tasks.<id>...}}` step id referenced anywhere within it. Used by
// Validate's "no declared dependency" warning; internal/graph has its own
// copy of this walk since it must run before Validate does (it cannot
// depend on this package without creating a cycle).
func collectTemplateRefs(input map[string]any) ([]string, error) {
	var refs []string
	var walk func(v any) error
	walk = func(v any) error {
		switch val := v.(type) {
		case string:
			tpl, err := template.Parse(val)
			if err != nil {
				return err
			}
			for _, seg := range tpl.Segments {
				if seg.Kind == template.SegmentExpr && seg.Root == template.RootTasks {
					refs = append(refs, seg.StepID)
				}
			}
		case map[string]any:
			for _, e := range val {
				if err := walk(e); err != nil {
					return err
				}
			}
		case []any:
			for _, e := range val {
				if err := walk(e); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(input); err != nil {
		return nil, err
	}
	return refs, nil
}
