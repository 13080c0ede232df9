// Package docloader loads Task and Workflow documents from local YAML/JSON
// files into the typed catalog the orchestrator resolves against. Grounded
// on station's internal/workflows/loader.go Loader.LoadAll/LoadFile: glob by
// filename suffix, decode YAML into a generic map (converting
// map[interface{}]interface{} to map[string]interface{} since
// encoding/json cannot marshal the former), then round-trip through JSON so
// both YAML and JSON sources land on one decode path.
package docloader

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"flowcore/internal/types"
)

// Catalog is the full set of Tasks and Workflows loaded from a directory
// pair, ready to back an orchestrator.MapResolver.
type Catalog struct {
	Tasks     []*types.Task
	Workflows []*types.Workflow
}

// LoadError pairs a source file with the error loading it encountered, so a
// directory with one malformed document doesn't abort loading the rest.
type LoadError struct {
	FilePath string
	Err      error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.FilePath, e.Err)
}

// LoadResult reports every document considered and any per-file failures.
type LoadResult struct {
	Catalog    Catalog
	Errors     []LoadError
	TotalFiles int
}

// Loader scans tasksDir for *.task.{yaml,yml,json} and workflowsDir for
// *.workflow.{yaml,yml,json}.
type Loader struct {
	tasksDir     string
	workflowsDir string
}

func NewLoader(tasksDir, workflowsDir string) *Loader {
	return &Loader{tasksDir: tasksDir, workflowsDir: workflowsDir}
}

// LoadAll loads every task then every workflow document it finds. Missing
// directories are treated as empty, not an error, so a catalog can carry
// only tasks or only workflows.
func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{}

	taskFiles, err := globDocs(l.tasksDir, "task")
	if err != nil {
		return nil, err
	}
	workflowFiles, err := globDocs(l.workflowsDir, "workflow")
	if err != nil {
		return nil, err
	}
	result.TotalFiles = len(taskFiles) + len(workflowFiles)

	for _, fp := range taskFiles {
		task, err := loadTask(fp)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{FilePath: fp, Err: err})
			continue
		}
		result.Catalog.Tasks = append(result.Catalog.Tasks, task)
	}

	for _, fp := range workflowFiles {
		wf, err := loadWorkflow(fp)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{FilePath: fp, Err: err})
			continue
		}
		result.Catalog.Workflows = append(result.Catalog.Workflows, wf)
	}

	return result, nil
}

func globDocs(dir, kind string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var all []string
	for _, ext := range []string{"yaml", "yml", "json"} {
		matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*.%s.%s", kind, ext)))
		if err != nil {
			return nil, fmt.Errorf("scanning %s documents in %s: %w", kind, dir, err)
		}
		all = append(all, matches...)
	}
	return all, nil
}

// loadTask decodes one task document, defaulting Name from the filename
// when the document omits it.
func loadTask(filePath string) (*types.Task, error) {
	rawJSON, err := decodeToJSON(filePath)
	if err != nil {
		return nil, err
	}
	var task types.Task
	if err := json.Unmarshal(rawJSON, &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if task.Name == "" {
		task.Name = extractDocID(filePath, "task")
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

func loadWorkflow(filePath string) (*types.Workflow, error) {
	rawJSON, err := decodeToJSON(filePath)
	if err != nil {
		return nil, err
	}
	var wf types.Workflow
	if err := json.Unmarshal(rawJSON, &wf); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	if wf.Name == "" {
		wf.Name = extractDocID(filePath, "workflow")
	}
	return &wf, nil
}

// decodeToJSON reads filePath and returns its content as canonical JSON
// bytes, whether the source was YAML or JSON.
func decodeToJSON(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if strings.HasSuffix(filePath, ".json") {
		var probe any
		if err := json.Unmarshal(content, &probe); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		return content, nil
	}

	var yamlData any
	if err := yaml.Unmarshal(content, &yamlData); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	rawJSON, err := json.Marshal(convertYAMLToJSON(yamlData))
	if err != nil {
		return nil, fmt.Errorf("converting YAML to JSON: %w", err)
	}
	return rawJSON, nil
}

func extractDocID(filePath, kind string) string {
	base := filepath.Base(filePath)
	for _, suffix := range []string{"." + kind + ".yaml", "." + kind + ".yml", "." + kind + ".json"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Checksum returns a content hash for a loaded document, used by callers
// that want to detect a file changing on disk between reloads.
func Checksum(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// convertYAMLToJSON rebuilds yaml.v3's decoded value tree so every map is
// map[string]interface{} (json.Marshal cannot encode map[interface{}]interface{},
// which older YAML decoders produce and which this code still guards
// against for documents hand-written against that convention).
func convertYAMLToJSON(input any) any {
	switch v := input.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = convertYAMLToJSON(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = convertYAMLToJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = convertYAMLToJSON(val)
		}
		return out
	default:
		return v
	}
}
