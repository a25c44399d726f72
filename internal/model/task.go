package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TaskConfig holds raw per task options as submitted by an operator.
// Values come from a dynamic frontend, so any key may hold a scalar,
// a single element list wrapping the scalar, or nil.
type TaskConfig map[string]any

// Unwrap normalizes the list-or-scalar-or-nil value shape into an
// optional scalar. Downstream code never re-inspects the shape.
func Unwrap(v any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	case []string:
		if len(t) == 0 {
			return nil
		}
		return t[0]
	default:
		return v
	}
}

// Value returns the trimmed string form of an option. The second return
// is false when the option is absent, nil or wraps an empty list.
func (c TaskConfig) Value(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c[key]
	if !ok {
		return "", false
	}
	v = Unwrap(v)
	if v == nil {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v)), true
}

// InputFile is a candidate file to analyze.
type InputFile struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	DataType    string `json:"data_type,omitempty"`
}

// Name returns the display name, falling back to the final path segment.
func (f InputFile) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return filepath.Base(f.Path)
}

// TaskRequest is a single unit of work for the worker: analyze the input
// files (or the outputs of an upstream task carried in PipeResult) and
// produce artifacts under OutputPath.
type TaskRequest struct {
	WorkflowID string      `json:"workflow_id,omitempty"`
	PipeResult string      `json:"pipe_result,omitempty"`
	InputFiles []InputFile `json:"input_files,omitempty"`
	OutputPath string      `json:"output_path,omitempty"`
	TaskConfig TaskConfig  `json:"task_config,omitempty"`
}
