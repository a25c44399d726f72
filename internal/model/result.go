package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// OutputFile describes one artifact produced by a task.
type OutputFile struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Extension   string `json:"extension,omitempty"`
	DataType    string `json:"data_type,omitempty"`
}

// TaskResult is the aggregate outcome of a task. OutputFiles is never
// empty for a successful task.
type TaskResult struct {
	OutputFiles []OutputFile      `json:"output_files"`
	WorkflowID  string            `json:"workflow_id,omitempty"`
	Command     string            `json:"command,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Encode serializes the result for transport as base64 over JSON, the
// form downstream tasks receive as their pipe result.
func (r TaskResult) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding task result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeResult is the inverse of Encode.
func DecodeResult(s string) (TaskResult, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return TaskResult{}, fmt.Errorf("decoding pipe result: %w", err)
	}
	var r TaskResult
	if err := json.Unmarshal(b, &r); err != nil {
		return TaskResult{}, fmt.Errorf("decoding pipe result: %w", err)
	}
	return r, nil
}
