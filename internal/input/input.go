// Package input acquires and filters candidate files for a task, either
// from an upstream task result or from explicit descriptors.
package input

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/openrelik/chopchopgo-worker/internal/model"
)

// Filter describes acceptable inputs. A file passes when any data type,
// mime type or filename glob matches. An empty filter passes everything.
type Filter struct {
	DataTypes []string
	MimeTypes []string
	Filenames []string
}

// Compatible is the baseline filter for log analysis.
var Compatible = Filter{
	MimeTypes: []string{"text/plain", "application/octet-stream"},
	Filenames: []string{"*.log", "*.txt", "*"},
}

// Files merges the outputs of an upstream task (pipeResult, base64 over
// JSON) with explicitly supplied descriptors and returns those passing
// the filter, in the order received.
func Files(ctx context.Context, pipeResult string, explicit []model.InputFile, filter Filter) ([]model.InputFile, error) {
	var candidates []model.InputFile

	if pipeResult != "" {
		prev, err := model.DecodeResult(pipeResult)
		if err != nil {
			return nil, fmt.Errorf("reading upstream result: %w", err)
		}
		for _, out := range prev.OutputFiles {
			candidates = append(candidates, model.InputFile{
				Path:        out.Path,
				DisplayName: out.DisplayName,
				DataType:    out.DataType,
			})
		}
	}
	candidates = append(candidates, explicit...)

	files := make([]model.InputFile, 0, len(candidates))
	for _, f := range candidates {
		if filter.Match(ctx, f) {
			files = append(files, f)
			continue
		}
		slog.DebugContext(ctx, "input filtered out", "path", f.Path, "display_name", f.Name())
	}
	return files, nil
}

func (f Filter) Match(ctx context.Context, file model.InputFile) bool {
	if len(f.DataTypes) == 0 && len(f.MimeTypes) == 0 && len(f.Filenames) == 0 {
		return true
	}

	for _, dt := range f.DataTypes {
		if file.DataType == dt {
			return true
		}
	}

	if len(f.MimeTypes) > 0 {
		mime := file.MimeType
		if mime == "" && file.Path != "" {
			if detected, err := mimetype.DetectFile(file.Path); err == nil {
				mime = detected.String()
			}
		}
		for _, mt := range f.MimeTypes {
			if mime != "" && mimetype.EqualsAny(mime, mt) {
				return true
			}
		}
	}

	name := file.Name()
	for _, glob := range f.Filenames {
		ok, err := doublestar.Match(glob, name)
		if err != nil {
			slog.WarnContext(ctx, "invalid filename glob", "glob", glob, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
