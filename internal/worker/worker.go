// Package worker executes log analysis task requests: it acquires input
// files, resolves the task configuration, invokes chopchopgo once per
// file and packages captured output into artifacts and a task result.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/openrelik/chopchopgo-worker/internal/artifact"
	"github.com/openrelik/chopchopgo-worker/internal/chopchop"
	"github.com/openrelik/chopchopgo-worker/internal/input"
	"github.com/openrelik/chopchopgo-worker/internal/log"
	"github.com/openrelik/chopchopgo-worker/internal/model"
)

// Progress is emitted after each processed file.
type Progress struct {
	Current int
	Total   int
	Message string
}

type ProgressFunc func(ctx context.Context, p Progress)

// Analyzer processes task requests sequentially, one subprocess at a
// time, in the order the files were acquired.
type Analyzer struct {
	resolver  chopchop.Resolver
	runner    chopchop.Runner
	outputDir string
	progress  ProgressFunc
}

func NewAnalyzer(cfg model.Config) (Analyzer, error) {
	if cfg.Version != 0 {
		return Analyzer{}, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	timeout, err := cfg.EngineTimeout()
	if err != nil {
		return Analyzer{}, fmt.Errorf("parsing engine.timeout: %w", err)
	}

	return Analyzer{
		resolver:  chopchop.NewResolver(cfg.Engine),
		runner:    chopchop.NewRunner(cfg.Engine.Binary, timeout),
		outputDir: cfg.Worker.OutputDir,
	}, nil
}

// WithProgress registers a progress callback. Without one, progress is
// only logged.
func (a Analyzer) WithProgress(fn ProgressFunc) Analyzer {
	a.progress = fn
	return a
}

// Do executes one task request. Inputs without a path are skipped with a
// warning, any subprocess failure aborts the whole batch.
func (a Analyzer) Do(ctx context.Context, req model.TaskRequest) (model.TaskResult, error) {
	ctx = log.ContextAttrs(ctx, slog.String("workflow_id", req.WorkflowID))
	slog.InfoContext(ctx, "starting chopchopgo analysis")

	files, err := input.Files(ctx, req.PipeResult, req.InputFiles, input.Compatible)
	if err != nil {
		return model.TaskResult{}, err
	}
	if len(files) == 0 {
		return model.TaskResult{}, model.ErrNoInputs
	}

	resolved, err := a.resolver.Resolve(ctx, req.TaskConfig)
	if err != nil {
		return model.TaskResult{}, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = a.outputDir
	}
	dir, err := artifact.OpenDir(outputPath)
	if err != nil {
		return model.TaskResult{}, err
	}
	defer func() {
		_ = dir.Close()
	}()

	var outputs []model.OutputFile
	var lastCmd chopchop.Command
	total := len(files)

	for index, file := range files {
		if file.Path == "" {
			slog.WarnContext(ctx, "skipping input without path", "display_name", file.Name())
			continue
		}

		fctx := log.ContextAttrs(ctx, slog.String("path", file.Path))

		name := file.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		out, err := dir.Create(stem+"_chopchopgo", resolved.OutputFormat,
			"openrelik:chopchopgo:"+resolved.OutputFormat)
		if err != nil {
			return model.TaskResult{}, err
		}

		res, err := a.runner.Exec(fctx, resolved, file, nil)
		if err != nil {
			slog.ErrorContext(fctx, "chopchopgo failed", "error", err)
			return model.TaskResult{}, err
		}
		lastCmd = res.Command

		if err := dir.Write(out, res.Stdout.Bytes()); err != nil {
			return model.TaskResult{}, err
		}
		outputs = append(outputs, out)

		a.emit(ctx, Progress{
			Current: index + 1,
			Total:   total,
			Message: "Processed " + name,
		})
	}

	if len(outputs) == 0 {
		return model.TaskResult{}, fmt.Errorf("chopchopgo %w", model.ErrNoOutputs)
	}

	slog.InfoContext(ctx, "chopchopgo analysis completed", "files", len(outputs))

	return model.TaskResult{
		OutputFiles: outputs,
		WorkflowID:  req.WorkflowID,
		Command:     lastCmd.String(),
		Meta: map[string]string{
			"output_format": resolved.OutputFormat,
			"target":        resolved.Target,
			"rules_path":    resolved.RulesPath,
		},
	}, nil
}

func (a Analyzer) emit(ctx context.Context, p Progress) {
	if a.progress != nil {
		a.progress(ctx, p)
		return
	}
	slog.InfoContext(ctx, "task progress",
		"current", p.Current, "total", p.Total, "message", p.Message)
}
