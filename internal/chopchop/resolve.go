// Package chopchop resolves task configuration into a chopchopgo command
// line and executes the binary, one input file per invocation.
package chopchop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openrelik/chopchopgo-worker/internal/model"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	DefaultTarget = "syslog"
)

// Bundles maps rule bundle keys offered to the operator to subdirectories
// packaged with the chopchopgo release, relative to the rules root.
var Bundles = map[string]string{
	"linux/builtin": filepath.Join("linux", "builtin"),
	"linux/auditd":  filepath.Join("linux", "auditd"),
}

var supportedFormats = map[string]struct{}{
	FormatJSON: {},
	FormatCSV:  {},
}

var supportedTargets = map[string]struct{}{
	"syslog":   {},
	"journald": {},
	"auditd":   {},
}

// targetRules picks the packaged rule set matching a parser target.
var targetRules = map[string]string{
	"syslog":   filepath.Join("linux", "builtin"),
	"journald": filepath.Join("linux", "builtin"),
	"auditd":   filepath.Join("linux", "auditd"),
}

var genericRules = filepath.Join("linux", "builtin")

// ResolvedConfig is a fully validated invocation configuration. RulesPath
// points at a directory that existed at resolution time.
type ResolvedConfig struct {
	OutputFormat string
	Target       string
	RulesPath    string
}

// Resolver turns raw task options into a ResolvedConfig using the engine
// defaults for anything the task omits.
type Resolver struct {
	defaultTarget string
	rulesRoot     string
}

func NewResolver(engine model.Engine) Resolver {
	target := engine.DefaultTarget
	if target == "" {
		target = DefaultTarget
	}
	return Resolver{
		defaultTarget: target,
		rulesRoot:     engine.RulesDir,
	}
}

// Resolve never fails on format or target, only a missing rules
// directory is fatal. It must be called before any subprocess runs.
func (r Resolver) Resolve(ctx context.Context, cfg model.TaskConfig) (ResolvedConfig, error) {
	format := r.OutputFormat(ctx, cfg)
	target := r.Target(ctx, cfg)
	rules, err := r.RulesPath(ctx, target, cfg)
	if err != nil {
		return ResolvedConfig{}, err
	}
	return ResolvedConfig{
		OutputFormat: format,
		Target:       target,
		RulesPath:    rules,
	}, nil
}

// OutputFormat returns "json" or "csv", defaulting to "json" for absent,
// nil or unsupported values. Matching is case insensitive.
func (r Resolver) OutputFormat(ctx context.Context, cfg model.TaskConfig) string {
	raw, ok := cfg.Value("output_format")
	if !ok {
		return FormatJSON
	}

	format := strings.ToLower(raw)
	if _, ok := supportedFormats[format]; ok {
		return format
	}

	if format != "" {
		slog.WarnContext(ctx, "unsupported output_format, falling back to json", "output_format", format)
	}
	return FormatJSON
}

// Target returns the parser target, falling back to the configured
// default for absent, blank or unsupported values.
func (r Resolver) Target(ctx context.Context, cfg model.TaskConfig) string {
	raw, ok := cfg.Value("target")
	if !ok || raw == "" {
		return r.defaultTarget
	}

	if _, ok := supportedTargets[raw]; ok {
		return raw
	}

	slog.WarnContext(ctx, "unsupported target, falling back to default",
		"target", raw, "default", r.defaultTarget)
	return r.defaultTarget
}

// RulesPath resolves the rules directory with the precedence
// explicit rules_path > rule_bundle > per target default. An explicit
// rules_path pointing at a missing directory fails the whole resolution,
// even when a bundle or target default would have worked.
func (r Resolver) RulesPath(ctx context.Context, target string, cfg model.TaskConfig) (string, error) {
	if override, ok := cfg.Value("rules_path"); ok && override != "" {
		if !isDir(override) {
			return "", fmt.Errorf("rules_path %q is not a directory: %w", override, model.ErrNoRules)
		}
		return override, nil
	}

	if bundle, ok := cfg.Value("rule_bundle"); ok && bundle != "" {
		sub, known := Bundles[bundle]
		if !known {
			slog.WarnContext(ctx, "unknown rule_bundle, trying target default", "rule_bundle", bundle)
		} else {
			candidate := filepath.Join(r.rulesRoot, sub)
			if isDir(candidate) {
				return candidate, nil
			}
			slog.WarnContext(ctx, "rule_bundle directory missing, trying target default",
				"rule_bundle", bundle, "path", candidate)
		}
	}

	sub, ok := targetRules[target]
	if !ok {
		sub = genericRules
	}
	candidate := filepath.Join(r.rulesRoot, sub)
	if isDir(candidate) {
		return candidate, nil
	}

	return "", fmt.Errorf(
		"unable to locate rules under %s: provide 'rules_path' or a valid 'rule_bundle' in the task configuration: %w",
		r.rulesRoot, model.ErrNoRules)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
