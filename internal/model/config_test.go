package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/openrelik/chopchopgo-worker/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
engine:
  binary: /usr/local/bin/chopchopgo
  default_target: auditd
  rules_dir: /opt/chopchopgo/rules
  timeout: 10m
worker:
  mode: timer
  log: stderr
  output_dir: /var/lib/chopchopgo/out
  spool_dir: /var/spool/chopchopgo
  schedule:
    duration: PT15M
results:
  dir: /var/lib/chopchopgo/results
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin/chopchopgo", cfg.Engine.Binary)
	require.Equal(t, "auditd", cfg.Engine.DefaultTarget)
	require.Equal(t, "/opt/chopchopgo/rules", cfg.Engine.RulesDir)
	require.Equal(t, "10m", cfg.Engine.Timeout)
	require.Equal(t, model.ModeTimer, cfg.Worker.Mode)
	require.Equal(t, model.LogStderr, cfg.Worker.Log)
	require.Equal(t, "/var/lib/chopchopgo/out", cfg.Worker.OutputDir)
	require.Equal(t, "/var/spool/chopchopgo", cfg.Worker.SpoolDir)
	require.NotNil(t, cfg.Worker.Schedule)
	require.Equal(t, "PT15M", cfg.Worker.Schedule.Duration)
	require.NotNil(t, cfg.Results)
	require.Equal(t, "/var/lib/chopchopgo/results", cfg.Results.Dir)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "chopchopgo", cfg.Engine.Binary)
	require.Equal(t, "syslog", cfg.Engine.DefaultTarget)
	require.Equal(t, "/opt/chopchopgo/rules", cfg.Engine.RulesDir)
	require.Equal(t, model.ModeManual, cfg.Worker.Mode)
	require.Equal(t, model.LogStderr, cfg.Worker.Log)
	require.Equal(t, ".", cfg.Worker.OutputDir)
	require.False(t, cfg.Worker.Verbose)
	require.Nil(t, cfg.Results)
}

func TestLoadConfig_Fail(t *testing.T) {
	cases := []struct {
		scenario string
		yml      string
	}{
		{"bad_version", "version: 1"},
		{"bad_mode", "version: 0\nworker:\n  mode: sometimes"},
		{"bad_target", "version: 0\nengine:\n  default_target: evtx"},
		{"empty_binary", "version: 0\nengine:\n  binary: \"\""},
		{"empty_spool", "version: 0\nworker:\n  spool_dir: \"\""},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHOPCHOPGO_BINARY", "/tmp/fake-chopchopgo")
	t.Setenv("CHOPCHOPGO_DEFAULT_TARGET", "journald")
	t.Setenv("CHOPCHOPGO_RULES_DIR", "/tmp/rules")

	cfg := model.DefaultConfig()
	cfg.ApplyEnv()
	require.Equal(t, "/tmp/fake-chopchopgo", cfg.Engine.Binary)
	require.Equal(t, "journald", cfg.Engine.DefaultTarget)
	require.Equal(t, "/tmp/rules", cfg.Engine.RulesDir)
}

func TestEngineTimeout(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig()

	dur, err := cfg.EngineTimeout()
	require.NoError(t, err)
	require.Zero(t, dur)

	cfg.Engine.Timeout = "90s"
	dur, err = cfg.EngineTimeout()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, dur)

	cfg.Engine.Timeout = "soon"
	_, err = cfg.EngineTimeout()
	require.Error(t, err)
}
