package model

import (
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/spf13/viper"

	_ "embed"
)

// Enum helpers (optional).
const (
	ModeManual = "manual"
	ModeTimer  = "timer"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int      `json:"version"` // fixed 0 for now
	Engine  Engine   `json:"engine"`
	Worker  Worker   `json:"worker"`
	Results *Results `json:"results,omitempty"`
}

// Engine describes the external chopchopgo binary and its defaults. Every
// field can be overridden by a CHOPCHOPGO_* environment variable, see
// ApplyEnv.
type Engine struct {
	Binary        string `json:"binary"`
	DefaultTarget string `json:"default_target"`
	RulesDir      string `json:"rules_dir"`
	Timeout       string `json:"timeout,omitempty"` // Go duration, empty => no timeout
}

// Worker run mode and output settings.
type Worker struct {
	Mode      string    `json:"mode"` // "manual" | "timer"
	Verbose   bool      `json:"verbose"`
	Log       string    `json:"log"`                 // "stderr"|"stdout"|"discard"|path
	OutputDir string    `json:"output_dir"`          // artifacts are created under this dir
	SpoolDir  string    `json:"spool_dir,omitempty"` // serve mode reads *.task.json from here
	DB        string    `json:"db,omitempty"`        // sqlite task run ledger, empty => in memory
	Schedule  *Schedule `json:"schedule,omitempty"`
}

// Schedule for timer mode, either a 5 field cron expression or an ISO8601
// duration like PT15M.
type Schedule struct {
	Cron     string `json:"cron,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Results publication settings.
type Results struct {
	Dir string `json:"dir,omitempty"`
	URL string `json:"url,omitempty"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("worker.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

// DefaultConfig is used when no config file exists yet.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Engine: Engine{
			Binary:        "chopchopgo",
			DefaultTarget: "syslog",
			RulesDir:      "/opt/chopchopgo/rules",
		},
		Worker: Worker{
			Mode:      ModeManual,
			Log:       LogStderr,
			OutputDir: ".",
		},
	}
}

// ApplyEnv overrides engine settings from the environment:
// CHOPCHOPGO_BINARY, CHOPCHOPGO_DEFAULT_TARGET and CHOPCHOPGO_RULES_DIR.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("chopchopgo")
	for _, key := range []string{"binary", "default_target", "rules_dir"} {
		_ = v.BindEnv(key)
	}
	if s := v.GetString("binary"); s != "" {
		c.Engine.Binary = s
	}
	if s := v.GetString("default_target"); s != "" {
		c.Engine.DefaultTarget = s
	}
	if s := v.GetString("rules_dir"); s != "" {
		c.Engine.RulesDir = s
	}
}

// EngineTimeout parses Engine.Timeout, zero when unset. A zero timeout
// means a hung binary blocks the task, callers are expected to warn.
func (c Config) EngineTimeout() (time.Duration, error) {
	if c.Engine.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Engine.Timeout)
}
