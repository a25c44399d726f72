package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openrelik/chopchopgo-worker/internal/log"
	"github.com/openrelik/chopchopgo-worker/internal/model"
	"github.com/openrelik/chopchopgo-worker/internal/service"
	"github.com/openrelik/chopchopgo-worker/internal/worker"
)

var (
	userConfigPath string // /default/config/path/chopchopgo-worker on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag

	// run flags
	flagRequest      string
	flagInputs       []string
	flagWorkflowID   string
	flagPipeResult   string
	flagOutputDir    string
	flagOutputFormat string
	flagTarget       string
	flagRulesPath    string
	flagRuleBundle   string
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "chopchopgo-worker")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is worker.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	runCmd.Flags().StringVar(&flagRequest, "request", "", "task request JSON file, other run flags are ignored when set")
	runCmd.Flags().StringArrayVar(&flagInputs, "input", nil, "input log file, can be repeated")
	runCmd.Flags().StringVar(&flagWorkflowID, "workflow-id", "", "workflow identifier carried into the result")
	runCmd.Flags().StringVar(&flagPipeResult, "pipe-result", "", "base64 encoded result of an upstream task")
	runCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory for output artifacts, default from config")
	runCmd.Flags().StringVar(&flagOutputFormat, "output-format", "", "chopchopgo output format (json|csv)")
	runCmd.Flags().StringVar(&flagTarget, "target", "", "chopchopgo parser target (syslog|journald|auditd)")
	runCmd.Flags().StringVar(&flagRulesPath, "rules-path", "", "explicit rules directory override")
	runCmd.Flags().StringVar(&flagRuleBundle, "rule-bundle", "", "packaged rule bundle key, e.g. linux/builtin")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initWorker

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("worker failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "worker",
	Short:        "Worker feeding log files to the ChopChopGo Sigma scanner and packaging its detections",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run executes a single task request and prints the encoded result",
	RunE:  doRun,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve watches the spool directory and executes task requests",
	RunE:  doServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of the worker",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("worker: version info not available")
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("worker: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("worker",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	req, err := taskRequest()
	if err != nil {
		return err
	}

	analyzer, err := worker.NewAnalyzer(config)
	if err != nil {
		return err
	}

	result, err := analyzer.Do(ctx, req)
	if err != nil {
		return err
	}

	encoded, err := result.Encode()
	if err != nil {
		return err
	}

	uploaders, err := service.Uploaders(config.Results)
	if err != nil {
		return err
	}
	for _, u := range uploaders {
		if err := u.Upload(ctx, []byte(encoded)); err != nil {
			return err
		}
		if closer, ok := u.(model.UploadCloser); ok {
			if err := closer.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

func doServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("worker",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	supervisor, err := service.NewSupervisor(ctx, config)
	if err != nil {
		return err
	}

	supervisor.Trigger()
	return supervisor.Do(ctx)
}

func taskRequest() (model.TaskRequest, error) {
	if flagRequest != "" {
		b, err := os.ReadFile(flagRequest)
		if err != nil {
			return model.TaskRequest{}, fmt.Errorf("reading task request: %w", err)
		}
		var req model.TaskRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return model.TaskRequest{}, fmt.Errorf("decoding task request: %w", err)
		}
		return req, nil
	}

	req := model.TaskRequest{
		WorkflowID: flagWorkflowID,
		PipeResult: flagPipeResult,
		OutputPath: flagOutputDir,
		TaskConfig: model.TaskConfig{},
	}
	for _, path := range flagInputs {
		req.InputFiles = append(req.InputFiles, model.InputFile{Path: path})
	}
	if flagOutputFormat != "" {
		req.TaskConfig["output_format"] = flagOutputFormat
	}
	if flagTarget != "" {
		req.TaskConfig["target"] = flagTarget
	}
	if flagRulesPath != "" {
		req.TaskConfig["rules_path"] = flagRulesPath
	}
	if flagRuleBundle != "" {
		req.TaskConfig["rule_bundle"] = flagRuleBundle
	}
	return req, nil
}

func initWorker(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("CHOPCHOPGO_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "worker.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "worker.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		// round-trip via json so the yaml document carries the snake
		// case keys the schema expects
		b, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.LogAttrs(cmd.Context(), slog.LevelError, "invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// CHOPCHOPGO_* environment variables win over the config file
	config.ApplyEnv()

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Worker.Verbose = true
	}

	sink, err := log.Sink(config.Worker.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log.New(sink, config.Worker.Verbose))

	slog.Debug("worker run", "configPath", configPath)
	slog.Debug("worker run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
