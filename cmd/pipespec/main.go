package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/backend/sim"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
	"github.com/pipelab/pipespec/pkg/report"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pipespec",
	Short: "Executable pipeline specifications",
	Long:  "pipespec runs plain-language scenarios against live media pipelines: build from a description, drive states, set and assert properties, check rendered colors and collect validation issues.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

// --- run ---

var (
	runEngine        string
	runTags          string
	runFormat        string
	runStopOnFailure bool
	runArtifacts     string
	runGate          string
	runTrace         bool
)

var runCmd = &cobra.Command{
	Use:   "run [features...]",
	Short: "Run feature scenarios against a pipeline engine",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	if errs := config.ValidateDomain(cfg); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Configuration failed: %d error(s)\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  ✗ %s\n", e)
		}
		return fmt.Errorf("configuration is invalid")
	}

	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Features
	}

	var rec *report.Recorder
	if runTrace {
		rec, err = report.NewRecorder(artifactsDir(cfg), cfg.Engine)
		if err != nil {
			return fmt.Errorf("create run recorder: %w", err)
		}
		fmt.Printf("Run ID: %s\n", rec.RunID())
		fmt.Printf("Engine: %s\n", cfg.Engine)
	} else if cfg.Gate != "" {
		return fmt.Errorf("a gate needs run counters; drop --trace=false or the gate")
	}

	suite := harness.NewSuite(harness.SuiteOptions{
		Config:   cfg,
		Engine:   engine,
		Recorder: rec,
		Paths:    paths,
	})
	code := suite.Run()

	if rec != nil {
		if cfg.Gate != "" {
			passed, gerr := rec.ApplyGate(cfg.Gate)
			switch {
			case gerr != nil:
				fmt.Fprintf(os.Stderr, "warning: gate evaluation failed: %v\n", gerr)
				if code == 0 {
					code = exitFailure
				}
			case passed:
				fmt.Printf("  ✓ gate %q passed\n", cfg.Gate)
			default:
				fmt.Printf("  ✗ gate %q failed\n", cfg.Gate)
				if code == 0 {
					code = exitFailure
				}
			}
		}
		if err := rec.WriteSummary(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write run summary: %v\n", err)
		} else {
			fmt.Printf("  Summary: %s/run.yaml\n", rec.BaseDir())
		}
		if err := rec.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close trace: %v\n", err)
		}
	}

	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// applyRunFlags overlays explicitly set run flags on the file
// configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if runEngine != "" {
		cfg.Engine = runEngine
	}
	if runTags != "" {
		cfg.Tags = runTags
	}
	if runFormat != "" {
		cfg.Format = runFormat
	}
	if cmd.Flags().Changed("stop-on-failure") {
		cfg.StopOnFailure = runStopOnFailure
	}
	if runArtifacts != "" {
		cfg.Artifacts = runArtifacts
	}
	if runGate != "" {
		cfg.Gate = runGate
	}
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configuration JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := config.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pipespec %s (build: %s)\n", version, commit)
	},
}

func init() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Configuration file (default pipespec.yaml when present)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	// run flags
	runCmd.Flags().StringVar(&runEngine, "engine", "", "Pipeline engine to run against")
	runCmd.Flags().StringVar(&runTags, "tags", "", "Scenario tag filter expression (e.g. '@smoke && ~@slow')")
	runCmd.Flags().StringVar(&runFormat, "format", "", "Output format: pretty, progress, cucumber or junit")
	runCmd.Flags().BoolVar(&runStopOnFailure, "stop-on-failure", false, "Abort on the first failing scenario")
	runCmd.Flags().StringVar(&runArtifacts, "artifacts", "", "Directory for run artifacts")
	runCmd.Flags().StringVar(&runGate, "gate", "", "Boolean expression evaluated against the run summary")
	runCmd.Flags().BoolVar(&runTrace, "trace", true, "Write a step trace and summary under the artifacts directory")

	// schema subcommands
	schemaCmd.AddCommand(schemaExportCmd)

	// root subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadRunConfig resolves the configuration: an explicit --config must
// exist, otherwise pipespec.yaml is picked up when present and the
// defaults apply without one.
func loadRunConfig() (*config.Config, error) {
	if flagConfig != "" {
		if _, err := os.Stat(flagConfig); err != nil {
			return nil, fmt.Errorf("config %s: %w", flagConfig, err)
		}
		return config.LoadOrDefault(flagConfig)
	}
	return config.LoadOrDefault("pipespec.yaml")
}

// newEngine resolves an engine by name. sim is the only engine compiled
// in; real media stacks plug in behind backend.Engine.
func newEngine(name string) (backend.Engine, error) {
	switch name {
	case "", "sim":
		return sim.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (available: sim)", name)
	}
}

func artifactsDir(cfg *config.Config) string {
	if cfg.Artifacts != "" {
		return cfg.Artifacts
	}
	return "runs"
}
