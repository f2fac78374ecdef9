package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
	"github.com/pipelab/pipespec/pkg/report"
	"github.com/pipelab/pipespec/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [features...]",
	Short: "Rerun scenarios whenever feature or config files change",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if errs := config.ValidateDomain(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  ✗ %s\n", e)
		}
		return fmt.Errorf("configuration is invalid")
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Features
	}
	roots := watchRoots(paths, configCandidate())

	runner := func(ctx context.Context) (*report.Summary, error) {
		rec, err := report.NewRecorder(artifactsDir(cfg), cfg.Engine)
		if err != nil {
			return nil, err
		}
		defer rec.Close()

		engine, err := newEngine(cfg.Engine)
		if err != nil {
			return nil, err
		}

		// The TUI owns the terminal; godog output would tear it up.
		runCfg := *cfg
		runCfg.Format = "progress"
		suite := harness.NewSuite(harness.SuiteOptions{
			Config:   &runCfg,
			Engine:   engine,
			Recorder: rec,
			Output:   io.Discard,
			Paths:    paths,
		})
		suite.Run()

		if cfg.Gate != "" {
			if _, err := rec.ApplyGate(cfg.Gate); err != nil {
				return nil, fmt.Errorf("gate: %w", err)
			}
		}
		if err := rec.WriteSummary(); err != nil {
			return nil, err
		}
		s := rec.Summary()
		return &s, nil
	}

	return watch.Watch(cmd.Context(), roots, runner)
}

// watchRoots joins the feature paths and the active config file into one
// watch list, dropping paths that do not exist yet.
func watchRoots(paths []string, configPath string) []string {
	var roots []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			roots = append(roots, p)
		}
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			roots = append(roots, configPath)
		}
	}
	return roots
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
