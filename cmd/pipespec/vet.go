package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
)

var vetCmd = &cobra.Command{
	Use:   "vet [features...]",
	Short: "Check the configuration and feature steps without running them",
	RunE:  runVet,
}

func runVet(cmd *cobra.Command, args []string) error {
	failures := 0

	cfg := config.Default()
	path := configCandidate()
	if path != "" {
		loaded, errs := config.ValidateFile(path)
		for _, e := range errs {
			if e.Severity == "warning" {
				fmt.Printf("  ⚠ %s\n", e)
				continue
			}
			failures++
			fmt.Printf("  ✗ %s\n", e)
		}
		if failures == 0 {
			fmt.Printf("✓ %s is valid\n", path)
			cfg = loaded
		}
	}

	paths := args
	if len(paths) == 0 {
		paths = cfg.Features
	}
	problems, err := harness.VetPaths(paths)
	if err != nil {
		return err
	}
	for _, p := range problems {
		fmt.Printf("  ✗ %s\n", p)
	}
	failures += len(problems)

	if failures > 0 {
		fmt.Printf("\n%d problem(s)\n", failures)
		os.Exit(exitFailure)
	}
	fmt.Printf("✓ all steps belong to the vocabulary\n")
	return nil
}

// configCandidate picks the file vet checks: an explicit --config, or
// pipespec.yaml when one sits in the working directory.
func configCandidate() string {
	if flagConfig != "" {
		return flagConfig
	}
	if _, err := os.Stat("pipespec.yaml"); err == nil {
		return "pipespec.yaml"
	}
	return ""
}

func init() {
	rootCmd.AddCommand(vetCmd)
}
