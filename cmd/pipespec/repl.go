package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Drive a pipeline interactively, one step at a time",
	RunE:  runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	return repl.New(cfg, engine, slog.Default()).Run(cmd.Context())
}

func init() {
	rootCmd.AddCommand(replCmd)
}
