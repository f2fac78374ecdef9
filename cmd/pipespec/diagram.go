package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/diagram"
)

var diagramFormat string

var diagramCmd = &cobra.Command{
	Use:   "diagram <description>",
	Short: "Render a pipeline description as a diagram",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagram,
}

func runDiagram(cmd *cobra.Command, args []string) error {
	out, err := diagram.Generate(args[0], diagram.Format(diagramFormat))
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: ascii or mermaid")
	rootCmd.AddCommand(diagramCmd)
}
