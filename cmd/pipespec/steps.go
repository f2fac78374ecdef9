package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/pipelab/pipespec/pkg/phrase"
)

var (
	stepsPlain    bool
	stepsMarkdown bool
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show the step vocabulary",
	RunE:  runSteps,
}

func runSteps(cmd *cobra.Command, args []string) error {
	if stepsPlain {
		fmt.Print(plainSteps())
		return nil
	}
	md := phrase.Markdown()
	if stepsMarkdown {
		fmt.Print(md)
		return nil
	}
	fmt.Println(renderMarkdown(md))
	return nil
}

// plainSteps lists one vocabulary line per template, grep-friendly.
func plainSteps() string {
	var b strings.Builder
	for _, t := range phrase.Templates() {
		b.WriteString(t.Doc)
		b.WriteByte('\n')
	}
	return b.String()
}

// renderMarkdown converts markdown to styled terminal output. Falls back
// to the raw input if glamour is unavailable or rendering fails.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// glamour pads the output with trailing newlines
	return strings.TrimRight(out, "\n")
}

func init() {
	stepsCmd.Flags().BoolVar(&stepsPlain, "plain", false, "One line per step, no styling")
	stepsCmd.Flags().BoolVar(&stepsMarkdown, "markdown", false, "Raw markdown output")
	rootCmd.AddCommand(stepsCmd)
}
