package repl

import (
	"context"
	"fmt"

	"github.com/pipelab/pipespec/pkg/diagram"
	"github.com/pipelab/pipespec/pkg/harness"
	"github.com/pipelab/pipespec/pkg/phrase"
)

// handleStep parses one step line and applies it to the world.
func (r *REPL) handleStep(ctx context.Context, line string) {
	action, err := phrase.Parse(line)
	if err != nil {
		fmt.Fprintf(r.output, "  ✗ %v\n", err)
		return
	}
	if err := r.world.Apply(ctx, action); err != nil {
		fmt.Fprintf(r.output, "  ✗ %s failed: %v\n", action.Kind, err)
		return
	}
	fmt.Fprintf(r.output, "  ✓ %s\n", action.Kind)
}

// handleState shows the pipeline state and its elements.
func (r *REPL) handleState() {
	drv := r.world.Driver()
	if !drv.Built() {
		fmt.Fprintf(r.output, "No pipeline defined. Start with: Pipeline is '...'\n")
		return
	}
	p := drv.Pipeline()
	fmt.Fprintf(r.output, "  state:       %s\n", p.State())
	fmt.Fprintf(r.output, "  description: %s\n", r.world.Description())
	for _, el := range p.Elements() {
		fmt.Fprintf(r.output, "  element:     %s (%s)\n", el.Name(), el.Factory())
	}
}

// handleIssues lists the validation issues aggregated so far.
func (r *REPL) handleIssues(ctx context.Context) {
	issues := r.world.Issues()
	if len(issues) == 0 {
		fmt.Fprintf(r.output, "No validation issues reported.\n")
		return
	}
	for _, is := range issues {
		fmt.Fprintf(r.output, "  [%s] %s/%s: %s\n", is.Severity, is.Category, is.Rule, is.Summary)
		if is.Details != "" {
			fmt.Fprintf(r.output, "       %s\n", is.Details)
		}
	}
}

// handleDiagram renders the current pipeline as an ASCII diagram.
func (r *REPL) handleDiagram() {
	desc := r.world.Description()
	if desc == "" {
		fmt.Fprintf(r.output, "No pipeline defined.\n")
		return
	}
	out, err := diagram.Generate(desc, diagram.FormatASCII)
	if err != nil {
		fmt.Fprintf(r.output, "  Error: %v\n", err)
		return
	}
	fmt.Fprint(r.output, out)
}

// handleReset tears the current world down and starts a fresh one.
func (r *REPL) handleReset(ctx context.Context) {
	r.teardownWorld(ctx)
	r.world = harness.NewWorld(r.cfg, r.engine, harness.WithLogger(r.logger))
	fmt.Fprintf(r.output, "World reset.\n")
}

// handleHelp lists console commands and the step vocabulary.
func (r *REPL) handleHelp() {
	fmt.Fprintln(r.output, "Console commands:")
	fmt.Fprintln(r.output, "  :state (:s)      Show pipeline state and elements")
	fmt.Fprintln(r.output, "  :issues (:i)     List aggregated validation issues")
	fmt.Fprintln(r.output, "  :diagram (:d)    Render the pipeline as an ASCII diagram")
	fmt.Fprintln(r.output, "  :reset (:r)      Tear down and start a fresh world")
	fmt.Fprintln(r.output, "  :help (:?)       Show this help")
	fmt.Fprintln(r.output, "  :quit (:q)       Exit the console")
	fmt.Fprintln(r.output, "")
	fmt.Fprintln(r.output, "Steps:")
	for _, tpl := range phrase.Templates() {
		fmt.Fprintf(r.output, "  %s\n", tpl.Doc)
	}
}

// teardownWorld stops the world, surfacing warnings without failing.
func (r *REPL) teardownWorld(ctx context.Context) {
	for _, w := range r.world.Teardown(ctx) {
		fmt.Fprintf(r.output, "  Warning: %s\n", w)
	}
}
