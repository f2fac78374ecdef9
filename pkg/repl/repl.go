// Package repl implements the interactive step console: typed step lines
// run against a live pipeline world.
package repl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
	"github.com/pipelab/pipespec/pkg/phrase"
)

// REPL reads step lines and console commands and applies them to one
// world at a time.
type REPL struct {
	cfg    *config.Config
	engine backend.Engine
	logger *slog.Logger
	world  *harness.World
	output io.Writer
	rl     *readline.Instance
}

// New creates a console around a fresh world.
func New(cfg *config.Config, engine backend.Engine, logger *slog.Logger) *REPL {
	r := &REPL{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		output: os.Stdout,
	}
	r.world = harness.NewWorld(cfg, engine, harness.WithLogger(logger))
	return r
}

// Run starts the interactive loop. It returns when the user quits; the
// current world is torn down on the way out.
func (r *REPL) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range []string{":state", ":issues", ":diagram", ":reset", ":help", ":quit"} {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}
	for _, tpl := range phrase.Templates() {
		completer.Children = append(completer.Children, readline.PcItem(tpl.Example))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	r.rl = rl
	defer rl.Close()

	fmt.Fprintf(r.output, "pipespec console (engine=%s)\n", r.engine.Name())
	fmt.Fprintf(r.output, "Type a step line to run it, ':help' for commands.\n\n")

	for {
		rl.SetPrompt(r.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if quit := r.handleCommand(ctx, line); quit {
				break
			}
			continue
		}

		r.handleStep(ctx, line)
	}

	r.teardownWorld(ctx)
	fmt.Fprintf(r.output, "Exiting console.\n")
	return nil
}

// handleCommand dispatches one colon command. It reports whether the
// loop should exit.
func (r *REPL) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case ":state", ":s":
		r.handleState()
	case ":issues", ":i":
		r.handleIssues(ctx)
	case ":diagram", ":d":
		r.handleDiagram()
	case ":reset", ":r":
		r.handleReset(ctx)
	case ":help", ":?":
		r.handleHelp()
	case ":quit", ":q":
		return true
	default:
		fmt.Fprintf(r.output, "Unknown command: %q. Type ':help' for available commands.\n", parts[0])
	}
	return false
}

// buildPrompt shows the pipeline's lifecycle state: pipespec[playing]>
func (r *REPL) buildPrompt() string {
	drv := r.world.Driver()
	if !drv.Built() {
		return "pipespec[no pipeline]> "
	}
	return fmt.Sprintf("pipespec[%s]> ", drv.Pipeline().State())
}
