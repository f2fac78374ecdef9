package repl

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pipelab/pipespec/pkg/backend/sim"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	engine := sim.New(sim.WithLogger(logger), sim.WithSettle(0))
	var buf bytes.Buffer
	r := &REPL{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		world:  harness.NewWorld(cfg, engine, harness.WithLogger(logger)),
		output: &buf,
	}
	t.Cleanup(func() { r.teardownWorld(context.Background()) })
	return r, &buf
}

func TestREPLStepApplies(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleStep(context.Background(), "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	out := buf.String()
	if !strings.Contains(out, "✓ define-pipeline") {
		t.Errorf("expected success marker, got: %s", out)
	}
	if !r.world.Driver().Built() {
		t.Error("pipeline not built")
	}
}

func TestREPLStepParseError(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleStep(context.Background(), "I juggle the pipeline")
	if !strings.Contains(buf.String(), "✗") {
		t.Errorf("expected failure marker, got: %s", buf.String())
	}
}

func TestREPLStepFailure(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleStep(context.Background(), "I play the pipeline")
	out := buf.String()
	if !strings.Contains(out, "✗") || !strings.Contains(out, "no pipeline defined") {
		t.Errorf("expected no-pipeline failure, got: %s", out)
	}
}

func TestREPLStateCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleState()
	if !strings.Contains(buf.String(), "No pipeline defined") {
		t.Errorf("expected no-pipeline message, got: %s", buf.String())
	}

	buf.Reset()
	r.handleStep(context.Background(), "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	buf.Reset()
	r.handleState()
	out := buf.String()
	for _, want := range []string{"state:", "null", "src (videotestsrc)", "sink (fakevideosink)"} {
		if !strings.Contains(out, want) {
			t.Errorf("state output missing %q:\n%s", want, out)
		}
	}
}

func TestREPLIssuesCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleIssues(context.Background())
	if !strings.Contains(buf.String(), "No validation issues") {
		t.Errorf("expected empty-issues message, got: %s", buf.String())
	}

	ctx := context.Background()
	for _, line := range []string{
		"Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'",
		"The validate configuration 'timestamps'",
		"Validate is activated",
		"I play the pipeline",
		"I wait for 100 milliseconds",
		"I stop the pipeline",
	} {
		r.handleStep(ctx, line)
	}
	buf.Reset()
	r.handleIssues(ctx)
	out := buf.String()
	if !strings.Contains(out, "buffer-timestamp-monotonicity") {
		t.Errorf("expected timestamp issue, got: %s", out)
	}
}

func TestREPLDiagramCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleDiagram()
	if !strings.Contains(buf.String(), "No pipeline defined") {
		t.Errorf("expected no-pipeline message, got: %s", buf.String())
	}

	r.handleStep(context.Background(), "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	buf.Reset()
	r.handleDiagram()
	out := buf.String()
	if !strings.Contains(out, "videotestsrc") || !strings.Contains(out, "-->") {
		t.Errorf("diagram output unexpected:\n%s", out)
	}
}

func TestREPLResetCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleStep(context.Background(), "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	r.handleReset(context.Background())
	if r.world.Driver().Built() {
		t.Error("world still has a pipeline after reset")
	}
	if !strings.Contains(buf.String(), "World reset") {
		t.Errorf("missing reset confirmation: %s", buf.String())
	}
}

func TestREPLHelpCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	r.handleHelp()
	out := buf.String()
	for _, want := range []string{":state", ":issues", ":diagram", ":reset", ":quit", "Pipeline is", "I play|pause|prepare|stop the pipeline"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestREPLHandleCommand(t *testing.T) {
	r, buf := newTestREPL(t)
	if !r.handleCommand(context.Background(), ":quit") {
		t.Error(":quit should exit the loop")
	}
	if r.handleCommand(context.Background(), ":state") {
		t.Error(":state should not exit the loop")
	}
	buf.Reset()
	if r.handleCommand(context.Background(), ":bogus") {
		t.Error("unknown command should not exit the loop")
	}
	if !strings.Contains(buf.String(), "Unknown command") {
		t.Errorf("expected unknown-command message, got: %s", buf.String())
	}
}

func TestREPLPromptFormat(t *testing.T) {
	r, _ := newTestREPL(t)
	if got := r.buildPrompt(); got != "pipespec[no pipeline]> " {
		t.Errorf("prompt = %q", got)
	}
	ctx := context.Background()
	r.handleStep(ctx, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	if got := r.buildPrompt(); got != "pipespec[null]> " {
		t.Errorf("prompt = %q", got)
	}
	r.handleStep(ctx, "I play the pipeline")
	if got := r.buildPrompt(); got != "pipespec[playing]> " {
		t.Errorf("prompt = %q", got)
	}
}
