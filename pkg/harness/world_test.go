package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pipelab/pipespec/pkg/backend/sim"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/driver"
	"github.com/pipelab/pipespec/pkg/phrase"
	"github.com/pipelab/pipespec/pkg/validation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld(config.Default(), sim.New(sim.WithLogger(testLogger()), sim.WithSettle(0)), WithLogger(testLogger()))
	t.Cleanup(func() { w.Teardown(context.Background()) })
	return w
}

// step parses and applies one line, failing the test on error.
func step(t *testing.T, w *World, line string) {
	t.Helper()
	a, err := phrase.Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	if err := w.Apply(context.Background(), a); err != nil {
		t.Fatalf("apply %q: %v", line, err)
	}
}

// stepErr parses and applies one line, returning the apply error.
func stepErr(t *testing.T, w *World, line string) error {
	t.Helper()
	a, err := phrase.Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return w.Apply(context.Background(), a)
}

// TestWorldHappyPath runs the canonical scenario end to end against the
// sim engine.
func TestWorldHappyPath(t *testing.T) {
	w := newTestWorld(t)
	for _, line := range []string{
		"Pipeline is 'videotestsrc name=src pattern=green width=32 height=24 framerate=120 ! fakevideosink name=sink'",
		"I play the pipeline",
		"The user can see a frame on sink",
		"I should see significant color lime on sink",
		"I set property src::pattern to white",
		"I wait for 50 milliseconds",
		"I should see significant color white on sink",
		"Property src::pattern equals white",
		"I stop the pipeline",
	} {
		step(t, w, line)
	}

	if _, ok := w.LastSampled("sink"); !ok {
		t.Error("no frame retained for sink")
	}
	v := w.Verdict()
	if !v.Passed() {
		t.Errorf("verdict failure = %v", v.Failure)
	}
	if len(v.Warnings) != 0 {
		t.Errorf("warnings = %v", v.Warnings)
	}
}

// TestWorldRequiresPipeline verifies steps needing a pipeline fail before
// one is defined.
func TestWorldRequiresPipeline(t *testing.T) {
	for _, line := range []string{
		"I play the pipeline",
		"The user can see a frame on sink",
		"Validate is activated",
		"I set property src::pattern to white",
	} {
		w := newTestWorld(t)
		if err := stepErr(t, w, line); !errors.Is(err, driver.ErrNoPipeline) {
			t.Errorf("%q error = %v, want ErrNoPipeline", line, err)
		}
	}
}

// TestWorldUnknownElement verifies the error names the missing element.
func TestWorldUnknownElement(t *testing.T) {
	w := newTestWorld(t)
	step(t, w, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")

	err := stepErr(t, w, "The user can see a frame on ghost")
	var derr *driver.Error
	if !errors.As(err, &derr) || derr.Kind != driver.KindUnknownElement {
		t.Fatalf("error = %v, want unknown-element", err)
	}
}

// TestWorldElementMemoized verifies repeated resolution returns the same
// handle.
func TestWorldElementMemoized(t *testing.T) {
	w := newTestWorld(t)
	step(t, w, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")

	first, err := w.ResolveElement("sink")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := w.ResolveElement("sink")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first != second {
		t.Error("resolution was not memoized")
	}
}

// TestWorldValidationFlagsIssues drives the broken-timestamps fault and
// expects the no-issue assertion to fail after stop.
func TestWorldValidationFlagsIssues(t *testing.T) {
	w := newTestWorld(t)
	for _, line := range []string{
		"Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'",
		"The validate configuration 'core'",
		"Validate is activated",
		"I play the pipeline",
		"I wait for 100 milliseconds",
		"I stop the pipeline",
	} {
		step(t, w, line)
	}

	err := stepErr(t, w, "Validate should not report any issue")
	var ierr *validation.IssueError
	if !errors.As(err, &ierr) {
		t.Fatalf("error = %v, want IssueError", err)
	}
	if len(ierr.Issues) == 0 {
		t.Fatal("IssueError carries no issues")
	}
	for _, issue := range ierr.Issues {
		if issue.Rule != "buffer-timestamp-monotonicity" {
			t.Errorf("unexpected rule %q", issue.Rule)
		}
	}
}

// TestWorldValidationIgnoreCategory verifies ignored categories keep the
// assertion green even with the fault active.
func TestWorldValidationIgnoreCategory(t *testing.T) {
	w := newTestWorld(t)
	for _, line := range []string{
		"Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'",
		"The validate configuration 'core, ignore=timestamp'",
		"Validate is activated",
		"I play the pipeline",
		"I wait for 100 milliseconds",
		"I stop the pipeline",
		"Validate should not report any issue",
	} {
		step(t, w, line)
	}
}

// TestWorldConfigAfterActivation verifies late configuration lines are
// rejected.
func TestWorldConfigAfterActivation(t *testing.T) {
	w := newTestWorld(t)
	step(t, w, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	step(t, w, "Validate is activated")

	if err := stepErr(t, w, "The validate configuration 'core'"); err == nil {
		t.Error("late configuration accepted")
	}
	a, _ := phrase.Parse("Validate is activated")
	if err := w.Apply(context.Background(), a); err == nil {
		t.Error("second activation accepted")
	}
}

// TestWorldUncheckedIssues verifies the end-of-scenario rule fires only
// when issues were never asserted on.
func TestWorldUncheckedIssues(t *testing.T) {
	w := newTestWorld(t)
	for _, line := range []string{
		"Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'",
		"Validate is activated",
		"I play the pipeline",
		"I wait for 100 milliseconds",
		"I stop the pipeline",
	} {
		step(t, w, line)
	}
	if err := w.UncheckedIssues(context.Background()); err == nil {
		t.Error("unasserted issues not reported")
	}

	// Asserting (and failing) counts as checking.
	_ = stepErr(t, w, "Validate should not report any issue")
	if err := w.UncheckedIssues(context.Background()); err != nil {
		t.Errorf("after assertion, UncheckedIssues = %v", err)
	}
}

// TestWorldWaitZero verifies a zero wait resolves immediately.
func TestWorldWaitZero(t *testing.T) {
	w := newTestWorld(t)
	start := time.Now()
	step(t, w, "I wait for 0 seconds")
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Errorf("zero wait took %v", took)
	}
}

// TestWorldTeardownIdempotent verifies double teardown and that the
// world refuses work afterwards.
func TestWorldTeardownIdempotent(t *testing.T) {
	w := newTestWorld(t)
	step(t, w, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	step(t, w, "I play the pipeline")

	first := w.Teardown(context.Background())
	second := w.Teardown(context.Background())
	if len(first) != 0 {
		t.Errorf("teardown warnings = %v", first)
	}
	if len(second) != len(first) {
		t.Errorf("second teardown changed warnings: %v vs %v", second, first)
	}
	if err := stepErr(t, w, "I play the pipeline"); err == nil {
		t.Error("play succeeded after teardown")
	}
}

// TestWorldVerdictRecordsFirstFailure verifies the verdict pins the
// first failing step.
func TestWorldVerdictRecordsFirstFailure(t *testing.T) {
	w := newTestWorld(t)
	step(t, w, "Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'")
	step(t, w, "I play the pipeline")

	if err := stepErr(t, w, "I should see significant color chartreuse on sink"); err == nil {
		t.Fatal("unknown palette color accepted")
	}
	v := w.Verdict()
	if v.Passed() {
		t.Fatal("verdict passed despite failure")
	}
	if v.Failure == nil || !strings.Contains(v.Failure.Error(), "significant color chartreuse") {
		t.Errorf("failure = %v, want the failing phrase", v.Failure)
	}
}
