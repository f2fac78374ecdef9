package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipelab/pipespec/pkg/backend"
)

// TestGenerateRunID verifies the timestamp-plus-suffix format.
func TestGenerateRunID(t *testing.T) {
	id := GenerateRunID()
	if ok, _ := regexp.MatchString(`^\d{8}T\d{6}-[0-9a-f]{8}$`, id); !ok {
		t.Errorf("run ID %q does not match expected format", id)
	}
	if id == GenerateRunID() {
		t.Error("consecutive run IDs collided")
	}
}

// TestTraceRoundTrip verifies written trace lines decode back into the
// records that produced them.
func TestTraceRoundTrip(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.jsonl")

	w, err := NewTraceWriter(tracePath)
	if err != nil {
		t.Fatalf("create trace writer: %v", err)
	}
	records := []*StepRecord{
		{RunID: "20260825T120000-a7f3c001", Scenario: "plays colorbars", Step: "I play the pipeline", Action: "set-state", Status: StatusPassed},
		{RunID: "20260825T120000-a7f3c001", Scenario: "plays colorbars", Step: "I stop the pipeline", Action: "set-state", Status: StatusPassed},
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var event TraceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
			continue
		}
		if event.Type != "step_result" {
			t.Errorf("line %d type = %q, want %q", i, event.Type, "step_result")
		}
		if event.Result.Step != records[i].Step {
			t.Errorf("line %d step = %q, want %q", i, event.Result.Step, records[i].Step)
		}
	}
}

// TestRecorderCounts verifies step, scenario and issue tallies.
func TestRecorderCounts(t *testing.T) {
	r, err := NewRecorder(t.TempDir(), "sim")
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer r.Close()

	for _, status := range []string{StatusPassed, StatusPassed, StatusFailed, StatusSkipped, StatusUndefined} {
		if err := r.RecordStep(&StepRecord{Scenario: "s", Step: "x", Status: status}); err != nil {
			t.Fatalf("RecordStep(%s) error = %v", status, err)
		}
	}
	r.RecordScenario(ScenarioRecord{Name: "good", Status: StatusPassed})
	r.RecordScenario(ScenarioRecord{Name: "bad", Status: StatusFailed, Error: "boom"})
	r.CountIssues([]backend.Issue{
		{Rule: "buffer-timestamp-monotonicity", Severity: backend.SeverityIssue},
		{Rule: "element-error", Severity: backend.SeverityCritical},
	})

	s := r.Summary()
	if s.Steps.Total != 5 || s.Steps.Passed != 2 || s.Steps.Failed != 1 || s.Steps.Skipped != 1 || s.Steps.Undefined != 1 {
		t.Errorf("step counts = %+v", s.Steps)
	}
	if s.Scenarios.Total != 2 || s.Scenarios.Passed != 1 || s.Scenarios.Failed != 1 {
		t.Errorf("scenario counts = %+v", s.Scenarios)
	}
	if s.IssueTally.Total != 2 || s.IssueTally.Issues != 1 || s.IssueTally.Criticals != 1 {
		t.Errorf("issue tally = %+v", s.IssueTally)
	}
	if s.StartedAt == "" || s.EndedAt == "" {
		t.Errorf("timestamps missing: %+v", s)
	}
}

// TestWriteSummary verifies run.yaml lands in the run directory and
// round-trips.
func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "sim")
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer r.Close()

	r.SetFeatures([]string{"features/smoke.feature"})
	r.RecordScenario(ScenarioRecord{Name: "plays", Status: StatusPassed})

	if err := r.WriteSummary(); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(r.BaseDir(), "run.yaml"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var loaded Summary
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if loaded.RunID != r.RunID() || loaded.Engine != "sim" {
		t.Errorf("summary = %+v", loaded)
	}
	if len(loaded.Results) != 1 || loaded.Results[0].Name != "plays" {
		t.Errorf("results = %+v", loaded.Results)
	}
	if _, err := time.Parse(time.RFC3339, loaded.EndedAt); err != nil {
		t.Errorf("ended_at %q: %v", loaded.EndedAt, err)
	}
}

// TestEvalGate verifies the expression environment and error paths.
func TestEvalGate(t *testing.T) {
	s := &Summary{
		Scenarios:  ScenarioCounts{Total: 3, Passed: 2, Failed: 1},
		Steps:      StepCounts{Total: 12, Undefined: 1},
		IssueTally: IssueCounts{Total: 2, Warnings: 2},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"failed == 0", false},
		{"failed == 1 && passed == 2", true},
		{"issues < 3", true},
		{"undefined == 0", false},
		{"criticals == 0 && warnings <= 2", true},
	}
	for _, tc := range cases {
		got, err := EvalGate(tc.expr, s)
		if err != nil {
			t.Errorf("EvalGate(%q) error = %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EvalGate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}

	if _, err := EvalGate("failed ==", s); err == nil {
		t.Error("EvalGate with malformed expression succeeded")
	}
	if _, err := EvalGate("nonexistent > 0", s); err == nil {
		t.Error("EvalGate with unknown identifier succeeded")
	}
}

// TestApplyGate verifies the verdict is recorded on the summary.
func TestApplyGate(t *testing.T) {
	r, err := NewRecorder(t.TempDir(), "sim")
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer r.Close()

	r.RecordScenario(ScenarioRecord{Name: "plays", Status: StatusPassed})
	passed, err := r.ApplyGate("failed == 0")
	if err != nil {
		t.Fatalf("ApplyGate() error = %v", err)
	}
	if !passed {
		t.Error("gate failed, want pass")
	}
	s := r.Summary()
	if s.Gate == nil || !s.Gate.Passed || s.Gate.Expression != "failed == 0" {
		t.Errorf("gate record = %+v", s.Gate)
	}
}
