package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipelab/pipespec/pkg/backend"
)

// Recorder accumulates a run's step trace and summary counters. Safe for
// concurrent use; godog may execute scenarios in parallel.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	baseDir string
	started time.Time
	trace   *TraceWriter
	summary Summary
}

// NewRecorder creates the run artifacts directory under artifactsDir and
// opens the trace file inside it.
func NewRecorder(artifactsDir, engine string) (*Recorder, error) {
	runID := GenerateRunID()
	baseDir := filepath.Join(artifactsDir, runID)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	trace, err := NewTraceWriter(filepath.Join(baseDir, "trace.jsonl"))
	if err != nil {
		return nil, err
	}
	return &Recorder{
		runID:   runID,
		baseDir: baseDir,
		started: time.Now(),
		trace:   trace,
		summary: Summary{RunID: runID, Engine: engine},
	}, nil
}

// RunID returns the generated run identifier.
func (r *Recorder) RunID() string {
	return r.runID
}

// BaseDir returns the run artifacts directory.
func (r *Recorder) BaseDir() string {
	return r.baseDir
}

// TracePath returns the trace file location.
func (r *Recorder) TracePath() string {
	return r.trace.Path()
}

// SetFeatures records the feature paths the run covers.
func (r *Recorder) SetFeatures(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Features = append([]string(nil), paths...)
}

// RecordStep traces one step outcome and updates the step counters.
func (r *Recorder) RecordStep(rec *StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.RunID = r.runID

	r.summary.Steps.Total++
	switch rec.Status {
	case StatusPassed:
		r.summary.Steps.Passed++
	case StatusFailed:
		r.summary.Steps.Failed++
	case StatusSkipped:
		r.summary.Steps.Skipped++
	case StatusPending:
		r.summary.Steps.Pending++
	case StatusUndefined:
		r.summary.Steps.Undefined++
	}
	return r.trace.Write(rec)
}

// RecordScenario appends a scenario result and updates the scenario
// counters.
func (r *Recorder) RecordScenario(rec ScenarioRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Scenarios.Total++
	if rec.Status == StatusPassed {
		r.summary.Scenarios.Passed++
	} else {
		r.summary.Scenarios.Failed++
	}
	r.summary.Results = append(r.summary.Results, rec)
}

// CountIssues folds a scenario's validation issues into the run tally.
func (r *Recorder) CountIssues(issues []backend.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, issue := range issues {
		r.summary.IssueTally.Total++
		switch issue.Severity {
		case backend.SeverityWarning:
			r.summary.IssueTally.Warnings++
		case backend.SeverityIssue:
			r.summary.IssueTally.Issues++
		case backend.SeverityCritical:
			r.summary.IssueTally.Criticals++
		}
	}
}

// Summary returns a copy of the current summary with timestamps filled
// in.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.StartedAt = r.started.UTC().Format(time.RFC3339)
	s.EndedAt = time.Now().UTC().Format(time.RFC3339)
	s.Features = append([]string(nil), r.summary.Features...)
	s.Results = append([]ScenarioRecord(nil), r.summary.Results...)
	return s
}

// ApplyGate evaluates the gate expression against the summary and
// records the verdict. A pass returns true.
func (r *Recorder) ApplyGate(expression string) (bool, error) {
	s := r.Summary()
	passed, err := EvalGate(expression, &s)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.summary.Gate = &GateRecord{Expression: expression, Passed: passed}
	r.mu.Unlock()
	return passed, nil
}

// WriteSummary writes run.yaml to the run artifacts directory.
func (r *Recorder) WriteSummary() error {
	s := r.Summary()
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(r.baseDir, "run.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Close releases the trace file.
func (r *Recorder) Close() error {
	return r.trace.Close()
}
