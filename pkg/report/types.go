// Package report records harness runs: a JSONL step trace written as
// scenarios execute, a YAML run summary written when the run ends, and
// an expression gate evaluated over the summary counters.
package report

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Step statuses, matching the cucumber vocabulary.
const (
	StatusPassed    = "passed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPending   = "pending"
	StatusUndefined = "undefined"
)

// GenerateRunID creates a run ID, a YYYYMMDDTHHmmss timestamp plus a
// random hex suffix.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// StepRecord is the outcome of one executed step.
type StepRecord struct {
	RunID    string `json:"run_id"`
	Feature  string `json:"feature,omitempty"`
	Scenario string `json:"scenario"`
	Step     string `json:"step"`
	Action   string `json:"action,omitempty"` // parsed action kind, empty when undefined
	Status   string `json:"status"`           // passed, failed, skipped, pending, undefined
	Error    string `json:"error,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
}

// TraceEvent wraps a StepRecord for JSONL trace output with extra metadata.
type TraceEvent struct {
	Type      string      `json:"type"` // step_result
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Result    *StepRecord `json:"result"`
}

// ScenarioRecord is the per-scenario entry in the run summary.
type ScenarioRecord struct {
	Feature string `yaml:"feature,omitempty" json:"feature,omitempty"`
	Name    string `yaml:"name"              json:"name"`
	Status  string `yaml:"status"            json:"status"`
	Issues  int    `yaml:"issues,omitempty"  json:"issues,omitempty"`
	Error   string `yaml:"error,omitempty"   json:"error,omitempty"`
}

// ScenarioCounts counts scenarios by outcome.
type ScenarioCounts struct {
	Total  int `yaml:"total"  json:"total"`
	Passed int `yaml:"passed" json:"passed"`
	Failed int `yaml:"failed" json:"failed"`
}

// StepCounts counts step results by status.
type StepCounts struct {
	Total     int `yaml:"total"     json:"total"`
	Passed    int `yaml:"passed"    json:"passed"`
	Failed    int `yaml:"failed"    json:"failed"`
	Skipped   int `yaml:"skipped"   json:"skipped"`
	Pending   int `yaml:"pending"   json:"pending"`
	Undefined int `yaml:"undefined" json:"undefined"`
}

// IssueCounts counts validation issues by severity.
type IssueCounts struct {
	Total     int `yaml:"total"     json:"total"`
	Warnings  int `yaml:"warnings"  json:"warnings"`
	Issues    int `yaml:"issues"    json:"issues"`
	Criticals int `yaml:"criticals" json:"criticals"`
}

// GateRecord captures the gate expression and its verdict.
type GateRecord struct {
	Expression string `yaml:"expression" json:"expression"`
	Passed     bool   `yaml:"passed"     json:"passed"`
}

// Summary is the run-level aggregate. Written as run.yaml when the run
// completes (or fails).
type Summary struct {
	RunID      string           `yaml:"run_id"             json:"run_id"`
	Engine     string           `yaml:"engine,omitempty"   json:"engine,omitempty"`
	StartedAt  string           `yaml:"started_at"         json:"started_at"`
	EndedAt    string           `yaml:"ended_at"           json:"ended_at"`
	Features   []string         `yaml:"features,omitempty" json:"features,omitempty"`
	Scenarios  ScenarioCounts   `yaml:"scenarios"          json:"scenarios"`
	Steps      StepCounts       `yaml:"steps"              json:"steps"`
	IssueTally IssueCounts      `yaml:"issue_tally"        json:"issue_tally"`
	Results    []ScenarioRecord `yaml:"results,omitempty"  json:"results,omitempty"`
	Gate       *GateRecord      `yaml:"gate,omitempty"     json:"gate,omitempty"`
}
