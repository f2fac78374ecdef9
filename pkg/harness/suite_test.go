package harness

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/pipelab/pipespec/pkg/backend/sim"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/report"
)

func runFeature(t *testing.T, rec *report.Recorder, feature string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.Default()
	cfg.Format = "progress"
	s := NewSuite(SuiteOptions{
		Config:   cfg,
		Engine:   sim.New(sim.WithLogger(testLogger()), sim.WithSettle(0)),
		Logger:   testLogger(),
		Recorder: rec,
		Output:   &out,
		FeatureContents: []godog.Feature{
			{Name: "inline.feature", Contents: []byte(feature)},
		},
	})
	return s.Run(), out.String()
}

// TestSuitePasses runs a full green scenario through godog.
func TestSuitePasses(t *testing.T) {
	rec, err := report.NewRecorder(t.TempDir(), "sim")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	defer rec.Close()

	code, out := runFeature(t, rec, `Feature: colorbars
  Scenario: renders and stays clean
    Given Pipeline is 'videotestsrc name=src pattern=green width=32 height=24 framerate=60 ! fakevideosink name=sink'
    And The validate configuration 'core'
    And Validate is activated
    When I play the pipeline
    Then The user can see a frame on sink
    And I should see significant color lime on sink
    When I stop the pipeline
    Then Validate should not report any issue
`)
	if code != 0 {
		t.Fatalf("suite exit = %d, output:\n%s", code, out)
	}

	s := rec.Summary()
	if s.Scenarios.Total != 1 || s.Scenarios.Passed != 1 {
		t.Errorf("scenario counts = %+v", s.Scenarios)
	}
	if s.Steps.Passed != 8 || s.Steps.Failed != 0 {
		t.Errorf("step counts = %+v", s.Steps)
	}
	if s.IssueTally.Total != 0 {
		t.Errorf("issue tally = %+v", s.IssueTally)
	}

	data, err := os.ReadFile(rec.TracePath())
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 8 {
		t.Fatalf("trace lines = %d, want 8", len(lines))
	}
	var event report.TraceEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("trace line: %v", err)
	}
	if event.Result.Action != "define-pipeline" || event.Result.Scenario != "renders and stays clean" {
		t.Errorf("first record = %+v", event.Result)
	}
}

// TestSuiteFailsOnIssues verifies a faulted pipeline fails the no-issue
// assertion and the run.
func TestSuiteFailsOnIssues(t *testing.T) {
	rec, err := report.NewRecorder(t.TempDir(), "sim")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	defer rec.Close()

	code, out := runFeature(t, rec, `Feature: faulted
  Scenario: broken timestamps surface
    Given Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'
    And Validate is activated
    When I play the pipeline
    And I wait for 100 milliseconds
    And I stop the pipeline
    Then Validate should not report any issue
`)
	if code == 0 {
		t.Fatalf("suite exit = 0, want failure; output:\n%s", out)
	}

	s := rec.Summary()
	if s.Scenarios.Failed != 1 {
		t.Errorf("scenario counts = %+v", s.Scenarios)
	}
	if s.IssueTally.Total == 0 {
		t.Error("issue tally empty despite fault")
	}
	if len(s.Results) != 1 || s.Results[0].Status != report.StatusFailed {
		t.Errorf("results = %+v", s.Results)
	}
}

// TestSuiteFailsOnUncheckedIssues verifies the after-scenario rule: an
// activated monitor with unasserted issues fails the scenario.
func TestSuiteFailsOnUncheckedIssues(t *testing.T) {
	code, out := runFeature(t, nil, `Feature: forgetful
  Scenario: never asserts on issues
    Given Pipeline is 'videotestsrc name=src broken-timestamps=true width=16 height=16 framerate=120 ! fakevideosink name=sink'
    And Validate is activated
    When I play the pipeline
    And I wait for 100 milliseconds
    And I stop the pipeline
`)
	if code == 0 {
		t.Fatalf("suite exit = 0, want failure; output:\n%s", out)
	}
}

// TestSuiteStrictUndefined verifies out-of-vocabulary steps fail a
// strict run.
func TestSuiteStrictUndefined(t *testing.T) {
	code, out := runFeature(t, nil, `Feature: vocabulary
  Scenario: uses an unknown step
    Given Pipeline is 'videotestsrc name=src ! fakevideosink name=sink'
    When I juggle the pipeline
`)
	if code == 0 {
		t.Fatalf("suite exit = 0, want failure; output:\n%s", out)
	}
}
