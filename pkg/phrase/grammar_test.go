package phrase

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
)

// TestParseVocabulary verifies each template's example parses to its own
// kind and survives a canonical round trip.
func TestParseVocabulary(t *testing.T) {
	for _, tpl := range Templates() {
		a, err := Parse(tpl.Example)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tpl.Example, err)
			continue
		}
		if a.Kind != tpl.Kind {
			t.Errorf("Parse(%q) kind = %v, want %v", tpl.Example, a.Kind, tpl.Kind)
		}
		back, err := Parse(a.Phrase())
		if err != nil {
			t.Errorf("Parse(%q) round trip error = %v", a.Phrase(), err)
			continue
		}
		if back != a {
			t.Errorf("round trip of %q: got %+v, want %+v", tpl.Example, back, a)
		}
	}
}

// TestParseDefinePipeline verifies description extraction and whitespace
// trimming.
func TestParseDefinePipeline(t *testing.T) {
	a, err := Parse("  Pipeline is 'videotestsrc pattern=green ! fakevideosink name=sink'  ")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := "videotestsrc pattern=green ! fakevideosink name=sink"
	if a.Description != want {
		t.Errorf("description = %q, want %q", a.Description, want)
	}
}

// TestParseStateVerbs verifies each verb maps to its pipeline state.
func TestParseStateVerbs(t *testing.T) {
	cases := []struct {
		line string
		want backend.State
	}{
		{"I play the pipeline", backend.StatePlaying},
		{"I pause the pipeline", backend.StatePaused},
		{"I prepare the pipeline", backend.StateReady},
		{"I stop the pipeline", backend.StateNull},
	}
	for _, tc := range cases {
		a, err := Parse(tc.line)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tc.line, err)
			continue
		}
		if a.Target != tc.want {
			t.Errorf("Parse(%q) target = %v, want %v", tc.line, a.Target, tc.want)
		}
	}
}

// TestParseWaitUnits verifies unit spellings and the resulting durations.
func TestParseWaitUnits(t *testing.T) {
	cases := []struct {
		line string
		want time.Duration
	}{
		{"I wait for 2 seconds", 2 * time.Second},
		{"I wait for 1 second", time.Second},
		{"I wait for 3 sec", 3 * time.Second},
		{"I wait for 500 ms", 500 * time.Millisecond},
		{"I wait for 250 milliseconds", 250 * time.Millisecond},
		{"I wait for 10 us", 10 * time.Microsecond},
		{"I wait for 1 min", time.Minute},
		{"I wait for 2 minutes", 2 * time.Minute},
		{"I wait for 0 seconds", 0},
		{"I wait for 0.5 seconds", 500 * time.Millisecond},
	}
	for _, tc := range cases {
		a, err := Parse(tc.line)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tc.line, err)
			continue
		}
		if got := a.Duration(); got != tc.want {
			t.Errorf("Parse(%q) duration = %v, want %v", tc.line, got, tc.want)
		}
	}
}

// TestParsePropertyValues verifies quote stripping and values with spaces.
func TestParsePropertyValues(t *testing.T) {
	cases := []struct {
		line      string
		wantPath  PropertyPath
		wantValue string
	}{
		{"I set property src::pattern to green", "src::pattern", "green"},
		{"I set property sink::sync to 'false'", "sink::sync", "false"},
		{`I set property filter::caps to "video/x-raw, width=320"`, "filter::caps", "video/x-raw, width=320"},
		{"I set property out::actual-sink::sync to true", "out::actual-sink::sync", "true"},
	}
	for _, tc := range cases {
		a, err := Parse(tc.line)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tc.line, err)
			continue
		}
		if a.Path != tc.wantPath || a.Value != tc.wantValue {
			t.Errorf("Parse(%q) = (%q, %q), want (%q, %q)", tc.line, a.Path, a.Value, tc.wantPath, tc.wantValue)
		}
	}
}

// TestPropertyPathSegments verifies element, object hops and property
// split out as expected.
func TestPropertyPathSegments(t *testing.T) {
	p, err := ParsePropertyPath("out::actual-sink::enable-last-sample")
	if err != nil {
		t.Fatalf("ParsePropertyPath() error = %v", err)
	}
	if p.Element() != "out" {
		t.Errorf("Element() = %q", p.Element())
	}
	if p.Property() != "enable-last-sample" {
		t.Errorf("Property() = %q", p.Property())
	}
	objs := p.Objects()
	if len(objs) != 1 || objs[0] != "actual-sink" {
		t.Errorf("Objects() = %v", objs)
	}
}

// TestParseUnrecognized verifies lines outside the grammar fail with the
// vocabulary listed.
func TestParseUnrecognized(t *testing.T) {
	lines := []string{
		"I launch the rocket",
		"Pipeline is",
		"Pipeline is ''",
		"I wait for ages",
		"",
	}
	for _, line := range lines {
		_, err := Parse(line)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q) error = %v, want ParseError", line, err)
			continue
		}
		if pe.Kind != UnrecognizedStep {
			t.Errorf("Parse(%q) kind = %v, want UnrecognizedStep", line, pe.Kind)
		}
		if !strings.Contains(pe.Error(), "known steps") {
			t.Errorf("Parse(%q) message lacks the vocabulary: %q", line, pe.Error())
		}
	}
}

// TestParseMalformedParameters verifies matched templates with bad
// parameters name the parameter.
func TestParseMalformedParameters(t *testing.T) {
	cases := []struct {
		line  string
		param string
	}{
		{"I wait for -1 seconds", "amount"},
		{"I wait for abc seconds", "amount"},
		{"I wait for a while", "amount"},
		{"I wait for 2 fortnights", "unit"},
		{"I set property pattern to green", "property"},
		{"I set property src:: to green", "property"},
		{"I set property ::pattern to green", "property"},
		{"I should see significant color #00ff00 on sink", "color"},
		{"The user can see a frame on sink! ", "element"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.line)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q) error = %v, want ParseError", tc.line, err)
			continue
		}
		if pe.Kind != MalformedParameter {
			t.Errorf("Parse(%q) kind = %v, want MalformedParameter", tc.line, pe.Kind)
			continue
		}
		if pe.Param != tc.param {
			t.Errorf("Parse(%q) param = %q, want %q", tc.line, pe.Param, tc.param)
		}
	}
}

// TestColorNormalized verifies color names parse case-insensitively.
func TestColorNormalized(t *testing.T) {
	a, err := Parse("I should see significant color Lime on sink")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if a.Color != "lime" {
		t.Errorf("color = %q, want %q", a.Color, "lime")
	}
}

// TestRoundTripFractionalWait verifies fractional amounts keep their value
// through the canonical phrase.
func TestRoundTripFractionalWait(t *testing.T) {
	a := Action{Kind: KindWait, Amount: 0.25, Unit: UnitSeconds}
	if a.Phrase() != "I wait for 0.25 seconds" {
		t.Fatalf("Phrase() = %q", a.Phrase())
	}
	back, err := Parse(a.Phrase())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if back != a {
		t.Errorf("round trip = %+v, want %+v", back, a)
	}
}

// TestMarkdown verifies the rendered reference covers every template.
func TestMarkdown(t *testing.T) {
	md := Markdown()
	if !strings.HasPrefix(md, "# Step reference") {
		t.Fatalf("Markdown() does not open with the title:\n%s", md)
	}
	for _, tpl := range Templates() {
		if !strings.Contains(md, tpl.Example) {
			t.Errorf("Markdown() missing example %q", tpl.Example)
		}
	}
	if n := strings.Count(md, "```gherkin"); n != len(Templates()) {
		t.Errorf("Markdown() has %d example blocks, want %d", n, len(Templates()))
	}
}
