// Package phrase defines the step vocabulary: a fixed set of phrase
// templates parsed into typed actions. Parsing is total over the grammar;
// anything else is a ParseError. Every action renders back to a canonical
// phrase that parses to an equal action.
package phrase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
)

// Kind identifies the operation a parsed action performs.
type Kind int

const (
	KindDefinePipeline Kind = iota
	KindValidateConfig
	KindActivateValidate
	KindSetState
	KindSetProperty
	KindWait
	KindFrameVisible
	KindSignificantColor
	KindPropertyEquals
	KindAssertNoIssues
)

func (k Kind) String() string {
	switch k {
	case KindDefinePipeline:
		return "define-pipeline"
	case KindValidateConfig:
		return "validate-config"
	case KindActivateValidate:
		return "activate-validate"
	case KindSetState:
		return "set-state"
	case KindSetProperty:
		return "set-property"
	case KindWait:
		return "wait"
	case KindFrameVisible:
		return "frame-visible"
	case KindSignificantColor:
		return "significant-color"
	case KindPropertyEquals:
		return "property-equals"
	case KindAssertNoIssues:
		return "assert-no-issues"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action is one parsed step. Only the fields relevant to Kind are set;
// actions compare with ==.
type Action struct {
	Kind        Kind
	Description string        // KindDefinePipeline
	ConfigLine  string        // KindValidateConfig
	Target      backend.State // KindSetState
	Path        PropertyPath  // KindSetProperty, KindPropertyEquals
	Value       string        // KindSetProperty, KindPropertyEquals
	Amount      float64       // KindWait
	Unit        Unit          // KindWait
	Element     string        // KindFrameVisible, KindSignificantColor
	Color       string        // KindSignificantColor
}

// Phrase renders the canonical phrase for the action. Parse(a.Phrase())
// yields an action equal to a.
func (a Action) Phrase() string {
	switch a.Kind {
	case KindDefinePipeline:
		return fmt.Sprintf("Pipeline is '%s'", a.Description)
	case KindValidateConfig:
		return fmt.Sprintf("The validate configuration '%s'", a.ConfigLine)
	case KindActivateValidate:
		return "Validate is activated"
	case KindSetState:
		return fmt.Sprintf("I %s the pipeline", stateVerb(a.Target))
	case KindSetProperty:
		return fmt.Sprintf("I set property %s to %s", a.Path, a.Value)
	case KindWait:
		return fmt.Sprintf("I wait for %s %s", formatAmount(a.Amount), a.Unit)
	case KindFrameVisible:
		return fmt.Sprintf("The user can see a frame on %s", a.Element)
	case KindSignificantColor:
		return fmt.Sprintf("I should see significant color %s on %s", a.Color, a.Element)
	case KindPropertyEquals:
		return fmt.Sprintf("Property %s equals %s", a.Path, a.Value)
	case KindAssertNoIssues:
		return "Validate should not report any issue"
	default:
		return ""
	}
}

// Duration is the wall-clock span of a wait action.
func (a Action) Duration() time.Duration {
	return a.Unit.Duration(a.Amount)
}

// PropertyPath addresses a property as element::property, with optional
// object-valued hops in between (element::object::property).
type PropertyPath string

func (p PropertyPath) String() string { return string(p) }

func (p PropertyPath) Segments() []string { return strings.Split(string(p), "::") }

// Element is the leading pipeline element name.
func (p PropertyPath) Element() string { return p.Segments()[0] }

// Property is the final property name.
func (p PropertyPath) Property() string {
	segs := p.Segments()
	return segs[len(segs)-1]
}

// Objects are the object-valued hops between element and property.
func (p PropertyPath) Objects() []string {
	segs := p.Segments()
	return segs[1 : len(segs)-1]
}

// ParsePropertyPath validates s as a property path: two or more segments
// of [A-Za-z0-9_-], separated by "::".
func ParsePropertyPath(s string) (PropertyPath, error) {
	segs := strings.Split(s, "::")
	if len(segs) < 2 {
		return "", fmt.Errorf("path %q needs at least element::property", s)
	}
	for _, seg := range segs {
		if !validName(seg) {
			return "", fmt.Errorf("path %q has an invalid segment %q", s, seg)
		}
	}
	return PropertyPath(s), nil
}

// Unit is a wait-time unit.
type Unit int

const (
	UnitMicroseconds Unit = iota
	UnitMilliseconds
	UnitSeconds
	UnitMinutes
)

func (u Unit) String() string {
	switch u {
	case UnitMicroseconds:
		return "microseconds"
	case UnitMilliseconds:
		return "milliseconds"
	case UnitSeconds:
		return "seconds"
	case UnitMinutes:
		return "minutes"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

func (u Unit) base() time.Duration {
	switch u {
	case UnitMicroseconds:
		return time.Microsecond
	case UnitMilliseconds:
		return time.Millisecond
	case UnitMinutes:
		return time.Minute
	default:
		return time.Second
	}
}

// Duration converts an amount in this unit to a time.Duration.
func (u Unit) Duration(amount float64) time.Duration {
	return time.Duration(amount * float64(u.base()))
}

// unitWords maps accepted spellings to units. Canonical rendering uses
// the full plural form.
var unitWords = map[string]Unit{
	"minutes": UnitMinutes, "minute": UnitMinutes, "min": UnitMinutes,
	"seconds": UnitSeconds, "second": UnitSeconds, "sec": UnitSeconds,
	"milliseconds": UnitMilliseconds, "millisecond": UnitMilliseconds, "ms": UnitMilliseconds,
	"microseconds": UnitMicroseconds, "microsecond": UnitMicroseconds, "us": UnitMicroseconds,
}

// stateVerbs maps phrase verbs to pipeline states.
var stateVerbs = map[string]backend.State{
	"play":    backend.StatePlaying,
	"pause":   backend.StatePaused,
	"prepare": backend.StateReady,
	"stop":    backend.StateNull,
}

func stateVerb(s backend.State) string {
	for verb, st := range stateVerbs {
		if st == s {
			return verb
		}
	}
	return "stop"
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// ParseErrorKind separates steps outside the vocabulary from steps with
// bad parameters.
type ParseErrorKind int

const (
	UnrecognizedStep ParseErrorKind = iota
	MalformedParameter
)

// ParseError reports a line that does not parse. Unrecognized steps carry
// the vocabulary in the message; malformed parameters name the parameter.
type ParseError struct {
	Kind   ParseErrorKind
	Line   string
	Param  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Kind == UnrecognizedStep {
		var b strings.Builder
		fmt.Fprintf(&b, "unrecognized step %q; known steps:", e.Line)
		for _, t := range templates {
			b.WriteString("\n  ")
			b.WriteString(t.Doc)
		}
		return b.String()
	}
	return fmt.Sprintf("step %q: parameter %s: %s", e.Line, e.Param, e.Reason)
}
