// Package backend defines the boundary between the harness and a pipeline
// engine. An engine builds pipelines from parse-launch style descriptions
// and exposes state control, element properties and optional capabilities
// (frame capture, validation monitoring) behind small interfaces, so the
// harness never depends on a concrete multimedia stack.
package backend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// State is a pipeline lifecycle state, ordered from torn down to running.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors reported by engines. Callers discriminate with errors.Is;
// engines wrap these with element and property context.
var (
	ErrUnknownFactory     = errors.New("unknown element factory")
	ErrNoSuchProperty     = errors.New("no such property")
	ErrTypeMismatch       = errors.New("value does not match property type")
	ErrNoFrame            = errors.New("no frame available")
	ErrLastSampleDisabled = errors.New("last-sample capture is disabled")
	ErrReleased           = errors.New("pipeline already released")
)

// Engine builds pipelines from textual descriptions.
type Engine interface {
	// Name identifies the engine ("sim", ...).
	Name() string
	// Launch parses description and assembles a pipeline in the null state.
	Launch(ctx context.Context, description string) (Pipeline, error)
}

// Pipeline is a built pipeline under engine control.
type Pipeline interface {
	// SetState drives the pipeline to s, blocking until the transition
	// settles or ctx is done. A ctx error leaves the pipeline in an
	// engine-defined intermediate state.
	SetState(ctx context.Context, s State) error
	State() State
	ByName(name string) (Element, bool)
	Elements() []Element
	// Release tears the pipeline down. Safe to call more than once.
	Release() error
}

// Element is one pipeline element. Property values cross the boundary as
// strings; the engine owns typing and normalization.
type Element interface {
	Name() string
	Factory() string
	Set(property, value string) error
	Get(property string) (string, error)
}

// FrameSource is implemented by sink elements that retain their most
// recently rendered frame.
type FrameSource interface {
	// LastFrame returns the newest frame, ErrNoFrame before the first one
	// arrives, or ErrLastSampleDisabled when retention is switched off.
	LastFrame() (*Frame, error)
}

// ObjectOwner is implemented by elements with object-valued properties,
// such as a compound sink exposing the sink it wraps.
type ObjectOwner interface {
	Object(property string) (Element, bool)
}

// Frame is one rendered video frame in 8-bit RGBA.
type Frame struct {
	Width  int
	Height int
	Rate   int // producer frame rate, frames per second
	Pixels []byte
}

// Interval is the producer's frame period, or a conservative default when
// the rate is unknown.
func (f *Frame) Interval() time.Duration {
	if f == nil || f.Rate <= 0 {
		return 33 * time.Millisecond
	}
	return time.Second / time.Duration(f.Rate)
}

// Image copies the frame into an NRGBA image.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pixels)
	return img
}

// Severity ranks validation issues.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityIssue
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityIssue:
		return "issue"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Issue is one correctness finding from a validation monitor.
type Issue struct {
	Rule     string    `json:"rule" yaml:"rule"`
	Category string    `json:"category" yaml:"category"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Summary  string    `json:"summary" yaml:"summary"`
	Details  string    `json:"details,omitempty" yaml:"details,omitempty"`
	Time     time.Time `json:"time" yaml:"time"`
}

// IssueSink receives issues from a monitor as they are generated. Report
// is called from engine goroutines and must not block on step execution.
type IssueSink interface {
	Report(Issue)
}

// Validating is implemented by engines that ship a correctness monitor.
// Monitor attaches one to p using the engine's configuration syntax and
// returns a detach function that is safe to call more than once. Issues
// observed before a state change completes are delivered to sink before
// SetState returns.
type Validating interface {
	Monitor(p Pipeline, config string, sink IssueSink) (detach func() error, err error)
}
