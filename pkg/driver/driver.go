// Package driver is the blocking facade scenarios use to operate one
// pipeline: build it from a description, drive its state with a bounded
// wait, set and read properties through object paths, sample frames and
// sleep wall-clock spans. Every failure is a classified *Error so verdicts
// can name what broke.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/policy"
)

// Kind classifies driver failures.
type Kind int

const (
	KindInvalidDescription Kind = iota
	KindPolicyViolation
	KindStateChangeTimeout
	KindNoSuchProperty
	KindTypeMismatch
	KindUnknownElement
	KindNoFrame
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDescription:
		return "invalid-description"
	case KindPolicyViolation:
		return "policy-violation"
	case KindStateChangeTimeout:
		return "state-change-timeout"
	case KindNoSuchProperty:
		return "no-such-property"
	case KindTypeMismatch:
		return "type-mismatch"
	case KindUnknownElement:
		return "unknown-element"
	case KindNoFrame:
		return "no-frame"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified driver failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Sentinels for lifecycle misuse.
var (
	ErrNoPipeline   = errors.New("no pipeline defined")
	ErrAlreadyBuilt = errors.New("pipeline already defined")
	ErrReleased     = errors.New("driver already released")
)

// Options tune the driver's bounded waits.
type Options struct {
	// StateChangeTimeout bounds SetState. Exceeding it is fatal to the
	// scenario.
	StateChangeTimeout time.Duration
	// FrameTimeout bounds the wait for a sink's first frame.
	FrameTimeout time.Duration
	// Policy is checked against every built element's factory.
	Policy policy.Policy
	Logger *slog.Logger
}

const (
	defaultStateChangeTimeout = 10 * time.Second
	defaultFrameTimeout       = 5 * time.Second
	framePollInterval         = 10 * time.Millisecond
)

// Driver operates at most one pipeline on behalf of one scenario.
type Driver struct {
	engine   backend.Engine
	opts     Options
	logger   *slog.Logger
	pipeline backend.Pipeline
	released bool
}

// New wraps engine with scenario-level semantics.
func New(engine backend.Engine, opts Options) *Driver {
	if opts.StateChangeTimeout <= 0 {
		opts.StateChangeTimeout = defaultStateChangeTimeout
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = defaultFrameTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{engine: engine, opts: opts, logger: logger}
}

// Engine exposes the underlying engine, for validation attachment.
func (d *Driver) Engine() backend.Engine { return d.engine }

// Pipeline is the built pipeline, nil before Build.
func (d *Driver) Pipeline() backend.Pipeline { return d.pipeline }

// Built reports whether Build succeeded.
func (d *Driver) Built() bool { return d.pipeline != nil }

// Build launches description. A scenario gets exactly one pipeline;
// launched elements are checked against the policy before the pipeline is
// handed over.
func (d *Driver) Build(ctx context.Context, description string) error {
	if d.released {
		return ErrReleased
	}
	if d.pipeline != nil {
		return ErrAlreadyBuilt
	}
	p, err := d.engine.Launch(ctx, description)
	if err != nil {
		return newError(KindInvalidDescription, "build",
			fmt.Sprintf("pipeline description %q was rejected", description), err)
	}
	for _, el := range p.Elements() {
		if err := d.opts.Policy.Check(el.Factory()); err != nil {
			p.Release()
			return newError(KindPolicyViolation, "build", err.Error(), nil)
		}
	}
	d.pipeline = p
	d.logger.Debug("pipeline built",
		slog.String("engine", d.engine.Name()),
		slog.Int("elements", len(p.Elements())))
	return nil
}

// SetState drives the pipeline to target, blocking until the transition
// settles or the state-change timeout passes.
func (d *Driver) SetState(ctx context.Context, target backend.State) error {
	if d.pipeline == nil {
		return ErrNoPipeline
	}
	op := stateOp(target)
	tctx, cancel := context.WithTimeout(ctx, d.opts.StateChangeTimeout)
	defer cancel()
	start := time.Now()
	err := d.pipeline.SetState(tctx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return newError(KindStateChangeTimeout, op,
				fmt.Sprintf("transition to %s did not settle within %s", target, d.opts.StateChangeTimeout), err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	d.logger.Debug("state settled",
		slog.String("target", target.String()),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Element resolves a top-level element by name.
func (d *Driver) Element(name string) (backend.Element, error) {
	if d.pipeline == nil {
		return nil, ErrNoPipeline
	}
	el, ok := d.pipeline.ByName(name)
	if !ok {
		return nil, newError(KindUnknownElement, "",
			fmt.Sprintf("no element %q in the pipeline (have %s)", name, strings.Join(d.elementNames(), ", ")), nil)
	}
	return el, nil
}

func (d *Driver) elementNames() []string {
	names := []string{}
	for _, el := range d.pipeline.Elements() {
		names = append(names, el.Name())
	}
	sort.Strings(names)
	return names
}

// SetProperty writes a property addressed by path segments: the element
// name, optional object-valued hops, and the property name.
func (d *Driver) SetProperty(path []string, value string) error {
	if len(path) < 2 {
		return pathTooShort(path)
	}
	el, err := d.Element(path[0])
	if err != nil {
		return err
	}
	return d.SetPropertyOn(el, path[1:], value)
}

// SetPropertyOn writes through an already-resolved element. rest holds
// the object hops and the final property name.
func (d *Driver) SetPropertyOn(el backend.Element, rest []string, value string) error {
	target, prop, err := descend(el, rest)
	if err != nil {
		return err
	}
	if err := target.Set(prop, value); err != nil {
		return classifyPropertyError("set property", target.Name(), prop, err)
	}
	d.logger.Debug("property set",
		slog.String("element", el.Name()),
		slog.String("path", strings.Join(rest, "::")),
		slog.String("value", value))
	return nil
}

// Property reads the serialized value addressed by path segments.
func (d *Driver) Property(path []string) (string, error) {
	if len(path) < 2 {
		return "", pathTooShort(path)
	}
	el, err := d.Element(path[0])
	if err != nil {
		return "", err
	}
	return d.PropertyOn(el, path[1:])
}

// PropertyOn reads through an already-resolved element.
func (d *Driver) PropertyOn(el backend.Element, rest []string) (string, error) {
	target, prop, err := descend(el, rest)
	if err != nil {
		return "", err
	}
	v, err := target.Get(prop)
	if err != nil {
		return "", classifyPropertyError("get property", target.Name(), prop, err)
	}
	return v, nil
}

func pathTooShort(path []string) error {
	return newError(KindNoSuchProperty, "",
		fmt.Sprintf("path %q needs element::property", strings.Join(path, "::")), nil)
}

// descend follows object-valued hops, leaving the final segment as the
// property name.
func descend(el backend.Element, rest []string) (backend.Element, string, error) {
	if len(rest) == 0 {
		return nil, "", pathTooShort([]string{el.Name()})
	}
	for _, hop := range rest[:len(rest)-1] {
		owner, ok := el.(backend.ObjectOwner)
		if !ok {
			return nil, "", newError(KindNoSuchProperty, "",
				fmt.Sprintf("element %q has no object property %q", el.Name(), hop), nil)
		}
		child, ok := owner.Object(hop)
		if !ok {
			return nil, "", newError(KindNoSuchProperty, "",
				fmt.Sprintf("element %q has no object property %q", el.Name(), hop), nil)
		}
		el = child
	}
	return el, rest[len(rest)-1], nil
}

func classifyPropertyError(op, element, property string, err error) error {
	switch {
	case errors.Is(err, backend.ErrNoSuchProperty):
		return newError(KindNoSuchProperty, op,
			fmt.Sprintf("element %q has no property %q", element, property), err)
	case errors.Is(err, backend.ErrTypeMismatch):
		return newError(KindTypeMismatch, op,
			fmt.Sprintf("property %s::%s rejected the value", element, property), err)
	default:
		return fmt.Errorf("%s %s::%s: %w", op, element, property, err)
	}
}

// LastFrame samples the newest frame of a sink element, retrying until
// one arrives or the frame timeout passes.
func (d *Driver) LastFrame(ctx context.Context, element string) (*backend.Frame, error) {
	el, err := d.Element(element)
	if err != nil {
		return nil, err
	}
	return d.FrameFrom(ctx, el)
}

// FrameFrom samples an already-resolved sink element with the same
// bounded retry as LastFrame.
func (d *Driver) FrameFrom(ctx context.Context, el backend.Element) (*backend.Frame, error) {
	name := el.Name()
	fs, ok := el.(backend.FrameSource)
	if !ok {
		return nil, newError(KindNoFrame, "sample",
			fmt.Sprintf("element %q does not provide frames", name), nil)
	}

	tctx, cancel := context.WithTimeout(ctx, d.opts.FrameTimeout)
	defer cancel()
	for {
		f, err := fs.LastFrame()
		switch {
		case err == nil:
			return f, nil
		case errors.Is(err, backend.ErrLastSampleDisabled):
			return nil, newError(KindNoFrame, "sample",
				fmt.Sprintf("element %q keeps no frames", name), err)
		case errors.Is(err, backend.ErrNoFrame):
			// Not rendered yet, keep polling.
		default:
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}

		timer := time.NewTimer(framePollInterval)
		select {
		case <-tctx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, newError(KindNoFrame, "sample",
				fmt.Sprintf("no frame on %q within %s", name, d.opts.FrameTimeout), backend.ErrNoFrame)
		case <-timer.C:
		}
	}
}

// Wait sleeps for dur of wall-clock time. Only scenario abort cuts it
// short; a zero dur resolves immediately.
func (d *Driver) Wait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Release tears the pipeline down. Idempotent; later operations fail with
// ErrReleased.
func (d *Driver) Release() error {
	if d.released {
		return nil
	}
	d.released = true
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.Release()
	d.pipeline = nil
	if err != nil {
		return fmt.Errorf("releasing pipeline: %w", err)
	}
	return nil
}

func stateOp(s backend.State) string {
	switch s {
	case backend.StatePlaying:
		return "play"
	case backend.StatePaused:
		return "pause"
	case backend.StateReady:
		return "prepare"
	default:
		return "stop"
	}
}
