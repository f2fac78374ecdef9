// Package sim is an in-process pipeline engine. It understands a small
// parse-launch dialect (videotestsrc, videoconvert, identity, capsfilter
// and the fake sinks), renders deterministic RGBA frames while playing,
// and ships a validation monitor with timestamp and element-error rules.
// The test suite and default runs use it in place of a real media stack.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
)

// Engine implements backend.Engine and backend.Validating.
type Engine struct {
	logger *slog.Logger
	settle time.Duration
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithLogger routes engine logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSettle sets the simulated latency per state hop.
func WithSettle(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

// New returns an engine with a millisecond settle latency.
func New(opts ...Option) *Engine {
	e := &Engine{settle: time.Millisecond}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Engine) Name() string { return "sim" }

// Launch parses description and assembles a pipeline in the null state.
// Chains are linear: a source may only open the chain and a sink may only
// close it.
func (e *Engine) Launch(ctx context.Context, description string) (backend.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	specs, err := parseDescription(description)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	names := make(map[string]bool)
	elements := make([]*element, 0, len(specs))
	for i, spec := range specs {
		def, ok := factories[spec.factory]
		if !ok {
			return nil, fmt.Errorf("%q: %w", spec.factory, backend.ErrUnknownFactory)
		}
		if def.source && i != 0 {
			return nil, fmt.Errorf("cannot link into source element %q", spec.factory)
		}
		if def.sink && i != len(specs)-1 {
			return nil, fmt.Errorf("cannot link out of sink element %q", spec.factory)
		}

		name := fmt.Sprintf("%s%d", spec.factory, counts[spec.factory])
		counts[spec.factory]++
		for _, pa := range spec.props {
			if pa.key == "name" {
				if pa.value == "" {
					return nil, fmt.Errorf("empty element name for %q", spec.factory)
				}
				name = pa.value
			}
		}

		el := newElement(def, name)
		for _, pa := range spec.props {
			if pa.key == "name" {
				continue
			}
			if err := el.Set(pa.key, pa.value); err != nil {
				return nil, fmt.Errorf("configuring %s: %w", name, err)
			}
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate element name %q", name)
		}
		names[name] = true
		elements = append(elements, el)
	}

	p := &pipeline{
		logger:   e.logger,
		settle:   e.settle,
		elements: elements,
		state:    backend.StateNull,
	}
	e.logger.Debug("pipeline launched",
		slog.Int("elements", len(elements)),
		slog.String("description", description))
	return p, nil
}

// Monitor attaches the validation monitor to p. The returned detach stops
// observation and is safe to call more than once.
func (e *Engine) Monitor(bp backend.Pipeline, config string, sink backend.IssueSink) (func() error, error) {
	p, ok := bp.(*pipeline)
	if !ok {
		return nil, fmt.Errorf("pipeline was not built by the sim engine")
	}
	m, err := newMonitor(config, sink, e.logger)
	if err != nil {
		return nil, err
	}
	p.setObserver(m.observe)
	detach := func() error {
		p.setObserver(nil)
		return m.close()
	}
	return detach, nil
}
