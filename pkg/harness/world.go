// Package harness executes parsed step actions against a live pipeline
// and turns the outcome into scenario verdicts. A World holds one
// scenario's state; the Suite wires worlds into godog.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/driver"
	"github.com/pipelab/pipespec/pkg/phrase"
	"github.com/pipelab/pipespec/pkg/validation"
	"github.com/pipelab/pipespec/pkg/vision"
)

// TeardownWarning records a best-effort teardown step that failed.
// Warnings are logged and reported but never fail a scenario.
type TeardownWarning struct {
	Op  string
	Err error
}

func (w TeardownWarning) String() string {
	return fmt.Sprintf("teardown %s: %v", w.Op, w.Err)
}

// Verdict is a scenario's outcome.
type Verdict struct {
	Failure  error
	Issues   []backend.Issue
	Warnings []TeardownWarning
}

// Passed reports whether the scenario ended without a fatal error.
func (v Verdict) Passed() bool { return v.Failure == nil }

// World owns one scenario's state: the pipeline driver, the pending
// monitor configuration, the issue aggregator, the element cache and the
// last frame sampled per element. Steps of one scenario run strictly in
// sequence, so World needs no locking of its own.
type World struct {
	logger *slog.Logger
	cfg    *config.Config
	drv    *driver.Driver
	agg    *validation.Aggregator

	description string
	configLines []string
	elements    map[string]backend.Element
	frames      map[string]*backend.Frame

	failure       error
	issuesChecked bool
	tornDown      bool
	warnings      []TeardownWarning
}

// Option adjusts a World.
type Option func(*World)

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) { w.logger = logger }
}

// NewWorld creates a fresh scenario world around engine. No pipeline
// exists until a define-pipeline action arrives.
func NewWorld(cfg *config.Config, engine backend.Engine, opts ...Option) *World {
	w := &World{
		logger:   slog.Default(),
		cfg:      cfg,
		elements: make(map[string]backend.Element),
		frames:   make(map[string]*backend.Frame),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.drv = driver.New(engine, driver.Options{
		StateChangeTimeout: cfg.Timeouts.StateChangeDuration(),
		FrameTimeout:       cfg.Timeouts.FrameDuration(),
		Policy:             cfg.Policy,
		Logger:             w.logger,
	})
	w.agg = validation.New(w.logger)
	return w
}

// Driver exposes the pipeline driver, for the REPL and tests.
func (w *World) Driver() *driver.Driver { return w.drv }

// Issues snapshots the aggregated validation issues.
func (w *World) Issues() []backend.Issue { return w.agg.Issues() }

// Description returns the built pipeline's description, empty before
// define-pipeline.
func (w *World) Description() string { return w.description }

// Apply executes one parsed action. The first error is remembered for
// the verdict; callers abort the scenario on any error.
func (w *World) Apply(ctx context.Context, a phrase.Action) error {
	err := w.apply(ctx, a)
	if err != nil && w.failure == nil {
		w.failure = fmt.Errorf("%s: %w", a.Phrase(), err)
	}
	return err
}

func (w *World) apply(ctx context.Context, a phrase.Action) error {
	switch a.Kind {
	case phrase.KindDefinePipeline:
		return w.definePipeline(ctx, a.Description)
	case phrase.KindValidateConfig:
		return w.appendValidateConfig(a.ConfigLine)
	case phrase.KindActivateValidate:
		return w.activateValidation()
	case phrase.KindSetState:
		return w.setState(ctx, a.Target)
	case phrase.KindSetProperty:
		return w.setProperty(a.Path, a.Value)
	case phrase.KindWait:
		return w.drv.Wait(ctx, a.Duration())
	case phrase.KindFrameVisible:
		return w.frameVisible(ctx, a.Element)
	case phrase.KindSignificantColor:
		return w.significantColor(ctx, a.Element, a.Color)
	case phrase.KindPropertyEquals:
		return w.propertyEquals(a.Path, a.Value)
	case phrase.KindAssertNoIssues:
		return w.assertNoIssues(ctx)
	default:
		return fmt.Errorf("unsupported action %s", a.Kind)
	}
}

func (w *World) definePipeline(ctx context.Context, description string) error {
	if err := w.drv.Build(ctx, description); err != nil {
		return err
	}
	w.description = description
	return nil
}

func (w *World) appendValidateConfig(line string) error {
	if w.agg.Activated() {
		return fmt.Errorf("validate configuration arrived after activation")
	}
	w.configLines = append(w.configLines, line)
	return nil
}

func (w *World) activateValidation() error {
	if !w.drv.Built() {
		return driver.ErrNoPipeline
	}
	joined := strings.Join(w.configLines, "\n")
	return w.agg.Activate(w.drv.Engine(), w.drv.Pipeline(), joined)
}

// setState drives the pipeline and, on stop, waits until every issue
// reported before the transition completed is visible to later steps.
func (w *World) setState(ctx context.Context, target backend.State) error {
	if err := w.drv.SetState(ctx, target); err != nil {
		return err
	}
	if target == backend.StateNull && w.agg.Activated() {
		return w.agg.Sync(ctx)
	}
	return nil
}

func (w *World) setProperty(path phrase.PropertyPath, value string) error {
	el, err := w.ResolveElement(path.Element())
	if err != nil {
		return err
	}
	return w.drv.SetPropertyOn(el, path.Segments()[1:], value)
}

func (w *World) propertyEquals(path phrase.PropertyPath, want string) error {
	el, err := w.ResolveElement(path.Element())
	if err != nil {
		return err
	}
	got, err := w.drv.PropertyOn(el, path.Segments()[1:])
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("property %s is %q, expected %q", path, got, want)
	}
	return nil
}

func (w *World) frameVisible(ctx context.Context, element string) error {
	el, err := w.ResolveElement(element)
	if err != nil {
		return err
	}
	f, err := w.drv.FrameFrom(ctx, el)
	if err != nil {
		return err
	}
	if len(f.Pixels) == 0 {
		return fmt.Errorf("element %q rendered an empty frame", element)
	}
	w.frames[element] = f
	return nil
}

func (w *World) significantColor(ctx context.Context, element, color string) error {
	el, err := w.ResolveElement(element)
	if err != nil {
		return err
	}
	return vision.AssertSignificant(ctx, element, color, w.cfg.Timeouts.ColorDuration(),
		func(ctx context.Context) (*backend.Frame, error) {
			f, err := w.drv.FrameFrom(ctx, el)
			if err != nil {
				return nil, err
			}
			w.frames[element] = f
			return f, nil
		})
}

func (w *World) assertNoIssues(ctx context.Context) error {
	w.issuesChecked = true
	if w.agg.Activated() {
		if err := w.agg.Sync(ctx); err != nil {
			return err
		}
	}
	return w.agg.AssertNone()
}

// ResolveElement looks an element up by name, memoizing the handle for
// the rest of the scenario.
func (w *World) ResolveElement(name string) (backend.Element, error) {
	if el, ok := w.elements[name]; ok {
		return el, nil
	}
	el, err := w.drv.Element(name)
	if err != nil {
		return nil, err
	}
	w.elements[name] = el
	return el, nil
}

// LastSampled returns the most recent frame a step sampled from the
// element, if any.
func (w *World) LastSampled(element string) (*backend.Frame, bool) {
	f, ok := w.frames[element]
	return f, ok
}

// UncheckedIssues enforces the end-of-scenario rule: once validation is
// activated, a scenario that never asserted on issues fails if any were
// reported.
func (w *World) UncheckedIssues(ctx context.Context) error {
	if !w.agg.Activated() || w.issuesChecked {
		return nil
	}
	if err := w.agg.Sync(ctx); err != nil {
		return err
	}
	if err := w.agg.AssertNone(); err != nil {
		return fmt.Errorf("validation reported issues no step asserted on: %w", err)
	}
	return nil
}

// Teardown releases the scenario's resources: stop the pipeline, detach
// the monitor, close the aggregator, release the pipeline. Idempotent;
// each failure becomes a TeardownWarning rather than an error.
func (w *World) Teardown(ctx context.Context) []TeardownWarning {
	if w.tornDown {
		return w.warnings
	}
	w.tornDown = true

	if w.drv.Built() && w.drv.Pipeline().State() != backend.StateNull {
		if err := w.drv.SetState(ctx, backend.StateNull); err != nil {
			w.warn("stop", err)
		}
	}
	if w.agg.Activated() {
		if err := w.agg.Sync(ctx); err != nil {
			w.warn("sync", err)
		}
		if err := w.agg.Detach(); err != nil {
			w.warn("detach", err)
		}
	}
	w.agg.Close()
	if err := w.drv.Release(); err != nil {
		w.warn("release", err)
	}
	return w.warnings
}

func (w *World) warn(op string, err error) {
	w.logger.Warn("teardown step failed", slog.String("op", op), slog.Any("error", err))
	w.warnings = append(w.warnings, TeardownWarning{Op: op, Err: err})
}

// Verdict reports the scenario outcome seen from the world: the first
// fatal error, the aggregated issues and any teardown warnings.
func (w *World) Verdict() Verdict {
	return Verdict{
		Failure:  w.failure,
		Issues:   w.agg.Issues(),
		Warnings: append([]TeardownWarning(nil), w.warnings...),
	}
}
