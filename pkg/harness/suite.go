package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cucumber/godog"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/phrase"
	"github.com/pipelab/pipespec/pkg/report"
)

type worldKey struct{}

type stepStartKey struct{}

// WorldFrom extracts the scenario's world from a godog context.
func WorldFrom(ctx context.Context) (*World, bool) {
	w, ok := ctx.Value(worldKey{}).(*World)
	return w, ok
}

// SuiteOptions configure a feature run.
type SuiteOptions struct {
	Config *config.Config
	Engine backend.Engine
	Logger *slog.Logger
	// Recorder, when set, receives step traces and scenario results.
	Recorder *report.Recorder
	Output   io.Writer
	// Paths overrides Config.Features when non-empty.
	Paths []string
	// FeatureContents runs in-memory features instead of Paths.
	FeatureContents []godog.Feature
}

// Suite runs feature files against an engine, one World per scenario.
type Suite struct {
	cfg      *config.Config
	engine   backend.Engine
	logger   *slog.Logger
	rec      *report.Recorder
	output   io.Writer
	paths    []string
	features []godog.Feature
}

// NewSuite assembles a suite from options, filling defaults from the
// configuration.
func NewSuite(opts SuiteOptions) *Suite {
	s := &Suite{
		cfg:      opts.Config,
		engine:   opts.Engine,
		logger:   opts.Logger,
		rec:      opts.Recorder,
		output:   opts.Output,
		paths:    opts.Paths,
		features: opts.FeatureContents,
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.output == nil {
		s.output = os.Stdout
	}
	if len(s.paths) == 0 {
		s.paths = s.cfg.Features
	}
	return s
}

// Run executes the suite. The result follows godog's convention: 0 for
// success, non-zero when any scenario fails.
func (s *Suite) Run() int {
	if s.rec != nil {
		s.rec.SetFeatures(s.paths)
	}
	suite := godog.TestSuite{
		Name:                "pipespec",
		ScenarioInitializer: s.initScenario,
		Options: &godog.Options{
			Format:          s.cfg.Format,
			Paths:           s.paths,
			Tags:            s.cfg.Tags,
			Strict:          true,
			StopOnFailure:   s.cfg.StopOnFailure,
			Output:          s.output,
			FeatureContents: s.features,
		},
	}
	return suite.Run()
}

func (s *Suite) initScenario(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, scn *godog.Scenario) (context.Context, error) {
		w := NewWorld(s.cfg, s.engine, WithLogger(s.logger))
		s.logger.Debug("scenario started", slog.String("name", scn.Name), slog.String("uri", scn.Uri))
		ctx = context.WithValue(ctx, worldKey{}, w)
		ctx = context.WithValue(ctx, scenarioKey{}, scn)
		return ctx, nil
	})

	phrase.Register(sc, func(ctx context.Context, a phrase.Action) error {
		w, ok := WorldFrom(ctx)
		if !ok {
			return errors.New("scenario context carries no world")
		}
		return w.Apply(ctx, a)
	})

	sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
		return context.WithValue(ctx, stepStartKey{}, time.Now()), nil
	})
	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		if s.rec == nil {
			return ctx, nil
		}
		rec := &report.StepRecord{
			Step:   st.Text,
			Status: stepStatus(status),
		}
		if a, perr := phrase.Parse(st.Text); perr == nil {
			rec.Action = a.Kind.String()
		}
		if start, ok := ctx.Value(stepStartKey{}).(time.Time); ok {
			rec.Elapsed = time.Since(start).Round(time.Microsecond).String()
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if scn, ok := scenarioFrom(ctx); ok {
			rec.Feature = scn.Uri
			rec.Scenario = scn.Name
		}
		if werr := s.rec.RecordStep(rec); werr != nil {
			s.logger.Warn("step trace write failed", slog.Any("error", werr))
		}
		return ctx, nil
	})

	sc.After(func(ctx context.Context, scn *godog.Scenario, err error) (context.Context, error) {
		w, ok := WorldFrom(ctx)
		if !ok {
			return ctx, nil
		}

		// A scenario that activated validation but never asserted on
		// issues fails when issues arrived.
		var unchecked error
		if err == nil {
			unchecked = w.UncheckedIssues(ctx)
		}

		warnings := w.Teardown(ctx)
		for _, warn := range warnings {
			s.logger.Warn("teardown warning",
				slog.String("scenario", scn.Name),
				slog.String("op", warn.Op),
				slog.Any("error", warn.Err))
		}

		if s.rec != nil {
			rec := report.ScenarioRecord{
				Feature: scn.Uri,
				Name:    scn.Name,
				Status:  report.StatusPassed,
				Issues:  len(w.Issues()),
			}
			final := err
			if final == nil {
				final = unchecked
			}
			if final != nil {
				rec.Status = report.StatusFailed
				rec.Error = final.Error()
			}
			s.rec.RecordScenario(rec)
			s.rec.CountIssues(w.Issues())
		}
		return ctx, unchecked
	})
}

// scenarioKey carries the scenario for step records.
type scenarioKey struct{}

func scenarioFrom(ctx context.Context) (*godog.Scenario, bool) {
	scn, ok := ctx.Value(scenarioKey{}).(*godog.Scenario)
	return scn, ok
}

func stepStatus(status godog.StepResultStatus) string {
	switch status {
	case godog.StepPassed:
		return report.StatusPassed
	case godog.StepFailed:
		return report.StatusFailed
	case godog.StepSkipped:
		return report.StatusSkipped
	case godog.StepPending:
		return report.StatusPending
	default:
		return report.StatusUndefined
	}
}
