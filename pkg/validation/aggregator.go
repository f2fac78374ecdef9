// Package validation collects asynchronous correctness issues from an
// attached pipeline monitor and folds them into scenario verdicts. Issues
// flow through a bounded intake channel drained by one collector
// goroutine; a flush token through the same channel acts as an ordering
// barrier, so every issue reported before Sync is visible to reads after
// it.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pipelab/pipespec/pkg/backend"
)

// intakeCapacity absorbs monitor bursts without parking the producer.
const intakeCapacity = 256

// envelope carries either one issue or a flush token.
type envelope struct {
	issue backend.Issue
	flush chan struct{}
}

// Aggregator buffers monitor issues in arrival order. It implements
// backend.IssueSink; Report never synchronizes with step execution.
type Aggregator struct {
	logger  *slog.Logger
	intake  chan envelope
	quit    chan struct{}
	stopped chan struct{}

	mu       sync.Mutex
	issues   []backend.Issue
	closed   bool
	attached bool
	detach   func() error
}

// New starts an aggregator and its collector goroutine.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		logger:  logger,
		intake:  make(chan envelope, intakeCapacity),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Aggregator) run() {
	defer close(a.stopped)
	for {
		select {
		case env := <-a.intake:
			a.consume(env)
		case <-a.quit:
			// Drain whatever already made it into the channel.
			for {
				select {
				case env := <-a.intake:
					a.consume(env)
				default:
					return
				}
			}
		}
	}
}

func (a *Aggregator) consume(env envelope) {
	if env.flush != nil {
		close(env.flush)
		return
	}
	a.mu.Lock()
	a.issues = append(a.issues, env.issue)
	a.mu.Unlock()
	a.logger.Debug("issue recorded",
		slog.String("rule", env.issue.Rule),
		slog.String("severity", env.issue.Severity.String()))
}

// Report implements backend.IssueSink. Issues arriving after Close are
// dropped; the monitor is detached first in an orderly teardown.
func (a *Aggregator) Report(issue backend.Issue) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}
	select {
	case a.intake <- envelope{issue: issue}:
	case <-a.quit:
	}
}

// Sync blocks until every issue reported before the call is buffered.
// Safe after Close, where draining has already happened.
func (a *Aggregator) Sync(ctx context.Context) error {
	token := make(chan struct{})
	select {
	case a.intake <- envelope{flush: token}:
	case <-a.quit:
		<-a.stopped
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-token:
		return nil
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Issues snapshots the buffered issues in arrival order.
func (a *Aggregator) Issues() []backend.Issue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]backend.Issue(nil), a.issues...)
}

// Count is the number of buffered issues.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.issues)
}

// Activate attaches eng's monitor to p with the accumulated configuration.
// Activating twice is an error.
func (a *Aggregator) Activate(eng backend.Engine, p backend.Pipeline, config string) error {
	v, ok := eng.(backend.Validating)
	if !ok {
		return fmt.Errorf("engine %q has no validation support", eng.Name())
	}
	a.mu.Lock()
	if a.attached {
		a.mu.Unlock()
		return fmt.Errorf("validation is already activated")
	}
	a.mu.Unlock()

	detach, err := v.Monitor(p, config, a)
	if err != nil {
		return fmt.Errorf("attaching monitor: %w", err)
	}
	a.mu.Lock()
	a.attached = true
	a.detach = detach
	a.mu.Unlock()
	return nil
}

// Activated reports whether a monitor is attached.
func (a *Aggregator) Activated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// Detach releases the monitor. Idempotent; safe without activation.
func (a *Aggregator) Detach() error {
	a.mu.Lock()
	detach := a.detach
	a.detach = nil
	a.mu.Unlock()
	if detach == nil {
		return nil
	}
	return detach()
}

// AssertNone passes when no issues were recorded, otherwise it returns an
// IssueError carrying the ordered list.
func (a *Aggregator) AssertNone() error {
	issues := a.Issues()
	if len(issues) == 0 {
		return nil
	}
	return &IssueError{Issues: issues}
}

// Close stops the collector after draining the intake. Idempotent.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	close(a.quit)
	<-a.stopped
}

// IssueError is the verdict of a failed no-issues assertion.
type IssueError struct {
	Issues []backend.Issue
}

func (e *IssueError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation reported %d issue(s):", len(e.Issues))
	for _, i := range e.Issues {
		fmt.Fprintf(&b, "\n  [%s] %s: %s", i.Severity, i.Rule, i.Summary)
	}
	return b.String()
}
