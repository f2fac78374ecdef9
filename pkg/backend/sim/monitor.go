package sim

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pipelab/pipespec/pkg/backend"
)

// Rule sets the monitor knows. "core" enables everything.
var ruleSets = map[string][]string{
	"core":       {"buffer-timestamp-monotonicity", "element-error"},
	"timestamps": {"buffer-timestamp-monotonicity"},
	"flow":       {"element-error"},
}

// ruleCategories maps each rule to the category an ignore= option targets.
var ruleCategories = map[string]string{
	"buffer-timestamp-monotonicity": "timestamp",
	"element-error":                 "element",
}

// monitorConfig is the parsed form of the accumulated configuration. Each
// line names a rule set followed by comma-separated key=value options.
type monitorConfig struct {
	rules           map[string]bool
	ignored         map[string]bool
	expectationsDir string
}

func parseMonitorConfig(config string) (monitorConfig, error) {
	mc := monitorConfig{rules: make(map[string]bool), ignored: make(map[string]bool)}
	for _, line := range strings.Split(config, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		set := strings.TrimSpace(parts[0])
		rules, ok := ruleSets[set]
		if !ok {
			return mc, fmt.Errorf("unknown rule set %q", set)
		}
		for _, r := range rules {
			mc.rules[r] = true
		}
		for _, opt := range parts[1:] {
			opt = strings.TrimSpace(opt)
			key, value, ok := strings.Cut(opt, "=")
			if !ok {
				return mc, fmt.Errorf("malformed option %q in rule set %q", opt, set)
			}
			switch key {
			case "ignore":
				mc.ignored[value] = true
			case "expectations-dir":
				mc.expectationsDir = value
			default:
				return mc, fmt.Errorf("unknown option %q in rule set %q", key, set)
			}
		}
	}
	if len(mc.rules) == 0 {
		// Activation without configuration enables everything.
		for _, r := range ruleSets["core"] {
			mc.rules[r] = true
		}
	}
	return mc, nil
}

// monitor observes pipeline events and reports rule violations to the
// attached sink. Observation happens on engine goroutines.
type monitor struct {
	cfg    monitorConfig
	sink   backend.IssueSink
	logger *slog.Logger

	mu      sync.Mutex
	lastPTS map[string]time.Duration
	seen    map[string]bool // source elements with at least one frame
	closed  bool
}

func newMonitor(config string, sink backend.IssueSink, logger *slog.Logger) (*monitor, error) {
	cfg, err := parseMonitorConfig(config)
	if err != nil {
		return nil, err
	}
	m := &monitor{
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		lastPTS: make(map[string]time.Duration),
		seen:    make(map[string]bool),
	}
	if cfg.expectationsDir != "" {
		if err := m.writeExpectations(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// writeExpectations records the active configuration as a run artifact in
// the configured directory.
func (m *monitor) writeExpectations() error {
	if err := os.MkdirAll(m.cfg.expectationsDir, 0o755); err != nil {
		return fmt.Errorf("expectations dir: %w", err)
	}
	var b strings.Builder
	b.WriteString("# monitor expectations\nrules:\n")
	for _, r := range sortedKeys(m.cfg.rules) {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	if len(m.cfg.ignored) > 0 {
		b.WriteString("ignored:\n")
		for _, c := range sortedKeys(m.cfg.ignored) {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	path := filepath.Join(m.cfg.expectationsDir, "monitor.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("expectations file: %w", err)
	}
	return nil
}

func (m *monitor) close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *monitor) observe(ev event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var issue *backend.Issue
	switch ev.kind {
	case evFrame:
		if m.seen[ev.elem] && ev.pts <= m.lastPTS[ev.elem] {
			issue = m.violation("buffer-timestamp-monotonicity", backend.SeverityCritical,
				fmt.Sprintf("timestamp regressed on %s", ev.elem),
				fmt.Sprintf("previous %s, got %s", m.lastPTS[ev.elem], ev.pts))
		}
		if ev.pts > m.lastPTS[ev.elem] || !m.seen[ev.elem] {
			m.lastPTS[ev.elem] = ev.pts
		}
		m.seen[ev.elem] = true
	case evElementError:
		issue = m.violation("element-error", backend.SeverityCritical,
			fmt.Sprintf("element %s reported an error", ev.elem), ev.detail)
	}
	m.mu.Unlock()

	if issue != nil {
		m.sink.Report(*issue)
	}
}

// violation builds an issue when the rule is enabled and its category not
// ignored; nil otherwise.
func (m *monitor) violation(rule string, sev backend.Severity, summary, details string) *backend.Issue {
	if !m.cfg.rules[rule] || m.cfg.ignored[ruleCategories[rule]] {
		return nil
	}
	m.logger.Debug("monitor issue", slog.String("rule", rule), slog.String("summary", summary))
	return &backend.Issue{
		Rule:     rule,
		Category: ruleCategories[rule],
		Severity: sev,
		Summary:  summary,
		Details:  details,
		Time:     time.Now(),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
