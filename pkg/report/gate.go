package report

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// gateEnv exposes the summary counters to gate expressions. Scenario
// counts sit at the top level; step and issue counts carry prefixes.
func gateEnv(s *Summary) map[string]interface{} {
	return map[string]interface{}{
		"total":     s.Scenarios.Total,
		"passed":    s.Scenarios.Passed,
		"failed":    s.Scenarios.Failed,
		"steps":     s.Steps.Total,
		"skipped":   s.Steps.Skipped,
		"pending":   s.Steps.Pending,
		"undefined": s.Steps.Undefined,
		"issues":    s.IssueTally.Total,
		"warnings":  s.IssueTally.Warnings,
		"criticals": s.IssueTally.Criticals,
	}
}

// EvalGate evaluates a boolean gate expression such as
// "failed == 0 && issues < 3" against a run summary.
func EvalGate(expression string, s *Summary) (bool, error) {
	env := gateEnv(s)
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile gate %q: %w", expression, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval gate %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("gate %q did not return bool (got %T: %v)", expression, output, output)
	}
	return result, nil
}
