package phrase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// Template is one phrase of the vocabulary. Pattern is anchored; build
// turns its capture groups into an action, reporting parameter problems
// as plain errors that Parse wraps into ParseError.
type Template struct {
	Kind    Kind
	Pattern *regexp.Regexp
	Doc     string
	Example string
	build   func(args []string) (Action, error)
}

var templates = []Template{
	{
		Kind:    KindDefinePipeline,
		Pattern: regexp.MustCompile(`^Pipeline is '(.+)'$`),
		Doc:     "Pipeline is '<description>' -- build a pipeline from a parse-launch description",
		Example: "Pipeline is 'videotestsrc ! fakevideosink name=sink'",
		build: func(args []string) (Action, error) {
			desc := strings.TrimSpace(args[0])
			if desc == "" {
				return Action{}, paramErr("description", "must not be blank")
			}
			return Action{Kind: KindDefinePipeline, Description: desc}, nil
		},
	},
	{
		Kind:    KindValidateConfig,
		Pattern: regexp.MustCompile(`^The validate configuration '(.+)'$`),
		Doc:     "The validate configuration '<line>' -- append one line of monitor configuration",
		Example: "The validate configuration 'core, ignore=timestamp'",
		build: func(args []string) (Action, error) {
			line := strings.TrimSpace(args[0])
			if line == "" {
				return Action{}, paramErr("configuration", "must not be blank")
			}
			return Action{Kind: KindValidateConfig, ConfigLine: line}, nil
		},
	},
	{
		Kind:    KindActivateValidate,
		Pattern: regexp.MustCompile(`^Validate is activated$`),
		Doc:     "Validate is activated -- attach the validation monitor with the accumulated configuration",
		Example: "Validate is activated",
		build: func(args []string) (Action, error) {
			return Action{Kind: KindActivateValidate}, nil
		},
	},
	{
		Kind:    KindSetState,
		Pattern: regexp.MustCompile(`^I (play|pause|prepare|stop) the pipeline$`),
		Doc:     "I play|pause|prepare|stop the pipeline -- drive the pipeline to the named state",
		Example: "I play the pipeline",
		build: func(args []string) (Action, error) {
			target, ok := stateVerbs[args[0]]
			if !ok {
				return Action{}, paramErr("state", fmt.Sprintf("unknown verb %q", args[0]))
			}
			return Action{Kind: KindSetState, Target: target}, nil
		},
	},
	{
		Kind:    KindSetProperty,
		Pattern: regexp.MustCompile(`^I set property (\S+) to (.+)$`),
		Doc:     "I set property <element::property> to <value> -- set an element property",
		Example: "I set property src::pattern to green",
		build: func(args []string) (Action, error) {
			path, err := ParsePropertyPath(args[0])
			if err != nil {
				return Action{}, paramErr("property", err.Error())
			}
			return Action{Kind: KindSetProperty, Path: path, Value: unquote(args[1])}, nil
		},
	},
	{
		Kind:    KindWait,
		Pattern: regexp.MustCompile(`^I wait for (\S+) (\S+)$`),
		Doc:     "I wait for <amount> <unit> -- sleep for a wall-clock span (minutes, seconds, ms, us)",
		Example: "I wait for 2 seconds",
		build: func(args []string) (Action, error) {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return Action{}, paramErr("amount", fmt.Sprintf("%q is not a number", args[0]))
			}
			if amount < 0 {
				return Action{}, paramErr("amount", "must not be negative")
			}
			unit, ok := unitWords[args[1]]
			if !ok {
				return Action{}, paramErr("unit", fmt.Sprintf("unknown unit %q", args[1]))
			}
			return Action{Kind: KindWait, Amount: amount, Unit: unit}, nil
		},
	},
	{
		Kind:    KindFrameVisible,
		Pattern: regexp.MustCompile(`^The user can see a frame on (\S+)$`),
		Doc:     "The user can see a frame on <element> -- assert the sink rendered at least one frame",
		Example: "The user can see a frame on sink",
		build: func(args []string) (Action, error) {
			if !validName(args[0]) {
				return Action{}, paramErr("element", fmt.Sprintf("invalid element name %q", args[0]))
			}
			return Action{Kind: KindFrameVisible, Element: args[0]}, nil
		},
	},
	{
		Kind:    KindSignificantColor,
		Pattern: regexp.MustCompile(`^I should see significant color (\S+) on (\S+)$`),
		Doc:     "I should see significant color <name> on <element> -- assert a palette color covers a significant share of the frame",
		Example: "I should see significant color lime on sink",
		build: func(args []string) (Action, error) {
			color := strings.ToLower(args[0])
			if !alphabetic(color) {
				return Action{}, paramErr("color", fmt.Sprintf("invalid color name %q", args[0]))
			}
			if !validName(args[1]) {
				return Action{}, paramErr("element", fmt.Sprintf("invalid element name %q", args[1]))
			}
			return Action{Kind: KindSignificantColor, Color: color, Element: args[1]}, nil
		},
	},
	{
		Kind:    KindPropertyEquals,
		Pattern: regexp.MustCompile(`^Property (\S+) equals (.+)$`),
		Doc:     "Property <element::property> equals <value> -- assert a property's current value",
		Example: "Property sink::sync equals true",
		build: func(args []string) (Action, error) {
			path, err := ParsePropertyPath(args[0])
			if err != nil {
				return Action{}, paramErr("property", err.Error())
			}
			return Action{Kind: KindPropertyEquals, Path: path, Value: unquote(args[1])}, nil
		},
	},
	{
		Kind:    KindAssertNoIssues,
		Pattern: regexp.MustCompile(`^Validate should not report any issue$`),
		Doc:     "Validate should not report any issue -- assert the monitor stayed silent",
		Example: "Validate should not report any issue",
		build: func(args []string) (Action, error) {
			return Action{Kind: KindAssertNoIssues}, nil
		},
	},
}

// Templates lists the vocabulary in documentation order.
func Templates() []Template {
	return append([]Template(nil), templates...)
}

// Parse turns one step line into an action. The grammar is total: every
// line either matches exactly one template or fails with a ParseError.
func Parse(line string) (Action, error) {
	trimmed := strings.TrimSpace(line)
	for _, t := range templates {
		m := t.Pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		a, err := t.build(m[1:])
		if err != nil {
			pe := asParseError(err)
			pe.Line = trimmed
			return Action{}, pe
		}
		return a, nil
	}
	return Action{}, &ParseError{Kind: UnrecognizedStep, Line: trimmed}
}

// Register binds every template to the godog scenario context. apply
// receives each parsed action in scenario order.
func Register(sc *godog.ScenarioContext, apply func(context.Context, Action) error) {
	for _, t := range templates {
		t := t
		run := func(ctx context.Context, args ...string) error {
			a, err := t.build(args)
			if err != nil {
				return asParseError(err)
			}
			return apply(ctx, a)
		}
		switch t.Pattern.NumSubexp() {
		case 0:
			sc.Step(t.Pattern, func(ctx context.Context) error {
				return run(ctx)
			})
		case 1:
			sc.Step(t.Pattern, func(ctx context.Context, a string) error {
				return run(ctx, a)
			})
		default:
			sc.Step(t.Pattern, func(ctx context.Context, a, b string) error {
				return run(ctx, a, b)
			})
		}
	}
}

// asParseError wraps a build failure as a malformed-parameter error.
func asParseError(err error) *ParseError {
	pe := &ParseError{Kind: MalformedParameter, Reason: err.Error()}
	var bp *badParam
	if errors.As(err, &bp) {
		pe.Param = bp.name
		pe.Reason = bp.reason
	}
	return pe
}

// badParam carries the offending parameter name through build errors.
type badParam struct {
	name   string
	reason string
}

func (e *badParam) Error() string { return fmt.Sprintf("parameter %s: %s", e.name, e.reason) }

func paramErr(name, reason string) error {
	return &badParam{name: name, reason: reason}
}

// unquote strips one layer of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func alphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
