package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location
// context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Timeout bounds enforced by domain validation.
const (
	minTimeout = time.Second
	maxTimeout = 10 * time.Minute
)

// ValidateFile performs the full 3-phase validation pipeline on a
// configuration file. Defaults are applied before the later phases so a
// partial file validates exactly as it would run.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Config, []*ValidationError) {
	var allErrors []*ValidationError

	cfg, err := LoadFile(path)
	if err != nil {
		allErrors = append(allErrors, &ValidationError{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, allErrors
	}
	applyDefaults(cfg)

	allErrors = append(allErrors, validateSemantic(cfg)...)
	allErrors = append(allErrors, ValidateDomain(cfg)...)

	if len(allErrors) > 0 {
		return cfg, allErrors
	}
	return cfg, nil
}

// validateSemantic validates the configuration against the JSON Schema.
func validateSemantic(cfg *Config) []*ValidationError {
	fail := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Path: "", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fail(fmt.Sprintf("marshal for schema validation: %v", err))
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fail(fmt.Sprintf("unmarshal schema: %v", err))
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("pipespec-v0.json", schemaDoc); err != nil {
		return fail(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("pipespec-v0.json")
	if err != nil {
		return fail(fmt.Sprintf("compile schema: %v", err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail(fmt.Sprintf("unmarshal document: %v", err))
	}
	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     "",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors collects the leaf causes of a validation
// error tree.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation. Empty result
// means valid.
func ValidateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError

	if cfg.Engine == "" {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "engine",
			Message:  "engine must not be empty",
			Severity: "error",
		})
	}

	checkTimeout := func(path, value string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path,
				Message:  fmt.Sprintf("invalid duration %q: %v", value, err),
				Severity: "error",
			})
			return
		}
		if d < minTimeout || d > maxTimeout {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path,
				Message:  fmt.Sprintf("duration %s outside [%s, %s]", d, minTimeout, maxTimeout),
				Severity: "error",
			})
		}
	}
	checkTimeout("timeouts.state_change", cfg.Timeouts.StateChange)
	checkTimeout("timeouts.frame", cfg.Timeouts.Frame)
	checkTimeout("timeouts.color", cfg.Timeouts.Color)

	if cfg.Gate != "" {
		if _, err := expr.Compile(cfg.Gate); err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "gate",
				Message:  fmt.Sprintf("gate does not compile: %v", err),
				Severity: "error",
			})
		}
	}

	for i, f := range cfg.Features {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("features[%d]", i),
				Message:  "feature path must not be blank",
				Severity: "error",
			})
		}
	}

	seen := make(map[string]bool)
	for i, f := range cfg.Policy.DeniedFactories {
		if f == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("policy.denied_factories[%d]", i),
				Message:  "factory name must not be empty",
				Severity: "error",
			})
			continue
		}
		if seen[f] {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("policy.denied_factories[%d]", i),
				Message:  fmt.Sprintf("factory %q listed more than once", f),
				Severity: "warning",
			})
		}
		seen[f] = true
	}

	return errs
}
