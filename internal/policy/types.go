package policy

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cast"

	"github.com/Iron-Ham/shepherd/internal/errors"
)

// RuleType groups rules by the kind of action they gate.
type RuleType string

const (
	TypeFileAccess RuleType = "file_access"
	TypeCommand    RuleType = "command"
	TypeNetwork    RuleType = "network"
	TypeResource   RuleType = "resource"
	TypePermission RuleType = "permission"
)

// ValidRuleTypes returns every known rule type.
func ValidRuleTypes() []RuleType {
	return []RuleType{TypeFileAccess, TypeCommand, TypeNetwork, TypeResource, TypePermission}
}

// Severity decides whether a matched rule blocks or only warns.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidSeverities returns every known severity.
func ValidSeverities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// Blocking reports whether a matched rule of this severity denies the action.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Operator compares a context field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpMatches     Operator = "matches"
	OpNotMatches  Operator = "not_matches"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// ValidOperators returns every known operator.
func ValidOperators() []Operator {
	return []Operator{OpEquals, OpNotEquals, OpMatches, OpNotMatches, OpContains, OpNotContains, OpGreaterThan, OpLessThan}
}

// Action is what a matched rule asks the caller to do.
type Action string

const (
	ActionBlock           Action = "block"
	ActionWarn            Action = "warn"
	ActionRequireApproval Action = "require_approval"
	ActionLog             Action = "log"
)

// ValidActions returns every known action.
func ValidActions() []Action {
	return []Action{ActionBlock, ActionWarn, ActionRequireApproval, ActionLog}
}

// Condition tests one field of a Context. Field is a dotted path such as
// "resourceUsage.timeout" or "networkRequests.host".
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	// Value is a scalar or a list. For matches and contains a list means
	// "any of these".
	Value any `json:"value" yaml:"value"`
}

// Rule is one declarative policy. A rule is violated when ANY of its
// conditions matches.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Type        RuleType    `json:"type" yaml:"type"`
	Severity    Severity    `json:"severity" yaml:"severity"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Actions     []Action    `json:"actions" yaml:"actions"`
}

// HasAction reports whether the rule lists a.
func (r Rule) HasAction(a Action) bool {
	return slices.Contains(r.Actions, a)
}

// Validate checks that the rule is well formed. Errors are *errors.ConfigError.
func (r Rule) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.NewConfigError(fmt.Sprintf(format, args...), errors.ErrInvalidRule).WithRuleID(r.ID)
	}

	if strings.TrimSpace(r.ID) == "" {
		return invalid("rule id is required")
	}
	if !slices.Contains(ValidRuleTypes(), r.Type) {
		return invalid("unknown rule type %q", r.Type)
	}
	if !slices.Contains(ValidSeverities(), r.Severity) {
		return invalid("unknown severity %q", r.Severity)
	}
	if len(r.Conditions) == 0 {
		return invalid("rule has no conditions")
	}
	for i, c := range r.Conditions {
		if err := c.validate(); err != nil {
			return invalid("condition %d: %v", i, err)
		}
	}
	for _, a := range r.Actions {
		if !slices.Contains(ValidActions(), a) {
			return invalid("unknown action %q", a)
		}
	}
	return nil
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("field is required")
	}
	if !slices.Contains(ValidOperators(), c.Operator) {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Value == nil {
		return fmt.Errorf("value is required")
	}

	switch c.Operator {
	case OpMatches, OpNotMatches:
		for _, p := range patterns(c.Value) {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid glob pattern %q", p)
			}
		}
	case OpGreaterThan, OpLessThan:
		if _, ok := toNumber(c.Value); !ok {
			return fmt.Errorf("operator %s needs a numeric value, got %v", c.Operator, c.Value)
		}
	}
	return nil
}

// Context describes a proposed agent action.
type Context struct {
	MigrationID     string           `json:"migrationId" mapstructure:"migrationId"`
	Step            int              `json:"step" mapstructure:"step"`
	Files           []string         `json:"files" mapstructure:"files"`
	Commands        []string         `json:"commands" mapstructure:"commands"`
	NetworkRequests []NetworkRequest `json:"networkRequests" mapstructure:"networkRequests"`
	ResourceUsage   ResourceUsage    `json:"resourceUsage" mapstructure:"resourceUsage"`
	User            User             `json:"user" mapstructure:"user"`
}

// NetworkRequest is an outbound call an agent wants to make.
type NetworkRequest struct {
	URL    string `json:"url" mapstructure:"url"`
	Host   string `json:"host" mapstructure:"host"`
	Method string `json:"method,omitempty" mapstructure:"method"`
}

// ResourceUsage carries the resource limits requested for a step.
type ResourceUsage struct {
	// Timeout is the requested step runtime in seconds.
	Timeout  int `json:"timeout" mapstructure:"timeout"`
	MemoryMB int `json:"memoryMb,omitempty" mapstructure:"memoryMb"`
	CPUs     int `json:"cpus,omitempty" mapstructure:"cpus"`
}

// User is the account the action is performed for.
type User struct {
	Login string `json:"login" mapstructure:"login"`
	// Type is the platform account type, e.g. "User" or "Bot".
	Type string `json:"type" mapstructure:"type"`
}

// normalized returns a copy with file paths slash-separated and cleaned, and
// request hosts derived from URLs where missing.
func (c Context) normalized() Context {
	out := c
	out.Files = make([]string, len(c.Files))
	for i, f := range c.Files {
		out.Files[i] = normalizePath(f)
	}
	out.NetworkRequests = make([]NetworkRequest, len(c.NetworkRequests))
	for i, r := range c.NetworkRequests {
		if r.Host == "" && r.URL != "" {
			if u, err := url.Parse(r.URL); err == nil {
				r.Host = u.Hostname()
			}
		}
		r.Host = strings.ToLower(r.Host)
		out.NetworkRequests[i] = r
	}
	out.Commands = slices.Clone(c.Commands)
	return out
}

// Violation records one matched rule.
type Violation struct {
	RuleID   string   `json:"ruleId"`
	RuleName string   `json:"ruleName"`
	Type     RuleType `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Field    string   `json:"field"`
	// Value is the context value that matched.
	Value any `json:"value,omitempty"`
}

// EvaluationResult is the combined verdict over every enabled rule.
type EvaluationResult struct {
	Allowed          bool        `json:"allowed"`
	Violations       []Violation `json:"violations"`
	Warnings         []Violation `json:"warnings"`
	RequiresApproval bool        `json:"requiresApproval"`
}

// toNumber coerces v to float64. Booleans, blank strings and non-numeric
// strings are not numbers.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
