package policy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/telemetry"
)

// Evaluator checks proposed actions against the rules in a Store. It performs
// no I/O and never retries; the same context against the same rule set always
// yields the same result.
type Evaluator struct {
	store  *Store
	logger *logging.Logger

	evaluations metric.Int64Counter
	violations  metric.Int64Counter
}

// NewEvaluator creates an Evaluator reading rules from store.
func NewEvaluator(store *Store, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	e := &Evaluator{store: store, logger: logger}

	meter := telemetry.Meter("github.com/Iron-Ham/shepherd/internal/policy")
	e.evaluations, _ = meter.Int64Counter("shepherd.policy.evaluations",
		metric.WithDescription("Policy evaluations by verdict"))
	e.violations, _ = meter.Int64Counter("shepherd.policy.violations",
		metric.WithDescription("Matched blocking rules by rule id"))
	return e
}

// Store returns the rule store the evaluator reads from. Changes made
// through it apply to the next Evaluate call.
func (e *Evaluator) Store() *Store {
	return e.store
}

// Evaluate runs every enabled rule, in store order, against pctx. All rules
// are evaluated so the result always carries the full violation and warning
// lists.
//
// A rule matches when any one of its conditions matches. A matched rule of
// severity error or critical is a violation and denies the action; info and
// warning rules are reported as warnings. A matched rule with the
// require_approval action sets RequiresApproval whatever its severity.
func (e *Evaluator) Evaluate(pctx Context) EvaluationResult {
	result := EvaluationResult{
		Allowed:    true,
		Violations: []Violation{},
		Warnings:   []Violation{},
	}

	log := e.logger
	if pctx.MigrationID != "" {
		log = log.WithMigration(pctx.MigrationID)
	}
	if pctx.Step > 0 {
		log = log.WithStep(pctx.Step)
	}

	fields, err := toMap(pctx.normalized())
	if err != nil {
		// Context is a fixed struct, so this only fires on a programming error.
		log.Error("policy context could not be flattened", "error", err.Error())
		result.Allowed = false
		return result
	}

	rules := e.store.snapshot().rules
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		v, matched := evaluateRule(rule, fields)
		if !matched {
			continue
		}

		if rule.Severity.Blocking() {
			result.Violations = append(result.Violations, v)
			result.Allowed = false
			e.countViolation(rule)
		} else {
			result.Warnings = append(result.Warnings, v)
		}
		if rule.HasAction(ActionRequireApproval) {
			result.RequiresApproval = true
		}
		if rule.HasAction(ActionLog) {
			log.Info("policy rule matched",
				"rule_id", rule.ID, "severity", string(rule.Severity), "field", v.Field, "value", v.Value)
		}
	}

	if e.evaluations != nil {
		e.evaluations.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.AttrAllowed.Bool(result.Allowed),
			attribute.Bool("shepherd.requires_approval", result.RequiresApproval),
		))
	}
	log.Debug("policy evaluated",
		"allowed", result.Allowed,
		"violations", len(result.Violations),
		"warnings", len(result.Warnings),
		"requires_approval", result.RequiresApproval)
	return result
}

// evaluateRule reports the first matching condition of rule, if any.
func evaluateRule(rule Rule, fields map[string]any) (Violation, bool) {
	for _, c := range rule.Conditions {
		matched, value := matchCondition(resolve(fields, c.Field), c)
		if !matched {
			continue
		}
		return Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Type:     rule.Type,
			Severity: rule.Severity,
			Message:  violationMessage(rule, c, value),
			Field:    c.Field,
			Value:    value,
		}, true
	}
	return Violation{}, false
}

func violationMessage(rule Rule, c Condition, value any) string {
	name := rule.Name
	if name == "" {
		name = rule.ID
	}
	if value == nil {
		return fmt.Sprintf("%s: %s %s %v", name, c.Field, c.Operator, c.Value)
	}
	return fmt.Sprintf("%s: %s %v %s %v", name, c.Field, value, c.Operator, c.Value)
}

func (e *Evaluator) countViolation(rule Rule) {
	if e.violations == nil {
		return
	}
	e.violations.Add(context.Background(), 1, metric.WithAttributes(
		telemetry.AttrRuleID.String(rule.ID),
		telemetry.AttrRuleType.String(string(rule.Type)),
		attribute.String("shepherd.severity", string(rule.Severity)),
	))
}
