// Package policy gates agent actions through declarative rules.
//
// A [Store] holds the ordered rule list. It is seeded from configuration by
// [BuiltinRules], optionally extended from a YAML file by [LoadRulesFile], and
// may be changed at runtime (upsert, remove, enable, disable). Writes publish a
// new immutable copy, so concurrent readers never see a partial update.
//
// An [Evaluator] runs every enabled rule against a [Context] and combines the
// outcomes into one [EvaluationResult]:
//
//	store, _ := policy.NewStore(rules...)
//	eval := policy.NewEvaluator(store, logger)
//	res := eval.Evaluate(policy.Context{Files: []string{"node_modules/x.js"}})
//	if !res.Allowed {
//		// res.Violations lists every blocking rule that matched
//	}
//
// # Matching
//
// Conditions within a rule are OR'd: the rule matches when any condition does.
// Fields are dotted paths into the context ("files", "user.type",
// "networkRequests.host"). When a path crosses a list, matches, contains and
// their negations test each element and succeed if any element does;
// equals and not_equals compare lists as sets. A missing field never matches.
package policy
