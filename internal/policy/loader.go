package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shepherd/internal/errors"
)

// rulesFile is the on-disk layout of a rules file:
//
//	rules:
//	  - id: no-vendor
//	    name: Vendored code is read-only
//	    type: file_access
//	    severity: error
//	    conditions:
//	      - field: files
//	        operator: matches
//	        value: ["vendor/**"]
//	    actions: [block]
type rulesFile struct {
	Rules []ruleDoc `yaml:"rules"`
}

// ruleDoc mirrors Rule with Enabled optional so omitted means enabled.
type ruleDoc struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Type        RuleType    `yaml:"type"`
	Severity    Severity    `yaml:"severity"`
	Enabled     *bool       `yaml:"enabled"`
	Conditions  []Condition `yaml:"conditions"`
	Actions     []Action    `yaml:"actions"`
}

// LoadRulesFile reads and validates a YAML rules file. Any problem, including
// an unknown key, is a *errors.ConfigError; callers treat it as fatal at
// startup.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("read rules file", err).WithSource(path)
	}
	return ParseRules(data, path)
}

// ParseRules decodes a rules document. source names the document in errors.
func ParseRules(data []byte, source string) ([]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc rulesFile
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, errors.NewConfigError("parse rules file", err).WithSource(source)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	seen := make(map[string]int, len(doc.Rules))
	for i, d := range doc.Rules {
		r := Rule{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Type:        d.Type,
			Severity:    d.Severity,
			Enabled:     d.Enabled == nil || *d.Enabled,
			Conditions:  d.Conditions,
			Actions:     d.Actions,
		}
		if err := r.Validate(); err != nil {
			var cerr *errors.ConfigError
			if errors.As(err, &cerr) {
				return nil, cerr.WithSource(fmt.Sprintf("%s: rules[%d]", source, i))
			}
			return nil, err
		}
		if prev, dup := seen[r.ID]; dup {
			return nil, errors.NewConfigError(
				fmt.Sprintf("duplicate rule id (first defined at rules[%d])", prev), errors.ErrInvalidRule).
				WithSource(fmt.Sprintf("%s: rules[%d]", source, i)).WithRuleID(r.ID)
		}
		seen[r.ID] = i
		rules = append(rules, r)
	}
	return rules, nil
}

// Merge overlays extra onto base: a rule in extra replaces the base rule with
// the same id in place, and new ids are appended in order.
func Merge(base, extra []Rule) []Rule {
	out := make([]Rule, 0, len(base)+len(extra))
	for _, r := range base {
		out = append(out, cloneRule(r))
	}
	for _, r := range extra {
		if i := indexOf(out, r.ID); i >= 0 {
			out[i] = cloneRule(r)
			continue
		}
		out = append(out, cloneRule(r))
	}
	return out
}
