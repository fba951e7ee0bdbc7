package policy

import (
	"fmt"

	"github.com/Iron-Ham/shepherd/internal/config"
)

// Built-in rule ids. A rules file may override any of them by reusing the id.
const (
	RuleBlockedPaths      = "builtin-blocked-paths"
	RuleAllowedPaths      = "builtin-allowed-paths"
	RuleApprovalPaths     = "builtin-approval-paths"
	RuleDangerousCommands = "builtin-dangerous-commands"
	RuleNetworkIsolation  = "builtin-network-isolation"
	RuleStepTimeout       = "builtin-step-timeout"
	RuleBotRestriction    = "builtin-bot-restriction"
)

// BuiltinRules derives the default rule set from configuration. Rules whose
// setting is empty or turned off are omitted, except the bot restriction,
// which is always present and enabled according to cfg.RestrictBots so it
// can be toggled at runtime.
func BuiltinRules(cfg config.PolicyConfig) ([]Rule, error) {
	var rules []Rule

	if len(cfg.BlockedPaths) > 0 {
		rules = append(rules, Rule{
			ID:          RuleBlockedPaths,
			Name:        "Blocked paths",
			Description: "Agents may not touch files matching a blocked path",
			Type:        TypeFileAccess,
			Severity:    SeverityCritical,
			Enabled:     true,
			Conditions:  []Condition{{Field: "files", Operator: OpMatches, Value: cfg.BlockedPaths}},
			Actions:     []Action{ActionBlock},
		})
	}

	if len(cfg.AllowedPaths) > 0 {
		rules = append(rules, Rule{
			ID:          RuleAllowedPaths,
			Name:        "Allowed paths",
			Description: "Agents may only touch files matching an allowed path",
			Type:        TypeFileAccess,
			Severity:    SeverityError,
			Enabled:     true,
			Conditions:  []Condition{{Field: "files", Operator: OpNotMatches, Value: cfg.AllowedPaths}},
			Actions:     []Action{ActionBlock},
		})
	}

	if len(cfg.ApprovalPaths) > 0 {
		rules = append(rules, Rule{
			ID:          RuleApprovalPaths,
			Name:        "Approval required paths",
			Description: "Changes to these files need a human approval",
			Type:        TypeFileAccess,
			Severity:    SeverityWarning,
			Enabled:     true,
			Conditions:  []Condition{{Field: "files", Operator: OpMatches, Value: cfg.ApprovalPaths}},
			Actions:     []Action{ActionRequireApproval},
		})
	}

	if len(cfg.DangerousCommands) > 0 {
		rules = append(rules, Rule{
			ID:          RuleDangerousCommands,
			Name:        "Dangerous commands",
			Description: "Commands containing a dangerous fragment are refused",
			Type:        TypeCommand,
			Severity:    SeverityCritical,
			Enabled:     true,
			Conditions:  []Condition{{Field: "commands", Operator: OpContains, Value: cfg.DangerousCommands}},
			Actions:     []Action{ActionBlock},
		})
	}

	switch cfg.NetworkMode {
	case "", "open":
	case "strict":
		rules = append(rules, Rule{
			ID:          RuleNetworkIsolation,
			Name:        "Network isolation",
			Description: "No outbound network access is permitted",
			Type:        TypeNetwork,
			Severity:    SeverityError,
			Enabled:     true,
			Conditions:  []Condition{{Field: "networkRequests.host", Operator: OpMatches, Value: "*"}},
			Actions:     []Action{ActionBlock},
		})
	case "allowlist":
		rules = append(rules, Rule{
			ID:          RuleNetworkIsolation,
			Name:        "Network allowlist",
			Description: "Outbound requests are limited to allowed hosts",
			Type:        TypeNetwork,
			Severity:    SeverityError,
			Enabled:     true,
			Conditions:  []Condition{{Field: "networkRequests.host", Operator: OpNotMatches, Value: cfg.AllowedHosts}},
			Actions:     []Action{ActionBlock},
		})
	default:
		return nil, fmt.Errorf("unknown network mode %q", cfg.NetworkMode)
	}

	if cfg.StepTimeoutSeconds > 0 {
		rules = append(rules, Rule{
			ID:          RuleStepTimeout,
			Name:        "Step timeout ceiling",
			Description: fmt.Sprintf("A step may not request more than %d seconds", cfg.StepTimeoutSeconds),
			Type:        TypeResource,
			Severity:    SeverityError,
			Enabled:     true,
			Conditions:  []Condition{{Field: "resourceUsage.timeout", Operator: OpGreaterThan, Value: cfg.StepTimeoutSeconds}},
			Actions:     []Action{ActionBlock},
		})
	}

	rules = append(rules, Rule{
		ID:          RuleBotRestriction,
		Name:        "Bot restriction",
		Description: "Actions requested by bot accounts are refused",
		Type:        TypePermission,
		Severity:    SeverityError,
		Enabled:     cfg.RestrictBots,
		Conditions:  []Condition{{Field: "user.type", Operator: OpEquals, Value: "Bot"}},
		Actions:     []Action{ActionBlock, ActionLog},
	})

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}
