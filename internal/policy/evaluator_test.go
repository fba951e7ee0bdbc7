package policy

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Iron-Ham/shepherd/internal/config"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

func newDefaultEvaluator(t *testing.T) (*Evaluator, *Store) {
	t.Helper()
	rules, err := BuiltinRules(config.Default().Policy)
	if err != nil {
		t.Fatalf("BuiltinRules() error = %v", err)
	}
	store, err := NewStore(rules...)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return NewEvaluator(store, nil), store
}

func TestEvaluate_BlockedPath(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)

	res := eval.Evaluate(Context{Files: []string{"node_modules/pkg/index.js"}})
	if res.Allowed {
		t.Fatal("node_modules write should be blocked")
	}
	if len(res.Violations) != 1 {
		t.Fatalf("Violations = %+v, want exactly one", res.Violations)
	}
	v := res.Violations[0]
	if v.Type != TypeFileAccess || v.RuleID != RuleBlockedPaths {
		t.Errorf("violation = %+v", v)
	}
	if v.Value != "node_modules/pkg/index.js" {
		t.Errorf("Value = %v", v.Value)
	}
}

func TestEvaluate_BotUser(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)

	res := eval.Evaluate(Context{User: User{Login: "renovate[bot]", Type: "Bot"}})
	if res.Allowed {
		t.Fatal("bot user should be blocked")
	}
	if len(res.Violations) != 1 || res.Violations[0].RuleID != RuleBotRestriction {
		t.Errorf("Violations = %+v", res.Violations)
	}
}

func TestEvaluate_CleanContextAllowed(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)

	res := eval.Evaluate(Context{
		MigrationID:     "add-tests",
		Step:            2,
		Files:           []string{"src/app.go", "./internal/x_test.go"},
		Commands:        []string{"go test ./..."},
		NetworkRequests: []NetworkRequest{{URL: "https://proxy.golang.org/github.com/x/@v/list"}},
		ResourceUsage:   ResourceUsage{Timeout: 600},
		User:            User{Login: "octocat", Type: "User"},
	})
	if !res.Allowed {
		t.Errorf("clean context blocked: %+v", res.Violations)
	}
	if len(res.Warnings) != 0 || res.RequiresApproval {
		t.Errorf("unexpected warnings %+v / approval %v", res.Warnings, res.RequiresApproval)
	}
	if res.Violations == nil || res.Warnings == nil {
		t.Error("result lists should be empty, not nil")
	}
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)

	res := eval.Evaluate(Context{
		Files:           []string{".github/workflows/ci.yml", "config/.env"},
		Commands:        []string{"SUDO rm -rf /tmp/x"},
		NetworkRequests: []NetworkRequest{{Host: "evil.example.com"}},
		ResourceUsage:   ResourceUsage{Timeout: 7200},
		User:            User{Type: "Bot"},
	})

	var got []string
	for _, v := range res.Violations {
		got = append(got, v.RuleID)
	}
	want := []string{RuleBlockedPaths, RuleDangerousCommands, RuleNetworkIsolation, RuleStepTimeout, RuleBotRestriction}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("violations in order = %v, want %v", got, want)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].RuleID != RuleApprovalPaths {
		t.Errorf("Warnings = %+v", res.Warnings)
	}
	if !res.RequiresApproval {
		t.Error("workflow change should require approval")
	}
	if res.Allowed {
		t.Error("Allowed = true")
	}
}

func TestEvaluate_ApprovalOnlyStillAllowed(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)

	res := eval.Evaluate(Context{Files: []string{".github/workflows/release.yml"}})
	if !res.Allowed {
		t.Errorf("warning-severity rule must not block: %+v", res.Violations)
	}
	if !res.RequiresApproval {
		t.Error("RequiresApproval = false")
	}
}

func TestEvaluate_RequireApprovalOnBlockingRule(t *testing.T) {
	store, _ := NewStore(Rule{
		ID:         "db",
		Type:       TypeFileAccess,
		Severity:   SeverityCritical,
		Enabled:    true,
		Conditions: []Condition{{Field: "files", Operator: OpMatches, Value: "db/migrations/**"}},
		Actions:    []Action{ActionRequireApproval},
	})
	res := NewEvaluator(store, nil).Evaluate(Context{Files: []string{"db/migrations/001.sql"}})
	if res.Allowed || !res.RequiresApproval {
		t.Errorf("got allowed=%v approval=%v, want blocked and approval", res.Allowed, res.RequiresApproval)
	}
}

func TestEvaluate_ConditionsAreOred(t *testing.T) {
	store, _ := NewStore(Rule{
		ID: "either", Type: TypeCommand, Severity: SeverityError, Enabled: true,
		Conditions: []Condition{
			{Field: "commands", Operator: OpContains, Value: "npm publish"},
			{Field: "user.login", Operator: OpEquals, Value: "intern"},
		},
	})
	eval := NewEvaluator(store, nil)

	if res := eval.Evaluate(Context{User: User{Login: "intern"}}); res.Allowed {
		t.Error("second condition alone should violate")
	}
	if res := eval.Evaluate(Context{Commands: []string{"npm publish --tag next"}}); res.Allowed {
		t.Error("first condition alone should violate")
	}
	if res := eval.Evaluate(Context{Commands: []string{"npm test"}, User: User{Login: "dev"}}); !res.Allowed {
		t.Error("no condition matched but rule violated")
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	eval, store := newDefaultEvaluator(t)
	if err := store.Disable(RuleBotRestriction); err != nil {
		t.Fatal(err)
	}
	if res := eval.Evaluate(Context{User: User{Type: "Bot"}}); !res.Allowed {
		t.Errorf("disabled rule still applied: %+v", res.Violations)
	}

	if err := store.Enable(RuleBotRestriction); err != nil {
		t.Fatal(err)
	}
	if res := eval.Evaluate(Context{User: User{Type: "Bot"}}); res.Allowed {
		t.Error("re-enabled rule not applied")
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	eval, _ := newDefaultEvaluator(t)
	ctx := Context{Files: []string{"a/.env", "node_modules/x"}, User: User{Type: "Bot"}}

	first := eval.Evaluate(ctx)
	for range 5 {
		again := eval.Evaluate(ctx)
		if len(again.Violations) != len(first.Violations) || again.Allowed != first.Allowed {
			t.Fatalf("evaluation changed between calls: %+v vs %+v", first, again)
		}
		for i := range first.Violations {
			if again.Violations[i].Message != first.Violations[i].Message {
				t.Fatalf("violation %d message changed", i)
			}
		}
	}
}

func TestEvaluate_NetworkModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		hosts   []string
		req     NetworkRequest
		allowed bool
	}{
		{"open allows anything", "open", nil, NetworkRequest{Host: "example.com"}, true},
		{"strict blocks anything", "strict", nil, NetworkRequest{URL: "https://api.github.com/repos"}, false},
		{"allowlist allows listed host", "allowlist", []string{"api.github.com"}, NetworkRequest{URL: "https://api.github.com/x"}, true},
		{"allowlist glob", "allowlist", []string{"*.github.com"}, NetworkRequest{Host: "uploads.github.com"}, true},
		{"allowlist host case folded", "allowlist", []string{"api.github.com"}, NetworkRequest{Host: "API.GitHub.com"}, true},
		{"allowlist blocks other host", "allowlist", []string{"api.github.com"}, NetworkRequest{Host: "pastebin.com"}, false},
		{"allowlist empty blocks all", "allowlist", []string{}, NetworkRequest{Host: "api.github.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.PolicyConfig{NetworkMode: tt.mode, AllowedHosts: tt.hosts}
			rules, err := BuiltinRules(cfg)
			if err != nil {
				t.Fatal(err)
			}
			store, _ := NewStore(rules...)
			res := NewEvaluator(store, nil).Evaluate(Context{NetworkRequests: []NetworkRequest{tt.req}})
			if res.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (%+v)", res.Allowed, tt.allowed, res.Violations)
			}
		})
	}

	t.Run("no requests never trips network rules", func(t *testing.T) {
		rules, _ := BuiltinRules(config.PolicyConfig{NetworkMode: "strict"})
		store, _ := NewStore(rules...)
		if res := NewEvaluator(store, nil).Evaluate(Context{}); !res.Allowed {
			t.Errorf("empty context blocked: %+v", res.Violations)
		}
	})
}

func TestEvaluate_AllowedPaths(t *testing.T) {
	rules, _ := BuiltinRules(config.PolicyConfig{AllowedPaths: []string{"src/**", "docs/*.md"}})
	store, _ := NewStore(rules...)
	eval := NewEvaluator(store, nil)

	if res := eval.Evaluate(Context{Files: []string{"src/a/b.go", "docs/readme.md"}}); !res.Allowed {
		t.Errorf("files inside allowed paths blocked: %+v", res.Violations)
	}
	res := eval.Evaluate(Context{Files: []string{"src/a.go", "Makefile"}})
	if res.Allowed {
		t.Fatal("file outside allowed paths not blocked")
	}
	if res.Violations[0].Value != "Makefile" {
		t.Errorf("violation value = %v, want Makefile", res.Violations[0].Value)
	}
}

func TestEvaluate_LogAction(t *testing.T) {
	var buf bytes.Buffer
	rules, _ := BuiltinRules(config.PolicyConfig{RestrictBots: true})
	store, _ := NewStore(rules...)
	eval := NewEvaluator(store, logging.NewWriterLogger(&buf, "info"))

	eval.Evaluate(Context{MigrationID: "add-tests", Step: 3, User: User{Type: "Bot"}})
	out := buf.String()
	for _, want := range []string{`"msg":"policy rule matched"`, `"rule_id":"builtin-bot-restriction"`, `"migration_id":"add-tests"`, `"step":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestEvaluate_RuleUpdatesVisible(t *testing.T) {
	store, _ := NewStore()
	eval := NewEvaluator(store, nil)
	ctx := Context{Commands: []string{"terraform destroy"}}

	if !eval.Evaluate(ctx).Allowed {
		t.Fatal("empty store should allow")
	}
	if err := store.Upsert(Rule{
		ID:         "no-destroy",
		Type:       TypeCommand,
		Severity:   SeverityInfo,
		Enabled:    true,
		Conditions: []Condition{{Field: "commands", Operator: OpContains, Value: "destroy"}},
	}); err != nil {
		t.Fatal(err)
	}
	if res := eval.Evaluate(ctx); !res.Allowed || len(res.Warnings) != 1 {
		t.Errorf("info rule: %+v", res)
	}

	// Upsert with a higher severity replaces the earlier definition.
	if err := store.Upsert(Rule{
		ID:         "no-destroy",
		Type:       TypeCommand,
		Severity:   SeverityCritical,
		Enabled:    true,
		Conditions: []Condition{{Field: "commands", Operator: OpContains, Value: "destroy"}},
	}); err != nil {
		t.Fatal(err)
	}
	if res := eval.Evaluate(ctx); res.Allowed || len(res.Warnings) != 0 {
		t.Errorf("critical rule: %+v", res)
	}
}
