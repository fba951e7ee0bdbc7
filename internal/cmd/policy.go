package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/dashboard"
	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Evaluate and inspect policy rules",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a proposed agent action",
	Long: `Evaluate a proposed agent action against the configured rules.

The action is described either with flags or with a JSON document
(--input, "-" for stdin) shaped like:

  {
    "migrationId": "add-tests",
    "step": 3,
    "files": ["src/app.go"],
    "commands": ["go test ./..."],
    "networkRequests": [{"url": "https://proxy.golang.org/x"}],
    "resourceUsage": {"timeout": 600},
    "user": {"login": "renovate[bot]", "type": "Bot"}
  }

The exit code indicates the result:
  0 - the action is allowed (it may still need approval)
  1 - the action is denied, or the input is invalid

Examples:
  shepherd policy check --file node_modules/x/index.js
  shepherd policy check --command "sudo rm -rf /" --json
  shepherd policy check --input action.json

  # Agent hook mode: one JSON action per line in, one JSON result per line out
  shepherd policy check --stream < actions.jsonl`,
	Args: cobra.NoArgs,
	RunE: runPolicyCheck,
}

var policyRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the active policy rules",
	RunE:  runPolicyRules,
}

var policyWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the rules file whenever it changes",
	Long: `Watch policy.rules_file and reload it on every change, printing the
outcome of each reload until interrupted. A file that fails to load leaves
the previous rules in force.`,
	Args: cobra.NoArgs,
	RunE: runPolicyWatch,
}

var (
	checkInput     string
	checkMigration string
	checkStep      int
	checkFiles     []string
	checkCommands  []string
	checkURLs      []string
	checkTimeout   int
	checkMemoryMB  int
	checkUser      string
	checkUserType  string
	checkStream    bool
)

func init() {
	f := policyCheckCmd.Flags()
	f.StringVar(&checkInput, "input", "", "JSON file describing the action (- for stdin)")
	f.StringVar(&checkMigration, "migration", "", "migration identifier")
	f.IntVar(&checkStep, "step", 0, "step number")
	f.StringArrayVar(&checkFiles, "file", nil, "file the action touches (repeatable)")
	f.StringArrayVar(&checkCommands, "command", nil, "command the action runs (repeatable)")
	f.StringArrayVar(&checkURLs, "url", nil, "URL the action requests (repeatable)")
	f.IntVar(&checkTimeout, "timeout", 0, "requested step timeout in seconds")
	f.IntVar(&checkMemoryMB, "memory-mb", 0, "requested memory in MB")
	f.StringVar(&checkUser, "user", "", "login of the requesting account")
	f.StringVar(&checkUserType, "user-type", "", "account type, e.g. User or Bot")
	f.BoolVar(&checkStream, "stream", false, "evaluate newline-delimited JSON actions from stdin")

	policyCmd.AddCommand(policyCheckCmd)
	policyCmd.AddCommand(policyRulesCmd)
	policyCmd.AddCommand(policyWatchCmd)
	rootCmd.AddCommand(policyCmd)
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	if checkStream {
		a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		return runPolicyStream(cmd, a)
	}

	pctx, err := checkContext(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	result := a.svc.EvaluatePolicy(cmd.Context(), pctx)

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printEvaluation(out, result)
	}

	if !result.Allowed {
		return &silentError{msg: "action denied by policy"}
	}
	return nil
}

// checkContext builds the evaluation context from --input or the flags.
func checkContext(stdin io.Reader) (policy.Context, error) {
	var pctx policy.Context
	if checkInput != "" {
		var data []byte
		var err error
		if checkInput == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(checkInput)
		}
		if err != nil {
			return pctx, fmt.Errorf("failed to read action: %w", err)
		}
		return decodeContext(data)
	}

	pctx = policy.Context{
		MigrationID: checkMigration,
		Step:        checkStep,
		Files:       checkFiles,
		Commands:    checkCommands,
		ResourceUsage: policy.ResourceUsage{
			Timeout:  checkTimeout,
			MemoryMB: checkMemoryMB,
		},
		User: policy.User{Login: checkUser, Type: checkUserType},
	}
	for _, u := range checkURLs {
		pctx.NetworkRequests = append(pctx.NetworkRequests, policy.NetworkRequest{URL: u})
	}
	return pctx, nil
}

func decodeContext(data []byte) (policy.Context, error) {
	var pctx policy.Context
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pctx); err != nil {
		return pctx, errors.NewValidationError("invalid action document").WithCause(err)
	}
	return pctx, nil
}

func printEvaluation(out io.Writer, result policy.EvaluationResult) {
	red := lipgloss.NewStyle().Foreground(dashboard.StateError)
	amber := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	green := lipgloss.NewStyle().Foreground(dashboard.StateActive)

	if result.Allowed {
		fmt.Fprintln(out, green.Render("✓ Allowed"))
	} else {
		fmt.Fprintln(out, red.Render("✗ Denied"))
	}
	if result.RequiresApproval {
		fmt.Fprintln(out, amber.Render("! Requires human approval"))
	}

	if len(result.Violations) > 0 {
		fmt.Fprintf(out, "\nViolations (%d):\n", len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(out, "  %s [%s] %s\n", red.Render("✗"), v.RuleID, v.Message)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  %s [%s] %s\n", amber.Render("⚠"), w.RuleID, w.Message)
		}
	}
}

func runPolicyRules(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	rules := a.store.Rules()
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(out, rules)
	}

	fmt.Fprintf(out, "%d rules (version %d)\n\n", len(rules), a.store.Version())
	for _, r := range rules {
		status := "enabled"
		if !r.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(out, "%s  %s  %s  %s\n", r.ID, r.Type, r.Severity, status)
		if r.Name != "" {
			fmt.Fprintf(out, "    %s\n", r.Name)
		}
		for _, c := range r.Conditions {
			fmt.Fprintf(out, "    when %s %s %v\n", c.Field, c.Operator, c.Value)
		}
	}
	return nil
}

func runPolicyWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	a.bus.Subscribe(event.TypeRulesReloaded, func(e event.Event) {
		ev := e.(event.RulesReloadedEvent)
		if ev.Err != nil {
			fmt.Fprintf(out, "reload failed, keeping %d rules: %v\n", ev.Rules, ev.Err)
			return
		}
		fmt.Fprintf(out, "reloaded %d rules (version %d)\n", ev.Rules, ev.Version)
	})

	stop, err := a.watchRules()
	if err != nil {
		return err
	}
	defer stop()

	fmt.Fprintf(out, "watching %s (%d rules)\n", a.cfg.Policy.RulesFile, a.store.Len())
	<-cmd.Context().Done()
	return nil
}

// runPolicyStream evaluates one JSON action per input line and writes one
// JSON result per line, until the input ends. With policy.watch_rules_file
// set, rule file edits apply to the next line.
func runPolicyStream(cmd *cobra.Command, a *app) error {
	if a.cfg.Policy.WatchRulesFile {
		stop, err := a.watchRules()
		if err != nil {
			return err
		}
		defer stop()
	}

	type streamResult struct {
		policy.EvaluationResult
		Error string `json:"error,omitempty"`
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	denied := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		pctx, err := decodeContext(line)
		if err != nil {
			denied++
			if err := enc.Encode(streamResult{
				EvaluationResult: policy.EvaluationResult{Violations: []policy.Violation{}, Warnings: []policy.Violation{}},
				Error:            err.Error(),
			}); err != nil {
				return err
			}
			continue
		}
		result := a.svc.EvaluatePolicy(cmd.Context(), pctx)
		if !result.Allowed {
			denied++
		}
		if err := enc.Encode(streamResult{EvaluationResult: result}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read actions: %w", err)
	}
	a.logger.Debug("policy stream finished", "denied", denied)
	return nil
}
