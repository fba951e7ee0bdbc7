package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state <migration-id>",
	Short: "Show a migration's inferred state",
	Long: `Collect the migration's pull requests and infer its state.

The state is recomputed on every call:
  active     a step pull request is open
  pending    every closed pull request was merged, or none exist yet
  paused     a pull request was closed without merging
  completed  the migration plan is marked completed`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{signals: true})
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.svc.GetMigrationState(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(out, info)
	}
	printState(out, info)
	return nil
}

func printState(out io.Writer, info *state.MigrationStateInfo) {
	fmt.Fprintf(out, "Migration: %s\n", info.MigrationID)
	fmt.Fprintf(out, "State: %s\n", info.State)
	fmt.Fprintf(out, "Current step: %d\n", info.CurrentStep)
	if info.TotalTasks > 0 {
		fmt.Fprintf(out, "Progress: %d/%d steps merged\n", info.CompletedTasks, info.TotalTasks)
	} else {
		fmt.Fprintf(out, "Progress: %d steps merged\n", info.CompletedTasks)
	}
	fmt.Fprintf(out, "Open PRs: %s\n", prNumbers(info.OpenPRs))
	fmt.Fprintf(out, "Closed PRs: %s\n", prNumbers(info.ClosedPRs))
	if len(info.UnparsedPRs) > 0 {
		fmt.Fprintf(out, "Unrecognized PRs: %s\n", joinInts(info.UnparsedPRs))
	}
	if !info.LastUpdated.IsZero() {
		fmt.Fprintf(out, "Observed: %s\n", info.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	}
}

func prNumbers(prs []signal.PullRequestSignal) string {
	nums := make([]int, len(prs))
	for i, pr := range prs {
		nums[i] = pr.Number
	}
	return joinInts(nums)
}

func joinInts(nums []int) string {
	if len(nums) == 0 {
		return "none"
	}
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("#%d", n)
	}
	return strings.Join(parts, ", ")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
