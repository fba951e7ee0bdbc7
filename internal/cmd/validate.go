package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shepherd/internal/sequencer"
	"github.com/Iron-Ham/shepherd/internal/state"
)

var validateCmd = &cobra.Command{
	Use:   "validate <migration-id> <step>",
	Short: "Check whether a step may run now",
	Long: `Decide whether the given step of a migration may be dispatched.

The migration's current step and the legality of the request are computed
from one collection of its pull requests.

The exit code indicates the result:
  0 - the step may run
  1 - the step was rejected, or the state could not be determined

Examples:
  # May step 4 of add-tests run?
  shepherd validate add-tests 4

  # Re-run a paused migration's step 2 out of order
  shepherd validate add-tests 2 --force`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

var validateForce bool

func init() {
	validateCmd.Flags().BoolVar(&validateForce, "force", false, "allow a step other than the current one when no step is in flight")
	rootCmd.AddCommand(validateCmd)
}

// ValidateOutput is the JSON form of a step decision.
type ValidateOutput struct {
	sequencer.Decision
	TotalTasks int `json:"total_tasks"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	step, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("step must be an integer: %q", args[1])
	}

	a, err := newApp(cmd.Context(), cmd.ErrOrStderr(), appOptions{signals: true})
	if err != nil {
		return err
	}
	defer a.close()

	d, info, err := a.svc.ValidateStepRequest(cmd.Context(), args[0], step, validateForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		if err := writeJSON(out, ValidateOutput{Decision: d, TotalTasks: info.TotalTasks}); err != nil {
			return err
		}
	} else {
		printDecision(cmd, d, info)
	}

	if !d.Allowed {
		return &silentError{msg: "step rejected"}
	}
	return nil
}

func printDecision(cmd *cobra.Command, d sequencer.Decision, info *state.MigrationStateInfo) {
	out := cmd.OutOrStdout()
	switch {
	case !d.Allowed:
		fmt.Fprintf(out, "✗ Step %d of %s rejected (%s)\n", d.RequestedStep, d.MigrationID, d.Code)
		fmt.Fprintf(out, "  %s\n", d.Reason)
	case d.Forced:
		fmt.Fprintf(out, "! Step %d of %s allowed by --force\n", d.RequestedStep, d.MigrationID)
	default:
		fmt.Fprintf(out, "✓ Step %d of %s may run\n", d.RequestedStep, d.MigrationID)
	}
	fmt.Fprintf(out, "  state: %s, current step: %d", d.State, d.CurrentStep)
	if info.TotalTasks > 0 {
		fmt.Fprintf(out, " of %d", info.TotalTasks)
	}
	fmt.Fprintln(out)
}
