package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/shepherd/internal/dashboard"
)

var statusCmd = &cobra.Command{
	Use:   "status [migration-id...]",
	Short: "Show the state of every migration",
	Long: `Display a table with the state of each migration.

Without arguments, every plan in plans.dir is shown. Migrations are
refreshed concurrently (dashboard.concurrency at a time); a migration whose
pull requests cannot be fetched is shown as an error without hiding the rest.`,
	RunE: runStatus,
}

var statusWatch time.Duration

func init() {
	statusCmd.Flags().DurationVar(&statusWatch, "watch", 0, "refresh at this interval until interrupted (e.g. 30s)")
	rootCmd.AddCommand(statusCmd)
}

// StatusRow is the JSON form of one dashboard row.
type StatusRow struct {
	MigrationID string `json:"migration_id"`
	State       string `json:"state"`
	CurrentStep int    `json:"current_step,omitempty"`
	Completed   int    `json:"completed_tasks,omitempty"`
	Total       int    `json:"total_tasks,omitempty"`
	OpenPRs     int    `json:"open_prs"`
	ClosedPRs   int    `json:"closed_prs"`
	Error       string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.ErrOrStderr(), appOptions{signals: true})
	if err != nil {
		return err
	}
	defer a.close()

	ids := args
	if len(ids) == 0 {
		ids, err = a.svc.Migrations(ctx)
		if err != nil {
			return fmt.Errorf("failed to list migrations: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	render := func() error {
		rows := dashboard.Refresh(ctx, a.svc, ids, a.cfg.Dashboard.Concurrency)
		if jsonOutput(cmd) {
			return writeJSON(out, statusRows(rows))
		}
		fmt.Fprintln(out, dashboard.Render(rows, terminalWidth()))
		return nil
	}

	if statusWatch <= 0 {
		return render()
	}

	ticker := time.NewTicker(statusWatch)
	defer ticker.Stop()
	for {
		if err := render(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func statusRows(rows []dashboard.Row) []StatusRow {
	out := make([]StatusRow, 0, len(rows))
	for _, r := range rows {
		sr := StatusRow{MigrationID: r.MigrationID, State: r.StateName()}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		if r.Info != nil {
			sr.CurrentStep = r.Info.CurrentStep
			sr.Completed = r.Info.CompletedTasks
			sr.Total = r.Info.TotalTasks
			sr.OpenPRs = len(r.Info.OpenPRs)
			sr.ClosedPRs = len(r.Info.ClosedPRs)
		}
		out = append(out, sr)
	}
	return out
}

// terminalWidth returns stdout's width, or 0 when stdout is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	if w, _, err := term.GetSize(fd); err == nil {
		return w
	}
	return 0
}
