// Package dashboard renders a status table for many migrations at once.
//
// Refresh fans GetMigrationState out over a bounded worker pool. Each row is
// computed from its own collection, so one migration's failure never hides
// or delays another's state.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/shepherd/internal/state"
)

// DefaultConcurrency is used when Refresh is given a non-positive limit.
const DefaultConcurrency = 4

// StateGetter computes one migration's state. *migration.Service satisfies it.
type StateGetter interface {
	GetMigrationState(ctx context.Context, migrationID string) (*state.MigrationStateInfo, error)
}

// Row is one migration's line on the dashboard. Exactly one of Info and Err
// is set.
type Row struct {
	MigrationID string
	Info        *state.MigrationStateInfo
	Err         error
	Elapsed     time.Duration
}

// StateName returns the row's state, or "error" when collection failed.
func (r Row) StateName() string {
	if r.Err != nil || r.Info == nil {
		return "error"
	}
	return string(r.Info.State)
}

// Refresh computes the state of every migration in ids with at most
// concurrency calls in flight. Rows come back in the order of ids.
func Refresh(ctx context.Context, svc StateGetter, ids []string, concurrency int) []Row {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	p := pool.NewWithResults[Row]().WithMaxGoroutines(concurrency)
	for _, id := range ids {
		p.Go(func() Row {
			start := time.Now()
			info, err := svc.GetMigrationState(ctx, id)
			return Row{MigrationID: id, Info: info, Err: err, Elapsed: time.Since(start)}
		})
	}
	return p.Wait()
}

// Render draws rows as a table. A positive width caps the table width.
func Render(rows []Row, width int) string {
	if len(rows) == 0 {
		return Muted.Render("No migrations found.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(BorderColor)).
		Headers("MIGRATION", "STATE", "STEP", "PROGRESS", "OPEN", "CLOSED", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Header
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return Cell.Foreground(StateColor(rows[row].StateName()))
			}
			return Cell
		})
	if width > 0 {
		t = t.Width(width)
	}

	for _, r := range rows {
		t.Row(cells(r)...)
	}

	var b strings.Builder
	b.WriteString(Title.Render("Migrations"))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(Muted.Render(Summary(rows)))
	for _, r := range rows {
		if r.Err != nil {
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(StateError).
				Render(Truncate(fmt.Sprintf("%s: %v", r.MigrationID, r.Err), maxErrorWidth)))
		}
	}
	return b.String()
}

func cells(r Row) []string {
	name := r.StateName()
	id := Truncate(r.MigrationID, maxIDWidth)
	stateCell := StateIcon(name) + " " + name
	if r.Info == nil {
		return []string{id, stateCell, "-", "-", "-", "-", "-"}
	}

	progress := fmt.Sprintf("%d", r.Info.CompletedTasks)
	if r.Info.TotalTasks > 0 {
		progress = fmt.Sprintf("%d/%d", r.Info.CompletedTasks, r.Info.TotalTasks)
	}
	updated := "-"
	if !r.Info.LastUpdated.IsZero() {
		updated = r.Info.LastUpdated.Local().Format("2006-01-02 15:04")
	}
	return []string{
		id,
		stateCell,
		fmt.Sprintf("%d", r.Info.CurrentStep),
		progress,
		fmt.Sprintf("%d", len(r.Info.OpenPRs)),
		fmt.Sprintf("%d", len(r.Info.ClosedPRs)),
		updated,
	}
}

// Summary counts rows by state, e.g. "3 migrations: 1 active, 2 pending".
func Summary(rows []Row) string {
	order := []string{"active", "pending", "paused", "completed", "error"}
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.StateName()]++
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		if counts[name] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[name], name))
		}
	}
	noun := "migrations"
	if len(rows) == 1 {
		noun = "migration"
	}
	return fmt.Sprintf("%d %s: %s", len(rows), noun, strings.Join(parts, ", "))
}
