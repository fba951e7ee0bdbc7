// Package state infers a migration's lifecycle state from its pull request
// signals. Inference is a pure function of the snapshot: the same signals in
// any order always yield the same MigrationStateInfo.
package state

import (
	"cmp"
	"slices"
	"time"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/stepref"
)

// State is a migration's lifecycle state.
type State string

const (
	// StatePending means no work is in flight and the next step awaits dispatch.
	// It covers both "never started" and "ready for the next step".
	StatePending State = "pending"
	// StateActive means at least one pull request is open.
	StateActive State = "active"
	// StatePaused means a pull request was closed without merging.
	StatePaused State = "paused"
	// StateCompleted is never inferred from signals; see MarkCompleted.
	StateCompleted State = "completed"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateActive, StatePaused, StateCompleted:
		return true
	}
	return false
}

// MigrationStateInfo is the computed view of one migration. It is rebuilt from
// a fresh snapshot on every call and never stored.
type MigrationStateInfo struct {
	MigrationID    string                     `json:"migration_id"`
	State          State                      `json:"state"`
	CurrentStep    int                        `json:"current_step"`
	OpenPRs        []signal.PullRequestSignal `json:"open_prs"`
	ClosedPRs      []signal.PullRequestSignal `json:"closed_prs"`
	CompletedTasks int                        `json:"completed_tasks"`
	TotalTasks     int                        `json:"total_tasks"`
	// MergedSteps lists the distinct merged step numbers in ascending order.
	MergedSteps []int `json:"merged_steps"`
	// UnparsedPRs lists pull requests whose step could not be decoded.
	UnparsedPRs []int     `json:"unparsed_prs,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Engine computes MigrationStateInfo values. It holds no mutable state.
type Engine struct {
	logger *logging.Logger
}

// NewEngine creates an Engine. A nil logger discards diagnostics.
func NewEngine(logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{logger: logger}
}

// Infer derives the state of snap's migration. totalTasks comes from the
// migration plan and is passed through unchanged.
//
// The rules, applied in order:
//
//  1. any open pull request: active
//  2. otherwise, closed pull requests that were all merged: pending
//  3. otherwise, any closed pull request left unmerged: paused
//  4. otherwise (no pull requests): pending
//
// CurrentStep is the highest merged step plus one, whatever the state.
// Pull requests without a decodable step still count toward the open and
// closed lists but never toward CurrentStep.
func (e *Engine) Infer(snap *signal.Snapshot, totalTasks int) MigrationStateInfo {
	if snap == nil {
		snap = &signal.Snapshot{}
	}

	info := MigrationStateInfo{
		MigrationID: snap.MigrationID,
		OpenPRs:     sortedCopy(snap.Open),
		ClosedPRs:   sortedCopy(snap.Closed),
		TotalTasks:  totalTasks,
		MergedSteps: []int{},
		LastUpdated: snap.ObservedAt,
	}

	log := e.logger.WithMigration(snap.MigrationID)

	maxMerged := 0
	seen := make(map[int]bool)
	for _, pr := range slices.Concat(info.OpenPRs, info.ClosedPRs) {
		step, ok := stepOf(pr, snap.MigrationID)
		if !ok {
			err := errors.NewUnparseableStepError(pr.Number, pr.Branch)
			log.WithPullRequest(pr.Number).Warn("pull request carries no step reference",
				"branch", pr.Branch, "error", err.Error())
			info.UnparsedPRs = append(info.UnparsedPRs, pr.Number)
			continue
		}
		if !pr.IsMerged {
			continue
		}
		if !seen[step] {
			seen[step] = true
			info.MergedSteps = append(info.MergedSteps, step)
		}
		maxMerged = max(maxMerged, step)
	}

	slices.Sort(info.MergedSteps)
	slices.Sort(info.UnparsedPRs)
	info.CompletedTasks = len(info.MergedSteps)
	info.CurrentStep = maxMerged + 1
	info.State = classify(info.OpenPRs, info.ClosedPRs)

	log.Debug("state inferred",
		"state", string(info.State),
		"current_step", info.CurrentStep,
		"open", len(info.OpenPRs),
		"closed", len(info.ClosedPRs),
		"completed_tasks", info.CompletedTasks)
	return info
}

func classify(open, closed []signal.PullRequestSignal) State {
	if len(open) > 0 {
		return StateActive
	}
	if len(closed) > 0 {
		for _, pr := range closed {
			if !pr.IsMerged {
				return StatePaused
			}
		}
		return StatePending
	}
	return StatePending
}

// MarkCompleted returns info with its state set to completed. Callers use it
// when the migration plan declares the migration finished; signals alone
// cannot distinguish "finished" from "ready for the next step".
func MarkCompleted(info MigrationStateInfo) MigrationStateInfo {
	info.State = StateCompleted
	return info
}

// stepOf decodes pr's step for migrationID. References naming other
// migrations are ignored; a pull request with none for this one is
// unparseable.
func stepOf(pr signal.PullRequestSignal, migrationID string) (int, bool) {
	ref, _, ok := stepref.ResolveFor(migrationID, pr.Labels, pr.Branch, pr.Title)
	if !ok {
		return 0, false
	}
	return ref.Step, true
}

func sortedCopy(prs []signal.PullRequestSignal) []signal.PullRequestSignal {
	out := make([]signal.PullRequestSignal, len(prs))
	for i, pr := range prs {
		pr.Labels = slices.Clone(pr.Labels)
		out[i] = pr
	}
	slices.SortStableFunc(out, func(a, b signal.PullRequestSignal) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return out
}
