// Package signal collects the pull request signals a migration's state is
// inferred from. It is the only part of shepherd that performs network I/O.
package signal

import (
	"context"
	"slices"
	"time"
)

// PRState filters pull requests by lifecycle state.
type PRState string

const (
	StateOpen   PRState = "open"
	StateClosed PRState = "closed"
)

// PullRequest is the transport-level shape returned by a Source.
type PullRequest struct {
	Number  int
	Title   string
	HeadRef string
	State   string // "open" or "closed"
	Merged  bool
	Labels  []string
}

// Source lists pull requests from the hosting platform. Implementations
// narrow the listing to pull requests that may belong to migrationID; they
// may return extra candidates, which the Collector filters out.
type Source interface {
	ListPullRequests(ctx context.Context, migrationID string, state PRState) ([]PullRequest, error)
}

// PullRequestSignal is an immutable snapshot of one pull request at
// observation time.
type PullRequestSignal struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	Branch   string   `json:"branch"`
	IsOpen   bool     `json:"is_open"`
	IsMerged bool     `json:"is_merged"`
	Labels   []string `json:"labels"`
}

// Snapshot is the full signal set for one migration from a single collection.
// Decisions made for one request must all be computed from the same Snapshot.
type Snapshot struct {
	MigrationID string              `json:"migration_id"`
	Open        []PullRequestSignal `json:"open"`
	Closed      []PullRequestSignal `json:"closed"`
	ObservedAt  time.Time           `json:"observed_at"`
}

// Empty reports whether the snapshot holds no pull requests at all.
func (s *Snapshot) Empty() bool {
	return len(s.Open) == 0 && len(s.Closed) == 0
}

func toSignal(pr PullRequest) PullRequestSignal {
	return PullRequestSignal{
		Number:   pr.Number,
		Title:    pr.Title,
		Branch:   pr.HeadRef,
		IsOpen:   pr.State == string(StateOpen),
		IsMerged: pr.Merged,
		Labels:   slices.Clone(pr.Labels),
	}
}
