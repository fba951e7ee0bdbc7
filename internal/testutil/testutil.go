// Package testutil provides fixtures shared by shepherd's package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/stepref"
)

// Source is an in-memory signal.Source. The zero value serves no pull
// requests. It is safe for concurrent use.
type Source struct {
	mu     sync.Mutex
	open   []signal.PullRequest
	closed []signal.PullRequest
	err    error
	calls  int
}

// NewSource returns a Source serving prs, split by their State field.
func NewSource(prs ...signal.PullRequest) *Source {
	s := &Source{}
	s.Add(prs...)
	return s
}

// Add appends prs to the lists the source serves.
func (s *Source) Add(prs ...signal.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range prs {
		if pr.State == "open" {
			s.open = append(s.open, pr)
		} else {
			s.closed = append(s.closed, pr)
		}
	}
}

// FailWith makes every later list call return err.
func (s *Source) FailWith(err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Calls returns the number of list calls served so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ListPullRequests implements signal.Source.
// It serves every pull request regardless of migrationID; the collector
// does the filtering.
func (s *Source) ListPullRequests(_ context.Context, _ string, st signal.PRState) ([]signal.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if st == signal.StateOpen {
		return append([]signal.PullRequest(nil), s.open...), nil
	}
	return append([]signal.PullRequest(nil), s.closed...), nil
}

// OpenStep is an open pull request for one step, carrying the step branch
// and migration label.
func OpenStep(migrationID string, step, number int) signal.PullRequest {
	pr := stepPR(migrationID, step, number)
	pr.State = "open"
	return pr
}

// MergedStep is a merged pull request for one step.
func MergedStep(migrationID string, step, number int) signal.PullRequest {
	pr := stepPR(migrationID, step, number)
	pr.State = "closed"
	pr.Merged = true
	return pr
}

// AbandonedStep is a pull request for one step closed without merging.
func AbandonedStep(migrationID string, step, number int) signal.PullRequest {
	pr := stepPR(migrationID, step, number)
	pr.State = "closed"
	return pr
}

// MergedSteps is MergedStep for steps 1 through n, numbered from firstNumber.
func MergedSteps(migrationID string, n, firstNumber int) []signal.PullRequest {
	prs := make([]signal.PullRequest, 0, n)
	for step := 1; step <= n; step++ {
		prs = append(prs, MergedStep(migrationID, step, firstNumber+step-1))
	}
	return prs
}

func stepPR(migrationID string, step, number int) signal.PullRequest {
	ref := stepref.StepReference{MigrationID: migrationID, Step: step}
	return signal.PullRequest{
		Number:  number,
		Title:   stepref.Title(ref, fmt.Sprintf("step %d", step)),
		HeadRef: stepref.BranchName(ref),
		Labels:  []string{stepref.Label(ref)},
	}
}

// WriteFile writes content to path, creating parent directories, and fails
// the test on error.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WritePlan writes a migration plan document with the given front matter to
// dir/<id>.md. An empty status is omitted.
func WritePlan(t *testing.T, dir, id string, totalSteps int, status string) string {
	t.Helper()
	doc := fmt.Sprintf("---\nid: %s\ntotal_steps: %d\n", id, totalSteps)
	if status != "" {
		doc += "status: " + status + "\n"
	}
	doc += "---\n\n# " + id + "\n"
	path := filepath.Join(dir, id+".md")
	WriteFile(t, path, doc)
	return path
}
