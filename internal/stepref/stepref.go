// Package stepref encodes and decodes the step references carried by pull
// requests: which migration a pull request belongs to and which step (and
// optional chunk) of that migration it implements.
//
// Three carriers are understood, in order of precedence:
//
//	label   plan:<migrationId>:step:<n>[:<chunk>]
//	branch  <migrationId>-step-<n>[/<chunk>]
//	title   [<migrationId>] Step <n>[ (<chunk>)]: <summary>
//
// Labels are explicit structured metadata and always win. Branch names are a
// best-effort fallback: the decoder anchors on the rightmost "-step-<digits>"
// so identifiers such as "has-step-in-name" still decode correctly.
package stepref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StepReference identifies one step (or chunk of a step) of a migration.
type StepReference struct {
	MigrationID string `json:"migration_id"`
	Step        int    `json:"step"`
	Chunk       string `json:"chunk,omitempty"`
}

// String renders the reference in branch form.
func (r StepReference) String() string {
	return BranchName(r)
}

// Source names the carrier a reference was decoded from.
type Source string

const (
	SourceNone   Source = ""
	SourceLabel  Source = "label"
	SourceBranch Source = "branch"
	SourceTitle  Source = "title"
)

const (
	labelPrefix          = "plan:"
	migrationLabelPrefix = "migration:"
)

var (
	// The greedy identifier group makes the rightmost -step-<digits> before
	// the first "/" win.
	branchPattern = regexp.MustCompile(`^([^/]+)-step-(\d+)(?:/(.+))?$`)
	labelPattern  = regexp.MustCompile(`^plan:([^:]+):step:(\d+)(?::(.+))?$`)
	titlePattern  = regexp.MustCompile(`^\[([^\]]+)\]\s*[Ss]tep\s+(\d+)(?:\s*\(([^)]+)\))?\s*(?::|$)`)
	idPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// ValidMigrationID reports whether id is a kebab-case migration identifier.
func ValidMigrationID(id string) bool {
	return idPattern.MatchString(id)
}

// BranchName encodes ref as "<id>-step-<n>" with an optional "/<chunk>".
func BranchName(ref StepReference) string {
	name := fmt.Sprintf("%s-step-%d", ref.MigrationID, ref.Step)
	if ref.Chunk != "" {
		name += "/" + ref.Chunk
	}
	return name
}

// ParseBranch decodes a branch name. It reports false when the branch carries
// no "-step-<digits>" suffix.
func ParseBranch(branch string) (StepReference, bool) {
	m := branchPattern.FindStringSubmatch(branch)
	if m == nil {
		return StepReference{}, false
	}
	step, ok := parseStep(m[2])
	if !ok {
		return StepReference{}, false
	}
	return StepReference{MigrationID: m[1], Step: step, Chunk: m[3]}, true
}

// Label encodes ref as "plan:<id>:step:<n>" with an optional ":<chunk>".
func Label(ref StepReference) string {
	label := fmt.Sprintf("%s%s:step:%d", labelPrefix, ref.MigrationID, ref.Step)
	if ref.Chunk != "" {
		label += ":" + ref.Chunk
	}
	return label
}

// ParseLabel decodes a structured step label.
func ParseLabel(label string) (StepReference, bool) {
	m := labelPattern.FindStringSubmatch(label)
	if m == nil {
		return StepReference{}, false
	}
	step, ok := parseStep(m[2])
	if !ok {
		return StepReference{}, false
	}
	return StepReference{MigrationID: m[1], Step: step, Chunk: m[3]}, true
}

// MigrationLabel is the label attached to every pull request of a migration,
// step-specific or not.
func MigrationLabel(migrationID string) string {
	return migrationLabelPrefix + migrationID
}

// ParseMigrationLabel returns the migration named by a "migration:<id>" label.
func ParseMigrationLabel(label string) (string, bool) {
	id, ok := strings.CutPrefix(label, migrationLabelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Title renders a pull request title for ref.
func Title(ref StepReference, summary string) string {
	head := fmt.Sprintf("[%s] Step %d", ref.MigrationID, ref.Step)
	if ref.Chunk != "" {
		head += fmt.Sprintf(" (%s)", ref.Chunk)
	}
	if summary == "" {
		return head
	}
	return head + ": " + summary
}

// ParseTitle decodes a title produced by Title.
func ParseTitle(title string) (StepReference, bool) {
	m := titlePattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return StepReference{}, false
	}
	step, ok := parseStep(m[2])
	if !ok {
		return StepReference{}, false
	}
	return StepReference{MigrationID: m[1], Step: step, Chunk: m[3]}, true
}

// Resolve picks the step reference for a pull request. The first label that
// decodes wins, then the branch name, then the title.
func Resolve(labels []string, branch, title string) (StepReference, Source, bool) {
	for _, l := range labels {
		if ref, ok := ParseLabel(l); ok {
			return ref, SourceLabel, true
		}
	}
	if ref, ok := ParseBranch(branch); ok {
		return ref, SourceBranch, true
	}
	if ref, ok := ParseTitle(title); ok {
		return ref, SourceTitle, true
	}
	return StepReference{}, SourceNone, false
}

// ResolveFor picks the step reference a pull request carries for
// migrationID, with the same label, branch, title precedence as Resolve.
// Carriers naming another migration are skipped, so a stale label from a
// renamed plan does not hide the branch or a later label naming this one.
func ResolveFor(migrationID string, labels []string, branch, title string) (StepReference, Source, bool) {
	for _, l := range labels {
		if ref, ok := ParseLabel(l); ok && ref.MigrationID == migrationID {
			return ref, SourceLabel, true
		}
	}
	if ref, ok := ParseBranch(branch); ok && ref.MigrationID == migrationID {
		return ref, SourceBranch, true
	}
	if ref, ok := ParseTitle(title); ok && ref.MigrationID == migrationID {
		return ref, SourceTitle, true
	}
	return StepReference{}, SourceNone, false
}

func parseStep(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
