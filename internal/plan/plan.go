// Package plan reads migration plan documents.
//
// A plan is a markdown file whose YAML frontmatter names the migration and
// its steps:
//
//	---
//	id: add-tests
//	title: Add unit tests to every package
//	status: in_progress
//	steps:
//	  - title: Cover the parser
//	  - title: Cover the HTTP handlers
//	---
//	Free-form notes for humans and agents.
//
// total_steps may be given instead of (or to override) the steps list.
package plan

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/stepref"
)

// Status is the lifecycle status a plan declares for itself.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Step is one declared step of a plan.
type Step struct {
	Number int    `yaml:"-" json:"number"`
	Title  string `yaml:"title" json:"title"`
	// Chunks optionally names the sub-divisions a step is split into.
	Chunks []string `yaml:"chunks,omitempty" json:"chunks,omitempty"`
}

// Plan is a parsed migration plan document.
type Plan struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Status     Status `yaml:"status" json:"status"`
	TotalSteps int    `yaml:"total_steps" json:"total_steps"`
	Steps      []Step `yaml:"steps" json:"steps,omitempty"`

	Body string `yaml:"-" json:"-"`
	Path string `yaml:"-" json:"path,omitempty"`
}

// Completed reports whether the plan declares the migration finished.
func (p *Plan) Completed() bool {
	return p.Status == StatusCompleted
}

// StepTitle returns the declared title of step n, or "".
func (p *Plan) StepTitle(n int) string {
	if n < 1 || n > len(p.Steps) {
		return ""
	}
	return p.Steps[n-1].Title
}

const delimiter = "---"

// Parse reads a plan document. The frontmatter must open on the first line.
func Parse(data []byte) (*Plan, error) {
	front, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(front))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errors.NewValidationError("invalid plan frontmatter").WithCause(err)
	}
	p.Body = body

	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) normalize() error {
	if !stepref.ValidMigrationID(p.ID) {
		return errors.NewValidationError("plan id must be kebab-case").
			WithField("id").WithValue(p.ID).WithCause(errors.ErrInvalidMigrationID)
	}

	switch p.Status {
	case "":
		p.Status = StatusDraft
	case StatusDraft, StatusInProgress, StatusCompleted:
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown plan status %q", p.Status)).
			WithField("status").WithValue(p.Status)
	}

	for i := range p.Steps {
		p.Steps[i].Number = i + 1
	}
	if p.TotalSteps == 0 {
		p.TotalSteps = len(p.Steps)
	}
	if p.TotalSteps < 0 {
		return errors.NewValidationError("total_steps must be non-negative").
			WithField("total_steps").WithValue(p.TotalSteps)
	}
	if len(p.Steps) > p.TotalSteps {
		return errors.NewValidationError(
			fmt.Sprintf("plan lists %d steps but total_steps is %d", len(p.Steps), p.TotalSteps)).
			WithField("total_steps").WithValue(p.TotalSteps)
	}
	return nil
}

// splitFrontmatter separates the YAML block between the leading "---" lines
// from the markdown body.
func splitFrontmatter(data []byte) (front []byte, body string, err error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, "", errors.NewValidationError("plan document must start with a --- frontmatter block")
	}
	rest := text[len(delimiter)+1:]
	if strings.HasPrefix(rest, delimiter) {
		return nil, "", errors.NewValidationError("plan frontmatter is empty")
	}

	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, "", errors.NewValidationError("plan frontmatter is not closed")
	}
	after := rest[end+1+len(delimiter):]
	// The closing delimiter must be a whole line.
	if after != "" && !strings.HasPrefix(after, "\n") {
		return nil, "", errors.NewValidationError("plan frontmatter is not closed")
	}
	return []byte(rest[:end+1]), strings.TrimPrefix(after, "\n"), nil
}
