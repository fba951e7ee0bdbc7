package plan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
)

// Source provides migration plans by identifier.
type Source interface {
	Plan(ctx context.Context, migrationID string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
}

// DirSource reads plans from markdown files in a directory. A plan is found
// at <dir>/<id>.md first; otherwise every markdown file is scanned for a
// matching frontmatter id.
type DirSource struct {
	dir    string
	logger *logging.Logger
}

// NewDirSource creates a DirSource over dir.
func NewDirSource(dir string, logger *logging.Logger) *DirSource {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &DirSource{dir: dir, logger: logger}
}

// Plan returns the plan for migrationID, or a NotFoundError.
func (s *DirSource) Plan(ctx context.Context, migrationID string) (*Plan, error) {
	direct := filepath.Join(s.dir, migrationID+".md")
	if p, err := s.load(direct); err == nil {
		if p.ID == migrationID {
			return p, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	plans, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.ID == migrationID {
			return p, nil
		}
	}
	return nil, errors.NewNotFoundError("migration plan", migrationID)
}

// List returns every parseable plan in the directory, ordered by id.
// Unparseable documents are skipped with a warning. A missing directory
// holds no plans.
func (s *DirSource) List(ctx context.Context) ([]*Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("plans directory does not exist", "dir", s.dir)
			return nil, nil
		}
		return nil, err
	}

	var plans []*Plan
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		p, err := s.load(path)
		if err != nil {
			s.logger.Warn("skipping plan document", "path", path, "error", err.Error())
			continue
		}
		plans = append(plans, p)
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}

func (s *DirSource) load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	p.Path = path
	return p, nil
}

// StaticSource serves plans held in memory.
type StaticSource map[string]*Plan

// Plan returns the plan for migrationID, or a NotFoundError.
func (s StaticSource) Plan(_ context.Context, migrationID string) (*Plan, error) {
	if p, ok := s[migrationID]; ok {
		return p, nil
	}
	return nil, errors.NewNotFoundError("migration plan", migrationID)
}

// List returns every plan ordered by id.
func (s StaticSource) List(context.Context) ([]*Plan, error) {
	plans := make([]*Plan, 0, len(s))
	for _, p := range s {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}
