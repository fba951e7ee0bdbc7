package internal

import (
	"bytes"
	"go/format"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// projectRoot returns the module root whether the test runs from internal/
// or from the root itself.
func projectRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if filepath.Base(wd) == "internal" {
		return filepath.Dir(wd)
	}
	return wd
}

// walkGoFiles calls fn for every .go file under internal/ and cmd/,
// skipping hidden and underscore-prefixed directories.
func walkGoFiles(t *testing.T, root string, fn func(path string, content []byte)) {
	t.Helper()
	for _, dir := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fn(path, content)
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to walk %s: %v", dir, err)
		}
	}
}

// TestGofmtCompliance fails when a source file differs from its gofmt output.
// Fix with: gofmt -w ./internal/ ./cmd/
func TestGofmtCompliance(t *testing.T) {
	root := projectRoot(t)

	var unformatted []string
	walkGoFiles(t, root, func(path string, content []byte) {
		formatted, err := format.Source(content)
		if err != nil {
			return
		}
		if !bytes.Equal(content, formatted) {
			rel, _ := filepath.Rel(root, path)
			unformatted = append(unformatted, rel)
		}
	})

	if len(unformatted) > 0 {
		t.Errorf("The following files are not properly formatted:\n  - %s\n\nRun 'gofmt -w ./internal/ ./cmd/' to fix.",
			strings.Join(unformatted, "\n  - "))
	}
}

// TestNetworkBoundary keeps the hosting platform client confined to the
// signal package; everything else works from collected snapshots.
func TestNetworkBoundary(t *testing.T) {
	root := projectRoot(t)
	allowed := filepath.Join(root, "internal", "signal") + string(filepath.Separator)

	fset := token.NewFileSet()
	walkGoFiles(t, root, func(path string, content []byte) {
		f, err := parser.ParseFile(fset, path, content, parser.ImportsOnly)
		if err != nil {
			t.Errorf("failed to parse %s: %v", path, err)
			return
		}
		for _, imp := range f.Imports {
			p, _ := strconv.Unquote(imp.Path.Value)
			if strings.HasPrefix(p, "github.com/google/go-github/") && !strings.HasPrefix(path, allowed) {
				rel, _ := filepath.Rel(root, path)
				t.Errorf("%s imports %s; only internal/signal may talk to GitHub", rel, p)
			}
		}
	})
}

// TestGolangciLintCompliance runs golangci-lint over the module when it is
// installed.
func TestGolangciLintCompliance(t *testing.T) {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}
	if testing.Short() {
		t.Skip("skipping lint in short mode")
	}

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = projectRoot(t)
	// A per-test cache keeps the run working where the default cache is read-only.
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("golangci-lint found issues:\n%s\nRun 'golangci-lint run' to see all issues.", output)
	}
}
