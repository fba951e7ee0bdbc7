package stepref

import "testing"

func TestParseBranch(t *testing.T) {
	tests := []struct {
		branch string
		want   StepReference
		ok     bool
	}{
		{"migrate-x-step-1", StepReference{MigrationID: "migrate-x", Step: 1}, true},
		{"add-tests-step-3/src", StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src"}, true},
		{"add-tests-step-3/src/lib", StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src/lib"}, true},
		{"has-step-in-name-step-2", StepReference{MigrationID: "has-step-in-name", Step: 2}, true},
		{"step-by-step-step-12", StepReference{MigrationID: "step-by-step", Step: 12}, true},
		{"add-tests-step-3/chunk-step-9", StepReference{MigrationID: "add-tests", Step: 3, Chunk: "chunk-step-9"}, true},
		{"add-tests", StepReference{}, false},
		{"add-tests-step-", StepReference{}, false},
		{"add-tests-step-x", StepReference{}, false},
		{"add-tests-step-0", StepReference{}, false},
		{"-step-4", StepReference{}, false},
		{"feature/add-tests-step-3", StepReference{}, false},
		{"", StepReference{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			got, ok := ParseBranch(tt.branch)
			if ok != tt.ok {
				t.Fatalf("ParseBranch(%q) ok = %v, want %v", tt.branch, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseBranch(%q) = %+v, want %+v", tt.branch, got, tt.want)
			}
		})
	}
}

func TestBranchRoundTrip(t *testing.T) {
	refs := []StepReference{
		{MigrationID: "add-tests", Step: 3, Chunk: "src"},
		{MigrationID: "add-tests", Step: 1},
		{MigrationID: "has-step-in-name", Step: 7, Chunk: "pkg/api"},
		{MigrationID: "a", Step: 100},
	}

	for _, ref := range refs {
		t.Run(BranchName(ref), func(t *testing.T) {
			got, ok := ParseBranch(BranchName(ref))
			if !ok {
				t.Fatalf("ParseBranch(BranchName(%+v)) failed", ref)
			}
			if got != ref {
				t.Errorf("round trip = %+v, want %+v", got, ref)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	ref := StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src"}
	if got := BranchName(ref); got != "add-tests-step-3/src" {
		t.Errorf("BranchName() = %q", got)
	}
	if got := ref.String(); got != "add-tests-step-3/src" {
		t.Errorf("String() = %q", got)
	}
}

func TestLabelRoundTrip(t *testing.T) {
	tests := []struct {
		ref   StepReference
		label string
	}{
		{StepReference{MigrationID: "add-tests", Step: 3}, "plan:add-tests:step:3"},
		{StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src"}, "plan:add-tests:step:3:src"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := Label(tt.ref); got != tt.label {
				t.Errorf("Label() = %q, want %q", got, tt.label)
			}
			got, ok := ParseLabel(tt.label)
			if !ok || got != tt.ref {
				t.Errorf("ParseLabel(%q) = %+v, %v", tt.label, got, ok)
			}
		})
	}
}

func TestParseLabel_Rejects(t *testing.T) {
	for _, label := range []string{"bug", "plan:add-tests", "plan:add-tests:step:", "plan:add-tests:step:0", "plan::step:2", "migration:add-tests"} {
		if _, ok := ParseLabel(label); ok {
			t.Errorf("ParseLabel(%q) should not match", label)
		}
	}
}

func TestMigrationLabel(t *testing.T) {
	if got := MigrationLabel("add-tests"); got != "migration:add-tests" {
		t.Errorf("MigrationLabel() = %q", got)
	}
	id, ok := ParseMigrationLabel("migration:add-tests")
	if !ok || id != "add-tests" {
		t.Errorf("ParseMigrationLabel() = %q, %v", id, ok)
	}
	if _, ok := ParseMigrationLabel("migration:"); ok {
		t.Error("empty migration label should not match")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		title string
		want  StepReference
		ok    bool
	}{
		{"[add-tests] Step 3: cover the parser", StepReference{MigrationID: "add-tests", Step: 3}, true},
		{"[add-tests] Step 3 (src): cover src", StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src"}, true},
		{"[add-tests] step 2", StepReference{MigrationID: "add-tests", Step: 2}, true},
		{"Step 3: no migration", StepReference{}, false},
		{"[add-tests] Steps 3", StepReference{}, false},
		{"[add-tests] Step 3x", StepReference{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ParseTitle(tt.title)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseTitle(%q) = %+v, %v; want %+v, %v", tt.title, got, ok, tt.want, tt.ok)
			}
		})
	}

	ref := StepReference{MigrationID: "add-tests", Step: 3, Chunk: "src"}
	got, ok := ParseTitle(Title(ref, "cover src"))
	if !ok || got != ref {
		t.Errorf("title round trip = %+v, %v", got, ok)
	}
}

func TestResolve_Precedence(t *testing.T) {
	t.Run("label wins over branch", func(t *testing.T) {
		ref, src, ok := Resolve([]string{"bug", "plan:add-tests:step:5"}, "add-tests-step-2", "[add-tests] Step 1")
		if !ok || src != SourceLabel || ref.Step != 5 {
			t.Errorf("Resolve() = %+v, %q, %v", ref, src, ok)
		}
	})

	t.Run("branch wins over title", func(t *testing.T) {
		ref, src, ok := Resolve([]string{"bug"}, "add-tests-step-2", "[add-tests] Step 1")
		if !ok || src != SourceBranch || ref.Step != 2 {
			t.Errorf("Resolve() = %+v, %q, %v", ref, src, ok)
		}
	})

	t.Run("title fallback", func(t *testing.T) {
		ref, src, ok := Resolve(nil, "main", "[add-tests] Step 1: first")
		if !ok || src != SourceTitle || ref.Step != 1 {
			t.Errorf("Resolve() = %+v, %q, %v", ref, src, ok)
		}
	})

	t.Run("nothing decodes", func(t *testing.T) {
		_, src, ok := Resolve([]string{"migration:add-tests"}, "main", "chore: bump deps")
		if ok || src != SourceNone {
			t.Errorf("Resolve() = %q, %v; want no match", src, ok)
		}
	})
}

func TestResolveFor(t *testing.T) {
	tests := []struct {
		name     string
		labels   []string
		branch   string
		title    string
		wantStep int
		wantSrc  Source
		wantOK   bool
	}{
		{
			name:     "foreign label skipped for a later one",
			labels:   []string{"plan:old-id:step:1", "plan:add-tests:step:2"},
			branch:   "main",
			wantStep: 2,
			wantSrc:  SourceLabel,
			wantOK:   true,
		},
		{
			name:     "foreign label falls through to branch",
			labels:   []string{"plan:other:step:7"},
			branch:   "add-tests-step-2",
			wantStep: 2,
			wantSrc:  SourceBranch,
			wantOK:   true,
		},
		{
			name:     "own label still wins over branch",
			labels:   []string{"plan:add-tests:step:5"},
			branch:   "add-tests-step-2",
			wantStep: 5,
			wantSrc:  SourceLabel,
			wantOK:   true,
		},
		{
			name:     "title names the migration",
			labels:   []string{"plan:other:step:1"},
			branch:   "other-step-1",
			title:    "[add-tests] Step 3: finish",
			wantStep: 3,
			wantSrc:  SourceTitle,
			wantOK:   true,
		},
		{
			name:    "nothing names the migration",
			labels:  []string{"plan:other:step:1"},
			branch:  "other-step-1",
			title:   "[other] Step 1",
			wantSrc: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, src, ok := ResolveFor("add-tests", tt.labels, tt.branch, tt.title)
			if ok != tt.wantOK || src != tt.wantSrc || ref.Step != tt.wantStep {
				t.Errorf("ResolveFor() = %+v, %q, %v; want step %d from %q, %v",
					ref, src, ok, tt.wantStep, tt.wantSrc, tt.wantOK)
			}
			if ok && ref.MigrationID != "add-tests" {
				t.Errorf("MigrationID = %q", ref.MigrationID)
			}
		})
	}
}

func TestValidMigrationID(t *testing.T) {
	valid := []string{"add-tests", "migrate-x", "a", "v2-upgrade"}
	invalid := []string{"", "Add-Tests", "add_tests", "-add", "add-", "add--tests", "add tests"}

	for _, id := range valid {
		if !ValidMigrationID(id) {
			t.Errorf("ValidMigrationID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if ValidMigrationID(id) {
			t.Errorf("ValidMigrationID(%q) = true, want false", id)
		}
	}
}
