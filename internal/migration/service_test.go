package migration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/plan"
	"github.com/Iron-Ham/shepherd/internal/policy"
	"github.com/Iron-Ham/shepherd/internal/sequencer"
	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/state"
	"github.com/Iron-Ham/shepherd/internal/testutil"
)

// countingCollector records how many collections a call performed.
type countingCollector struct {
	inner *signal.Collector
	calls atomic.Int32
}

func (c *countingCollector) Collect(ctx context.Context, id string) (*signal.Snapshot, error) {
	c.calls.Add(1)
	return c.inner.Collect(ctx, id)
}

func newTestService(t *testing.T, src signal.Source, plans plan.Source) (*Service, *countingCollector, *event.Bus) {
	t.Helper()
	store, err := policy.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	coll := &countingCollector{inner: signal.NewCollector(src,
		signal.WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }))}
	bus := event.NewBus(nil)
	svc := NewService(coll, state.NewEngine(nil), policy.NewEvaluator(store, nil), plans, bus, nil)
	return svc, coll, bus
}

func threeMergedSteps() *testutil.Source {
	return testutil.NewSource(testutil.MergedSteps("add-tests", 3, 10)...)
}

func TestGetMigrationState(t *testing.T) {
	plans := plan.StaticSource{"add-tests": {ID: "add-tests", TotalSteps: 5, Status: plan.StatusInProgress}}
	svc, coll, bus := newTestService(t, threeMergedSteps(), plans)

	var computed []event.StateComputedEvent
	bus.Subscribe(event.TypeStateComputed, func(e event.Event) {
		computed = append(computed, e.(event.StateComputedEvent))
	})

	info, err := svc.GetMigrationState(context.Background(), "add-tests")
	if err != nil {
		t.Fatalf("GetMigrationState() error = %v", err)
	}
	if info.State != state.StatePending || info.CurrentStep != 4 {
		t.Errorf("state = %s step %d, want pending step 4", info.State, info.CurrentStep)
	}
	if info.CompletedTasks != 3 || info.TotalTasks != 5 {
		t.Errorf("tasks = %d/%d, want 3/5", info.CompletedTasks, info.TotalTasks)
	}
	if !info.LastUpdated.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LastUpdated = %v", info.LastUpdated)
	}
	if coll.calls.Load() != 1 {
		t.Errorf("collections = %d, want 1", coll.calls.Load())
	}
	if len(computed) != 1 || computed[0].CurrentStep != 4 || computed[0].ClosedPRs != 3 {
		t.Errorf("state events = %+v", computed)
	}
}

func TestGetMigrationState_Plans(t *testing.T) {
	tests := []struct {
		name      string
		plans     plan.Source
		wantState state.State
		wantTotal int
	}{
		{"no plan source", nil, state.StatePending, 0},
		{"plan missing", plan.StaticSource{}, state.StatePending, 0},
		{"plan completed", plan.StaticSource{"add-tests": {ID: "add-tests", TotalSteps: 3, Status: plan.StatusCompleted}}, state.StateCompleted, 3},
		{"plans dir missing", plan.NewDirSource(t.TempDir()+"/nope", nil), state.StatePending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t, threeMergedSteps(), tt.plans)
			info, err := svc.GetMigrationState(context.Background(), "add-tests")
			if err != nil {
				t.Fatalf("GetMigrationState() error = %v", err)
			}
			if info.State != tt.wantState || info.TotalTasks != tt.wantTotal {
				t.Errorf("got %s total %d, want %s total %d", info.State, info.TotalTasks, tt.wantState, tt.wantTotal)
			}
			if info.CurrentStep != 4 {
				t.Errorf("CurrentStep = %d, want 4", info.CurrentStep)
			}
		})
	}
}

func TestGetMigrationState_CollectionFailure(t *testing.T) {
	src := new(testutil.Source).FailWith(errors.NewTransportError("list", errors.New("connection reset")))
	svc, _, bus := newTestService(t, src, nil)

	var failed []event.CollectionFailedEvent
	bus.Subscribe(event.TypeCollectionFailed, func(e event.Event) {
		failed = append(failed, e.(event.CollectionFailedEvent))
	})
	bus.Subscribe(event.TypeStateComputed, func(e event.Event) {
		t.Error("no state may be computed from a failed collection")
	})

	info, err := svc.GetMigrationState(context.Background(), "add-tests")
	if info != nil {
		t.Errorf("info = %+v, want nil", info)
	}
	if !errors.Is(err, errors.ErrTransport) || !errors.IsRetryable(err) {
		t.Errorf("error = %v, want retryable transport error", err)
	}
	if src.Calls() != 1 {
		t.Errorf("list calls = %d, want 1 (collection stops at the first failure)", src.Calls())
	}
	if len(failed) != 1 || !failed[0].Retryable || failed[0].MigrationID != "add-tests" {
		t.Errorf("failure events = %+v", failed)
	}
}

func TestValidateStepRequest(t *testing.T) {
	tests := []struct {
		name     string
		step     int
		force    bool
		allowed  bool
		forced   bool
		wantCode sequencer.RejectCode
	}{
		{"next step", 4, false, true, false, sequencer.CodeNone},
		{"skip ahead", 5, false, false, false, sequencer.CodeInvalidTransition},
		{"skip ahead forced", 5, true, true, true, sequencer.CodeNone},
		{"repeat merged step", 3, false, false, false, sequencer.CodeInvalidTransition},
		{"step zero", 0, true, false, false, sequencer.CodeInvalidStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, coll, bus := newTestService(t, threeMergedSteps(), nil)

			var validated []event.StepValidatedEvent
			bus.Subscribe(event.TypeStepValidated, func(e event.Event) {
				validated = append(validated, e.(event.StepValidatedEvent))
			})

			d, info, err := svc.ValidateStepRequest(context.Background(), "add-tests", tt.step, tt.force)
			if err != nil {
				t.Fatalf("ValidateStepRequest() error = %v", err)
			}
			if d.Allowed != tt.allowed || d.Forced != tt.forced || d.Code != tt.wantCode {
				t.Errorf("decision = %+v", d)
			}
			if d.CurrentStep != info.CurrentStep || info.CurrentStep != 4 {
				t.Errorf("decision step %d and state step %d must both be 4", d.CurrentStep, info.CurrentStep)
			}
			if coll.calls.Load() != 1 {
				t.Errorf("collections = %d, want exactly 1", coll.calls.Load())
			}
			if len(validated) != 1 || validated[0].Allowed != tt.allowed || validated[0].RequestedStep != tt.step {
				t.Errorf("validation events = %+v", validated)
			}
		})
	}
}

func TestValidateStepRequest_ActiveMigration(t *testing.T) {
	src := threeMergedSteps()
	src.Add(testutil.OpenStep("add-tests", 4, 13))
	svc, _, _ := newTestService(t, src, nil)

	d, info, err := svc.ValidateStepRequest(context.Background(), "add-tests", 5, true)
	if err != nil {
		t.Fatal(err)
	}
	if info.State != state.StateActive {
		t.Fatalf("state = %s, want active", info.State)
	}
	if d.Allowed || d.Code != sequencer.CodeAlreadyActive {
		t.Errorf("decision = %+v, want already_active even with force", d)
	}
}

func TestValidateStepRequest_CollectionFailure(t *testing.T) {
	src := new(testutil.Source).FailWith(errors.NewTransportError("list", errors.New("boom")).WithStatusCode(502))
	svc, _, bus := newTestService(t, src, nil)
	bus.Subscribe(event.TypeStepValidated, func(event.Event) {
		t.Error("no decision may be published without signals")
	})

	d, info, err := svc.ValidateStepRequest(context.Background(), "add-tests", 1, false)
	if err == nil || info != nil || d.Allowed {
		t.Errorf("got %+v, %+v, %v; want transport error and no decision", d, info, err)
	}
}

func TestEvaluatePolicy(t *testing.T) {
	svc, _, bus := newTestService(t, testutil.NewSource(), nil)
	if err := svc.evaluator.Store().Upsert(policy.Rule{
		ID:         "no-vendor",
		Name:       "No vendor",
		Type:       policy.TypeFileAccess,
		Severity:   policy.SeverityError,
		Enabled:    true,
		Conditions: []policy.Condition{{Field: "files", Operator: policy.OpMatches, Value: "vendor/**"}},
		Actions:    []policy.Action{policy.ActionBlock},
	}); err != nil {
		t.Fatal(err)
	}

	var blocked []event.PolicyBlockedEvent
	var evaluated int
	bus.Subscribe(event.TypePolicyBlocked, func(e event.Event) { blocked = append(blocked, e.(event.PolicyBlockedEvent)) })
	bus.Subscribe(event.TypePolicyEvaluated, func(event.Event) { evaluated++ })

	ok := svc.EvaluatePolicy(context.Background(), policy.Context{MigrationID: "add-tests", Step: 2, Files: []string{"src/a.go"}})
	if !ok.Allowed || len(blocked) != 0 {
		t.Errorf("clean action: %+v, blocked events %d", ok, len(blocked))
	}

	res := svc.EvaluatePolicy(context.Background(), policy.Context{MigrationID: "add-tests", Step: 2, Files: []string{"vendor/x/y.go"}})
	if res.Allowed || len(res.Violations) != 1 {
		t.Errorf("vendor action: %+v", res)
	}
	if len(blocked) != 1 || blocked[0].RuleIDs[0] != "no-vendor" || blocked[0].Step != 2 {
		t.Errorf("blocked events = %+v", blocked)
	}
	if evaluated != 2 {
		t.Errorf("evaluated events = %d, want 2", evaluated)
	}
}

func TestMigrations(t *testing.T) {
	svc, _, _ := newTestService(t, testutil.NewSource(), plan.StaticSource{
		"b-mig": {ID: "b-mig"},
		"a-mig": {ID: "a-mig"},
	})
	ids, err := svc.Migrations(context.Background())
	if err != nil || len(ids) != 2 || ids[0] != "a-mig" {
		t.Errorf("Migrations() = %v, %v", ids, err)
	}

	bare, _, _ := newTestService(t, testutil.NewSource(), nil)
	if ids, err := bare.Migrations(context.Background()); err != nil || len(ids) != 0 {
		t.Errorf("Migrations() without plans = %v, %v", ids, err)
	}
}
