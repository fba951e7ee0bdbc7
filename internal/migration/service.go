// Package migration is shepherd's public face: it ties signal collection,
// state inference, step sequencing and policy evaluation together behind
// three operations.
//
// Every operation is computed from a fresh collection. Nothing is cached
// between calls, so the answer always reflects the pull requests as they
// were when the call was made.
package migration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/event"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/plan"
	"github.com/Iron-Ham/shepherd/internal/policy"
	"github.com/Iron-Ham/shepherd/internal/sequencer"
	"github.com/Iron-Ham/shepherd/internal/signal"
	"github.com/Iron-Ham/shepherd/internal/state"
	"github.com/Iron-Ham/shepherd/internal/telemetry"
)

// Collector gathers the signal snapshot for one migration.
// *signal.Collector satisfies it.
type Collector interface {
	Collect(ctx context.Context, migrationID string) (*signal.Snapshot, error)
}

// Service answers state, sequencing and policy questions for migrations.
// It is safe for concurrent use.
type Service struct {
	collector Collector
	engine    *state.Engine
	evaluator *policy.Evaluator
	plans     plan.Source
	bus       *event.Bus
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewService wires a Service. plans may be nil, in which case TotalTasks is
// always zero and no migration is ever reported completed. A nil bus or
// logger is replaced with a private bus and a no-op logger.
func NewService(collector Collector, engine *state.Engine, evaluator *policy.Evaluator, plans plan.Source, bus *event.Bus, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus(logger)
	}
	if engine == nil {
		engine = state.NewEngine(logger)
	}
	return &Service{
		collector: collector,
		engine:    engine,
		evaluator: evaluator,
		plans:     plans,
		bus:       bus,
		logger:    logger,
		tracer:    telemetry.Tracer("github.com/Iron-Ham/shepherd/internal/migration"),
	}
}

// Bus returns the bus the service publishes on.
func (s *Service) Bus() *event.Bus {
	return s.bus
}

// GetMigrationState collects the migration's pull requests and infers its
// state. A collection failure is returned as-is; it is never reported as a
// migration with no pull requests.
func (s *Service) GetMigrationState(ctx context.Context, migrationID string) (*state.MigrationStateInfo, error) {
	ctx, span := s.tracer.Start(ctx, "migration.GetMigrationState",
		trace.WithAttributes(telemetry.AttrMigrationID.String(migrationID)))
	defer span.End()

	info, err := s.computeState(ctx, migrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state unavailable")
		return nil, err
	}
	span.SetAttributes(attribute.String("shepherd.state", string(info.State)))
	return info, nil
}

// ValidateStepRequest decides whether step may run for migrationID. The
// current step and the legality of the request are derived from one
// collection, so they can never disagree. The returned state is the one the
// decision was made against.
//
// A rejected request is not an error: check Decision.Allowed.
func (s *Service) ValidateStepRequest(ctx context.Context, migrationID string, step int, force bool) (sequencer.Decision, *state.MigrationStateInfo, error) {
	ctx, span := s.tracer.Start(ctx, "migration.ValidateStepRequest",
		trace.WithAttributes(
			telemetry.AttrMigrationID.String(migrationID),
			attribute.Int("shepherd.requested_step", step),
			attribute.Bool("shepherd.force", force),
		))
	defer span.End()

	info, err := s.computeState(ctx, migrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state unavailable")
		return sequencer.Decision{}, nil, err
	}

	d := sequencer.Validate(*info, step, force)
	span.SetAttributes(telemetry.AttrAllowed.Bool(d.Allowed))

	log := s.logger.WithMigration(migrationID).WithStep(step)
	switch {
	case !d.Allowed:
		log.Info("step request rejected", "code", string(d.Code), "reason", d.Reason,
			"state", string(d.State), "current_step", d.CurrentStep)
	case d.Forced:
		log.Warn("step request allowed by force", "state", string(d.State), "current_step", d.CurrentStep)
	default:
		log.Debug("step request allowed")
	}

	s.bus.Publish(event.NewStepValidatedEvent(migrationID, step, d.CurrentStep, d.Allowed, d.Forced, d.Reason))
	return d, info, nil
}

// EvaluatePolicy checks a proposed agent action against the current rules.
// It performs no I/O and cannot fail; a denial is reported in the result.
func (s *Service) EvaluatePolicy(ctx context.Context, pctx policy.Context) policy.EvaluationResult {
	_, span := s.tracer.Start(ctx, "migration.EvaluatePolicy",
		trace.WithAttributes(telemetry.AttrMigrationID.String(pctx.MigrationID)))
	defer span.End()

	result := s.evaluator.Evaluate(pctx)
	span.SetAttributes(telemetry.AttrAllowed.Bool(result.Allowed))

	s.bus.Publish(event.NewPolicyEvaluatedEvent(pctx.MigrationID, pctx.Step, result.Allowed,
		len(result.Violations), len(result.Warnings), result.RequiresApproval))

	if !result.Allowed {
		ruleIDs := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			ruleIDs = append(ruleIDs, v.RuleID)
		}
		s.logger.WithMigration(pctx.MigrationID).Warn("action blocked by policy",
			"step", pctx.Step, "rules", ruleIDs)
		s.bus.Publish(event.NewPolicyBlockedEvent(pctx.MigrationID, pctx.Step, ruleIDs))
	}
	return result
}

// Migrations returns the identifiers of every known plan, ordered by id.
func (s *Service) Migrations(ctx context.Context) ([]string, error) {
	if s.plans == nil {
		return nil, nil
	}
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *Service) computeState(ctx context.Context, migrationID string) (*state.MigrationStateInfo, error) {
	snap, err := s.collector.Collect(ctx, migrationID)
	if err != nil {
		s.bus.Publish(event.NewCollectionFailedEvent(migrationID, err, errors.IsRetryable(err), errors.IsTimeout(err)))
		return nil, err
	}

	p := s.lookupPlan(ctx, migrationID)
	total := 0
	if p != nil {
		total = p.TotalSteps
	}

	info := s.engine.Infer(snap, total)
	if p != nil && p.Completed() {
		info = state.MarkCompleted(info)
	}

	s.bus.Publish(event.NewStateComputedEvent(migrationID, string(info.State), info.CurrentStep,
		len(info.OpenPRs), len(info.ClosedPRs)))
	return &info, nil
}

// lookupPlan returns the migration's plan, or nil when there is none. A plan
// that exists but cannot be read is logged and treated as absent: state
// comes from pull requests and a broken plan must not hide it.
func (s *Service) lookupPlan(ctx context.Context, migrationID string) *plan.Plan {
	if s.plans == nil {
		return nil
	}
	p, err := s.plans.Plan(ctx, migrationID)
	switch {
	case err == nil:
		return p
	case errors.Is(err, errors.ErrNotFound):
		s.logger.WithMigration(migrationID).Debug("no plan for migration")
	default:
		s.logger.WithMigration(migrationID).Warn("migration plan unreadable", "error", err.Error())
	}
	return nil
}
