package signal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/stepref"
	"github.com/Iron-Ham/shepherd/internal/telemetry"
)

// Collector gathers the open and closed pull requests belonging to a migration.
// It holds no per-migration state and is safe for concurrent use; concurrent
// callers each get their own independent Snapshot.
type Collector struct {
	source  Source
	logger  *logging.Logger
	timeout time.Duration
	now     func() time.Time

	tracer      trace.Tracer
	collections metric.Int64Counter
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the collector's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithTimeout bounds each Collect call when the caller's context carries no
// earlier deadline. Zero disables the default deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) { c.timeout = d }
}

// WithClock overrides the clock used to stamp Snapshot.ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a Collector reading from src.
func NewCollector(src Source, opts ...Option) *Collector {
	c := &Collector{
		source: src,
		logger: logging.NopLogger(),
		now:    time.Now,
		tracer: telemetry.Tracer("github.com/Iron-Ham/shepherd/internal/signal"),
	}
	for _, opt := range opts {
		opt(c)
	}

	// A failed instrument creation falls back to a nil counter; see record.
	c.collections, _ = telemetry.Meter("github.com/Iron-Ham/shepherd/internal/signal").Int64Counter(
		"shepherd.signal.collections",
		metric.WithDescription("Signal collections by outcome"),
	)
	return c
}

// Collect returns every open and closed pull request whose labels, branch or
// title resolve to migrationID. There is no time window.
//
// On failure Collect returns a nil Snapshot and a *errors.TransportError; it
// never reports an empty signal set in place of an error. An expired deadline
// yields a TransportError with Timeout set; a canceled context yields one with
// Canceled set, which is not retryable.
func (c *Collector) Collect(ctx context.Context, migrationID string) (*Snapshot, error) {
	if !stepref.ValidMigrationID(migrationID) {
		return nil, errors.NewValidationError("migration identifier must be kebab-case").
			WithField("migration_id").WithValue(migrationID).WithCause(errors.ErrInvalidMigrationID)
	}

	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	ctx, span := c.tracer.Start(ctx, "signal.Collect",
		trace.WithAttributes(telemetry.AttrMigrationID.String(migrationID)))
	defer span.End()

	log := c.logger.WithMigration(migrationID)

	snap := &Snapshot{MigrationID: migrationID}
	for _, state := range []PRState{StateOpen, StateClosed} {
		prs, err := c.source.ListPullRequests(ctx, migrationID, state)
		if err != nil {
			terr := c.classify(ctx, err, state, migrationID)
			log.Warn("signal collection failed",
				"pr_state", string(state),
				"retryable", errors.IsRetryable(terr),
				"timeout", errors.IsTimeout(terr),
				"canceled", terr.Canceled,
				"error", terr.Error())
			span.RecordError(terr)
			span.SetStatus(codes.Error, "collection failed")
			c.record(ctx, "error")
			return nil, terr
		}

		for _, pr := range prs {
			if !belongsTo(pr, migrationID) {
				continue
			}
			sig := toSignal(pr)
			if state == StateOpen {
				sig.IsOpen = true
				snap.Open = append(snap.Open, sig)
			} else {
				sig.IsOpen = false
				snap.Closed = append(snap.Closed, sig)
			}
		}
	}
	snap.ObservedAt = c.now().UTC()

	span.SetAttributes(
		attribute.Int("shepherd.open_prs", len(snap.Open)),
		attribute.Int("shepherd.closed_prs", len(snap.Closed)),
	)
	c.record(ctx, "ok")
	log.Debug("signals collected", "open", len(snap.Open), "closed", len(snap.Closed))
	return snap, nil
}

// classify converts a Source failure into a TransportError.
func (c *Collector) classify(ctx context.Context, err error, state PRState, migrationID string) *errors.TransportError {
	var terr *errors.TransportError
	if errors.As(err, &terr) {
		if terr.MigrationID == "" {
			terr.WithMigration(migrationID)
		}
	} else {
		terr = errors.NewTransportError("list "+string(state)+" pull requests", err).WithMigration(migrationID)
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded):
		terr.WithTimeout()
	case ctx.Err() == context.Canceled || errors.Is(err, context.Canceled):
		terr.WithCanceled()
	}
	return terr
}

func (c *Collector) record(ctx context.Context, outcome string) {
	if c.collections == nil {
		return
	}
	c.collections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// belongsTo reports whether pr is tied to migrationID by a step reference or
// by the plain migration label. References to other migrations are ignored.
func belongsTo(pr PullRequest, migrationID string) bool {
	for _, l := range pr.Labels {
		if id, ok := stepref.ParseMigrationLabel(l); ok && id == migrationID {
			return true
		}
	}
	_, _, ok := stepref.ResolveFor(migrationID, pr.Labels, pr.HeadRef, pr.Title)
	return ok
}
