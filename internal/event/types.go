package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns "category.action", e.g. "migration.state_computed".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type names.
const (
	TypeStateComputed    = "migration.state_computed"
	TypeCollectionFailed = "migration.collection_failed"
	TypeStepValidated    = "step.validated"
	TypePolicyEvaluated  = "policy.evaluated"
	TypePolicyBlocked    = "policy.blocked"
	TypeRulesReloaded    = "policy.rules_reloaded"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Migration Events
// -----------------------------------------------------------------------------

// StateComputedEvent is emitted every time a migration's state is inferred.
type StateComputedEvent struct {
	baseEvent
	MigrationID string
	State       string
	CurrentStep int
	OpenPRs     int
	ClosedPRs   int
}

// NewStateComputedEvent creates a StateComputedEvent.
func NewStateComputedEvent(migrationID, state string, currentStep, openPRs, closedPRs int) StateComputedEvent {
	return StateComputedEvent{
		baseEvent:   newBaseEvent(TypeStateComputed),
		MigrationID: migrationID,
		State:       state,
		CurrentStep: currentStep,
		OpenPRs:     openPRs,
		ClosedPRs:   closedPRs,
	}
}

// CollectionFailedEvent is emitted when signals for a migration could not be
// collected.
type CollectionFailedEvent struct {
	baseEvent
	MigrationID string
	Err         error
	Retryable   bool
	Timeout     bool
}

// NewCollectionFailedEvent creates a CollectionFailedEvent.
func NewCollectionFailedEvent(migrationID string, err error, retryable, timeout bool) CollectionFailedEvent {
	return CollectionFailedEvent{
		baseEvent:   newBaseEvent(TypeCollectionFailed),
		MigrationID: migrationID,
		Err:         err,
		Retryable:   retryable,
		Timeout:     timeout,
	}
}

// StepValidatedEvent is emitted after a step request is decided.
type StepValidatedEvent struct {
	baseEvent
	MigrationID   string
	RequestedStep int
	CurrentStep   int
	Allowed       bool
	Forced        bool
	Reason        string
}

// NewStepValidatedEvent creates a StepValidatedEvent.
func NewStepValidatedEvent(migrationID string, requested, current int, allowed, forced bool, reason string) StepValidatedEvent {
	return StepValidatedEvent{
		baseEvent:     newBaseEvent(TypeStepValidated),
		MigrationID:   migrationID,
		RequestedStep: requested,
		CurrentStep:   current,
		Allowed:       allowed,
		Forced:        forced,
		Reason:        reason,
	}
}

// -----------------------------------------------------------------------------
// Policy Events
// -----------------------------------------------------------------------------

// PolicyEvaluatedEvent is emitted for every policy evaluation.
type PolicyEvaluatedEvent struct {
	baseEvent
	MigrationID      string
	Step             int
	Allowed          bool
	Violations       int
	Warnings         int
	RequiresApproval bool
}

// NewPolicyEvaluatedEvent creates a PolicyEvaluatedEvent.
func NewPolicyEvaluatedEvent(migrationID string, step int, allowed bool, violations, warnings int, requiresApproval bool) PolicyEvaluatedEvent {
	return PolicyEvaluatedEvent{
		baseEvent:        newBaseEvent(TypePolicyEvaluated),
		MigrationID:      migrationID,
		Step:             step,
		Allowed:          allowed,
		Violations:       violations,
		Warnings:         warnings,
		RequiresApproval: requiresApproval,
	}
}

// PolicyBlockedEvent is emitted when an evaluation denies an action.
type PolicyBlockedEvent struct {
	baseEvent
	MigrationID string
	Step        int
	RuleIDs     []string // Blocking rules, in evaluation order
}

// NewPolicyBlockedEvent creates a PolicyBlockedEvent.
func NewPolicyBlockedEvent(migrationID string, step int, ruleIDs []string) PolicyBlockedEvent {
	return PolicyBlockedEvent{
		baseEvent:   newBaseEvent(TypePolicyBlocked),
		MigrationID: migrationID,
		Step:        step,
		RuleIDs:     ruleIDs,
	}
}

// RulesReloadedEvent is emitted after a rules file reload attempt.
type RulesReloadedEvent struct {
	baseEvent
	Path    string
	Rules   int
	Version uint64
	Err     error
}

// NewRulesReloadedEvent creates a RulesReloadedEvent.
func NewRulesReloadedEvent(path string, rules int, version uint64, err error) RulesReloadedEvent {
	return RulesReloadedEvent{
		baseEvent: newBaseEvent(TypeRulesReloaded),
		Path:      path,
		Rules:     rules,
		Version:   version,
		Err:       err,
	}
}
