// Package event provides a pub-sub event bus so shepherd's components can
// report what they decided without depending on who is listening.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Migration:
//   - [StateComputedEvent]: a migration's state was inferred
//   - [CollectionFailedEvent]: pull request signals could not be collected
//   - [StepValidatedEvent]: a step request was allowed or rejected
//
// Policy:
//   - [PolicyEvaluatedEvent]: an action was evaluated
//   - [PolicyBlockedEvent]: an action was denied
//   - [RulesReloadedEvent]: the rules file was reloaded
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypePolicyBlocked, func(e event.Event) {
//	    blocked := e.(event.PolicyBlockedEvent)
//	    notify(blocked.MigrationID, blocked.RuleIDs)
//	})
//
//	bus.Publish(event.NewPolicyBlockedEvent("add-tests", 3, []string{"builtin-blocked-paths"}))
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is recovered and logged; it never stops delivery to the others.
package event
