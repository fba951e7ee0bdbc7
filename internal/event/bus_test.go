package event

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/shepherd/internal/logging"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	id := bus.Subscribe(TypeStateComputed, func(e Event) {
		received = e
	})
	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}

	bus.Publish(NewStateComputedEvent("add-tests", "pending", 4, 0, 3))

	got, ok := received.(StateComputedEvent)
	if !ok {
		t.Fatalf("received %T, want StateComputedEvent", received)
	}
	if got.MigrationID != "add-tests" || got.CurrentStep != 4 || got.ClosedPRs != 3 {
		t.Errorf("event = %+v", got)
	}
	if got.Timestamp().IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypePolicyBlocked, func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})
	bus.Publish(NewPolicyEvaluatedEvent("add-tests", 1, true, 0, 0, false))
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard:"+e.EventType()) })
	bus.Subscribe(TypePolicyBlocked, func(e Event) { order = append(order, "specific:"+e.EventType()) })

	bus.Publish(NewPolicyBlockedEvent("add-tests", 2, []string{"builtin-blocked-paths"}))
	bus.Publish(NewRulesReloadedEvent("rules.yaml", 3, 2, nil))

	want := "specific:policy.blocked,wildcard:policy.blocked,wildcard:policy.rules_reloaded"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("dispatch order = %s, want %s", got, want)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := make(map[string]int)
	id1 := bus.Subscribe(TypeStepValidated, func(e Event) { calls["first"]++ })
	bus.Subscribe(TypeStepValidated, func(e Event) { calls["second"]++ })

	if !bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return true when subscription exists")
	}
	if bus.Unsubscribe(id1) {
		t.Error("second Unsubscribe should return false")
	}
	if bus.Unsubscribe("non-existent-id") {
		t.Error("Unsubscribe should return false for non-existent ID")
	}

	bus.Publish(NewStepValidatedEvent("add-tests", 4, 4, true, false, ""))
	if calls["first"] != 0 || calls["second"] != 1 {
		t.Errorf("calls = %v", calls)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeStateComputed, func(e Event) {})
	bus.Subscribe(TypePolicyBlocked, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	if bus.SubscriptionCount() != 3 {
		t.Errorf("Expected 3 subscriptions before clear, got %d", bus.SubscriptionCount())
	}
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after clear, got %d", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewWriterLogger(&buf, "error"))

	calls := 0
	bus.Subscribe(TypeCollectionFailed, func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe(TypeCollectionFailed, func(e Event) {
		calls++
	})

	bus.Publish(NewCollectionFailedEvent("add-tests", errors.New("boom"), true, false))

	if calls != 2 {
		t.Errorf("Expected both handlers to be called despite panic, got %d calls", calls)
	}
	if !strings.Contains(buf.String(), "event handler panicked") || !strings.Contains(buf.String(), "handler panic") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus(nil)

	var blocked int
	bus.Subscribe(TypePolicyEvaluated, func(e Event) {
		if ev := e.(PolicyEvaluatedEvent); !ev.Allowed {
			bus.Publish(NewPolicyBlockedEvent(ev.MigrationID, ev.Step, nil))
		}
	})
	bus.Subscribe(TypePolicyBlocked, func(e Event) { blocked++ })

	bus.Publish(NewPolicyEvaluatedEvent("add-tests", 1, false, 1, 0, false))
	if blocked != 1 {
		t.Errorf("nested publish delivered %d times, want 1", blocked)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(TypeStateComputed, func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(NewStateComputedEvent("add-tests", "active", 2, 1, 1))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			id := bus.Subscribe(TypeStateComputed, func(e Event) {})
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after concurrent add/remove, got %d", bus.SubscriptionCount())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)

	ids := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe(TypeStateComputed, func(e Event) {})
		if ids[id] {
			t.Errorf("Duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}
