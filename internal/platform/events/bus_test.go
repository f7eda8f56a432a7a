package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPublishTransitionFanOut(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeTransitions(func(ClaimTransitioned) { order = append(order, "first") })
	bus.SubscribeTransitions(func(ClaimTransitioned) { order = append(order, "second") })

	bus.PublishTransition(ClaimTransitioned{ClaimID: uuid.New(), From: "new", To: "assigned", At: time.Now()})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handlers ran as %v, want registration order", order)
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	id := uuid.New()

	var seen []string
	bus.SubscribeTransitions(func(ev ClaimTransitioned) { seen = append(seen, ev.To) })

	// Synchronous delivery: a claim's events arrive in transition order.
	for _, to := range []string{"assigned", "initial_review", "coding_review"} {
		bus.PublishTransition(ClaimTransitioned{ClaimID: id, To: to})
	}
	if len(seen) != 3 || seen[0] != "assigned" || seen[2] != "coding_review" {
		t.Fatalf("events = %v, want transition order", seen)
	}
}

func TestPublishBreach(t *testing.T) {
	bus := NewBus()
	id := uuid.New()

	var got []SLABreached
	bus.SubscribeBreaches(func(ev SLABreached) { got = append(got, ev) })

	bus.PublishBreach(SLABreached{ClaimID: id, At: time.Now()})
	if len(got) != 1 || got[0].ClaimID != id {
		t.Fatalf("breach events = %+v", got)
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic.
	bus.PublishTransition(ClaimTransitioned{ClaimID: uuid.New()})
	bus.PublishBreach(SLABreached{ClaimID: uuid.New()})
}

func TestSubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.SubscribeTransitions(func(ClaimTransitioned) {
		calls++
		if calls == 1 {
			// A handler registering another handler must not deadlock.
			bus.SubscribeTransitions(func(ClaimTransitioned) { calls += 100 })
		}
	})

	bus.PublishTransition(ClaimTransitioned{ClaimID: uuid.New()})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (new handler sees only later events)", calls)
	}
	bus.PublishTransition(ClaimTransitioned{ClaimID: uuid.New()})
	if calls != 102 {
		t.Fatalf("calls = %d, want 102", calls)
	}
}
