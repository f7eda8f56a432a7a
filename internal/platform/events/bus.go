// Package events provides the in-process event bus connecting the claim state
// machine to its subscribers (SLA clock, QA selection, batch assembler).
// Delivery is synchronous: events for a single claim are handed to every
// subscriber in the order the transitions occurred.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClaimTransitioned is emitted after every successful state transition.
// TaskType rides along so subscribers (the SLA clock in particular) can apply
// per-task policy without a claim lookup.
type ClaimTransitioned struct {
	ClaimID  uuid.UUID
	TaskType string
	From     string
	To       string
	At       time.Time
}

// SLABreached is emitted exactly once when a running timer crosses its
// deadline.
type SLABreached struct {
	ClaimID    uuid.UUID
	DeadlineAt time.Time
	At         time.Time
}

// TransitionHandler consumes claim transition events.
type TransitionHandler func(ev ClaimTransitioned)

// BreachHandler consumes SLA breach events.
type BreachHandler func(ev SLABreached)

// Bus fan-outs engine events to registered subscribers. Handlers run on the
// publisher's goroutine; a handler that needs to do slow work must hand off
// internally.
type Bus struct {
	mu          sync.RWMutex
	transitions []TransitionHandler
	breaches    []BreachHandler
}

func NewBus() *Bus {
	return &Bus{}
}

// SubscribeTransitions registers a handler for ClaimTransitioned events.
// Handlers are invoked in registration order.
func (b *Bus) SubscribeTransitions(h TransitionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitions = append(b.transitions, h)
}

// SubscribeBreaches registers a handler for SLABreached events.
func (b *Bus) SubscribeBreaches(h BreachHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.breaches = append(b.breaches, h)
}

// PublishTransition delivers the event to all transition subscribers.
func (b *Bus) PublishTransition(ev ClaimTransitioned) {
	b.mu.RLock()
	handlers := make([]TransitionHandler, len(b.transitions))
	copy(handlers, b.transitions)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// PublishBreach delivers the event to all breach subscribers.
func (b *Bus) PublishBreach(ev SLABreached) {
	b.mu.RLock()
	handlers := make([]BreachHandler, len(b.breaches))
	copy(handlers, b.breaches)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
