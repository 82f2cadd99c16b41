package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// wildcardKey subscribes a handler to every domain
const wildcardKey = ""

// InMemoryEventBus implements EventBus using in-memory fan-out.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]EventHandler // domain -> subscriptionID -> handler
}

// NewEventBus creates a new InMemoryEventBus.
func NewEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[string]EventHandler),
	}
}

// Publish sends an event to subscribers for the event's domain and to
// wildcard subscribers.
func (eb *InMemoryEventBus) Publish(event Event) error {
	if event.Domain == "" {
		return fmt.Errorf("event must have a Domain")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	eb.mu.RLock()
	// Copy handlers to avoid holding the lock during delivery
	var handlers []EventHandler
	for _, key := range []string{event.Domain, wildcardKey} {
		for _, handler := range eb.subscribers[key] {
			handlers = append(handlers, handler)
		}
	}
	eb.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	return nil
}

// Subscribe registers a handler for events for a specific domain. The empty
// string subscribes to all domains. Returns an unsubscribe function that
// removes the subscription.
func (eb *InMemoryEventBus) Subscribe(domain string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribers[domain] == nil {
		eb.subscribers[domain] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.subscribers[domain][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.subscribers[domain]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.subscribers, domain)
			}
		}
	}
}

// Ensure InMemoryEventBus implements EventBus
var _ EventBus = (*InMemoryEventBus)(nil)
