// Package events provides the in-process event bus for certificate
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeCertificateIssued        = "certificate_issued"
	EventTypeCertificateRenewalFailed = "certificate_renewal_failed"
)

// Event represents a certificate lifecycle notification
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Domain        string    `json:"domain"`
	CertificateID uuid.UUID `json:"certificate_id"`
	Attempts      int       `json:"attempts"`
	// Message carries the failure message for renewal_failed events
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler is a function that handles incoming events
type EventHandler func(event Event)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish sends an event to all subscribers for the event's domain and
	// to wildcard subscribers.
	Publish(event Event) error
	// Subscribe registers a handler for events for a specific domain.
	// The empty string subscribes to all domains.
	// Returns an unsubscribe function.
	Subscribe(domain string, handler EventHandler) (unsubscribe func())
}
