package modinject

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of container lifecycle events. Events follow the
// CloudEvents specification.
type Observer interface {
	// OnEvent handles one event. Returned errors are logged, never propagated
	// into the bootstrap.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID identifies the observer for registration and logs.
	ObserverID() string
}

// Subject publishes events to registered observers.
type Subject interface {
	// RegisterObserver subscribes observer to eventTypes, or to every event
	// when none are given.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver is idempotent.
	UnregisterObserver(observer Observer) error

	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the container.
const (
	EventTypeModuleRegistered  = "com.modinject.module.registered"
	EventTypeModuleInitialized = "com.modinject.module.initialized"
	EventTypeProviderResolved  = "com.modinject.provider.resolved"
	EventTypeScanCompleted     = "com.modinject.scan.completed"

	EventTypeApplicationBootstrapped = "com.modinject.application.bootstrapped"
	EventTypeApplicationFailed       = "com.modinject.application.failed"
	EventTypeApplicationClosed       = "com.modinject.application.closed"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
