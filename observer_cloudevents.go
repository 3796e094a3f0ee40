package modinject

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventSource is the CloudEvents source of every container event.
const EventSource = "modinject"

// CloudEvent is an alias for the CloudEvents Event type.
type CloudEvent = cloudevents.Event

// NewCloudEvent creates an event with a time-ordered ID. metadata entries
// become CloudEvents extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent checks an event against the CloudEvents specification.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

type observerRegistration struct {
	seq          uint64
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventSubject delivers events to its observers synchronously, in
// registration order. Observer errors and panics are logged and do not
// reach the publisher.
type EventSubject struct {
	logger Logger

	mu        sync.RWMutex
	nextSeq   uint64
	observers map[string]*observerRegistration
}

// NewEventSubject creates a subject with no observers.
func NewEventSubject(logger Logger) *EventSubject {
	if logger == nil {
		logger = NopLogger()
	}
	return &EventSubject{
		logger:    logger,
		observers: make(map[string]*observerRegistration),
	}
}

func (s *EventSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}
	s.nextSeq++
	s.observers[observer.ObserverID()] = &observerRegistration{
		seq:          s.nextSeq,
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}
	s.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (s *EventSubject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
	return nil
}

func (s *EventSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}
	for _, registration := range s.registrations() {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		s.deliver(ctx, registration.observer, event)
	}
	return nil
}

func (s *EventSubject) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		s.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// registrations returns a snapshot in registration order.
func (s *EventSubject) registrations() []*observerRegistration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs := make([]*observerRegistration, 0, len(s.observers))
	for _, registration := range s.observers {
		regs = append(regs, registration)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].seq < regs[j].seq
	})
	return regs
}

func (s *EventSubject) GetObservers() []ObserverInfo {
	regs := s.registrations()
	info := make([]ObserverInfo, 0, len(regs))
	for _, registration := range regs {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emitEvent publishes an event when a subject is configured.
func emitEvent(ctx context.Context, subject Subject, logger Logger, eventType string, data map[string]any) {
	if subject == nil {
		return
	}
	if err := subject.NotifyObservers(ctx, NewCloudEvent(eventType, EventSource, data, nil)); err != nil {
		logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}
