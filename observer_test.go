package modinject

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubject_DeliversInRegistrationOrder(t *testing.T) {
	subject := NewEventSubject(nil)
	var order []string
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, subject.RegisterObserver(NewFunctionalObserver(id, func(context.Context, cloudevents.Event) error {
			order = append(order, id)
			return nil
		})))
	}

	event := NewCloudEvent(EventTypeModuleRegistered, EventSource, map[string]any{"module": "CatsModule"}, nil)
	require.NoError(t, subject.NotifyObservers(context.Background(), event))
	assert.Equal(t, []string{"c", "a", "b"}, order)

	infos := subject.GetObservers()
	require.Len(t, infos, 3)
	assert.Equal(t, "c", infos[0].ID)
}

func TestEventSubject_FiltersByType(t *testing.T) {
	subject := NewEventSubject(NopLogger())
	recorder := &eventRecorder{}
	require.NoError(t, subject.RegisterObserver(recorder, EventTypeScanCompleted))

	ctx := context.Background()
	require.NoError(t, subject.NotifyObservers(ctx, NewCloudEvent(EventTypeModuleRegistered, EventSource, nil, nil)))
	require.NoError(t, subject.NotifyObservers(ctx, NewCloudEvent(EventTypeScanCompleted, EventSource, nil, nil)))
	assert.Equal(t, []string{EventTypeScanCompleted}, recorder.types())
	assert.Equal(t, []string{EventTypeScanCompleted}, subject.GetObservers()[0].EventTypes)

	require.NoError(t, subject.UnregisterObserver(recorder))
	require.NoError(t, subject.UnregisterObserver(recorder))
	require.NoError(t, subject.NotifyObservers(ctx, NewCloudEvent(EventTypeScanCompleted, EventSource, nil, nil)))
	assert.Len(t, recorder.types(), 1)
}

func TestEventSubject_IsolatesObserverFailures(t *testing.T) {
	logger := &recordingLogger{}
	subject := NewEventSubject(logger)
	recorder := &eventRecorder{}
	require.NoError(t, subject.RegisterObserver(NewFunctionalObserver("failing", func(context.Context, cloudevents.Event) error {
		return errors.New("observer down")
	})))
	require.NoError(t, subject.RegisterObserver(NewFunctionalObserver("panicking", func(context.Context, cloudevents.Event) error {
		panic("bad observer")
	})))
	require.NoError(t, subject.RegisterObserver(recorder))

	require.NoError(t, subject.NotifyObservers(context.Background(), NewCloudEvent(EventTypeScanCompleted, EventSource, nil, nil)))
	assert.Len(t, recorder.types(), 1)
	assert.Len(t, logger.find("Observer error"), 1)
	assert.Len(t, logger.find("Observer panicked"), 1)
}

func TestEventSubject_RejectsInvalidEvents(t *testing.T) {
	subject := NewEventSubject(nil)
	event := cloudevents.NewEvent()
	assert.ErrorContains(t, subject.NotifyObservers(context.Background(), event), "CloudEvent validation failed")
}

func TestNewCloudEvent(t *testing.T) {
	event := NewCloudEvent(EventTypeProviderResolved, EventSource, map[string]any{"provider": "*cats.Service"}, map[string]any{"module": "cats"})
	require.NoError(t, ValidateCloudEvent(event))
	assert.Equal(t, EventSource, event.Source())
	assert.NotEmpty(t, event.ID())
	assert.Equal(t, "cats", event.Extensions()["module"])

	var data map[string]any
	require.NoError(t, event.DataAs(&data))
	assert.Equal(t, "*cats.Service", data["provider"])
}

func TestEmitEvent_WithoutSubject(t *testing.T) {
	assert.NotPanics(t, func() {
		emitEvent(context.Background(), nil, NopLogger(), EventTypeScanCompleted, nil)
	})
}
