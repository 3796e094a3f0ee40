package modinject

import (
	"context"
	"fmt"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }

// find returns the entries with msg, in order.
func (l *recordingLogger) find(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			found = append(found, e)
		}
	}
	return found
}

func (e logEntry) value(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

// eventRecorder collects event types in delivery order.
type eventRecorder struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string { return "event-recorder" }

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type()
	}
	return types
}

func (r *eventRecorder) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// newTestApplication bootstraps root with a fresh registry prepared by
// setup and a no-op logger.
func newTestApplication(t *testing.T, root any, setup func(r *MetadataRegistry), opts ...Option) (*Application, error) {
	t.Helper()
	registry := NewMetadataRegistry()
	if setup != nil {
		setup(registry)
	}
	opts = append([]Option{WithMetadata(registry), WithLogger(NopLogger())}, opts...)
	return NewApplication(context.Background(), root, opts...)
}

func mustApplication(t *testing.T, root any, setup func(r *MetadataRegistry), opts ...Option) *Application {
	t.Helper()
	app, err := newTestApplication(t, root, setup, opts...)
	require.NoError(t, err)
	return app
}

// scanned returns a container filled by scanning root.
func scanned(t *testing.T, root any, setup func(r *MetadataRegistry)) (*Container, *DependenciesScanner, error) {
	t.Helper()
	registry := NewMetadataRegistry()
	if setup != nil {
		setup(registry)
	}
	container := NewContainer(WithContainerMetadata(registry))
	scanner := NewDependenciesScanner(container)
	return container, scanner, scanner.Scan(context.Background(), root)
}

func moduleOf(t *testing.T, c *Container, module any) *Module {
	t.Helper()
	compiled, err := c.Compiler().Compile(context.Background(), module, nil)
	require.NoError(t, err)
	m, ok := c.Modules().Get(compiled.Token)
	require.True(t, ok, fmt.Sprintf("module %T not registered", module))
	return m
}
