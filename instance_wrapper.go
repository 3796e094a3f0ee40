package modinject

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

type wrapperState int

const (
	stateUnresolved wrapperState = iota
	statePending
	stateResolved
)

func (s wrapperState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateResolved:
		return "resolved"
	default:
		return "unresolved"
	}
}

// InstanceWrapper is the unit of resolution: one provider, controller or
// injectable and the instance built for it.
type InstanceWrapper struct {
	// Name is the resolution token.
	Name string
	// Metatype is the constructor or factory. It is invalid for values.
	Metatype reflect.Value
	// Instance is the constructed value, nil until resolved.
	Instance any
	// Inject is nil for class providers. A non-nil slice, even an empty
	// one, marks a factory provider.
	Inject []Token
	// Async is set when Instance is a *Future that has not been awaited yet.
	Async bool
	// ForwardRef is set when the wrapper takes part in a declared cycle.
	// Consumers receive its prototype instead of waiting for it.
	ForwardRef bool
	// IsNotMetatype is set for value and factory providers.
	IsNotMetatype bool

	mu              sync.Mutex
	state           wrapperState
	done            chan struct{}
	err             error
	prototype       reflect.Value
	prototypeShared bool
}

func newResolvedWrapper(name string, value any) *InstanceWrapper {
	w := &InstanceWrapper{Name: name, Instance: value, IsNotMetatype: true, state: stateResolved}
	if _, isFuture := value.(*Future); isFuture {
		w.Async = true
	}
	return w
}

// IsResolved reports whether the instance has been built.
func (w *InstanceWrapper) IsResolved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateResolved
}

// IsPending reports whether a construction is in flight.
func (w *InstanceWrapper) IsPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == statePending
}

func (w *InstanceWrapper) isFactory() bool {
	return w.Inject != nil
}

// claim moves an unresolved wrapper to pending. When another caller owns the
// construction it returns that caller's completion channel instead.
func (w *InstanceWrapper) claim() (owned bool, wait <-chan struct{}, resolved bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case stateResolved:
		return false, nil, true
	case statePending:
		return false, w.done, false
	}
	w.state = statePending
	w.done = make(chan struct{})
	w.err = nil
	return true, nil, false
}

// finish records the outcome of an owned construction and releases waiters.
// A nil error with resolved false returns the wrapper to unresolved so a
// later pass can retry it.
func (w *InstanceWrapper) finish(instance any, resolved bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case err != nil:
		w.state = stateUnresolved
		w.err = err
	case resolved:
		w.Instance = instance
		w.state = stateResolved
	default:
		w.state = stateUnresolved
	}
	if w.done != nil {
		close(w.done)
	}
}

func (w *InstanceWrapper) lastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *InstanceWrapper) isForwardRef() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ForwardRef
}

func (w *InstanceWrapper) markForwardRef() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ForwardRef = true
}

func (w *InstanceWrapper) hasPrototype() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prototype.IsValid()
}

// setPrototype stores a bare value that forward-ref consumers receive before
// the real instance exists.
func (w *InstanceWrapper) setPrototype(proto reflect.Value) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prototype = proto
}

// sharePrototype hands out the prototype and remembers that it escaped.
func (w *InstanceWrapper) sharePrototype() (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == stateResolved {
		return w.Instance, true
	}
	if !w.prototype.IsValid() {
		return nil, false
	}
	w.prototypeShared = true
	return w.prototype.Interface(), true
}

// adoptInstance folds a freshly constructed value into the prototype when
// the prototype was already handed out, so early holders see the finished
// object.
func (w *InstanceWrapper) adoptInstance(built reflect.Value) any {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.prototypeShared || !w.prototype.IsValid() || built.Kind() != reflect.Pointer || built.IsNil() ||
		built.Type() != w.prototype.Type() {
		return built.Interface()
	}
	w.prototype.Elem().Set(built.Elem())
	return w.prototype.Interface()
}

// instance returns the resolved value, awaiting it when it is a future.
func (w *InstanceWrapper) instance(ctx context.Context) (any, error) {
	w.mu.Lock()
	value, async := w.Instance, w.Async
	w.mu.Unlock()
	if !async {
		return value, nil
	}
	future, ok := value.(*Future)
	if !ok {
		return value, nil
	}
	settled, err := future.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving async value of %s: %w", w.Name, err)
	}
	w.mu.Lock()
	w.Instance, w.Async = settled, false
	w.mu.Unlock()
	return settled, nil
}

// WrapperCollection is an insertion-ordered set of wrappers keyed by name.
type WrapperCollection struct {
	mu    sync.RWMutex
	order []string
	items map[string]*InstanceWrapper
}

// NewWrapperCollection creates an empty collection.
func NewWrapperCollection() *WrapperCollection {
	return &WrapperCollection{items: make(map[string]*InstanceWrapper)}
}

// Get returns the wrapper registered under name.
func (c *WrapperCollection) Get(name string) (*InstanceWrapper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.items[name]
	return w, ok
}

// Has reports whether name is registered.
func (c *WrapperCollection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Set registers or replaces the wrapper under name, keeping its position.
func (c *WrapperCollection) Set(name string, w *InstanceWrapper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[name]; !exists {
		c.order = append(c.order, name)
	}
	c.items[name] = w
}

// Names returns the registered names in insertion order.
func (c *WrapperCollection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Values returns the wrappers in insertion order.
func (c *WrapperCollection) Values() []*InstanceWrapper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make([]*InstanceWrapper, 0, len(c.order))
	for _, name := range c.order {
		values = append(values, c.items[name])
	}
	return values
}

// Len returns the number of wrappers.
func (c *WrapperCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
