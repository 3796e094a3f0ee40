package modinject

import (
	"context"
	"fmt"
	"reflect"
)

// Application-scoped provider tokens. A provider registered under one of
// these is instantiated in its module and then handed to the
// ApplicationConfig as a global guard, pipe, interceptor or filter.
const (
	AppGuard       = "APP_GUARD"
	AppPipe        = "APP_PIPE"
	AppInterceptor = "APP_INTERCEPTOR"
	AppFilter      = "APP_FILTER"
)

// ClassProvider binds a token to a constructor.
type ClassProvider struct {
	Provide  Token
	UseClass any
}

// ValueProvider binds a token to an existing value. A *Future value is
// awaited before it is injected.
type ValueProvider struct {
	Provide  Token
	UseValue any
}

// FactoryProvider binds a token to the result of a factory function. When
// Inject is empty the factory's parameter types are used as tokens.
type FactoryProvider struct {
	Provide    Token
	UseFactory any
	Inject     []Token
}

// DynamicModule is a module configured at runtime, typically returned from
// a ForRoot style function. Its lists are merged with the static metadata
// of Module.
type DynamicModule struct {
	Module      any
	Imports     []any
	Providers   []any
	Controllers []any
	Exports     []any
	Global      bool
}

func (d *DynamicModule) list(key string) []any {
	if d == nil {
		return nil
	}
	switch key {
	case MetaImports:
		return d.Imports
	case MetaProviders:
		return d.Providers
	case MetaControllers:
		return d.Controllers
	case MetaExports:
		return d.Exports
	}
	return nil
}

// isCustomProvider reports whether component carries a Provide token.
func isCustomProvider(component any) bool {
	switch component.(type) {
	case ClassProvider, *ClassProvider, ValueProvider, *ValueProvider, FactoryProvider, *FactoryProvider:
		return true
	}
	return false
}

// providerToken returns the Provide token of a custom provider.
func providerToken(component any) (Token, bool) {
	switch p := component.(type) {
	case ClassProvider:
		return p.Provide, true
	case *ClassProvider:
		return p.Provide, true
	case ValueProvider:
		return p.Provide, true
	case *ValueProvider:
		return p.Provide, true
	case FactoryProvider:
		return p.Provide, true
	case *FactoryProvider:
		return p.Provide, true
	}
	return nil, false
}

// withProvideToken returns a copy of a custom provider bound to token.
func withProvideToken(component any, token Token) (any, error) {
	switch p := component.(type) {
	case ClassProvider:
		p.Provide = token
		return p, nil
	case *ClassProvider:
		c := *p
		c.Provide = token
		return c, nil
	case ValueProvider:
		p.Provide = token
		return p, nil
	case *ValueProvider:
		c := *p
		c.Provide = token
		return c, nil
	case FactoryProvider:
		p.Provide = token
		return p, nil
	case *FactoryProvider:
		c := *p
		c.Provide = token
		return c, nil
	}
	if reflect.ValueOf(component).Kind() == reflect.Func {
		return ClassProvider{Provide: token, UseClass: component}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidProvider, component)
}

// validateConstructor checks that fn returns a value, optionally followed by
// an error.
func validateConstructor(fn reflect.Value) error {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return fmt.Errorf("%w: constructor must be a non-nil function", ErrInvalidProvider)
	}
	ft := fn.Type()
	switch ft.NumOut() {
	case 1:
	case 2:
		if !ft.Out(1).Implements(errorType) {
			return fmt.Errorf("%w: second result of %s must be an error", ErrInvalidProvider, ft)
		}
	default:
		return fmt.Errorf("%w: %s must return a value and optionally an error", ErrInvalidProvider, ft)
	}
	if ft.IsVariadic() {
		return fmt.Errorf("%w: variadic constructor %s", ErrInvalidProvider, ft)
	}
	return nil
}

var errorType = TypeOf[error]()

// Future is a value that becomes available later. It is the container's
// counterpart of an asynchronous module or provider value.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

// NewFuture starts fn in its own goroutine and returns a future for its
// result.
func NewFuture(fn func() (any, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("future panicked: %v", r)
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// ResolvedFuture returns a future that is already settled with value.
func ResolvedFuture(value any) *Future {
	f := &Future{done: make(chan struct{}), value: value}
	close(f.done)
	return f
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("awaiting future: %w", ctx.Err())
	}
}
