package modinject

import (
	"context"
	"fmt"
	"sync"
)

// Guard decides whether a handler may run.
type Guard interface {
	CanActivate(ctx context.Context) (bool, error)
}

// Pipe transforms a handler's input.
type Pipe interface {
	Transform(ctx context.Context, value any) (any, error)
}

// Interceptor wraps a handler call.
type Interceptor interface {
	Intercept(ctx context.Context, next Handler) (any, error)
}

// ExceptionFilter handles an error returned by a handler. Returning nil
// swallows the error.
type ExceptionFilter interface {
	Catch(ctx context.Context, err error) error
}

// ApplicationConfig holds the application-wide guards, pipes, interceptors
// and exception filters.
type ApplicationConfig struct {
	mu                 sync.RWMutex
	globalPrefix       string
	globalGuards       []any
	globalPipes        []any
	globalInterceptors []any
	globalFilters      []ExceptionFilter
}

// NewApplicationConfig creates an empty configuration.
func NewApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{}
}

func (c *ApplicationConfig) SetGlobalPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalPrefix = prefix
}

func (c *ApplicationConfig) GlobalPrefix() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.globalPrefix
}

func (c *ApplicationConfig) AddGlobalGuard(guard any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalGuards = append(c.globalGuards, guard)
}

func (c *ApplicationConfig) AddGlobalPipe(pipe any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalPipes = append(c.globalPipes, pipe)
}

func (c *ApplicationConfig) AddGlobalInterceptor(interceptor any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalInterceptors = append(c.globalInterceptors, interceptor)
}

// AddGlobalFilter registers an application-wide exception filter. The value
// must implement ExceptionFilter.
func (c *ApplicationConfig) AddGlobalFilter(filter any) error {
	f, ok := filter.(ExceptionFilter)
	if !ok {
		return fmt.Errorf("%w: %T does not implement Catch", ErrInvalidExceptionFilter, filter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalFilters = append(c.globalFilters, f)
	return nil
}

func (c *ApplicationConfig) GlobalGuards() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]any(nil), c.globalGuards...)
}

func (c *ApplicationConfig) GlobalPipes() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]any(nil), c.globalPipes...)
}

func (c *ApplicationConfig) GlobalInterceptors() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]any(nil), c.globalInterceptors...)
}

func (c *ApplicationConfig) GlobalFilters() []ExceptionFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ExceptionFilter(nil), c.globalFilters...)
}
