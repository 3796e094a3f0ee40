package modinject

import (
	"context"
	"fmt"
)

// ModuleRef gives a provider access to the container from inside its module.
type ModuleRef struct {
	container *Container
	module    *Module
}

// Get returns the resolved instance of token registered in this module.
func (r *ModuleRef) Get(token Token) (any, error) {
	name, ok := TokenName(token)
	if !ok {
		return nil, fmt.Errorf("%w: undefined token", ErrUnknownElement)
	}
	if w, found := r.module.Components().Get(name); found && w.IsResolved() {
		return w.instance(context.Background())
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrUnknownElement, name, moduleDisplayName(r.module.Metatype()))
}

// Find returns the resolved instance of token from any module.
func (r *ModuleRef) Find(token Token) (any, error) {
	return findInstance(r.container, token)
}

// Resolve returns the instance of T registered in the module of ref.
func Resolve[T any](ref *ModuleRef) (T, error) {
	var zero T
	value, err := ref.Get(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not %s", ErrUnknownElement, value, TypeOf[T]())
	}
	return typed, nil
}

func findInstance(container *Container, token Token) (any, error) {
	name, ok := TokenName(token)
	if !ok {
		return nil, fmt.Errorf("%w: undefined token", ErrUnknownElement)
	}
	for _, module := range container.Modules().Values() {
		for _, collection := range []*WrapperCollection{module.Components(), module.Routes(), module.Injectables()} {
			if w, found := collection.Get(name); found && w.IsResolved() {
				return w.instance(context.Background())
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownElement, name)
}

// Reflector reads metadata attached to providers, controllers and modules.
type Reflector struct {
	metadata MetadataProvider
}

// NewReflector wraps a metadata provider.
func NewReflector(metadata MetadataProvider) *Reflector {
	return &Reflector{metadata: metadata}
}

func (r *Reflector) Get(key string, target any) any {
	return r.metadata.Get(key, target)
}

func (r *Reflector) GetMethod(key string, target any, method string) any {
	return r.metadata.GetMethod(key, target, method)
}

// Handler is the shape of a handler method wrapped by an
// ExternalContextCreator.
type Handler func(ctx context.Context, input any) (any, error)

// ExternalContextCreator wraps handlers with the guards, pipes,
// interceptors and exception filters that apply to them.
type ExternalContextCreator struct {
	module *Module
}

// NewExternalContextCreator creates a creator that looks up scoped
// injectables in module.
func NewExternalContextCreator(module *Module) *ExternalContextCreator {
	return &ExternalContextCreator{module: module}
}

// Create wraps handler, a method of the controller or provider built by
// class. Global enhancers run before class-level ones, which run before
// method-level ones.
func (e *ExternalContextCreator) Create(class any, method string, handler Handler) (Handler, error) {
	guards, err := e.Guards(class, method)
	if err != nil {
		return nil, err
	}
	pipes, err := e.Pipes(class, method)
	if err != nil {
		return nil, err
	}
	interceptors, err := e.Interceptors(class, method)
	if err != nil {
		return nil, err
	}
	filters, err := e.Filters(class, method)
	if err != nil {
		return nil, err
	}

	call := handler
	for idx := len(interceptors) - 1; idx >= 0; idx-- {
		interceptor, next := interceptors[idx], call
		call = func(ctx context.Context, input any) (any, error) {
			return interceptor.Intercept(ctx, func(ctx context.Context, _ any) (any, error) {
				return next(ctx, input)
			})
		}
	}

	return func(ctx context.Context, input any) (any, error) {
		result, err := e.run(ctx, input, guards, pipes, call)
		if err == nil {
			return result, nil
		}
		for _, filter := range filters {
			err = filter.Catch(ctx, err)
			if err == nil {
				return nil, nil
			}
		}
		return nil, err
	}, nil
}

func (e *ExternalContextCreator) run(ctx context.Context, input any, guards []Guard, pipes []Pipe, call Handler) (any, error) {
	if err := CheckGuards(ctx, guards); err != nil {
		return nil, err
	}
	for _, pipe := range pipes {
		transformed, err := pipe.Transform(ctx, input)
		if err != nil {
			return nil, err
		}
		input = transformed
	}
	return call(ctx, input)
}

// CheckGuards runs guards in order and fails with ErrForbidden on the first
// refusal.
func CheckGuards(ctx context.Context, guards []Guard) error {
	for _, guard := range guards {
		allowed, err := guard.CanActivate(ctx)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrForbidden
		}
	}
	return nil
}

// Guards returns the guards applying to method of class.
func (e *ExternalContextCreator) Guards(class any, method string) ([]Guard, error) {
	return collectEnhancers[Guard](e, MetaGuards, class, method, e.config().GlobalGuards())
}

// Pipes returns the pipes applying to method of class.
func (e *ExternalContextCreator) Pipes(class any, method string) ([]Pipe, error) {
	return collectEnhancers[Pipe](e, MetaPipes, class, method, e.config().GlobalPipes())
}

// Interceptors returns the interceptors applying to method of class.
func (e *ExternalContextCreator) Interceptors(class any, method string) ([]Interceptor, error) {
	return collectEnhancers[Interceptor](e, MetaInterceptors, class, method, e.config().GlobalInterceptors())
}

// Filters returns the exception filters applying to method of class, most
// specific first.
func (e *ExternalContextCreator) Filters(class any, method string) ([]ExceptionFilter, error) {
	scoped, err := collectEnhancers[ExceptionFilter](e, MetaFilters, class, method, nil)
	if err != nil {
		return nil, err
	}
	for left, right := 0, len(scoped)-1; left < right; left, right = left+1, right-1 {
		scoped[left], scoped[right] = scoped[right], scoped[left]
	}
	return append(scoped, e.config().GlobalFilters()...), nil
}

func (e *ExternalContextCreator) config() *ApplicationConfig {
	return e.module.container.ApplicationConfig()
}

// collectEnhancers gathers global, class-level and method-level enhancers
// of type T. Constructible entries are looked up among the module's
// injectables; other entries are used as they are.
func collectEnhancers[T any](e *ExternalContextCreator, key string, class any, method string, global []any) ([]T, error) {
	metadata := e.module.container.Metadata()
	entries := append([]any(nil), global...)
	entries = append(entries, metadataList(metadata, key, class)...)
	if method != "" {
		if values, ok := metadata.GetMethod(key, class, method).([]any); ok {
			entries = append(entries, values...)
		}
	}

	enhancers := make([]T, 0, len(entries))
	for _, entry := range entries {
		instance := entry
		if isConstructible(entry) {
			name, ok := TokenName(entry)
			if provide, isCustom := providerToken(entry); isCustom {
				name, ok = TokenName(provide)
			}
			if !ok {
				return nil, fmt.Errorf("%w: enhancer %T has no name", ErrUnknownElement, entry)
			}
			w, found := e.module.Injectables().Get(name)
			if !found || !w.IsResolved() {
				return nil, fmt.Errorf("%w: enhancer %s in %s", ErrUnknownElement, name, moduleDisplayName(e.module.Metatype()))
			}
			instance = w.Instance
		}
		typed, ok := instance.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %T does not implement %s", ErrInvalidProvider, instance, TypeOf[T]())
		}
		enhancers = append(enhancers, typed)
	}
	return enhancers, nil
}
