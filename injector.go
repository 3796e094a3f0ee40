package modinject

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DependencyContext describes the constructor argument being resolved.
type DependencyContext struct {
	Index int
	Args  []Token
}

// InjectorOption configures an Injector.
type InjectorOption func(*Injector)

// WithMaxConcurrency bounds the number of constructor arguments resolved in
// parallel for one provider. Zero means no limit.
func WithMaxConcurrency(n int) InjectorOption {
	return func(i *Injector) { i.maxConcurrency = n }
}

// WithInjectorEvents publishes provider resolution events to subject.
func WithInjectorEvents(subject Subject) InjectorOption {
	return func(i *Injector) { i.events = subject }
}

// Injector builds instances: it resolves constructor arguments across module
// boundaries, calls constructors and factories, and records the results on
// their wrappers.
type Injector struct {
	metadata       MetadataProvider
	logger         Logger
	events         Subject
	maxConcurrency int
	waits          *waitGraph
}

// NewInjector creates an injector reading constructor metadata from metadata.
func NewInjector(metadata MetadataProvider, logger Logger, opts ...InjectorOption) *Injector {
	i := &Injector{
		metadata: metadata,
		logger:   logger,
		waits:    newWaitGraph(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = NopLogger()
	}
	return i
}

// LoadPrototypeOfInstance allocates a bare value for a class provider whose
// constructor returns a struct pointer. Forward-ref consumers receive it
// before the constructor has run.
func (i *Injector) LoadPrototypeOfInstance(wrapper *InstanceWrapper, collection *WrapperCollection) {
	current, ok := collection.Get(wrapper.Name)
	if !ok || current.IsResolved() || !current.Metatype.IsValid() {
		return
	}
	for _, token := range i.dependencyTokens(current) {
		if IsForwardRef(token) {
			current.markForwardRef()
			break
		}
	}
	if current.isFactory() {
		return
	}
	out := current.Metatype.Type().Out(0)
	if out.Kind() == reflect.Pointer && out.Elem().Kind() == reflect.Struct {
		current.setPrototype(reflect.New(out.Elem()))
	}
}

// LoadInstanceOfComponent builds a provider of module.
func (i *Injector) LoadInstanceOfComponent(ctx context.Context, wrapper *InstanceWrapper, module *Module) error {
	return i.LoadInstance(ctx, wrapper, module.Components(), module)
}

// LoadInstanceOfRoute builds a controller of module.
func (i *Injector) LoadInstanceOfRoute(ctx context.Context, wrapper *InstanceWrapper, module *Module) error {
	return i.LoadInstance(ctx, wrapper, module.Routes(), module)
}

// LoadInstanceOfInjectable builds an injectable of module.
func (i *Injector) LoadInstanceOfInjectable(ctx context.Context, wrapper *InstanceWrapper, module *Module) error {
	return i.LoadInstance(ctx, wrapper, module.Injectables(), module)
}

// LoadInstance builds the wrapper registered in collection under
// wrapper.Name. Only one caller constructs a given wrapper; concurrent
// callers wait for it and observe its outcome.
func (i *Injector) LoadInstance(ctx context.Context, wrapper *InstanceWrapper, collection *WrapperCollection, module *Module) error {
	current, ok := collection.Get(wrapper.Name)
	if !ok {
		return fmt.Errorf("%w: %s is not registered in %s", ErrRuntime, wrapper.Name, module.Name())
	}

	owned, wait, resolved := current.claim()
	if resolved {
		return nil
	}
	if !owned {
		select {
		case <-wait:
			return current.lastError()
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", current.Name, ctx.Err())
		}
	}

	var (
		instance any
		built    bool
	)
	err := i.ResolveConstructorParams(ctx, current, module, current.Inject, func(args []reflect.Value) error {
		var callErr error
		if current.isFactory() {
			instance, callErr = i.ResolveFactoryInstance(ctx, current, args)
		} else {
			instance, callErr = i.instantiateClass(current, args)
		}
		built = callErr == nil
		return callErr
	})
	current.finish(instance, built, err)
	if err != nil {
		return err
	}
	if built {
		i.logger.Debug("Provider resolved", "provider", current.Name, "module", module.Name(), "context", "Injector")
		emitEvent(ctx, i.events, i.logger, EventTypeProviderResolved, map[string]any{
			"provider": current.Name,
			"module":   module.Name(),
		})
	}
	return nil
}

// ResolveConstructorParams resolves every dependency of wrapper in parallel
// and calls callback with the arguments once all of them are resolved or are
// forward references. inject, when non-nil and non-empty, replaces the
// reflected parameter types.
func (i *Injector) ResolveConstructorParams(ctx context.Context, wrapper *InstanceWrapper, module *Module, inject []Token, callback func(args []reflect.Value) error) error {
	tokens := inject
	if len(tokens) == 0 {
		tokens = i.ReflectConstructorParams(wrapper)
	}
	fnType := wrapper.Metatype.Type()
	args := make([]reflect.Value, len(tokens))
	var allResolved atomic.Bool
	allResolved.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	if i.maxConcurrency > 0 {
		g.SetLimit(i.maxConcurrency)
	}
	for index, token := range tokens {
		g.Go(func() error {
			dep, err := i.ResolveSingleParam(gctx, wrapper, token, DependencyContext{Index: index, Args: tokens}, module)
			if err != nil {
				return err
			}
			value, ready, err := i.dependencyValue(gctx, dep)
			if err != nil {
				return err
			}
			if !ready {
				allResolved.Store(false)
				return nil
			}
			arg, err := assignableArg(value, fnType.In(index), wrapper.Name, index)
			if err != nil {
				return err
			}
			args[index] = arg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if !allResolved.Load() {
		return nil
	}
	return callback(args)
}

// ReflectConstructorParams returns the parameter tokens of the wrapper's
// constructor with Inject-declared tokens laid over them.
func (i *Injector) ReflectConstructorParams(wrapper *InstanceWrapper) []Token {
	tokens := i.metadata.ConstructorParamTokens(wrapper.Metatype)
	for _, declared := range i.metadata.SelfDeclaredTokens(wrapper.Metatype) {
		if declared.Index >= 0 && declared.Index < len(tokens) {
			tokens[declared.Index] = declared.Token
		}
	}
	return tokens
}

func (i *Injector) dependencyTokens(wrapper *InstanceWrapper) []Token {
	if len(wrapper.Inject) > 0 {
		return wrapper.Inject
	}
	return i.ReflectConstructorParams(wrapper)
}

// ResolveSingleParam looks up the wrapper providing the argument at
// depCtx.Index.
func (i *Injector) ResolveSingleParam(ctx context.Context, wrapper *InstanceWrapper, param Token, depCtx DependencyContext, module *Module) (*InstanceWrapper, error) {
	token := i.ResolveParamToken(wrapper, param)
	name, ok := TokenName(token)
	if !ok {
		return nil, &UndefinedDependencyError{
			Type:   wrapper.Name,
			Index:  depCtx.Index,
			Args:   argNames(depCtx.Args),
			Module: moduleDisplayName(module.Metatype()),
		}
	}
	return i.ResolveComponentInstance(ctx, module, name, depCtx, wrapper)
}

// ResolveParamToken unwraps a forward reference and marks the wrapper as
// part of a declared cycle.
func (i *Injector) ResolveParamToken(wrapper *InstanceWrapper, param Token) Token {
	if !IsForwardRef(param) {
		return param
	}
	wrapper.markForwardRef()
	return unwrapForwardRef(param)
}

// ResolveComponentInstance finds name as seen from module and makes sure it
// is built, unless it is a forward reference that can be handed out early.
func (i *Injector) ResolveComponentInstance(ctx context.Context, module *Module, name string, depCtx DependencyContext, wrapper *InstanceWrapper) (*InstanceWrapper, error) {
	dep, host, err := i.LookupComponent(ctx, module.Components(), module, name, depCtx, wrapper)
	if err != nil {
		return nil, err
	}
	if err := i.awaitDependency(ctx, wrapper, dep, host); err != nil {
		return nil, err
	}
	return dep, nil
}

// LookupComponent returns the local provider named name, falling back to the
// exports of imported modules. A provider never resolves to itself.
func (i *Injector) LookupComponent(ctx context.Context, components *WrapperCollection, module *Module, name string, depCtx DependencyContext, wrapper *InstanceWrapper) (*InstanceWrapper, *Module, error) {
	if dep, ok := components.Get(name); ok && dep != wrapper {
		return dep, module, nil
	}
	return i.LookupComponentInExports(ctx, name, module, depCtx, wrapper)
}

// LookupComponentInExports searches the imports of module for an exported
// provider named name.
func (i *Injector) LookupComponentInExports(ctx context.Context, name string, module *Module, depCtx DependencyContext, wrapper *InstanceWrapper) (*InstanceWrapper, *Module, error) {
	dep, host, err := i.LookupComponentInRelatedModules(ctx, module, name, wrapper)
	if err != nil {
		return nil, nil, err
	}
	if dep == nil {
		return nil, nil, &UnknownDependenciesError{
			Type:   wrapper.Name,
			Token:  name,
			Index:  depCtx.Index,
			Args:   argNames(depCtx.Args),
			Module: moduleDisplayName(module.Metatype()),
		}
	}
	return dep, host, nil
}

// LookupComponentInRelatedModules returns the first imported module, direct
// or re-exported, that both provides and exports name. The provider is built
// in its own module when needed.
func (i *Injector) LookupComponentInRelatedModules(ctx context.Context, module *Module, name string, wrapper *InstanceWrapper) (*InstanceWrapper, *Module, error) {
	for _, related := range i.FlatMap(module.RelatedModules()) {
		if !related.HasExport(name) {
			continue
		}
		dep, ok := related.Components().Get(name)
		if !ok {
			continue
		}
		if err := i.awaitDependency(ctx, wrapper, dep, related); err != nil {
			return nil, nil, err
		}
		return dep, related, nil
	}
	return nil, nil, nil
}

// FlatMap expands modules with the modules they re-export, recursively.
// Each module appears once.
func (i *Injector) FlatMap(modules []*Module) []*Module {
	visited := make(map[*Module]struct{})
	var result []*Module
	var walk func(list []*Module)
	walk = func(list []*Module) {
		fresh := make([]*Module, 0, len(list))
		for _, m := range list {
			if _, seen := visited[m]; seen {
				continue
			}
			visited[m] = struct{}{}
			result = append(result, m)
			fresh = append(fresh, m)
		}
		for _, m := range fresh {
			var reexported []*Module
			for _, related := range m.RelatedModules() {
				if m.HasExport(related.Name()) {
					reexported = append(reexported, related)
				}
			}
			walk(reexported)
		}
	}
	walk(modules)
	return result
}

// ResolveFactoryInstance calls a factory and awaits a *Future result.
func (i *Injector) ResolveFactoryInstance(ctx context.Context, wrapper *InstanceWrapper, args []reflect.Value) (any, error) {
	result, err := callConstructor(wrapper, args)
	if err != nil {
		return nil, err
	}
	value := result.Interface()
	if future, ok := value.(*Future); ok && future != nil {
		settled, err := future.Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("factory %s: %w", wrapper.Name, err)
		}
		return settled, nil
	}
	return value, nil
}

func (i *Injector) instantiateClass(wrapper *InstanceWrapper, args []reflect.Value) (any, error) {
	result, err := callConstructor(wrapper, args)
	if err != nil {
		return nil, err
	}
	return wrapper.adoptInstance(result), nil
}

// awaitDependency builds dep in host on behalf of requester. A forward-ref
// dependency with a prototype is not waited for.
func (i *Injector) awaitDependency(ctx context.Context, requester, dep *InstanceWrapper, host *Module) error {
	if dep.IsResolved() || (dep.isForwardRef() && dep.hasPrototype()) {
		return nil
	}
	release, err := i.waits.add(requester, dep)
	if err != nil {
		return err
	}
	defer release()
	return i.LoadInstanceOfComponent(ctx, dep, host)
}

// dependencyValue returns what gets injected for dep: its settled instance,
// or its prototype while a forward-ref dependency is still being built.
func (i *Injector) dependencyValue(ctx context.Context, dep *InstanceWrapper) (any, bool, error) {
	if dep.IsResolved() {
		value, err := dep.instance(ctx)
		return value, err == nil, err
	}
	if dep.isForwardRef() {
		if value, ok := dep.sharePrototype(); ok {
			return value, true, nil
		}
	}
	return nil, false, nil
}

func callConstructor(wrapper *InstanceWrapper, args []reflect.Value) (result reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructing %s panicked: %v", wrapper.Name, r)
		}
	}()
	results := wrapper.Metatype.Call(args)
	if len(results) == 2 && !results[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("constructing %s: %w", wrapper.Name, results[1].Interface().(error))
	}
	return results[0], nil
}

func assignableArg(value any, paramType reflect.Type, provider string, index int) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(paramType), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(paramType) {
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s cannot be injected as %s at index [%d] of %s",
		ErrInvalidProvider, v.Type(), paramType, index, provider)
}

func argNames(tokens []Token) []string {
	names := make([]string, len(tokens))
	for i, token := range tokens {
		names[i], _ = TokenName(token)
	}
	return names
}

// waitGraph records which wrapper is blocked on which. An edge that would
// close a cycle is a construction deadlock and is reported instead of
// waited on.
type waitGraph struct {
	mu    sync.Mutex
	edges map[*InstanceWrapper]map[*InstanceWrapper]int
}

func newWaitGraph() *waitGraph {
	return &waitGraph{edges: make(map[*InstanceWrapper]map[*InstanceWrapper]int)}
}

func (g *waitGraph) add(from, to *InstanceWrapper) (func(), error) {
	if from == nil {
		return func() {}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if from == to {
		return nil, &CircularDependencyError{Chain: []string{from.Name, to.Name}}
	}
	if path := g.path(to, from); path != nil {
		chain := []string{from.Name}
		for _, w := range path {
			chain = append(chain, w.Name)
		}
		return nil, &CircularDependencyError{Chain: chain}
	}
	if g.edges[from] == nil {
		g.edges[from] = make(map[*InstanceWrapper]int)
	}
	g.edges[from][to]++
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.edges[from][to]--
		if g.edges[from][to] <= 0 {
			delete(g.edges[from], to)
		}
		if len(g.edges[from]) == 0 {
			delete(g.edges, from)
		}
	}, nil
}

// path returns the wrappers from start to target along wait edges, or nil.
func (g *waitGraph) path(start, target *InstanceWrapper) []*InstanceWrapper {
	parent := map[*InstanceWrapper]*InstanceWrapper{start: nil}
	queue := []*InstanceWrapper{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			var path []*InstanceWrapper
			for w := current; w != nil; w = parent[w] {
				path = append([]*InstanceWrapper{w}, path...)
			}
			return path
		}
		for next := range g.edges[current] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			queue = append(queue, next)
		}
	}
	return nil
}
