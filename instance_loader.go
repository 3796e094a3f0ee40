package modinject

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// InstanceLoader drives the injector over every module of a container.
type InstanceLoader struct {
	container *Container
	injector  *Injector
	logger    Logger
	timeout   time.Duration
}

// NewInstanceLoader creates a loader. A positive timeout bounds the whole
// instantiation pass.
func NewInstanceLoader(container *Container, injector *Injector, timeout time.Duration) *InstanceLoader {
	return &InstanceLoader{
		container: container,
		injector:  injector,
		logger:    container.Logger(),
		timeout:   timeout,
	}
}

// Injector returns the injector the loader drives.
func (l *InstanceLoader) Injector() *Injector { return l.injector }

// CreateInstancesOfDependencies allocates prototypes for every module, then
// builds every module's components, injectables and controllers.
func (l *InstanceLoader) CreateInstancesOfDependencies(ctx context.Context) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	modules := l.container.Modules().Values()
	l.createPrototypes(modules)
	if err := l.createInstances(ctx, modules); err != nil {
		return err
	}
	return l.verifyResolved(modules)
}

func (l *InstanceLoader) createPrototypes(modules []*Module) {
	for _, module := range modules {
		for _, collection := range []*WrapperCollection{module.Components(), module.Injectables(), module.Routes()} {
			for _, wrapper := range collection.Values() {
				l.injector.LoadPrototypeOfInstance(wrapper, collection)
			}
		}
	}
}

// createInstances builds modules in parallel. Inside a module components
// are complete before injectables start, and injectables before controllers.
func (l *InstanceLoader) createInstances(ctx context.Context, modules []*Module) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, module := range modules {
		g.Go(func() error {
			if err := l.createInstancesOf(gctx, module.Components(), module, l.injector.LoadInstanceOfComponent); err != nil {
				return err
			}
			if err := l.createInstancesOf(gctx, module.Injectables(), module, l.injector.LoadInstanceOfInjectable); err != nil {
				return err
			}
			if err := l.createInstancesOf(gctx, module.Routes(), module, l.injector.LoadInstanceOfRoute); err != nil {
				return err
			}
			l.logger.Info("Module dependencies initialized", "module", moduleDisplayName(module.Metatype()), "context", "InstanceLoader")
			emitEvent(gctx, l.container.events, l.logger, EventTypeModuleInitialized, map[string]any{
				"module": module.Name(),
				"token":  module.Token(),
			})
			return nil
		})
	}
	return g.Wait()
}

type loadFunc func(ctx context.Context, wrapper *InstanceWrapper, module *Module) error

func (l *InstanceLoader) createInstancesOf(ctx context.Context, collection *WrapperCollection, module *Module, load loadFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, wrapper := range collection.Values() {
		g.Go(func() error {
			return load(gctx, wrapper, module)
		})
	}
	return g.Wait()
}

// verifyResolved fails when a wrapper is still unresolved after the pass.
func (l *InstanceLoader) verifyResolved(modules []*Module) error {
	var unresolved []string
	for _, module := range modules {
		for _, collection := range []*WrapperCollection{module.Components(), module.Injectables(), module.Routes()} {
			for _, wrapper := range collection.Values() {
				if !wrapper.IsResolved() {
					unresolved = append(unresolved, fmt.Sprintf("%s in %s", wrapper.Name, moduleDisplayName(module.Metatype())))
				}
			}
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%w: unresolved after instantiation: %s", ErrRuntime, strings.Join(unresolved, ", "))
	}
	return nil
}
