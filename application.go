package modinject

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Application is a bootstrapped module graph. Every provider, controller and
// injectable is resolved by the time NewApplication returns.
type Application struct {
	container *Container
	scanner   *DependenciesScanner
	loader    *InstanceLoader
	logger    Logger
	config    *Config
	events    *EventSubject

	closeOnce sync.Once
	closeErr  error
}

func (a *Application) bootstrap(ctx context.Context, root any, overrides []providerOverride) error {
	if err := a.scanner.Scan(ctx, root); err != nil {
		return err
	}
	for _, o := range overrides {
		if err := a.container.Replace(o.token, o.provider, true); err != nil {
			return fmt.Errorf("overriding provider: %w", err)
		}
	}
	if err := a.loader.CreateInstancesOfDependencies(ctx); err != nil {
		return err
	}
	if err := a.scanner.ApplyApplicationProviders(ctx); err != nil {
		return err
	}
	if err := callModuleInitHooks(ctx, a.container.Modules().Values(), a.logger); err != nil {
		return err
	}

	a.logger.Info("Application bootstrapped", "modules", a.container.Modules().Len())
	a.emit(ctx, EventTypeApplicationBootstrapped, map[string]any{"modules": a.container.Modules().Len()})
	return nil
}

func (a *Application) emit(ctx context.Context, eventType string, data map[string]any) {
	if a.events == nil {
		return
	}
	emitEvent(ctx, a.events, a.logger, eventType, data)
}

func (a *Application) Container() *Container { return a.container }

func (a *Application) Config() *Config { return a.config }

func (a *Application) Logger() Logger { return a.logger }

// Subject returns the event subject, or nil when events are disabled.
func (a *Application) Subject() Subject {
	if a.events == nil {
		return nil
	}
	return a.events
}

// Get returns the resolved instance registered under token in any module.
func (a *Application) Get(token Token) (any, error) {
	return findInstance(a.container, token)
}

// Select returns a ModuleRef for a registered module. Modules registered
// under a single scope are only reachable through their importers.
func (a *Application) Select(ctx context.Context, module any) (*ModuleRef, error) {
	compiled, err := a.container.Compiler().Compile(ctx, module, nil)
	if err != nil {
		return nil, err
	}
	m, ok := a.container.Modules().Get(compiled.Token)
	if !ok {
		return nil, &UnknownModuleError{Token: compiled.Token}
	}
	return &ModuleRef{container: a.container, module: m}, nil
}

// Get returns the instance of T from app.
func Get[T any](app *Application) (T, error) {
	var zero T
	value, err := app.Get(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not %s", ErrUnknownElement, value, TypeOf[T]())
	}
	return typed, nil
}

// Close runs OnModuleDestroy hooks in reverse module order. Later calls
// return the first call's result.
func (a *Application) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = callModuleDestroyHooks(ctx, a.container.Modules().Values(), a.logger)
		a.logger.Info("Application closed")
		a.emit(ctx, EventTypeApplicationClosed, nil)
	})
	return a.closeErr
}

// Run blocks until ctx is done or the process receives SIGINT or SIGTERM,
// then closes the application.
func (a *Application) Run(ctx context.Context) error {
	if a == nil {
		return ErrApplicationNil
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("Received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("Context done, shutting down")
	}
	err := a.Close(context.WithoutCancel(ctx))
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
		return errors.Join(err, ctxErr)
	}
	return err
}
