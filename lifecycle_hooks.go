package modinject

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// ModuleInitializer is implemented by providers, controllers and module
// instances that need work done once every instance exists.
type ModuleInitializer interface {
	OnModuleInit(ctx context.Context) error
}

// ModuleDestroyer is implemented by instances that release resources when
// the application closes.
type ModuleDestroyer interface {
	OnModuleDestroy(ctx context.Context) error
}

// callModuleInitHooks runs OnModuleInit per module in registration order:
// providers, then controllers, then the module instance.
func callModuleInitHooks(ctx context.Context, modules []*Module, logger Logger) error {
	seen := make(map[any]struct{})
	for _, module := range modules {
		targets, err := hookTargets(ctx, module, seen)
		if err != nil {
			return err
		}
		for _, instance := range targets {
			hook, ok := instance.(ModuleInitializer)
			if !ok {
				continue
			}
			if err := hook.OnModuleInit(ctx); err != nil {
				return fmt.Errorf("OnModuleInit of %T in %s: %w", instance, moduleDisplayName(module.Metatype()), err)
			}
			logger.Debug("Module init hook called", "instance", fmt.Sprintf("%T", instance), "module", module.Name())
		}
	}
	return nil
}

// callModuleDestroyHooks runs OnModuleDestroy in reverse registration order
// and returns the first error after calling every hook.
func callModuleDestroyHooks(ctx context.Context, modules []*Module, logger Logger) error {
	seen := make(map[any]struct{})
	var firstErr error
	for i := len(modules) - 1; i >= 0; i-- {
		targets, err := hookTargets(ctx, modules[i], seen)
		if err != nil {
			logger.Error("Module destroy hook skipped", "module", modules[i].Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		for j := len(targets) - 1; j >= 0; j-- {
			hook, ok := targets[j].(ModuleDestroyer)
			if !ok {
				continue
			}
			if err := hook.OnModuleDestroy(ctx); err != nil {
				logger.Error("Module destroy hook failed", "instance", fmt.Sprintf("%T", targets[j]), "module", modules[i].Name(), "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("OnModuleDestroy of %T: %w", targets[j], err)
				}
			}
		}
	}
	return firstErr
}

// hookTargets lists the resolved instances of module, awaiting future
// values. Instances already listed for an earlier module are skipped.
func hookTargets(ctx context.Context, module *Module, seen map[any]struct{}) ([]any, error) {
	var (
		targets []any
		errs    []error
	)
	add := func(instance any) {
		if instance == nil {
			return
		}
		if reflect.ValueOf(instance).Comparable() {
			if _, dup := seen[instance]; dup {
				return
			}
			seen[instance] = struct{}{}
		}
		targets = append(targets, instance)
	}
	addWrapper := func(w *InstanceWrapper) {
		instance, err := w.instance(ctx)
		if err != nil {
			errs = append(errs, err)
			return
		}
		add(instance)
	}
	for _, w := range module.Components().Values() {
		if w.Name == module.Name() || !w.IsResolved() {
			continue
		}
		addWrapper(w)
	}
	for _, w := range module.Routes().Values() {
		if w.IsResolved() {
			addWrapper(w)
		}
	}
	if instance, err := module.Instance(); err == nil {
		add(instance)
	}
	return targets, errors.Join(errs...)
}
