package modinject

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// applicationProviderWrapper records an application-scoped provider found
// during scanning.
type applicationProviderWrapper struct {
	moduleKey   string
	providerKey string
	kind        string
}

// DependenciesScanner walks the module graph from the root module and
// registers every module, provider, controller and export in the container.
type DependenciesScanner struct {
	container *Container
	metadata  MetadataProvider
	logger    Logger

	mu                           sync.Mutex
	applicationProvidersApplyMap []applicationProviderWrapper
}

// NewDependenciesScanner creates a scanner filling container.
func NewDependenciesScanner(container *Container) *DependenciesScanner {
	return &DependenciesScanner{
		container: container,
		metadata:  container.Metadata(),
		logger:    container.Logger(),
	}
}

// Scan registers every module reachable from root, then their dependencies,
// then binds global modules.
func (s *DependenciesScanner) Scan(ctx context.Context, root any) error {
	if err := s.ScanForModules(ctx, root, nil); err != nil {
		return err
	}
	if err := s.ScanModulesForDependencies(ctx); err != nil {
		return err
	}
	s.container.BindGlobalScope()

	modules := s.container.Modules().Len()
	s.logger.Debug("Dependencies scanned", "modules", modules, "context", "DependenciesScanner")
	emitEvent(ctx, s.container.events, s.logger, EventTypeScanCompleted, map[string]any{
		"modules": modules,
	})
	return nil
}

// ScanForModules registers ref and, recursively, its imports. scope is the
// chain of ancestor module types.
func (s *DependenciesScanner) ScanForModules(ctx context.Context, ref any, scope []reflect.Type) error {
	return s.scanForModules(ctx, ref, scope, make(map[string]struct{}))
}

func (s *DependenciesScanner) scanForModules(ctx context.Context, ref any, scope []reflect.Type, visited map[string]struct{}) error {
	ref, err := awaitModuleRef(ctx, ref)
	if err != nil {
		return err
	}
	token, err := s.container.AddModule(ctx, ref, scope)
	if err != nil {
		return err
	}
	if _, seen := visited[token]; seen {
		return nil
	}
	visited[token] = struct{}{}

	module, _ := s.container.Modules().Get(token)
	lineage := append(append([]reflect.Type(nil), scope...), module.Metatype())
	for _, imported := range s.moduleImports(module) {
		if imported == nil {
			return &CircularDependencyError{Chain: displayChain(lineage, nil)}
		}
		isForward := IsForwardRef(imported)
		resolved, err := awaitModuleRef(ctx, imported)
		if err != nil {
			if isForward {
				return &CircularDependencyError{Chain: displayChain(lineage, nil)}
			}
			return err
		}
		importedType, _, err := s.container.Compiler().ExtractMetadata(ctx, resolved)
		if err != nil {
			return err
		}
		if containsType(lineage, importedType) {
			if isForward {
				continue
			}
			return &CircularDependencyError{Chain: displayChain(lineage, importedType)}
		}
		if err := s.scanForModules(ctx, resolved, lineage, visited); err != nil {
			return err
		}
	}
	return nil
}

// moduleImports returns static and dynamic imports of module.
func (s *DependenciesScanner) moduleImports(module *Module) []any {
	imports := append([]any(nil), metadataList(s.metadata, MetaImports, module.Metatype())...)
	return append(imports, s.container.GetDynamicMetadataByToken(module.Token(), MetaImports)...)
}

// ScanModulesForDependencies reflects imports, providers, controllers and
// exports of every registered module, in that order.
func (s *DependenciesScanner) ScanModulesForDependencies(ctx context.Context) error {
	for _, module := range s.container.Modules().Values() {
		token, metatype := module.Token(), module.Metatype()
		if err := s.ReflectImports(ctx, metatype, token, moduleDisplayName(metatype)); err != nil {
			return err
		}
		if err := s.ReflectComponents(metatype, token); err != nil {
			return err
		}
		if err := s.ReflectControllers(metatype, token); err != nil {
			return err
		}
		if err := s.ReflectExports(metatype, token); err != nil {
			return err
		}
	}
	return nil
}

// ReflectImports links every import of the module under token.
func (s *DependenciesScanner) ReflectImports(ctx context.Context, metatype reflect.Type, token, moduleContext string) error {
	imports := append([]any(nil), metadataList(s.metadata, MetaImports, metatype)...)
	imports = append(imports, s.container.GetDynamicMetadataByToken(token, MetaImports)...)
	for _, related := range imports {
		if err := s.StoreRelatedModule(ctx, related, token, moduleContext); err != nil {
			return err
		}
	}
	return nil
}

// ReflectComponents registers providers and the injectables they declare.
func (s *DependenciesScanner) ReflectComponents(metatype reflect.Type, token string) error {
	components := append([]any(nil), metadataList(s.metadata, MetaProviders, metatype)...)
	components = append(components, s.container.GetDynamicMetadataByToken(token, MetaProviders)...)
	for _, component := range components {
		if _, err := s.StoreComponent(component, token); err != nil {
			return err
		}
		if err := s.ReflectDynamicMetadata(component, token); err != nil {
			return err
		}
	}
	return nil
}

// ReflectControllers registers controllers and the injectables they declare.
func (s *DependenciesScanner) ReflectControllers(metatype reflect.Type, token string) error {
	controllers := append([]any(nil), metadataList(s.metadata, MetaControllers, metatype)...)
	controllers = append(controllers, s.container.GetDynamicMetadataByToken(token, MetaControllers)...)
	for _, controller := range controllers {
		if _, err := s.StoreRoute(controller, token); err != nil {
			return err
		}
		if err := s.ReflectDynamicMetadata(controller, token); err != nil {
			return err
		}
	}
	return nil
}

// ReflectDynamicMetadata registers the guards, interceptors, exception
// filters and pipes attached to a provider or controller.
func (s *DependenciesScanner) ReflectDynamicMetadata(target any, token string) error {
	target = unwrapForwardRef(target)
	if target == nil || isValueOrFactory(target) {
		return nil
	}
	for _, key := range []string{MetaGuards, MetaInterceptors, MetaFilters, MetaPipes} {
		if err := s.ReflectInjectables(target, token, key); err != nil {
			return err
		}
	}
	return nil
}

// ReflectExports exports every declared token of the module under token.
func (s *DependenciesScanner) ReflectExports(metatype reflect.Type, token string) error {
	exports := append([]any(nil), metadataList(s.metadata, MetaExports, metatype)...)
	exports = append(exports, s.container.GetDynamicMetadataByToken(token, MetaExports)...)
	for _, exported := range exports {
		if err := s.StoreExportedComponent(exported, token); err != nil {
			return err
		}
	}
	return nil
}

// ReflectInjectables registers the constructible entries stored under key at
// class and method level of target.
func (s *DependenciesScanner) ReflectInjectables(target any, token, key string) error {
	injectables := append([]any(nil), metadataList(s.metadata, key, target)...)
	for _, method := range s.metadata.Methods(target) {
		if values, ok := s.metadata.GetMethod(key, target, method).([]any); ok {
			injectables = append(injectables, values...)
		}
	}
	for _, injectable := range injectables {
		if !isConstructible(injectable) {
			continue
		}
		if err := s.StoreInjectable(injectable, token); err != nil {
			return err
		}
	}
	return nil
}

// StoreRelatedModule links related into the module under token. A nil
// reference is what an unresolved mutual import looks like.
func (s *DependenciesScanner) StoreRelatedModule(ctx context.Context, related any, token, moduleContext string) error {
	if related == nil {
		return &CircularDependencyError{Chain: []string{moduleContext}}
	}
	related = unwrapForwardRef(related)
	if related == nil {
		return &CircularDependencyError{Chain: []string{moduleContext}}
	}
	return s.container.AddRelatedModule(ctx, related, token)
}

// StoreComponent registers a provider. Providers bound to one of the
// application-scoped tokens get a unique token and are remembered for
// ApplyApplicationProviders.
func (s *DependenciesScanner) StoreComponent(component any, token string) (string, error) {
	if provide, ok := providerToken(component); ok {
		if kind, isApp := provide.(string); isApp && isApplicationProviderToken(kind) {
			providerKey := uuid.NewString()
			bound, err := withProvideToken(component, providerKey)
			if err != nil {
				return "", err
			}
			s.mu.Lock()
			s.applicationProvidersApplyMap = append(s.applicationProvidersApplyMap, applicationProviderWrapper{
				moduleKey:   token,
				providerKey: providerKey,
				kind:        kind,
			})
			s.mu.Unlock()
			component = bound
		}
	}
	return s.container.AddComponent(component, token)
}

// StoreInjectable registers an injectable in the module under token.
func (s *DependenciesScanner) StoreInjectable(injectable any, token string) error {
	_, err := s.container.AddInjectable(injectable, token)
	return err
}

// StoreRoute registers a controller in the module under token.
func (s *DependenciesScanner) StoreRoute(controller any, token string) (string, error) {
	return s.container.AddController(controller, token)
}

// StoreExportedComponent exports a token from the module under token.
func (s *DependenciesScanner) StoreExportedComponent(exported any, token string) error {
	return s.container.AddExportedComponent(exported, token)
}

// ApplyApplicationProviders hands every application-scoped provider
// instance to the ApplicationConfig. It must run after instantiation.
// Future values are awaited and their settled value is applied.
func (s *DependenciesScanner) ApplyApplicationProviders(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]applicationProviderWrapper(nil), s.applicationProvidersApplyMap...)
	s.mu.Unlock()

	config := s.container.ApplicationConfig()
	for _, entry := range entries {
		module, ok := s.container.Modules().Get(entry.moduleKey)
		if !ok {
			return &UnknownModuleError{Token: entry.moduleKey}
		}
		wrapper, ok := module.Components().Get(entry.providerKey)
		if !ok || !wrapper.IsResolved() {
			return fmt.Errorf("%w: application provider %s of %s is not resolved", ErrRuntime, entry.kind, module.Name())
		}
		instance, err := wrapper.instance(ctx)
		if err != nil {
			return fmt.Errorf("applying %s of %s: %w", entry.kind, module.Name(), err)
		}
		switch entry.kind {
		case AppGuard:
			config.AddGlobalGuard(instance)
		case AppPipe:
			config.AddGlobalPipe(instance)
		case AppInterceptor:
			config.AddGlobalInterceptor(instance)
		case AppFilter:
			if err := config.AddGlobalFilter(instance); err != nil {
				return err
			}
		}
		s.logger.Debug("Application provider applied", "kind", entry.kind, "module", module.Name(), "context", "DependenciesScanner")
	}
	return nil
}

func isApplicationProviderToken(token string) bool {
	switch token {
	case AppGuard, AppPipe, AppInterceptor, AppFilter:
		return true
	}
	return false
}

// isConstructible reports whether an injectable entry can be built by the
// container, as opposed to an instance attached directly.
func isConstructible(entry any) bool {
	switch entry.(type) {
	case ClassProvider, *ClassProvider:
		return true
	}
	v := reflect.ValueOf(entry)
	return v.Kind() == reflect.Func && !v.IsNil()
}

func isValueOrFactory(entry any) bool {
	switch entry.(type) {
	case ValueProvider, *ValueProvider, FactoryProvider, *FactoryProvider:
		return true
	}
	return false
}

func containsType(types []reflect.Type, t reflect.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// displayChain renders a module lineage for diagnostics, closing the cycle
// with next when it is known.
func displayChain(lineage []reflect.Type, next reflect.Type) []string {
	start := 0
	if next != nil {
		for i, t := range lineage {
			if t == next {
				start = i
				break
			}
		}
	}
	chain := make([]string, 0, len(lineage)-start+1)
	for _, t := range lineage[start:] {
		chain = append(chain, moduleDisplayName(t))
	}
	if next != nil {
		chain = append(chain, moduleDisplayName(next))
	}
	return chain
}
