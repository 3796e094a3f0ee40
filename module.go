package modinject

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// HTTPServerRef is the token under which every module can inject the
// application reference (usually the HTTP adapter).
const HTTPServerRef = "HTTP_SERVER_REF"

// Module is the registry of one declared module: its providers
// (components), injectables, controllers (routes), exports and imports.
type Module struct {
	id        string
	metatype  reflect.Type
	scope     []reflect.Type
	token     string
	container *Container

	components  *WrapperCollection
	injectables *WrapperCollection
	routes      *WrapperCollection

	mu             sync.RWMutex
	exports        map[string]struct{}
	exportOrder    []string
	relatedModules []*Module
	relatedSet     map[*Module]struct{}
}

// NewModule creates a module and registers its core injectables: the module
// instance itself, *ModuleRef, *Reflector, *ExternalContextCreator,
// *ModulesContainer and HTTPServerRef.
func NewModule(metatype reflect.Type, scope []reflect.Type, token string, container *Container) (*Module, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	m := &Module{
		id:          id.String(),
		metatype:    metatype,
		scope:       append([]reflect.Type(nil), scope...),
		token:       token,
		container:   container,
		components:  NewWrapperCollection(),
		injectables: NewWrapperCollection(),
		routes:      NewWrapperCollection(),
		exports:     make(map[string]struct{}),
		relatedSet:  make(map[*Module]struct{}),
	}
	if err := m.addCoreInjectables(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) ID() string { return m.id }

func (m *Module) Token() string { return m.token }

func (m *Module) Metatype() reflect.Type { return m.metatype }

// Name is the module's registration name, its package-qualified type name.
func (m *Module) Name() string { return moduleName(m.metatype) }

func (m *Module) Components() *WrapperCollection { return m.components }

func (m *Module) Injectables() *WrapperCollection { return m.injectables }

// Routes returns the module's controllers.
func (m *Module) Routes() *WrapperCollection { return m.routes }

func (m *Module) Scope() []reflect.Type { return append([]reflect.Type(nil), m.scope...) }

var coreInjectableNames = map[string]struct{}{
	TypeOf[*ModuleRef]().String():              {},
	TypeOf[*Reflector]().String():              {},
	TypeOf[*ExternalContextCreator]().String(): {},
	TypeOf[*ModulesContainer]().String():       {},
	HTTPServerRef:                              {},
}

// Providers lists the components declared for the module, without the
// module instance and the core injectables.
func (m *Module) Providers() []string {
	var names []string
	for _, name := range m.components.Names() {
		if _, core := coreInjectableNames[name]; core || name == m.Name() {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (m *Module) addCoreInjectables() error {
	if err := m.addModuleAsComponent(); err != nil {
		return err
	}
	m.components.Set(TypeOf[*ModuleRef]().String(),
		newResolvedWrapper(TypeOf[*ModuleRef]().String(), &ModuleRef{container: m.container, module: m}))
	m.components.Set(TypeOf[*Reflector]().String(),
		newResolvedWrapper(TypeOf[*Reflector]().String(), m.container.Reflector()))
	m.components.Set(TypeOf[*ExternalContextCreator]().String(),
		newResolvedWrapper(TypeOf[*ExternalContextCreator]().String(), NewExternalContextCreator(m)))
	m.components.Set(TypeOf[*ModulesContainer]().String(),
		newResolvedWrapper(TypeOf[*ModulesContainer]().String(), m.container.Modules()))

	container := m.container
	_, err := m.AddCustomFactory(FactoryProvider{
		Provide:    HTTPServerRef,
		UseFactory: func() any { return container.ApplicationRef() },
	}, m.components)
	return err
}

// addModuleAsComponent registers the module's own instance under the
// module's name.
func (m *Module) addModuleAsComponent() error {
	var constructor reflect.Value
	if declared := m.container.metadata.Get(MetaConstructor, m.metatype); declared != nil {
		constructor = reflect.ValueOf(declared)
	} else {
		metatype := m.metatype
		constructor = reflect.MakeFunc(
			reflect.FuncOf(nil, []reflect.Type{reflect.PointerTo(metatype)}, false),
			func([]reflect.Value) []reflect.Value { return []reflect.Value{reflect.New(metatype)} },
		)
	}
	if err := validateConstructor(constructor); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}
	m.components.Set(m.Name(), &InstanceWrapper{Name: m.Name(), Metatype: constructor})
	return nil
}

// Instance returns the module's own instance.
func (m *Module) Instance() (any, error) {
	w, ok := m.components.Get(m.Name())
	if !ok {
		return nil, fmt.Errorf("%w: module %s is missing its own entry", ErrRuntime, m.Name())
	}
	return w.Instance, nil
}

// AddComponent registers a provider and returns its name. Custom providers
// are classified by their variant; functions are registered as class
// providers named after their result type.
func (m *Module) AddComponent(component any) (string, error) {
	return m.addProvider(component, m.components)
}

// AddInjectable registers a guard, pipe, interceptor or filter scoped to the
// module.
func (m *Module) AddInjectable(injectable any) (string, error) {
	return m.addProvider(injectable, m.injectables)
}

// AddRoute registers a controller constructor.
func (m *Module) AddRoute(controller any) (string, error) {
	if isCustomProvider(controller) {
		return "", fmt.Errorf("%w: controllers must be constructors, got %T", ErrInvalidProvider, controller)
	}
	return m.addClass(controller, m.routes)
}

func (m *Module) addProvider(component any, collection *WrapperCollection) (string, error) {
	if isCustomProvider(component) {
		return m.AddCustomProvider(component, collection)
	}
	return m.addClass(component, collection)
}

func (m *Module) addClass(constructor any, collection *WrapperCollection) (string, error) {
	if constructor == nil {
		return "", fmt.Errorf("%w: nil provider in module %s", ErrInvalidProvider, m.Name())
	}
	fn := reflect.ValueOf(constructor)
	if err := validateConstructor(fn); err != nil {
		return "", err
	}
	name, ok := TokenName(constructor)
	if !ok {
		return "", fmt.Errorf("%w: %s returns an unnamed type, register it with a Provide token", ErrInvalidProvider, fn.Type())
	}
	collection.Set(name, &InstanceWrapper{Name: name, Metatype: fn})
	return name, nil
}

// AddCustomProvider dispatches a custom provider to its variant.
func (m *Module) AddCustomProvider(provider any, collection *WrapperCollection) (string, error) {
	switch p := provider.(type) {
	case ClassProvider:
		return m.AddCustomClass(p, collection)
	case *ClassProvider:
		return m.AddCustomClass(*p, collection)
	case ValueProvider:
		return m.AddCustomValue(p, collection)
	case *ValueProvider:
		return m.AddCustomValue(*p, collection)
	case FactoryProvider:
		return m.AddCustomFactory(p, collection)
	case *FactoryProvider:
		return m.AddCustomFactory(*p, collection)
	}
	return "", fmt.Errorf("%w: %T", ErrInvalidProvider, provider)
}

// AddCustomClass registers UseClass under the Provide token.
func (m *Module) AddCustomClass(p ClassProvider, collection *WrapperCollection) (string, error) {
	name, ok := TokenName(p.Provide)
	if !ok {
		return "", fmt.Errorf("%w: class provider without a usable Provide token", ErrInvalidProvider)
	}
	fn := reflect.ValueOf(p.UseClass)
	if err := validateConstructor(fn); err != nil {
		return "", fmt.Errorf("provider %s: %w", name, err)
	}
	collection.Set(name, &InstanceWrapper{Name: name, Metatype: fn})
	return name, nil
}

// AddCustomValue registers UseValue as an already resolved instance. A
// *Future value is awaited by the first consumer.
func (m *Module) AddCustomValue(p ValueProvider, collection *WrapperCollection) (string, error) {
	name, ok := TokenName(p.Provide)
	if !ok {
		return "", fmt.Errorf("%w: value provider without a usable Provide token", ErrInvalidProvider)
	}
	collection.Set(name, newResolvedWrapper(name, p.UseValue))
	return name, nil
}

// AddCustomFactory registers UseFactory with its explicit dependency list.
func (m *Module) AddCustomFactory(p FactoryProvider, collection *WrapperCollection) (string, error) {
	name, ok := TokenName(p.Provide)
	if !ok {
		return "", fmt.Errorf("%w: factory provider without a usable Provide token", ErrInvalidProvider)
	}
	fn := reflect.ValueOf(p.UseFactory)
	if err := validateConstructor(fn); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidFactory, name, err)
	}
	inject := p.Inject
	if inject == nil {
		inject = []Token{}
	}
	if len(inject) > 0 && len(inject) != fn.Type().NumIn() {
		return "", fmt.Errorf("%w: %s declares %d inject tokens for %d parameters", ErrInvalidFactory, name, len(inject), fn.Type().NumIn())
	}
	collection.Set(name, &InstanceWrapper{Name: name, Metatype: fn, Inject: inject, IsNotMetatype: true})
	return name, nil
}

// AddExportedComponent makes a provider, or an imported module, visible to
// importers of this module.
func (m *Module) AddExportedComponent(exported any) error {
	var (
		name string
		ok   bool
	)
	if token, isCustom := providerToken(exported); isCustom {
		name, ok = TokenName(token)
	} else {
		name, ok = TokenName(exported)
	}
	if !ok {
		return &UnknownExportError{Token: tokenString(exported), Module: moduleDisplayName(m.metatype)}
	}
	validated, err := m.ValidateExportedProvider(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.exports[validated]; !exists {
		m.exports[validated] = struct{}{}
		m.exportOrder = append(m.exportOrder, validated)
	}
	return nil
}

// ValidateExportedProvider accepts a token the module provides itself or the
// name of a module it imports directly.
func (m *Module) ValidateExportedProvider(token string) (string, error) {
	if m.components.Has(token) {
		return token, nil
	}
	for _, related := range m.RelatedModules() {
		if related.Name() == token {
			return token, nil
		}
	}
	return "", &UnknownExportError{Token: token, Module: moduleDisplayName(m.metatype)}
}

// HasExport reports whether name is exported.
func (m *Module) HasExport(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.exports[name]
	return ok
}

// Exports returns the exported names in export order.
func (m *Module) Exports() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.exportOrder...)
}

// AddRelatedModule links an imported module. Linking twice is a no-op.
func (m *Module) AddRelatedModule(related *Module) {
	if related == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.relatedSet[related]; exists {
		return
	}
	m.relatedSet[related] = struct{}{}
	m.relatedModules = append(m.relatedModules, related)
}

// RelatedModules returns the imported modules in link order.
func (m *Module) RelatedModules() []*Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Module(nil), m.relatedModules...)
}

// Replace overrides the provider registered under token, typically in tests.
// provider is a custom provider or a constructor; its own Provide token is
// ignored.
func (m *Module) Replace(token Token, provider any, isComponent bool) error {
	bound, err := withProvideToken(provider, token)
	if err != nil {
		return err
	}
	collection := m.injectables
	if isComponent {
		collection = m.components
	}
	_, err = m.AddCustomProvider(bound, collection)
	return err
}
