package modinject

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// ModulesContainer maps module tokens to modules in registration order.
type ModulesContainer struct {
	mu      sync.RWMutex
	order   []string
	modules map[string]*Module
}

// NewModulesContainer creates an empty modules map.
func NewModulesContainer() *ModulesContainer {
	return &ModulesContainer{modules: make(map[string]*Module)}
}

// Get returns the module registered under token.
func (mc *ModulesContainer) Get(token string) (*Module, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.modules[token]
	return m, ok
}

// Has reports whether token is registered.
func (mc *ModulesContainer) Has(token string) bool {
	_, ok := mc.Get(token)
	return ok
}

// Values returns the modules in registration order.
func (mc *ModulesContainer) Values() []*Module {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	values := make([]*Module, 0, len(mc.order))
	for _, token := range mc.order {
		values = append(values, mc.modules[token])
	}
	return values
}

// Tokens returns the module tokens in registration order.
func (mc *ModulesContainer) Tokens() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return append([]string(nil), mc.order...)
}

func (mc *ModulesContainer) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.order)
}

// setIfAbsent stores m unless token is taken and reports whether it did.
func (mc *ModulesContainer) setIfAbsent(token string, m *Module) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, exists := mc.modules[token]; exists {
		return false
	}
	mc.modules[token] = m
	mc.order = append(mc.order, token)
	return true
}

func (mc *ModulesContainer) clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.modules = make(map[string]*Module)
	mc.order = nil
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithContainerMetadata sets the metadata source.
func WithContainerMetadata(metadata MetadataProvider) ContainerOption {
	return func(c *Container) { c.metadata = metadata }
}

// WithContainerLogger sets the logger.
func WithContainerLogger(logger Logger) ContainerOption {
	return func(c *Container) { c.logger = logger }
}

// WithContainerApplicationConfig sets the application configuration that
// receives application-scoped providers.
func WithContainerApplicationConfig(config *ApplicationConfig) ContainerOption {
	return func(c *Container) { c.applicationConfig = config }
}

// WithContainerEvents sets the subject lifecycle events are published to.
func WithContainerEvents(subject Subject) ContainerOption {
	return func(c *Container) { c.events = subject }
}

// Container is the registry of every module of one application.
type Container struct {
	modules           *ModulesContainer
	metadata          MetadataProvider
	reflector         *Reflector
	compiler          *ModuleCompiler
	applicationConfig *ApplicationConfig
	logger            Logger
	events            Subject

	mu                     sync.RWMutex
	globalModules          []*Module
	globalSet              map[*Module]struct{}
	dynamicModulesMetadata map[string]*DynamicModule
	applicationRef         any
}

// NewContainer creates an empty container. Without options it uses a fresh
// MetadataRegistry, a no-op logger and a new ApplicationConfig.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		modules:                NewModulesContainer(),
		globalSet:              make(map[*Module]struct{}),
		dynamicModulesMetadata: make(map[string]*DynamicModule),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metadata == nil {
		c.metadata = NewMetadataRegistry()
	}
	if c.logger == nil {
		c.logger = NopLogger()
	}
	if c.applicationConfig == nil {
		c.applicationConfig = NewApplicationConfig()
	}
	c.reflector = NewReflector(c.metadata)
	c.compiler = NewModuleCompiler(NewModuleTokenFactory(c.metadata))
	return c
}

func (c *Container) Modules() *ModulesContainer { return c.modules }

func (c *Container) Metadata() MetadataProvider { return c.metadata }

func (c *Container) Reflector() *Reflector { return c.reflector }

func (c *Container) Compiler() *ModuleCompiler { return c.compiler }

func (c *Container) ApplicationConfig() *ApplicationConfig { return c.applicationConfig }

func (c *Container) Logger() Logger { return c.logger }

// SetApplicationRef stores the adapter instance injected as HTTPServerRef.
func (c *Container) SetApplicationRef(ref any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applicationRef = ref
}

func (c *Container) ApplicationRef() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.applicationRef
}

// AddModule registers the module behind ref under scope and returns its
// token. Adding a module whose token is known is a no-op. Imports declared
// by a dynamic module are registered eagerly.
func (c *Container) AddModule(ctx context.Context, ref any, scope []reflect.Type) (string, error) {
	if ref == nil {
		return "", ErrInvalidModule
	}
	compiled, err := c.compiler.Compile(ctx, ref, scope)
	if err != nil {
		return "", err
	}
	if c.modules.Has(compiled.Token) {
		return compiled.Token, nil
	}

	module, err := NewModule(compiled.Type, scope, compiled.Token, c)
	if err != nil {
		return "", err
	}
	if !c.modules.setIfAbsent(compiled.Token, module) {
		return compiled.Token, nil
	}
	c.logger.Debug("Module registered", "module", module.Name(), "token", compiled.Token, "context", "Container")
	emitEvent(ctx, c.events, c.logger, EventTypeModuleRegistered, map[string]any{
		"module": module.Name(),
		"token":  compiled.Token,
	})

	if err := c.addDynamicMetadata(ctx, compiled.Token, compiled.DynamicMetadata, append(append([]reflect.Type(nil), scope...), compiled.Type)); err != nil {
		return "", err
	}
	if c.isGlobalModule(compiled.Type, compiled.DynamicMetadata) {
		c.AddGlobalModule(module)
	}
	return compiled.Token, nil
}

func (c *Container) addDynamicMetadata(ctx context.Context, token string, dynamic *DynamicModule, scope []reflect.Type) error {
	if dynamic == nil {
		return nil
	}
	c.mu.Lock()
	c.dynamicModulesMetadata[token] = dynamic
	c.mu.Unlock()
	return c.addDynamicModules(ctx, dynamic.Imports, scope)
}

// addDynamicModules registers plain imports of a dynamic module. Nil entries
// and forward references are left for the scanner to diagnose or resolve.
func (c *Container) addDynamicModules(ctx context.Context, imports []any, scope []reflect.Type) error {
	for _, imported := range imports {
		if imported == nil || IsForwardRef(imported) {
			continue
		}
		if _, err := c.AddModule(ctx, imported, scope); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) isGlobalModule(metatype reflect.Type, dynamic *DynamicModule) bool {
	if dynamic != nil && dynamic.Global {
		return true
	}
	global, _ := c.metadata.Get(MetaGlobal, metatype).(bool)
	return global
}

// IsGlobalModule reports whether m was registered as global.
func (c *Container) IsGlobalModule(m *Module) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.globalSet[m]
	return ok
}

// AddGlobalModule marks m as visible to every module.
func (c *Container) AddGlobalModule(m *Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.globalSet[m]; exists {
		return
	}
	c.globalSet[m] = struct{}{}
	c.globalModules = append(c.globalModules, m)
}

// GlobalModules returns the global modules in registration order.
func (c *Container) GlobalModules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Module(nil), c.globalModules...)
}

// AddRelatedModule links the module behind ref into the module registered
// under token. It does nothing when token is unknown.
func (c *Container) AddRelatedModule(ctx context.Context, ref any, token string) error {
	module, ok := c.modules.Get(token)
	if !ok {
		return nil
	}
	scope := append(module.Scope(), module.Metatype())
	compiled, err := c.compiler.Compile(ctx, ref, scope)
	if err != nil {
		return err
	}
	related, ok := c.modules.Get(compiled.Token)
	if !ok {
		// Forward references back into the lineage were registered under an
		// ancestor's scope.
		for i := len(scope) - 1; i >= 0 && !ok; i-- {
			var prefixToken string
			prefixToken, err = c.compiler.tokenFactory.Create(compiled.Type, scope[:i], compiled.DynamicMetadata)
			if err != nil {
				return err
			}
			related, ok = c.modules.Get(prefixToken)
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s imported by %s was never scanned", ErrRuntime, moduleName(compiled.Type), module.Name())
	}
	module.AddRelatedModule(related)
	return nil
}

func (c *Container) moduleFor(token string) (*Module, error) {
	module, ok := c.modules.Get(token)
	if !ok {
		return nil, &UnknownModuleError{Token: token}
	}
	return module, nil
}

// AddComponent registers a provider in the module under token.
func (c *Container) AddComponent(component any, token string) (string, error) {
	module, err := c.moduleFor(token)
	if err != nil {
		return "", err
	}
	return module.AddComponent(component)
}

// AddInjectable registers an injectable in the module under token.
func (c *Container) AddInjectable(injectable any, token string) (string, error) {
	module, err := c.moduleFor(token)
	if err != nil {
		return "", err
	}
	return module.AddInjectable(injectable)
}

// AddExportedComponent exports a provider or imported module from the module
// under token.
func (c *Container) AddExportedComponent(exported any, token string) error {
	module, err := c.moduleFor(token)
	if err != nil {
		return err
	}
	return module.AddExportedComponent(exported)
}

// AddController registers a controller in the module under token.
func (c *Container) AddController(controller any, token string) (string, error) {
	module, err := c.moduleFor(token)
	if err != nil {
		return "", err
	}
	return module.AddRoute(controller)
}

// BindGlobalScope links every global module into every other module.
func (c *Container) BindGlobalScope() {
	for _, module := range c.modules.Values() {
		c.BindGlobalsToRelatedModules(module)
	}
}

// BindGlobalsToRelatedModules links every global module into m.
func (c *Container) BindGlobalsToRelatedModules(m *Module) {
	for _, global := range c.GlobalModules() {
		c.BindGlobalModuleToModule(m, global)
	}
}

// BindGlobalModuleToModule links global into m unless they are the same.
func (c *Container) BindGlobalModuleToModule(m, global *Module) {
	if m == global {
		return
	}
	m.AddRelatedModule(global)
}

// GetDynamicMetadataByToken returns the dynamic metadata list stored for a
// module, or an empty list. "modules" and "components" are accepted as
// aliases of the imports and providers keys.
func (c *Container) GetDynamicMetadataByToken(token, key string) []any {
	if alias, ok := metadataKeyAliases[key]; ok {
		key = alias
	}
	c.mu.RLock()
	dynamic := c.dynamicModulesMetadata[token]
	c.mu.RUnlock()
	values := dynamic.list(key)
	if values == nil {
		return []any{}
	}
	return values
}

// Replace overrides the provider named by token in every module that
// registers it.
func (c *Container) Replace(token Token, provider any, isComponent bool) error {
	name, ok := TokenName(token)
	if !ok {
		return fmt.Errorf("%w: replace needs a usable token", ErrInvalidProvider)
	}
	replaced := false
	for _, module := range c.modules.Values() {
		collection := module.Injectables()
		if isComponent {
			collection = module.Components()
		}
		if !collection.Has(name) {
			continue
		}
		if err := module.Replace(token, provider, isComponent); err != nil {
			return err
		}
		replaced = true
	}
	if !replaced {
		return fmt.Errorf("%w: %s", ErrUnknownElement, name)
	}
	return nil
}

// Clear drops every module and all global and dynamic bookkeeping.
func (c *Container) Clear() {
	c.modules.clear()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalModules = nil
	c.globalSet = make(map[*Module]struct{})
	c.dynamicModulesMetadata = make(map[string]*DynamicModule)
}
