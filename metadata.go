package modinject

import (
	"reflect"
	"sort"
	"sync"
)

// Metadata keys read by the scanner and the injector.
const (
	MetaImports      = "imports"
	MetaProviders    = "providers"
	MetaControllers  = "controllers"
	MetaExports      = "exports"
	MetaGlobal       = "global"
	MetaShared       = "shared"
	MetaConstructor  = "constructor"
	MetaGuards       = "__guards__"
	MetaInterceptors = "__interceptors__"
	MetaFilters      = "__exceptionFilters__"
	MetaPipes        = "__pipes__"
)

// Legacy key names accepted by GetDynamicMetadataByToken.
var metadataKeyAliases = map[string]string{
	"modules":    MetaImports,
	"components": MetaProviders,
}

// Scope markers understood by the token factory.
const (
	// GlobalScope is the scope of a module that does not declare one. Every
	// importer shares one instance of the module.
	GlobalScope = "global"
	// SingleScope makes the module's token depend on its import lineage, so
	// each importing branch gets its own instance.
	SingleScope = "single"
)

// ModuleMetadata is what a module declares about itself.
type ModuleMetadata struct {
	Imports     []any
	Providers   []any
	Controllers []any
	Exports     []any
	// Global makes the module visible to every other module without an import.
	Global bool
	// Shared overrides the module's token scope. Empty means GlobalScope.
	Shared string
	// Constructor builds the module instance itself. It may take
	// dependencies like any other provider. When nil a zero value is used.
	Constructor any
}

// ModuleDeclarer is implemented by module types that carry their metadata
// as a method instead of registering it in a MetadataRegistry.
type ModuleDeclarer interface {
	DeclareModule() ModuleMetadata
}

// SelfDeclaredToken is an explicit token for the constructor argument at
// Index. It always wins over the reflected parameter type.
type SelfDeclaredToken struct {
	Index int
	Token Token
}

// MetadataProvider is the read-only metadata source the container consults.
// Targets are module types (reflect.Type or a module value) and provider
// constructors.
type MetadataProvider interface {
	Get(key string, target any) any
	GetMethod(key string, target any, method string) any
	Methods(target any) []string
	ConstructorParamTokens(constructor any) []Token
	SelfDeclaredTokens(constructor any) []SelfDeclaredToken
}

type funcKey uintptr

// metadataKey maps a target to a comparable key. Functions are keyed by
// code pointer, so closures from the same literal share metadata.
func metadataKey(target any) any {
	switch t := target.(type) {
	case nil:
		return nil
	case reflect.Type:
		if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
			return t.Elem()
		}
		return t
	case reflect.Value:
		if !t.IsValid() {
			return nil
		}
		return metadataKey(t.Interface())
	case ClassProvider:
		return metadataKey(t.UseClass)
	case *ClassProvider:
		return metadataKey(t.UseClass)
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Func {
		return funcKey(v.Pointer())
	}
	return metadataKey(v.Type())
}

// MetadataRegistry is an explicit registration table. Its helper methods
// play the part of class and method decorators.
type MetadataRegistry struct {
	mu      sync.RWMutex
	entries map[any]map[string]any
	methods map[any]map[string]map[string]any
	params  map[any][]SelfDeclaredToken
}

// NewMetadataRegistry creates an empty registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{
		entries: make(map[any]map[string]any),
		methods: make(map[any]map[string]map[string]any),
		params:  make(map[any][]SelfDeclaredToken),
	}
}

// Define attaches a value under key to target.
func (r *MetadataRegistry) Define(key string, value any, target any) {
	k := metadataKey(target)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[k] == nil {
		r.entries[k] = make(map[string]any)
	}
	r.entries[k][key] = value
}

// DefineMethod attaches a value under key to a method of target.
func (r *MetadataRegistry) DefineMethod(key string, value any, target any, method string) {
	k := metadataKey(target)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.methods[k] == nil {
		r.methods[k] = make(map[string]map[string]any)
	}
	if r.methods[k][method] == nil {
		r.methods[k][method] = make(map[string]any)
	}
	r.methods[k][method][key] = value
}

// Module registers module metadata for a module type or value.
func (r *MetadataRegistry) Module(module any, meta ModuleMetadata) {
	r.Define(MetaImports, meta.Imports, module)
	r.Define(MetaProviders, meta.Providers, module)
	r.Define(MetaControllers, meta.Controllers, module)
	r.Define(MetaExports, meta.Exports, module)
	if meta.Global {
		r.Define(MetaGlobal, true, module)
	}
	if meta.Shared != "" {
		r.Define(MetaShared, meta.Shared, module)
	}
	if meta.Constructor != nil {
		r.Define(MetaConstructor, meta.Constructor, module)
	}
}

// Global marks a module as visible everywhere.
func (r *MetadataRegistry) Global(module any) {
	r.Define(MetaGlobal, true, module)
}

// Shared sets the scope component of a module's token.
func (r *MetadataRegistry) Shared(module any, scope string) {
	r.Define(MetaShared, scope, module)
}

// Inject declares the token for the constructor argument at index.
func (r *MetadataRegistry) Inject(constructor any, index int, token Token) {
	k := metadataKey(constructor)
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := r.params[k]
	for i := range tokens {
		if tokens[i].Index == index {
			tokens[i].Token = token
			return
		}
	}
	r.params[k] = append(tokens, SelfDeclaredToken{Index: index, Token: token})
}

// UseGuards attaches guards to a provider or controller.
func (r *MetadataRegistry) UseGuards(target any, guards ...any) {
	r.appendList(MetaGuards, target, "", guards)
}

// UseMethodGuards attaches guards to a single handler method.
func (r *MetadataRegistry) UseMethodGuards(target any, method string, guards ...any) {
	r.appendList(MetaGuards, target, method, guards)
}

// UseInterceptors attaches interceptors to a provider or controller.
func (r *MetadataRegistry) UseInterceptors(target any, interceptors ...any) {
	r.appendList(MetaInterceptors, target, "", interceptors)
}

// UseMethodInterceptors attaches interceptors to a single handler method.
func (r *MetadataRegistry) UseMethodInterceptors(target any, method string, interceptors ...any) {
	r.appendList(MetaInterceptors, target, method, interceptors)
}

// UseFilters attaches exception filters to a provider or controller.
func (r *MetadataRegistry) UseFilters(target any, filters ...any) {
	r.appendList(MetaFilters, target, "", filters)
}

// UseMethodFilters attaches exception filters to a single handler method.
func (r *MetadataRegistry) UseMethodFilters(target any, method string, filters ...any) {
	r.appendList(MetaFilters, target, method, filters)
}

// UsePipes attaches pipes to a provider or controller.
func (r *MetadataRegistry) UsePipes(target any, pipes ...any) {
	r.appendList(MetaPipes, target, "", pipes)
}

// UseMethodPipes attaches pipes to a single handler method.
func (r *MetadataRegistry) UseMethodPipes(target any, method string, pipes ...any) {
	r.appendList(MetaPipes, target, method, pipes)
}

func (r *MetadataRegistry) appendList(key string, target any, method string, values []any) {
	if method == "" {
		existing, _ := r.Get(key, target).([]any)
		r.Define(key, append(append([]any{}, existing...), values...), target)
		return
	}
	existing, _ := r.GetMethod(key, target, method).([]any)
	r.DefineMethod(key, append(append([]any{}, existing...), values...), target, method)
}

// Get returns the value stored under key for target. Module types that
// implement ModuleDeclarer answer the module keys from DeclareModule.
func (r *MetadataRegistry) Get(key string, target any) any {
	k := metadataKey(target)
	r.mu.RLock()
	value, ok := r.entries[k][key]
	r.mu.RUnlock()
	if ok {
		return value
	}
	if t, isType := k.(reflect.Type); isType {
		if meta, declared := declaredModuleMetadata(t); declared {
			return moduleMetadataValue(meta, key)
		}
	}
	return nil
}

// GetMethod returns the value stored under key for a method of target.
func (r *MetadataRegistry) GetMethod(key string, target any, method string) any {
	k := metadataKey(target)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methods[k][method][key]
}

// Methods lists the methods of target that carry metadata, sorted.
func (r *MetadataRegistry) Methods(target any) []string {
	k := metadataKey(target)
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.methods[k]))
	for name := range r.methods[k] {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// ConstructorParamTokens returns the reflected parameter types of a
// constructor or factory.
func (r *MetadataRegistry) ConstructorParamTokens(constructor any) []Token {
	v, ok := constructor.(reflect.Value)
	if !ok {
		v = reflect.ValueOf(constructor)
	}
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil
	}
	ft := v.Type()
	tokens := make([]Token, ft.NumIn())
	for i := range tokens {
		tokens[i] = ft.In(i)
	}
	return tokens
}

// SelfDeclaredTokens returns the tokens declared with Inject.
func (r *MetadataRegistry) SelfDeclaredTokens(constructor any) []SelfDeclaredToken {
	k := metadataKey(constructor)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SelfDeclaredToken(nil), r.params[k]...)
}

func declaredModuleMetadata(t reflect.Type) (ModuleMetadata, bool) {
	if t == nil {
		return ModuleMetadata{}, false
	}
	declarer := TypeOf[ModuleDeclarer]()
	switch {
	case t.Implements(declarer):
		return reflect.Zero(t).Interface().(ModuleDeclarer).DeclareModule(), true
	case reflect.PointerTo(t).Implements(declarer):
		return reflect.New(t).Interface().(ModuleDeclarer).DeclareModule(), true
	}
	return ModuleMetadata{}, false
}

func moduleMetadataValue(meta ModuleMetadata, key string) any {
	switch key {
	case MetaImports:
		return meta.Imports
	case MetaProviders:
		return meta.Providers
	case MetaControllers:
		return meta.Controllers
	case MetaExports:
		return meta.Exports
	case MetaGlobal:
		if meta.Global {
			return true
		}
	case MetaShared:
		if meta.Shared != "" {
			return meta.Shared
		}
	case MetaConstructor:
		return meta.Constructor
	}
	return nil
}

// metadataList reads a list-valued key.
func metadataList(provider MetadataProvider, key string, target any) []any {
	values, _ := provider.Get(key, target).([]any)
	return values
}
