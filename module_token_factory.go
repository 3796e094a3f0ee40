package modinject

import (
	"fmt"
	"reflect"
	"runtime"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/davecgh/go-spew/spew"
	jsoniter "github.com/json-iterator/go"
)

// Sorted keys make the serialization, and therefore the token, stable.
var tokenJSON = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// tokenDumper prints provider values for module tokens. Methods are not
// called, so a String method cannot hide fields.
var tokenDumper = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	SpewKeys:                true,
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// ModuleTokenFactory computes the identity token of a module definition.
type ModuleTokenFactory struct {
	metadata MetadataProvider
}

// NewModuleTokenFactory creates a factory reading scope markers from metadata.
func NewModuleTokenFactory(metadata MetadataProvider) *ModuleTokenFactory {
	return &ModuleTokenFactory{metadata: metadata}
}

// Create returns the token for metatype imported along scope, configured by
// the optional dynamic metadata. Identical inputs always produce the same
// token.
func (f *ModuleTokenFactory) Create(metatype reflect.Type, scope []reflect.Type, dynamic *DynamicModule) (string, error) {
	if metatype == nil {
		return "", ErrInvalidModule
	}
	opaque := map[string]any{
		"module": moduleName(metatype),
	}
	if shared, ok := f.reflectScope(metatype); ok {
		opaque["scope"] = shared
	} else {
		opaque["scope"] = f.scopeStack(scope)
	}
	if dynamic != nil {
		opaque["dynamic"] = f.dynamicMetadataToken(dynamic)
	}

	serialized, err := tokenJSON.Marshal(opaque)
	if err != nil {
		return "", fmt.Errorf("serializing module token for %s: %w", moduleName(metatype), err)
	}
	return strconv.FormatUint(xxhash.Sum64(serialized), 16), nil
}

// reflectScope returns the shared scope marker of a module. Modules without
// a marker share GlobalScope; SingleScope opts out.
func (f *ModuleTokenFactory) reflectScope(metatype reflect.Type) (string, bool) {
	if shared, ok := f.metadata.Get(MetaShared, metatype).(string); ok && shared != "" {
		if shared == SingleScope {
			return "", false
		}
		return shared, true
	}
	return GlobalScope, true
}

// scopeStack names the ancestors, starting at the nearest one that is
// globally scoped.
func (f *ModuleTokenFactory) scopeStack(scope []reflect.Type) []string {
	start := 0
	for i := len(scope) - 1; i >= 0; i-- {
		if shared, ok := f.reflectScope(scope[i]); ok && shared == GlobalScope {
			start = i
			break
		}
	}
	names := make([]string, 0, len(scope)-start)
	for _, t := range scope[start:] {
		names = append(names, moduleName(t))
	}
	return names
}

func (f *ModuleTokenFactory) dynamicMetadataToken(dynamic *DynamicModule) map[string]any {
	return map[string]any{
		"imports":     describeList(dynamic.Imports),
		"providers":   describeList(dynamic.Providers),
		"controllers": describeList(dynamic.Controllers),
		"exports":     describeList(dynamic.Exports),
		"global":      dynamic.Global,
	}
}

func describeList(values []any) []any {
	described := make([]any, len(values))
	for i, v := range values {
		described[i] = describe(v)
	}
	return described
}

// describe turns a metadata entry into a serializable, stable description.
func describe(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case *Symbol:
		if v == nil {
			return nil
		}
		return v.Key()
	case reflect.Type:
		return v.String()
	case ForwardReference, *ForwardReference:
		return map[string]any{"forwardRef": describe(unwrapForwardRef(v))}
	case ClassProvider:
		return map[string]any{"provide": describe(v.Provide), "useClass": describe(v.UseClass)}
	case *ClassProvider:
		return describe(*v)
	case ValueProvider:
		return map[string]any{"provide": describe(v.Provide), "useValue": describeValue(v.UseValue)}
	case *ValueProvider:
		return describe(*v)
	case FactoryProvider:
		return map[string]any{"provide": describe(v.Provide), "useFactory": describe(v.UseFactory), "inject": describeList(v.Inject)}
	case *FactoryProvider:
		return describe(*v)
	case DynamicModule:
		return map[string]any{
			"module":      describe(v.Module),
			"imports":     describeList(v.Imports),
			"providers":   describeList(v.Providers),
			"controllers": describeList(v.Controllers),
			"exports":     describeList(v.Exports),
			"global":      v.Global,
		}
	case *DynamicModule:
		if v == nil {
			return nil
		}
		return describe(*v)
	}

	return describeValue(value)
}

// describeValue identifies a plain value by a deep dump of its content,
// unexported fields included. Pointers are followed, never printed.
func describeValue(value any) any {
	if value == nil {
		return nil
	}
	if future, ok := value.(*Future); ok {
		return describeFuture(future)
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Func {
		return describeFunc(rv)
	}
	return tokenDumper.Sdump(value)
}

// describeFunc names a function by its type and the source position of its
// body. Closures written once share that position wherever they are created
// or inlined; state they capture is not part of their description.
func describeFunc(rv reflect.Value) any {
	if rv.IsNil() {
		return nil
	}
	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return rv.Type().String()
	}
	file, line := fn.FileLine(fn.Entry())
	return fmt.Sprintf("%s@%s:%d", rv.Type(), file, line)
}

// describeFuture describes a settled future by its outcome. A pending one
// can only be told apart by identity.
func describeFuture(f *Future) any {
	select {
	case <-f.done:
		if f.err != nil {
			return map[string]any{"future": "failed", "error": f.err.Error()}
		}
		return map[string]any{"future": describeValue(f.value)}
	default:
		return fmt.Sprintf("future@%p", f)
	}
}

// moduleName is the registration name of a module type.
func moduleName(t reflect.Type) string {
	if t == nil {
		return "undefined"
	}
	return t.String()
}

// moduleDisplayName is the short name used in diagnostics.
func moduleDisplayName(t reflect.Type) string {
	if t == nil {
		return "undefined"
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
