package modinject

import (
	"context"
	"fmt"
	"reflect"
)

// CompiledModule is a normalized module reference.
type CompiledModule struct {
	Type            reflect.Type
	DynamicMetadata *DynamicModule
	Token           string
}

// ModuleCompiler normalizes module references into CompiledModule values.
type ModuleCompiler struct {
	tokenFactory *ModuleTokenFactory
}

// NewModuleCompiler creates a compiler that hashes tokens with factory.
func NewModuleCompiler(factory *ModuleTokenFactory) *ModuleCompiler {
	return &ModuleCompiler{tokenFactory: factory}
}

// Compile awaits ref when it is a *Future, splits dynamic modules into their
// type and extra metadata, and computes the token for scope.
func (c *ModuleCompiler) Compile(ctx context.Context, ref any, scope []reflect.Type) (*CompiledModule, error) {
	metatype, dynamic, err := c.ExtractMetadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	token, err := c.tokenFactory.Create(metatype, scope, dynamic)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{Type: metatype, DynamicMetadata: dynamic, Token: token}, nil
}

// ExtractMetadata returns the module type and dynamic metadata of ref.
func (c *ModuleCompiler) ExtractMetadata(ctx context.Context, ref any) (reflect.Type, *DynamicModule, error) {
	ref, err := awaitModuleRef(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	switch m := ref.(type) {
	case DynamicModule:
		return c.extractDynamic(&m)
	case *DynamicModule:
		return c.extractDynamic(m)
	}
	metatype, err := moduleType(ref)
	if err != nil {
		return nil, nil, err
	}
	return metatype, nil, nil
}

func (c *ModuleCompiler) extractDynamic(m *DynamicModule) (reflect.Type, *DynamicModule, error) {
	if m == nil || m.Module == nil {
		return nil, nil, fmt.Errorf("%w: dynamic module without a Module", ErrInvalidModule)
	}
	metatype, err := moduleType(m.Module)
	if err != nil {
		return nil, nil, err
	}
	dynamic := &DynamicModule{
		Imports:     m.Imports,
		Providers:   m.Providers,
		Controllers: m.Controllers,
		Exports:     m.Exports,
		Global:      m.Global,
	}
	return metatype, dynamic, nil
}

// awaitModuleRef unwraps futures and forward references until a concrete
// module reference remains.
func awaitModuleRef(ctx context.Context, ref any) (any, error) {
	for {
		switch r := ref.(type) {
		case nil:
			return nil, ErrInvalidModule
		case *Future:
			if r == nil {
				return nil, ErrInvalidModule
			}
			value, err := r.Await(ctx)
			if err != nil {
				return nil, fmt.Errorf("awaiting module: %w", err)
			}
			ref = value
		case ForwardReference, *ForwardReference:
			ref = unwrapForwardRef(r)
		default:
			return ref, nil
		}
	}
}

// moduleType returns the struct type backing a module reference.
func moduleType(ref any) (reflect.Type, error) {
	var t reflect.Type
	switch r := ref.(type) {
	case nil:
		return nil, ErrInvalidModule
	case reflect.Type:
		t = r
	default:
		v := reflect.ValueOf(ref)
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, fmt.Errorf("%w: nil %T", ErrInvalidModule, ref)
		}
		t = v.Type()
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" || t.Kind() == reflect.Func {
		return nil, fmt.Errorf("%w: %s is not a named module type", ErrInvalidModule, t)
	}
	return t, nil
}
