package modinject

import (
	"reflect"

	"github.com/google/uuid"
)

// Token identifies a provider. Supported forms are strings, *Symbol values,
// reflect.Type values (usually interface types from TypeOf), constructor
// functions (the token is the constructor's result type) and
// ForwardReference values wrapping any of those.
type Token = any

// Symbol is a unique token. Two symbols with the same description are
// still distinct.
type Symbol struct {
	desc string
	key  string
}

// NewSymbol creates a new unique token.
func NewSymbol(desc string) *Symbol {
	return &Symbol{desc: desc, key: "Symbol(" + desc + ")#" + uuid.NewString()}
}

func (s *Symbol) String() string { return "Symbol(" + s.desc + ")" }

// Key is the unique name under which the symbol is registered.
func (s *Symbol) Key() string { return s.key }

// ForwardReference defers evaluation of a module or provider reference. It
// marks one side of a mutual import or constructor cycle.
type ForwardReference struct {
	fn func() any
}

// ForwardRef wraps a reference that is only evaluated when it is needed.
func ForwardRef(fn func() any) ForwardReference {
	return ForwardReference{fn: fn}
}

// Resolve evaluates the wrapped reference.
func (f ForwardReference) Resolve() any {
	if f.fn == nil {
		return nil
	}
	return f.fn()
}

// IsForwardRef reports whether ref is a ForwardReference.
func IsForwardRef(ref any) bool {
	switch ref.(type) {
	case ForwardReference, *ForwardReference:
		return true
	}
	return false
}

func unwrapForwardRef(ref any) any {
	switch f := ref.(type) {
	case ForwardReference:
		return f.Resolve()
	case *ForwardReference:
		if f == nil {
			return nil
		}
		return f.Resolve()
	}
	return ref
}

// TypeOf returns the reflect.Type of T. It is the usual way to name an
// interface token.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TokenName returns the name a token is registered under. It reports false
// when the token is undefined: nil, empty, or a predeclared or unnamed type.
func TokenName(token Token) (string, bool) {
	switch t := token.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case *Symbol:
		if t == nil {
			return "", false
		}
		return t.key, true
	case ForwardReference, *ForwardReference:
		return TokenName(unwrapForwardRef(t))
	case reflect.Type:
		if isUndefinedType(t) {
			return "", false
		}
		return t.String(), true
	case DynamicModule:
		return TokenName(t.Module)
	case *DynamicModule:
		if t == nil {
			return "", false
		}
		return TokenName(t.Module)
	}

	v := reflect.ValueOf(token)
	if v.Kind() == reflect.Func {
		ft := v.Type()
		if ft.NumOut() == 0 {
			return "", false
		}
		return TokenName(ft.Out(0))
	}
	t := v.Type()
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && !v.IsNil() {
		// Module values passed by pointer are named after their struct type.
		t = t.Elem()
	}
	return TokenName(t)
}

// isUndefinedType reports whether a type cannot serve as an injection token
// on its own.
func isUndefinedType(t reflect.Type) bool {
	if t == nil {
		return true
	}
	if t.Kind() == reflect.Pointer {
		return isUndefinedType(t.Elem())
	}
	return t.Name() == "" || t.PkgPath() == ""
}

func tokenString(token Token) string {
	if name, ok := TokenName(token); ok {
		return name
	}
	if s, ok := token.(*Symbol); ok && s != nil {
		return s.String()
	}
	if t, ok := token.(reflect.Type); ok && t != nil {
		return t.String()
	}
	return "undefined"
}
