package modinject

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenName(t *testing.T) {
	symbol := NewSymbol("db")
	tests := []struct {
		name  string
		token Token
		want  string
		ok    bool
	}{
		{"string", "dsn", "dsn", true},
		{"empty string", "", "", false},
		{"nil", nil, "", false},
		{"symbol", symbol, symbol.Key(), true},
		{"interface type", TypeOf[clock](), "modinject.clock", true},
		{"pointer type", TypeOf[*catsRepository](), "*modinject.catsRepository", true},
		{"constructor", newCatsRepository, "*modinject.catsRepository", true},
		{"forward reference", ForwardRef(func() any { return newCatsHandler }), "*modinject.catsHandler", true},
		{"module value", storageModule{}, "modinject.storageModule", true},
		{"module pointer", &storageModule{}, "modinject.storageModule", true},
		{"dynamic module", DynamicModule{Module: storageModule{}}, "modinject.storageModule", true},
		{"predeclared type", TypeOf[int](), "", false},
		{"unnamed type", reflect.TypeOf(map[string]int{}), "", false},
		{"constructor of unnamed type", func() []string { return nil }, "", false},
		{"function without results", func() {}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TokenName(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSymbol(t *testing.T) {
	a, b := NewSymbol("db"), NewSymbol("db")
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, "Symbol(db)", tokenString(NewSymbol("db").String()))
	assert.Equal(t, "undefined", tokenString(nil))
	assert.Equal(t, "int", tokenString(TypeOf[int]()))
}

func TestForwardRef(t *testing.T) {
	ref := ForwardRef(func() any { return "dsn" })
	assert.True(t, IsForwardRef(ref))
	assert.True(t, IsForwardRef(&ref))
	assert.False(t, IsForwardRef("dsn"))
	assert.Equal(t, "dsn", ref.Resolve())
	assert.Nil(t, ForwardReference{}.Resolve())
	assert.Equal(t, "dsn", unwrapForwardRef(&ref))
}
