package feeders

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// EnvFeeder fills fields carrying an `env` tag from environment variables.
// With a Prefix, the tag LOG_LEVEL is read from PREFIX_LOG_LEVEL.
type EnvFeeder struct {
	verbose
	Prefix string
	lookup func(string) (string, bool)
}

func NewEnvFeeder(prefix string) *EnvFeeder {
	return &EnvFeeder{Prefix: prefix}
}

func (f *EnvFeeder) Feed(target any) error {
	if err := checkStructure(target); err != nil {
		return err
	}
	lookup := f.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return fillFromEnv(reflect.ValueOf(target).Elem(), f.Prefix, lookup, &f.verbose)
}

func envName(prefix, tag string) string {
	name := strings.ToUpper(tag)
	if prefix != "" {
		name = strings.ToUpper(prefix) + "_" + name
	}
	return name
}

func fillFromEnv(rv reflect.Value, prefix string, lookup func(string) (string, bool), v *verbose) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("env"); ok {
			name := envName(prefix, tag)
			value, found := lookup(name)
			if !found || value == "" {
				continue
			}
			v.debug("EnvFeeder: setting field", "field", fieldType.Name, "env", name)
			if err := setFromString(field, value); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, wrapEnvConvertError(name, value, err))
			}
			continue
		}
		switch field.Kind() {
		case reflect.Struct:
			if err := fillFromEnv(field, prefix, lookup, v); err != nil {
				return err
			}
		case reflect.Pointer:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				if err := fillFromEnv(field.Elem(), prefix, lookup, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func setFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(value))
		}
	}
	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return err
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
