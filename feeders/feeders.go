// Package feeders fills configuration structs from YAML, TOML and JSON
// files, .env files and environment variables.
package feeders

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
)

// Feeder fills target, a pointer to a struct, from one source.
type Feeder interface {
	Feed(target any) error
}

// KeyFeeder can fill target from a single top-level section of its source.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

type debugLogger interface {
	Debug(msg string, args ...any)
}

// verbose carries the optional debug logger shared by every feeder.
type verbose struct {
	logger debugLogger
}

// SetVerboseDebug routes feeder tracing to logger. A nil logger disables it.
func (v *verbose) SetVerboseDebug(logger debugLogger) {
	v.logger = logger
}

func (v *verbose) debug(msg string, args ...any) {
	if v.logger != nil {
		v.logger.Debug(msg, args...)
	}
}

// ForPath picks a file feeder from the extension of path. section, when not
// empty, restricts the feeder to one top-level key.
func ForPath(path, section string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &YamlFeeder{Path: path, Section: section}, nil
	case ".toml":
		return &TomlFeeder{Path: path, Section: section}, nil
	case ".json":
		return &JSONFeeder{Path: path, Section: section}, nil
	case ".env":
		return NewDotEnvFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func checkStructure(target any) error {
	t := reflect.TypeOf(target)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return wrapStructureError(target)
	}
	return nil
}
