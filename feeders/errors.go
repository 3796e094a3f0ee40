package feeders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStructure   = errors.New("expected pointer to struct")
	ErrUnsupportedFormat  = errors.New("unsupported config file format")
	ErrFieldCannotBeSet   = errors.New("field cannot be set")
	ErrDotEnvInvalidLine  = errors.New("invalid .env line format")
	ErrEnvCannotConvert   = errors.New("cannot convert env value")
	ErrSectionNotAMapping = errors.New("config section is not a mapping")
)

func wrapStructureError(got any) error {
	return fmt.Errorf("%w, got %T", ErrInvalidStructure, got)
}

func wrapEnvConvertError(name string, value string, err error) error {
	return fmt.Errorf("%w %s=%q: %w", ErrEnvCannotConvert, name, value, err)
}

func wrapDotEnvLineError(path string, line int, content string) error {
	return fmt.Errorf("%w at %s:%d: %q", ErrDotEnvInvalidLine, path, line, content)
}
