package modinject

import (
	"errors"
	"fmt"
	"strings"
)

// Container errors
var (
	// Internal bookkeeping errors. These indicate a bug in the scanner or
	// container rather than a mistake in module declarations.
	ErrRuntime = errors.New("container state is inconsistent")

	// Configuration errors
	ErrInvalidModule          = errors.New("invalid module reference")
	ErrUnknownModule          = errors.New("unknown module")
	ErrUnknownExport          = errors.New("unknown export")
	ErrCircularDependency     = errors.New("circular dependency detected")
	ErrInvalidProvider        = errors.New("invalid provider")
	ErrInvalidFactory         = errors.New("invalid factory provider")
	ErrInvalidExceptionFilter = errors.New("invalid exception filter")

	// Dependency resolution errors
	ErrUndefinedDependency = errors.New("undefined dependency")
	ErrUnknownDependencies = errors.New("unknown dependencies")

	// Lookup errors
	ErrUnknownElement = errors.New("element not found in container")
	ErrForbidden      = errors.New("forbidden resource")

	// Application errors
	ErrLoggerNotSet     = errors.New("logger not set in application builder")
	ErrRootModuleNotSet = errors.New("root module not set in application builder")
	ErrApplicationNil   = errors.New("application is nil")
)

// UndefinedDependencyError is returned when a constructor parameter has no
// usable token: a predeclared or unnamed type without an explicit Inject
// token at that index.
type UndefinedDependencyError struct {
	Type   string
	Index  int
	Args   []string
	Module string
}

func (e *UndefinedDependencyError) Error() string {
	return fmt.Sprintf("%s: cannot resolve dependencies of %s (%s); the argument at index [%d] of %d is undefined in the %s context, declare its token with Inject",
		ErrUndefinedDependency, e.Type, argsNotation(e.Args, e.Index), e.Index, len(e.Args), e.Module)
}

func (e *UndefinedDependencyError) Unwrap() error { return ErrUndefinedDependency }

// UnknownDependenciesError is returned when a requested token is neither
// provided by the module nor exported by any of its imports.
type UnknownDependenciesError struct {
	Type   string
	Token  string
	Index  int
	Args   []string
	Module string
}

func (e *UnknownDependenciesError) Error() string {
	return fmt.Sprintf("%s: cannot resolve dependencies of %s (%s); make sure %q at index [%d] is available in the %s context",
		ErrUnknownDependencies, e.Type, argsNotation(e.Args, e.Index), e.Token, e.Index, e.Module)
}

func (e *UnknownDependenciesError) Unwrap() error { return ErrUnknownDependencies }

// CircularDependencyError names the import or construction chain that
// closed a cycle.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("%s: use ForwardRef on one side of the cycle", ErrCircularDependency)
	}
	return fmt.Sprintf("%s: %s; use ForwardRef on one side of the cycle", ErrCircularDependency, strings.Join(e.Chain, " -> "))
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// UnknownExportError is returned when a module exports a token it neither
// provides nor imports.
type UnknownExportError struct {
	Token  string
	Module string
}

func (e *UnknownExportError) Error() string {
	return fmt.Sprintf("%s: %s cannot export %q, it is neither provided nor imported by the module", ErrUnknownExport, e.Module, e.Token)
}

func (e *UnknownExportError) Unwrap() error { return ErrUnknownExport }

// UnknownModuleError is returned when an operation names a module token the
// container never registered.
type UnknownModuleError struct {
	Token string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownModule, e.Token)
}

func (e *UnknownModuleError) Unwrap() error { return ErrUnknownModule }

// argsNotation renders constructor arguments the way the error messages
// show them, with a question mark at the failing index.
func argsNotation(args []string, index int) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		switch {
		case i == index:
			parts[i] = "?"
		case arg == "":
			parts[i] = "+"
		default:
			parts[i] = arg
		}
	}
	return strings.Join(parts, ", ")
}
