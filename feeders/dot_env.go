package feeders

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// DotEnvFeeder reads KEY=value pairs from a .env file and applies them like
// EnvFeeder, without touching the process environment.
type DotEnvFeeder struct {
	verbose
	Path   string
	Prefix string
}

func NewDotEnvFeeder(filePath string) *DotEnvFeeder {
	return &DotEnvFeeder{Path: filePath}
}

func (f *DotEnvFeeder) Feed(target any) error {
	if err := checkStructure(target); err != nil {
		return err
	}
	vars, err := f.parse()
	if err != nil {
		return err
	}
	lookup := func(name string) (string, bool) {
		value, ok := vars[name]
		return value, ok
	}
	return fillFromEnv(reflect.ValueOf(target).Elem(), f.Prefix, lookup, &f.verbose)
}

func (f *DotEnvFeeder) parse() (map[string]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("dotenv feeder: %w", err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, wrapDotEnvLineError(f.Path, lineNum, line)
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dotenv feeder: reading %s: %w", f.Path, err)
	}
	f.debug("DotEnvFeeder: parsed file", "path", f.Path, "keys", len(vars))
	return vars, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
