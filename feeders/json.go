package feeders

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONFeeder reads a JSON file.
type JSONFeeder struct {
	verbose
	Path    string
	Section string
}

func NewJSONFeeder(filePath string) *JSONFeeder {
	return &JSONFeeder{Path: filePath}
}

func (j *JSONFeeder) Feed(target any) error {
	if j.Section != "" {
		return j.FeedKey(j.Section, target)
	}
	if err := checkStructure(target); err != nil {
		return err
	}
	content, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("json feeder: %w", err)
	}
	j.debug("JSONFeeder: decoding file", "path", j.Path)
	if err := json.Unmarshal(content, target); err != nil {
		return fmt.Errorf("json feeder: decoding %s: %w", j.Path, err)
	}
	return nil
}

func (j *JSONFeeder) FeedKey(key string, target any) error {
	content, err := os.ReadFile(j.Path)
	if err != nil {
		return fmt.Errorf("json feeder: %w", err)
	}
	var sections map[string]jsoniter.RawMessage
	if err := json.Unmarshal(content, &sections); err != nil {
		return fmt.Errorf("json feeder: decoding %s: %w", j.Path, err)
	}
	raw, ok := sections[key]
	if !ok {
		j.debug("JSONFeeder: section not found", "path", j.Path, "section", key)
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("json feeder: decoding section %s: %w", key, err)
	}
	return nil
}
