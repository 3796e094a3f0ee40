package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file.
type YamlFeeder struct {
	verbose
	Path string
	// Section restricts Feed to one top-level key.
	Section string
}

func NewYamlFeeder(filePath string) *YamlFeeder {
	return &YamlFeeder{Path: filePath}
}

func (y *YamlFeeder) Feed(target any) error {
	if y.Section != "" {
		return y.FeedKey(y.Section, target)
	}
	if err := checkStructure(target); err != nil {
		return err
	}
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("yaml feeder: %w", err)
	}
	y.debug("YamlFeeder: decoding file", "path", y.Path)
	if err := yaml.Unmarshal(content, target); err != nil {
		return fmt.Errorf("yaml feeder: decoding %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey decodes the value under key into target. A missing key leaves
// target untouched.
func (y *YamlFeeder) FeedKey(key string, target any) error {
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("yaml feeder: %w", err)
	}
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(content, &sections); err != nil {
		return fmt.Errorf("yaml feeder: decoding %s: %w", y.Path, err)
	}
	node, ok := sections[key]
	if !ok {
		y.debug("YamlFeeder: section not found", "path", y.Path, "section", key)
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s in %s", ErrSectionNotAMapping, key, y.Path)
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("yaml feeder: decoding section %s: %w", key, err)
	}
	return nil
}
