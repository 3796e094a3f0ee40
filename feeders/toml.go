package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file.
type TomlFeeder struct {
	verbose
	Path    string
	Section string
}

func NewTomlFeeder(filePath string) *TomlFeeder {
	return &TomlFeeder{Path: filePath}
}

func (t *TomlFeeder) Feed(target any) error {
	if t.Section != "" {
		return t.FeedKey(t.Section, target)
	}
	if err := checkStructure(target); err != nil {
		return err
	}
	t.debug("TomlFeeder: decoding file", "path", t.Path)
	md, err := toml.DecodeFile(t.Path, target)
	if err != nil {
		return fmt.Errorf("toml feeder: decoding %s: %w", t.Path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		t.debug("TomlFeeder: keys not mapped to fields", "path", t.Path, "keys", fmt.Sprint(undecoded))
	}
	return nil
}

func (t *TomlFeeder) FeedKey(key string, target any) error {
	var sections map[string]toml.Primitive
	md, err := toml.DecodeFile(t.Path, &sections)
	if err != nil {
		return fmt.Errorf("toml feeder: decoding %s: %w", t.Path, err)
	}
	section, ok := sections[key]
	if !ok {
		t.debug("TomlFeeder: section not found", "path", t.Path, "section", key)
		return nil
	}
	if err := md.PrimitiveDecode(section, target); err != nil {
		return fmt.Errorf("toml feeder: decoding section %s: %w", key, err)
	}
	return nil
}
