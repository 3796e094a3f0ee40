package modinject

import (
	"fmt"
	"time"
)

// Config configures the application bootstrap.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" toml:"logging" json:"logging"`
	Resolution ResolutionConfig `yaml:"resolution" toml:"resolution" json:"resolution"`
	Events     EventsConfig     `yaml:"events" toml:"events" json:"events"`
}

// LoggingConfig selects the zap logger built by NewLoggerFromConfig.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" json:"format" env:"LOG_FORMAT"`
}

// ResolutionConfig tunes the instantiation pass.
type ResolutionConfig struct {
	// Timeout bounds the whole instantiation pass. Zero disables it.
	Timeout Duration `yaml:"timeout" toml:"timeout" json:"timeout" env:"RESOLUTION_TIMEOUT"`
	// MaxConcurrency bounds parallel argument resolution per provider.
	MaxConcurrency int `yaml:"maxConcurrency" toml:"max_concurrency" json:"maxConcurrency" env:"RESOLUTION_MAX_CONCURRENCY"`
}

// EventsConfig toggles CloudEvents emission.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"EVENTS_ENABLED"`
}

// Duration is a time.Duration read from strings such as "5s".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Feeder fills a configuration struct from one source.
type Feeder interface {
	Feed(target any) error
}

// DefaultConfig returns the configuration used when nothing is loaded.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Events:  EventsConfig{Enabled: true},
	}
}

// LoadConfig starts from DefaultConfig and applies feeders in order, so
// later feeders override earlier ones.
func LoadConfig(feeders ...Feeder) (*Config, error) {
	cfg := DefaultConfig()
	for _, feeder := range feeders {
		if err := feeder.Feed(cfg); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if cfg.Resolution.MaxConcurrency < 0 {
		return nil, fmt.Errorf("loading config: resolution.maxConcurrency must not be negative, got %d", cfg.Resolution.MaxConcurrency)
	}
	return cfg, nil
}
