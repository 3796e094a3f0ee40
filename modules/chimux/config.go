package chimux

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/modinject"
)

// ChiMuxConfig configures the router that serves controllers.
//
// Example YAML configuration:
//
//	chimux:
//	  allowed_origins: ["https://example.com"]
//	  allow_credentials: true
//	  timeout: 30s
//	  basepath: /api/v1
type ChiMuxConfig struct {
	// AllowedOrigins lists origins allowed for CORS requests. "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins" json:"allowedOrigins" env:"CHIMUX_ALLOWED_ORIGINS"`

	AllowedMethods []string `yaml:"allowed_methods" toml:"allowed_methods" json:"allowedMethods" env:"CHIMUX_ALLOWED_METHODS"`

	AllowedHeaders []string `yaml:"allowed_headers" toml:"allowed_headers" json:"allowedHeaders" env:"CHIMUX_ALLOWED_HEADERS"`

	AllowCredentials bool `yaml:"allow_credentials" toml:"allow_credentials" json:"allowCredentials" env:"CHIMUX_ALLOW_CREDENTIALS"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"max_age" toml:"max_age" json:"maxAge" env:"CHIMUX_MAX_AGE"`

	// Timeout bounds each request. Zero disables it.
	Timeout modinject.Duration `yaml:"timeout" toml:"timeout" json:"timeout" env:"CHIMUX_TIMEOUT"`

	// BasePath prefixes every controller route, before the application's
	// global prefix.
	BasePath string `yaml:"basepath" toml:"basepath" json:"basePath" env:"CHIMUX_BASE_PATH"`
}

// DefaultConfig returns a permissive CORS setup with no prefix.
func DefaultConfig() *ChiMuxConfig {
	return &ChiMuxConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		MaxAge:         300,
	}
}

func (c *ChiMuxConfig) Validate() error {
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: max_age must not be negative", ErrInvalidConfig)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("%w: basepath %q must start with /", ErrInvalidConfig, c.BasePath)
	}
	return nil
}
