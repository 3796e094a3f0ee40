// Package demo is a small cats application used by the modinject command
// and by end-to-end tests.
package demo

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modinject"
)

// Settings is the demo application configuration.
type Settings struct {
	APIKey  string   `yaml:"api_key" toml:"api_key" json:"apiKey" env:"DEMO_API_KEY"`
	Cats    []string `yaml:"cats" toml:"cats" json:"cats"`
	Greeter string   `yaml:"greeter" toml:"greeter" json:"greeter" env:"DEMO_GREETER"`
	// CensusSchedule is a cron expression for the cat census. Empty disables it.
	CensusSchedule string `yaml:"census_schedule" toml:"census_schedule" json:"censusSchedule" env:"DEMO_CENSUS_SCHEDULE"`
}

// ConfigService exposes Settings to other providers.
type ConfigService struct {
	settings Settings
}

func (c *ConfigService) Settings() Settings { return c.settings }

// ConfigModule provides *ConfigService to every module once imported.
type ConfigModule struct{}

func (ConfigModule) DeclareModule() modinject.ModuleMetadata {
	return modinject.ModuleMetadata{}
}

// ForRoot returns the configured module. It is global, so feature modules
// get *ConfigService without importing it.
func (ConfigModule) ForRoot(settings Settings) modinject.DynamicModule {
	service := &ConfigService{settings: settings}
	return modinject.DynamicModule{
		Module: ConfigModule{},
		Providers: []any{
			modinject.ValueProvider{Provide: modinject.TypeOf[*ConfigService](), UseValue: service},
		},
		Exports: []any{modinject.TypeOf[*ConfigService]()},
		Global:  true,
	}
}

// SettingsLoader produces Settings when the module graph is built.
type SettingsLoader func(ctx context.Context) (Settings, error)

// ForRootAsync resolves settings through load before any dependent is built.
// load is a provider of its own so that it takes part in the module token.
func (ConfigModule) ForRootAsync(load SettingsLoader) modinject.DynamicModule {
	return modinject.DynamicModule{
		Module: ConfigModule{},
		Providers: []any{
			modinject.ValueProvider{Provide: modinject.TypeOf[SettingsLoader](), UseValue: load},
			modinject.FactoryProvider{
				Provide:    modinject.TypeOf[*ConfigService](),
				UseFactory: newAsyncConfigService,
				Inject:     []any{modinject.TypeOf[SettingsLoader]()},
			},
		},
		Exports: []any{modinject.TypeOf[*ConfigService]()},
		Global:  true,
	}
}

func newAsyncConfigService(load SettingsLoader) *modinject.Future {
	return modinject.NewFuture(func() (any, error) {
		settings, err := load(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading demo settings: %w", err)
		}
		return &ConfigService{settings: settings}, nil
	})
}
