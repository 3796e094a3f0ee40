package demo

import (
	"context"

	"github.com/GoCodeAlone/modinject"
)

// Greeter depends on the cats exported by CatsModule.
type Greeter struct {
	config *ConfigService
	cats   *CatsService
	greets int
}

func NewGreeter(config *ConfigService, cats *CatsService) *Greeter {
	return &Greeter{config: config, cats: cats}
}

func (g *Greeter) OnModuleInit(ctx context.Context) error {
	g.greets = len(g.cats.List())
	return nil
}

// Greetings is the number of cats greeted at startup.
func (g *Greeter) Greetings() int { return g.greets }

func (g *Greeter) Name() string {
	if name := g.config.Settings().Greeter; name != "" {
		return name
	}
	return "greeter"
}

// AppModule is the root of the demo application.
type AppModule struct{}

func (AppModule) DeclareModule() modinject.ModuleMetadata {
	return modinject.ModuleMetadata{Providers: []any{NewGreeter}}
}

// NewAppModule returns the root module configured with settings.
func NewAppModule(settings Settings) modinject.DynamicModule {
	return modinject.DynamicModule{
		Module: AppModule{},
		Imports: []any{
			ConfigModule{}.ForRoot(settings),
			CatsModule{},
			AuthModule{},
		},
	}
}

// DefaultSettings seeds the demo with two cats and no API key.
func DefaultSettings() Settings {
	return Settings{Cats: []string{"Tom", "Felix"}}
}
