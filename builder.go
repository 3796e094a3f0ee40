package modinject

import (
	"context"
	"fmt"
)

// Option represents a functional option for configuring applications.
type Option func(*ApplicationBuilder) error

type providerOverride struct {
	token    Token
	provider any
}

// ApplicationBuilder collects everything needed to bootstrap an application.
type ApplicationBuilder struct {
	root              any
	logger            Logger
	metadata          MetadataProvider
	config            *Config
	applicationRef    any
	applicationConfig *ApplicationConfig
	observers         []Observer
	overrides         []providerOverride
}

// NewApplicationBuilder creates an empty builder.
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{}
}

// NewApplication scans root, builds every instance and applies
// application-scoped providers. Any error aborts the bootstrap; there is no
// partially wired application.
func NewApplication(ctx context.Context, root any, opts ...Option) (*Application, error) {
	builder := NewApplicationBuilder()
	builder.root = root
	for _, opt := range opts {
		if err := opt(builder); err != nil {
			return nil, err
		}
	}
	return builder.Build(ctx)
}

// WithOption applies opt to the builder, returning it for chaining.
func (b *ApplicationBuilder) WithOption(opt Option) (*ApplicationBuilder, error) {
	if err := opt(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Build bootstraps the application.
func (b *ApplicationBuilder) Build(ctx context.Context) (*Application, error) {
	if b.root == nil {
		return nil, ErrRootModuleNotSet
	}
	cfg := b.config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := b.logger
	if logger == nil {
		built, err := NewLoggerFromConfig(cfg.Logging)
		if err != nil {
			return nil, err
		}
		logger = built
	}
	metadata := b.metadata
	if metadata == nil {
		metadata = NewMetadataRegistry()
	}
	appConfig := b.applicationConfig
	if appConfig == nil {
		appConfig = NewApplicationConfig()
	}

	containerOpts := []ContainerOption{
		WithContainerMetadata(metadata),
		WithContainerLogger(logger),
		WithContainerApplicationConfig(appConfig),
	}
	injectorOpts := []InjectorOption{WithMaxConcurrency(cfg.Resolution.MaxConcurrency)}
	var events *EventSubject
	if cfg.Events.Enabled {
		events = NewEventSubject(logger)
		for _, observer := range b.observers {
			if err := events.RegisterObserver(observer); err != nil {
				return nil, fmt.Errorf("registering observer %s: %w", observer.ObserverID(), err)
			}
		}
		containerOpts = append(containerOpts, WithContainerEvents(events))
		injectorOpts = append(injectorOpts, WithInjectorEvents(events))
	}

	container := NewContainer(containerOpts...)
	container.SetApplicationRef(b.applicationRef)
	injector := NewInjector(metadata, logger, injectorOpts...)

	app := &Application{
		container: container,
		scanner:   NewDependenciesScanner(container),
		loader:    NewInstanceLoader(container, injector, cfg.Resolution.Timeout.Duration()),
		logger:    logger,
		config:    cfg,
		events:    events,
	}
	if err := app.bootstrap(ctx, b.root, b.overrides); err != nil {
		logger.Error("Application bootstrap failed", "error", err)
		if events != nil {
			emitEvent(ctx, events, logger, EventTypeApplicationFailed, map[string]any{"error": err.Error()})
		}
		return nil, err
	}
	return app, nil
}

// WithRootModule sets the module the scan starts from.
func WithRootModule(root any) Option {
	return func(b *ApplicationBuilder) error {
		b.root = root
		return nil
	}
}

// WithLogger sets the logger. Without it a zap logger is built from the
// logging configuration.
func WithLogger(logger Logger) Option {
	return func(b *ApplicationBuilder) error {
		b.logger = logger
		return nil
	}
}

// WithMetadata sets the metadata source, usually a *MetadataRegistry.
func WithMetadata(metadata MetadataProvider) Option {
	return func(b *ApplicationBuilder) error {
		b.metadata = metadata
		return nil
	}
}

// WithConfig sets the bootstrap configuration.
func WithConfig(cfg *Config) Option {
	return func(b *ApplicationBuilder) error {
		b.config = cfg
		return nil
	}
}

// WithApplicationRef sets the value injected as HTTPServerRef.
func WithApplicationRef(ref any) Option {
	return func(b *ApplicationBuilder) error {
		b.applicationRef = ref
		return nil
	}
}

// WithApplicationConfig sets the configuration receiving application-scoped
// providers.
func WithApplicationConfig(cfg *ApplicationConfig) Option {
	return func(b *ApplicationBuilder) error {
		b.applicationConfig = cfg
		return nil
	}
}

// WithObserver registers observers for lifecycle events.
func WithObserver(observers ...Observer) Option {
	return func(b *ApplicationBuilder) error {
		b.observers = append(b.observers, observers...)
		return nil
	}
}

// WithOverride replaces the provider registered under token in every module
// before instantiation. provider is a custom provider or a constructor.
func WithOverride(token Token, provider any) Option {
	return func(b *ApplicationBuilder) error {
		if _, ok := TokenName(token); !ok {
			return fmt.Errorf("%w: override needs a usable token", ErrInvalidProvider)
		}
		b.overrides = append(b.overrides, providerOverride{token: token, provider: provider})
		return nil
	}
}
