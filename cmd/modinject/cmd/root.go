package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modinject"
	"github.com/GoCodeAlone/modinject/feeders"
	"github.com/GoCodeAlone/modinject/internal/demo"
	"github.com/GoCodeAlone/modinject/modules/chimux"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("modinject v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the modinject binary.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modinject",
		Short: "modinject - inspect and serve the demo module graph",
		Long: `modinject bootstraps the bundled cats application through the
dependency injection container. It can print the resolved module graph or
serve the application's controllers over HTTP.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (.yaml, .toml, .json or .env)")
	cmd.PersistentFlags().String("env-prefix", "MODINJECT", "Prefix of environment variables overriding the configuration")

	cmd.AddCommand(NewGraphCommand())
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(PrintVersion())
		},
	})
	return cmd
}

// appConfig is the file layout read by the commands.
type appConfig struct {
	modinject.Config `yaml:",inline" toml:"modinject" json:"modinject"`
	Demo             demo.Settings       `yaml:"demo" toml:"demo" json:"demo"`
	HTTP             chimux.ChiMuxConfig `yaml:"http" toml:"http" json:"http"`
}

func loadAppConfig(cmd *cobra.Command) (*appConfig, error) {
	cfg := &appConfig{
		Config: *modinject.DefaultConfig(),
		Demo:   demo.DefaultSettings(),
		HTTP:   *chimux.DefaultConfig(),
	}
	path, _ := cmd.Flags().GetString("config")
	prefix, _ := cmd.Flags().GetString("env-prefix")

	var sources []feeders.Feeder
	if path != "" {
		fileFeeder, err := feeders.ForPath(path, "")
		if err != nil {
			return nil, err
		}
		sources = append(sources, fileFeeder)
	}
	sources = append(sources, feeders.NewEnvFeeder(prefix))
	for _, source := range sources {
		if err := source.Feed(cfg); err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
	}
	return cfg, nil
}

// bootstrap builds the demo application with a router as its server ref.
func bootstrap(ctx context.Context, cfg *appConfig, opts ...modinject.Option) (*modinject.Application, *chimux.Router, error) {
	registry := modinject.NewMetadataRegistry()
	demo.RegisterMetadata(registry)
	router := chimux.NewRouter(&cfg.HTTP)

	opts = append([]modinject.Option{
		modinject.WithConfig(&cfg.Config),
		modinject.WithMetadata(registry),
		modinject.WithApplicationRef(router),
	}, opts...)
	app, err := modinject.NewApplication(ctx, demo.NewAppModule(cfg.Demo), opts...)
	if err != nil {
		return nil, nil, err
	}
	return app, router, nil
}
