package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modinject"
	"github.com/GoCodeAlone/modinject/modules/chimux"
)

// NewServeCommand creates the command serving the application over HTTP.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application's controllers over HTTP",
		Long: `Bootstrap the application, mount its controllers on a chi router and
serve them until SIGINT or SIGTERM. OnModuleDestroy hooks run after the
server has drained.

With --watch the configuration file is watched and every change bootstraps a
new application. The previous one keeps serving if the new one fails.`,
		RunE: runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "Listen address")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	cmd.Flags().BoolP("watch", "w", false, "Rebuild the application when the configuration file changes")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadAppConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("addr")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	watch, _ := cmd.Flags().GetBool("watch")
	configPath, _ := cmd.Flags().GetString("config")
	if watch && configPath == "" {
		return errors.New("--watch needs a --config file")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live := &liveApp{}
	if err := live.Reload(ctx, func(ctx context.Context) (*modinject.Application, *chimux.Router, error) {
		return bootstrap(ctx, cfg)
	}); err != nil {
		return err
	}
	app, router := live.current()

	if watch {
		watcher, err := newConfigWatcher(configPath, app.Logger())
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			return err
		}
		defer func() { _ = watcher.Close() }()
		go watcher.Run(ctx, func(ctx context.Context) {
			err := live.Reload(ctx, func(ctx context.Context) (*modinject.Application, *chimux.Router, error) {
				next, err := loadAppConfig(cmd)
				if err != nil {
					return nil, nil, err
				}
				return bootstrap(ctx, next)
			})
			if err != nil {
				current, _ := live.current()
				current.Logger().Error("Reload failed, keeping the running application", "error", err)
			}
		})
		app.Logger().Info("Watching configuration", "path", configPath)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           live,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		app.Logger().Info("HTTP server listening", "addr", addr, "routes", len(router.Routes()))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			current, _ := live.current()
			_ = current.Close(context.WithoutCancel(ctx))
			return fmt.Errorf("serving %s: %w", addr, err)
		}
	case <-ctx.Done():
		app.Logger().Info("Shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger().Error("HTTP server shutdown failed", "error", err)
	}
	current, _ := live.current()
	return current.Close(shutdownCtx)
}
