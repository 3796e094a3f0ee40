package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modinject"
	"github.com/GoCodeAlone/modinject/modules/chimux"
)

// configWatcher reports writes to a single configuration file. The parent
// directory is watched so editors that replace the file are still seen.
type configWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  modinject.Logger
}

func newConfigWatcher(path string, logger modinject.Logger) (*configWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	return &configWatcher{path: abs, watcher: watcher, logger: logger}, nil
}

// Run calls onChange for every write or creation of the watched file until
// ctx is done or the watcher is closed.
func (w *configWatcher) Run(ctx context.Context, onChange func(ctx context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("Configuration file changed", "path", w.path, "op", event.Op.String())
				onChange(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Configuration watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *configWatcher) Close() error {
	return w.watcher.Close()
}

// liveApp serves whichever application was bootstrapped last. Reload swaps
// in a new application and closes the previous one.
type liveApp struct {
	mu     sync.RWMutex
	app    *modinject.Application
	router *chimux.Router
}

func (l *liveApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	router := l.router
	l.mu.RUnlock()
	router.ServeHTTP(w, r)
}

func (l *liveApp) current() (*modinject.Application, *chimux.Router) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.app, l.router
}

// swap installs app and returns the application it replaced.
func (l *liveApp) swap(app *modinject.Application, router *chimux.Router) *modinject.Application {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous := l.app
	l.app, l.router = app, router
	return previous
}

// Reload bootstraps a fresh application with build. On failure the running
// application keeps serving.
func (l *liveApp) Reload(ctx context.Context, build func(ctx context.Context) (*modinject.Application, *chimux.Router, error)) error {
	app, router, err := build(ctx)
	if err != nil {
		return err
	}
	if err := router.Mount(app); err != nil {
		_ = app.Close(context.WithoutCancel(ctx))
		return err
	}
	if previous := l.swap(app, router); previous != nil {
		if err := previous.Close(context.WithoutCancel(ctx)); err != nil {
			app.Logger().Warn("Closing replaced application failed", "error", err)
		}
	}
	app.Logger().Info("Application reloaded", "routes", len(router.Routes()))
	return nil
}
