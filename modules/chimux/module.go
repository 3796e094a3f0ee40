// Package chimux serves modinject controllers over a chi router.
//
// Controllers implementing Controller are discovered in every module of a
// bootstrapped application and mounted under the configured base path and
// the application's global prefix. Handlers bound through a Binder run the
// guards, pipes, interceptors and exception filters registered for them.
//
// Example:
//
//	router := chimux.NewRouter(chimux.DefaultConfig())
//	app, err := modinject.NewApplication(ctx, AppModule{},
//		modinject.WithApplicationRef(router))
//	if err != nil { ... }
//	if err := router.Mount(app); err != nil { ... }
//	http.ListenAndServe(":8080", router)
package chimux

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/modinject"
)

// Router wraps a chi router configured from ChiMuxConfig.
type Router struct {
	config *ChiMuxConfig
	router chi.Router

	mu      sync.RWMutex
	logger  modinject.Logger
	subject modinject.Subject
}

// NewRouter creates a router with request ID, real IP, panic recovery, CORS
// and request monitoring middleware installed.
func NewRouter(config *ChiMuxConfig) *Router {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Router{
		config: config,
		router: chi.NewRouter(),
		logger: modinject.NopLogger(),
	}
	m.router.Use(middleware.RequestID)
	m.router.Use(middleware.RealIP)
	m.router.Use(middleware.Recoverer)
	if timeout := config.Timeout.Duration(); timeout > 0 {
		m.router.Use(middleware.Timeout(timeout))
	}
	m.router.Use(m.corsMiddleware())
	m.router.Use(m.requestMonitoringMiddleware())
	return m
}

func (m *Router) ChiRouter() chi.Router { return m.router }

func (m *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Mount registers the middleware providers and controllers of every module
// in app. It must be called once, before serving.
func (m *Router) Mount(app *modinject.Application) error {
	if app == nil {
		return ErrApplicationNotSet
	}
	if err := m.config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.logger = app.Logger()
	m.subject = app.Subject()
	m.mu.Unlock()

	container := app.Container()
	modules := container.Modules().Values()
	for _, module := range modules {
		for _, w := range module.Components().Values() {
			if provider, ok := w.Instance.(MiddlewareProvider); ok && w.IsResolved() {
				for _, mw := range provider.ProvideMiddleware() {
					m.router.Use(mw)
				}
			}
		}
	}

	prefix := path.Join("/", m.config.BasePath, container.ApplicationConfig().GlobalPrefix())
	var mountErr error
	register := func(r chi.Router) {
		for _, module := range modules {
			if err := m.registerControllers(r, module); err != nil && mountErr == nil {
				mountErr = err
			}
		}
	}
	if prefix == "/" {
		register(m.router)
	} else {
		m.router.Route(prefix, register)
	}
	if mountErr != nil {
		return mountErr
	}
	m.emitEvent(context.Background(), EventTypeRouterCreated, map[string]any{
		"prefix": prefix,
		"routes": len(m.Routes()),
	})
	return nil
}

func (m *Router) registerControllers(r chi.Router, module *modinject.Module) error {
	creator := modinject.NewExternalContextCreator(module)
	for _, w := range module.Routes().Values() {
		controller, ok := w.Instance.(Controller)
		if !ok {
			continue
		}
		binder := &Binder{creator: creator, class: w.Metatype, logger: m.logger}
		r.Group(func(r chi.Router) {
			controller.RegisterRoutes(r, binder)
		})
		if err := binder.Err(); err != nil {
			return fmt.Errorf("mounting %s: %w", w.Name, err)
		}
		m.logger.Debug("Controller mounted", "controller", w.Name, "module", module.Name())
		m.emitEvent(context.Background(), EventTypeRouteRegistered, map[string]any{
			"controller": w.Name,
		})
	}
	return nil
}

// Routes returns the registered route patterns, sorted by chi.
func (m *Router) Routes() []string {
	var routes []string
	_ = chi.Walk(m.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+strings.TrimSuffix(route, "/*"))
		return nil
	})
	return routes
}

func (m *Router) corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			for _, allowedOrigin := range m.config.AllowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if len(m.config.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
				}
				if len(m.config.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
				}
				if m.config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if m.config.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", m.config.MaxAge))
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestMonitoringMiddleware emits request events.
func (m *Router) requestMonitoringMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			m.emitEvent(ctx, EventTypeRequestReceived, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			eventType := EventTypeRequestProcessed
			if status >= http.StatusBadRequest {
				eventType = EventTypeRequestFailed
			}
			m.emitEvent(ctx, eventType, map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": status,
			})
		})
	}
}

func (m *Router) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	m.mu.RLock()
	subject, logger := m.subject, m.logger
	m.mu.RUnlock()
	if subject == nil {
		return
	}
	event := modinject.NewCloudEvent(eventType, eventSource, data, nil)
	if err := subject.NotifyObservers(ctx, event); err != nil {
		logger.Debug("Failed to emit chimux event", "eventType", eventType, "error", err)
	}
}
