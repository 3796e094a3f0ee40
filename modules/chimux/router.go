package chimux

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/GoCodeAlone/modinject"
)

// Controller is implemented by controllers that expose HTTP routes.
type Controller interface {
	RegisterRoutes(r chi.Router, b *Binder)
}

// Middleware is an alias for the chi middleware handler function.
type Middleware func(http.Handler) http.Handler

// MiddlewareProvider is implemented by providers contributing router-wide
// middleware.
type MiddlewareProvider interface {
	ProvideMiddleware() []Middleware
}

type requestKey struct{}

// WithRequest stores r in ctx so guards and pipes can read it.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFromContext returns the request being served, if any.
func RequestFromContext(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	return r, ok
}

var responseJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Binder turns controller methods into http.HandlerFuncs wrapped with the
// guards, pipes, interceptors and filters that apply to them.
type Binder struct {
	creator *modinject.ExternalContextCreator
	class   any
	logger  modinject.Logger
	err     error
}

// Handle binds handler, registered as method of the controller. The handler
// receives the *http.Request as input unless a pipe replaces it. Results are
// written as JSON; a nil result gives 204.
func (b *Binder) Handle(method string, handler modinject.Handler) http.HandlerFunc {
	wrapped, err := b.creator.Create(b.class, method, handler)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := wrapped(WithRequest(r.Context(), r), r)
		if err != nil {
			b.writeError(w, r, err)
			return
		}
		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := responseJSON.NewEncoder(w).Encode(result); err != nil {
			b.logger.Error("Failed to encode response", "path", r.URL.Path, "error", err)
		}
	}
}

// Err reports the first binding failure.
func (b *Binder) Err() error { return b.err }

func (b *Binder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var coder StatusCoder
	switch {
	case errors.Is(err, modinject.ErrForbidden):
		status = http.StatusForbidden
	case errors.As(err, &coder):
		status = coder.StatusCode()
	}
	if status >= http.StatusInternalServerError {
		b.logger.Error("Handler failed", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}
