package demo

import (
	"context"
	"crypto/subtle"

	"github.com/GoCodeAlone/modinject"
	"github.com/GoCodeAlone/modinject/modules/chimux"
)

// APIKeyGuard admits requests whose X-API-Key header matches the configured
// key. With no key configured every request is admitted.
type APIKeyGuard struct {
	key string
}

func NewAPIKeyGuard(config *ConfigService) *APIKeyGuard {
	return &APIKeyGuard{key: config.Settings().APIKey}
}

func (g *APIKeyGuard) CanActivate(ctx context.Context) (bool, error) {
	if g.key == "" {
		return true, nil
	}
	r, ok := chimux.RequestFromContext(ctx)
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), []byte(g.key)) == 1, nil
}

// AuthModule installs APIKeyGuard for the whole application.
type AuthModule struct{}

func (AuthModule) DeclareModule() modinject.ModuleMetadata {
	return modinject.ModuleMetadata{
		Providers: []any{
			modinject.ClassProvider{Provide: modinject.AppGuard, UseClass: NewAPIKeyGuard},
		},
	}
}
