package demo

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/GoCodeAlone/modinject"
	"github.com/GoCodeAlone/modinject/modules/chimux"
)

// CatsService stores cat names in memory.
type CatsService struct {
	mu   sync.RWMutex
	cats []string
}

func NewCatsService(config *ConfigService) *CatsService {
	return &CatsService{cats: slices.Clone(config.Settings().Cats)}
}

func (s *CatsService) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cats)
}

func (s *CatsService) Add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cats = append(s.cats, name)
}

// CatsController serves /cats.
type CatsController struct {
	cats *CatsService
}

func NewCatsController(cats *CatsService) *CatsController {
	return &CatsController{cats: cats}
}

type createCat struct {
	Name string `json:"name"`
}

func (c *CatsController) RegisterRoutes(r chi.Router, b *chimux.Binder) {
	r.Get("/cats", b.Handle("List", func(ctx context.Context, _ any) (any, error) {
		return c.cats.List(), nil
	}))
	r.Post("/cats", b.Handle("Create", func(ctx context.Context, input any) (any, error) {
		body, ok := input.(createCat)
		if !ok {
			return nil, fmt.Errorf("unexpected input %T", input)
		}
		c.cats.Add(body.Name)
		return body, nil
	}))
}

// CreateCatPipe decodes and validates the request body of Create.
type CreateCatPipe struct{}

func (CreateCatPipe) Transform(ctx context.Context, value any) (any, error) {
	r, ok := value.(*http.Request)
	if !ok {
		return value, nil
	}
	var body createCat
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, &chimux.HTTPError{Status: http.StatusBadRequest, Message: "invalid body"}
	}
	if body.Name == "" {
		return nil, &chimux.HTTPError{Status: http.StatusBadRequest, Message: "name is required"}
	}
	return body, nil
}

// CatsModule owns the cats feature and exports its service.
type CatsModule struct{}

func (CatsModule) DeclareModule() modinject.ModuleMetadata {
	return modinject.ModuleMetadata{
		Providers:   []any{NewCatsService, NewCensus},
		Controllers: []any{NewCatsController},
		Exports:     []any{NewCatsService},
	}
}

// RegisterMetadata attaches the method-level enhancers of the cats feature.
func RegisterMetadata(registry *modinject.MetadataRegistry) {
	registry.UseMethodPipes(NewCatsController, "Create", CreateCatPipe{})
}
