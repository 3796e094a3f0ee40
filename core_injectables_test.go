package modinject

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoController struct{}

func newEchoController() *echoController { return &echoController{} }

type upperPipe struct{}

func (upperPipe) Transform(_ context.Context, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", value)
	}
	return strings.ToUpper(s), nil
}

type tracingInterceptor struct {
	name  string
	trace *hookLog
}

func (i *tracingInterceptor) Intercept(ctx context.Context, next Handler) (any, error) {
	i.trace.add(i.name + " before")
	result, err := next(ctx, nil)
	i.trace.add(i.name + " after")
	return result, err
}

type recoveringFilter struct {
	name   string
	trace  *hookLog
	handle bool
}

func (f *recoveringFilter) Catch(_ context.Context, err error) error {
	f.trace.add(f.name + " caught " + err.Error())
	if f.handle {
		return nil
	}
	return err
}

func echo(_ context.Context, input any) (any, error) { return input, nil }

// echoCreator bootstraps a module with an echo controller and returns the
// ExternalContextCreator of that module.
func echoCreator(t *testing.T, setup func(r *MetadataRegistry)) *ExternalContextCreator {
	t.Helper()
	app := mustApplication(t, injectorRoot{}, func(r *MetadataRegistry) {
		r.Module(injectorRoot{}, ModuleMetadata{Controllers: []any{newEchoController}})
		setup(r)
	})
	ref, err := app.Select(context.Background(), injectorRoot{})
	require.NoError(t, err)
	creator, err := Resolve[*ExternalContextCreator](ref)
	require.NoError(t, err)
	return creator
}

func TestExternalContextCreator_Chain(t *testing.T) {
	trace := &hookLog{}
	creator := echoCreator(t, func(r *MetadataRegistry) {
		r.UseGuards(newEchoController, newAllowAll)
		r.UseMethodPipes(newEchoController, "Echo", upperPipe{})
		r.UseInterceptors(newEchoController, &tracingInterceptor{name: "outer", trace: trace})
		r.UseMethodInterceptors(newEchoController, "Echo", &tracingInterceptor{name: "inner", trace: trace})
	})

	handler, err := creator.Create(newEchoController, "Echo", func(ctx context.Context, input any) (any, error) {
		trace.add("handler")
		return input, nil
	})
	require.NoError(t, err)

	result, err := handler(context.Background(), "meow")
	require.NoError(t, err)
	assert.Equal(t, "MEOW", result)
	assert.Equal(t, []string{"outer before", "inner before", "handler", "inner after", "outer after"}, trace.list())

	guards, err := creator.Guards(newEchoController, "Echo")
	require.NoError(t, err)
	require.Len(t, guards, 1)
	assert.IsType(t, &allowAll{}, guards[0])
}

func TestExternalContextCreator_GuardRefusal(t *testing.T) {
	trace := &hookLog{}
	creator := echoCreator(t, func(r *MetadataRegistry) {
		r.UseMethodGuards(newEchoController, "Delete", newDenyAll)
		r.UseInterceptors(newEchoController, &tracingInterceptor{name: "outer", trace: trace})
	})

	allowed, err := creator.Create(newEchoController, "Echo", echo)
	require.NoError(t, err)
	result, err := allowed(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	denied, err := creator.Create(newEchoController, "Delete", echo)
	require.NoError(t, err)
	_, err = denied(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrForbidden)
	// Guards run before interceptors.
	assert.Equal(t, []string{"outer before", "outer after"}, trace.list())
}

func TestExternalContextCreator_Filters(t *testing.T) {
	boom := errors.New("boom")
	failing := func(context.Context, any) (any, error) { return nil, boom }

	t.Run("most specific filter first", func(t *testing.T) {
		trace := &hookLog{}
		creator := echoCreator(t, func(r *MetadataRegistry) {
			r.UseFilters(newEchoController, &recoveringFilter{name: "class", trace: trace, handle: true})
			r.UseMethodFilters(newEchoController, "Echo", &recoveringFilter{name: "method", trace: trace})
		})

		handler, err := creator.Create(newEchoController, "Echo", failing)
		require.NoError(t, err)
		result, err := handler(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, []string{"method caught boom", "class caught boom"}, trace.list())
	})

	t.Run("unhandled error reaches the caller", func(t *testing.T) {
		trace := &hookLog{}
		creator := echoCreator(t, func(r *MetadataRegistry) {
			r.UseFilters(newEchoController, &recoveringFilter{name: "class", trace: trace})
		})

		handler, err := creator.Create(newEchoController, "Echo", failing)
		require.NoError(t, err)
		_, err = handler(context.Background(), nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("pipe errors are filtered too", func(t *testing.T) {
		creator := echoCreator(t, func(r *MetadataRegistry) {
			r.UsePipes(newEchoController, upperPipe{})
		})
		handler, err := creator.Create(newEchoController, "Echo", echo)
		require.NoError(t, err)
		_, err = handler(context.Background(), 42)
		assert.EqualError(t, err, "expected a string, got int")
	})
}

type denyingModule struct{}

func (denyingModule) DeclareModule() ModuleMetadata {
	return ModuleMetadata{
		Providers:   []any{ClassProvider{Provide: AppGuard, UseClass: newDenyAll}},
		Controllers: []any{newEchoController},
	}
}

func TestExternalContextCreator_GlobalGuard(t *testing.T) {
	app := mustApplication(t, denyingModule{}, nil)
	require.Len(t, app.Container().ApplicationConfig().GlobalGuards(), 1)

	ref, err := app.Select(context.Background(), denyingModule{})
	require.NoError(t, err)
	creator, err := Resolve[*ExternalContextCreator](ref)
	require.NoError(t, err)

	handler, err := creator.Create(newEchoController, "Echo", echo)
	require.NoError(t, err)
	_, err = handler(context.Background(), "x")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestExternalContextCreator_InvalidEnhancers(t *testing.T) {
	creator := echoCreator(t, func(r *MetadataRegistry) {
		r.UseGuards(newEchoController, upperPipe{})
	})
	_, err := creator.Create(newEchoController, "Echo", echo)
	assert.ErrorIs(t, err, ErrInvalidProvider)

	// Constructors that were never scanned into the module are unknown.
	registry := NewMetadataRegistry()
	registry.UseGuards(newCatsHandler, newDenyAll)
	container := NewContainer(WithContainerMetadata(registry))
	token, err := container.AddModule(context.Background(), storageModule{}, nil)
	require.NoError(t, err)
	module, _ := container.Modules().Get(token)
	_, err = NewExternalContextCreator(module).Guards(newCatsHandler, "")
	assert.ErrorIs(t, err, ErrUnknownElement)
}

func TestCheckGuards(t *testing.T) {
	boom := errors.New("guard failed")
	assert.NoError(t, CheckGuards(context.Background(), nil))
	assert.NoError(t, CheckGuards(context.Background(), []Guard{&allowAll{}}))
	assert.ErrorIs(t, CheckGuards(context.Background(), []Guard{&allowAll{}, &denyAll{}}), ErrForbidden)
	assert.ErrorIs(t, CheckGuards(context.Background(), []Guard{erroringGuard{boom}}), boom)
}

type erroringGuard struct{ err error }

func (g erroringGuard) CanActivate(context.Context) (bool, error) { return false, g.err }

func TestReflector(t *testing.T) {
	registry := NewMetadataRegistry()
	registry.UseGuards(newEchoController, newAllowAll)
	registry.DefineMethod("roles", []string{"admin"}, newEchoController, "Delete")
	reflector := NewReflector(registry)

	guards, ok := reflector.Get(MetaGuards, newEchoController).([]any)
	require.True(t, ok)
	require.Len(t, guards, 1)
	assert.Equal(t, describe(newAllowAll), describe(guards[0]))
	assert.Equal(t, []string{"admin"}, reflector.GetMethod("roles", newEchoController, "Delete"))
	assert.Nil(t, reflector.GetMethod("roles", newEchoController, "Echo"))
	assert.Nil(t, reflector.Get(MetaGuards, newCatsHandler))
}

func TestApplicationConfig(t *testing.T) {
	cfg := NewApplicationConfig()
	cfg.SetGlobalPrefix("/api")
	assert.Equal(t, "/api", cfg.GlobalPrefix())

	cfg.AddGlobalGuard(&allowAll{})
	cfg.AddGlobalPipe(upperPipe{})
	cfg.AddGlobalInterceptor(&tracingInterceptor{})
	require.NoError(t, cfg.AddGlobalFilter(&recoveringFilter{}))
	assert.ErrorIs(t, cfg.AddGlobalFilter(upperPipe{}), ErrInvalidExceptionFilter)

	assert.Len(t, cfg.GlobalGuards(), 1)
	assert.Len(t, cfg.GlobalPipes(), 1)
	assert.Len(t, cfg.GlobalInterceptors(), 1)
	assert.Len(t, cfg.GlobalFilters(), 1)
}
