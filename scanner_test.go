package modinject

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanRoot struct{}

type scanLeft struct{}

type scanRight struct{}

type allowAll struct{}

func newAllowAll() *allowAll { return &allowAll{} }

func (*allowAll) CanActivate(context.Context) (bool, error) { return true, nil }

func TestDependenciesScanner_Scan(t *testing.T) {
	c, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Imports:     []any{scanLeft{}, scanRight{}},
			Controllers: []any{newCatsHandler},
		})
		r.Module(scanLeft{}, ModuleMetadata{
			Imports:   []any{scanRight{}},
			Providers: []any{newCatsRepository},
			Exports:   []any{newCatsRepository, scanRight{}},
		})
		r.Module(scanRight{}, ModuleMetadata{
			Providers: []any{ValueProvider{Provide: "dsn", UseValue: "sqlite"}},
			Exports:   []any{"dsn"},
		})
		r.UseGuards(newCatsHandler, newAllowAll)
	})
	require.NoError(t, err)

	require.Equal(t, 3, c.Modules().Len())
	root := moduleOf(t, c, scanRoot{})
	left := moduleOf(t, c, scanLeft{})
	right := moduleOf(t, c, scanRight{})

	assert.Equal(t, []*Module{left, right}, root.RelatedModules())
	assert.Equal(t, []*Module{right}, left.RelatedModules())
	assert.Equal(t, []string{"*modinject.catsRepository", "modinject.scanRight"}, left.Exports())
	assert.Equal(t, []string{"dsn"}, right.Exports())
	assert.True(t, root.Routes().Has("*modinject.catsHandler"))
	assert.True(t, root.Injectables().Has("*modinject.allowAll"))
}

func TestDependenciesScanner_DynamicModules(t *testing.T) {
	c, _, err := scanned(t, DynamicModule{
		Module:    scanRoot{},
		Imports:   []any{DynamicModule{Module: scanLeft{}, Providers: []any{newCatsRepository}, Exports: []any{newCatsRepository}}},
		Providers: []any{newCatsHandler},
	}, nil)
	require.NoError(t, err)

	root := moduleOf(t, c, DynamicModule{
		Module:    scanRoot{},
		Imports:   []any{DynamicModule{Module: scanLeft{}, Providers: []any{newCatsRepository}, Exports: []any{newCatsRepository}}},
		Providers: []any{newCatsHandler},
	})
	assert.Equal(t, []string{"*modinject.catsHandler"}, root.Providers())
	require.Len(t, root.RelatedModules(), 1)
	assert.True(t, root.RelatedModules()[0].HasExport("*modinject.catsRepository"))
}

func TestDependenciesScanner_CircularImports(t *testing.T) {
	t.Run("direct cycle", func(t *testing.T) {
		_, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
			r.Module(scanRoot{}, ModuleMetadata{Imports: []any{scanLeft{}}})
			r.Module(scanLeft{}, ModuleMetadata{Imports: []any{scanRight{}}})
			r.Module(scanRight{}, ModuleMetadata{Imports: []any{scanLeft{}}})
		})

		var circular *CircularDependencyError
		require.ErrorAs(t, err, &circular)
		assert.Equal(t, []string{"scanLeft", "scanRight", "scanLeft"}, circular.Chain)
		assert.Contains(t, err.Error(), "scanLeft -> scanRight -> scanLeft")
	})

	t.Run("nil import", func(t *testing.T) {
		_, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
			r.Module(scanRoot{}, ModuleMetadata{Imports: []any{scanLeft{}}})
			r.Module(scanLeft{}, ModuleMetadata{Imports: []any{nil}})
		})

		var circular *CircularDependencyError
		require.ErrorAs(t, err, &circular)
		assert.Equal(t, []string{"scanRoot", "scanLeft"}, circular.Chain)
	})

	t.Run("forward reference resolving to nil", func(t *testing.T) {
		_, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
			r.Module(scanRoot{}, ModuleMetadata{Imports: []any{ForwardRef(func() any { return nil })}})
		})
		assert.ErrorIs(t, err, ErrCircularDependency)
	})

	t.Run("forward reference closes the cycle", func(t *testing.T) {
		c, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
			r.Module(scanRoot{}, ModuleMetadata{Imports: []any{scanLeft{}}})
			r.Module(scanLeft{}, ModuleMetadata{Imports: []any{scanRight{}}})
			r.Module(scanRight{}, ModuleMetadata{Imports: []any{ForwardRef(func() any { return scanLeft{} })}})
		})
		require.NoError(t, err)

		left := moduleOf(t, c, scanLeft{})
		right := moduleOf(t, c, scanRight{})
		assert.Equal(t, []*Module{right}, left.RelatedModules())
		assert.Equal(t, []*Module{left}, right.RelatedModules())
	})
}

func TestDependenciesScanner_SingleScope(t *testing.T) {
	c, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{Imports: []any{scanLeft{}, scanRight{}}})
		r.Module(scanLeft{}, ModuleMetadata{Imports: []any{storageModule{}}})
		r.Module(scanRight{}, ModuleMetadata{Imports: []any{storageModule{}}})
		r.Module(storageModule{}, ModuleMetadata{Shared: SingleScope})
	})
	require.NoError(t, err)

	var storages []*Module
	for _, m := range c.Modules().Values() {
		if m.Name() == "modinject.storageModule" {
			storages = append(storages, m)
		}
	}
	require.Len(t, storages, 2)
	assert.NotEqual(t, storages[0].Token(), storages[1].Token())

	left := moduleOf(t, c, scanLeft{})
	right := moduleOf(t, c, scanRight{})
	assert.NotSame(t, left.RelatedModules()[0], right.RelatedModules()[0])
}

func TestDependenciesScanner_ExportValidation(t *testing.T) {
	_, _, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Imports: []any{scanLeft{}},
			Exports: []any{newCatsRepository},
		})
		r.Module(scanLeft{}, ModuleMetadata{
			Providers: []any{newCatsRepository},
			Exports:   []any{newCatsRepository},
		})
	})

	var exportErr *UnknownExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "scanRoot", exportErr.Module)
	assert.Equal(t, "*modinject.catsRepository", exportErr.Token)
}

type denyAll struct{}

func newDenyAll() *denyAll { return &denyAll{} }

func (*denyAll) CanActivate(context.Context) (bool, error) { return false, nil }

type passthroughPipe struct{}

func (passthroughPipe) Transform(_ context.Context, v any) (any, error) { return v, nil }

func TestDependenciesScanner_ApplicationProviders(t *testing.T) {
	c, scanner, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Imports: []any{scanLeft{}},
			Providers: []any{
				ClassProvider{Provide: AppGuard, UseClass: newDenyAll},
				ValueProvider{Provide: AppPipe, UseValue: passthroughPipe{}},
			},
		})
		r.Module(scanLeft{}, ModuleMetadata{
			Providers: []any{ClassProvider{Provide: AppGuard, UseClass: newAllowAll}},
		})
	})
	require.NoError(t, err)

	root := moduleOf(t, c, scanRoot{})
	assert.False(t, root.Components().Has(AppGuard))
	assert.Len(t, root.Providers(), 2)

	loader := NewInstanceLoader(c, NewInjector(c.Metadata(), nil), 0)
	require.NoError(t, loader.CreateInstancesOfDependencies(context.Background()))
	require.NoError(t, scanner.ApplyApplicationProviders(context.Background()))

	guards := c.ApplicationConfig().GlobalGuards()
	require.Len(t, guards, 2)
	assert.IsType(t, &denyAll{}, guards[0])
	assert.IsType(t, &allowAll{}, guards[1])
	assert.Equal(t, []any{passthroughPipe{}}, c.ApplicationConfig().GlobalPipes())
}

func TestDependenciesScanner_ApplicationFilterMustCatch(t *testing.T) {
	c, scanner, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Providers: []any{ValueProvider{Provide: AppFilter, UseValue: "not a filter"}},
		})
	})
	require.NoError(t, err)
	require.NoError(t, NewInstanceLoader(c, NewInjector(c.Metadata(), nil), 0).CreateInstancesOfDependencies(context.Background()))
	assert.ErrorIs(t, scanner.ApplyApplicationProviders(context.Background()), ErrInvalidExceptionFilter)
}

func TestDependenciesScanner_ApplicationProvidersAwaitFutures(t *testing.T) {
	c, scanner, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Providers: []any{
				ValueProvider{Provide: AppGuard, UseValue: ResolvedFuture(&denyAll{})},
				ValueProvider{Provide: AppPipe, UseValue: NewFuture(func() (any, error) {
					return passthroughPipe{}, nil
				})},
			},
		})
	})
	require.NoError(t, err)
	require.NoError(t, NewInstanceLoader(c, NewInjector(c.Metadata(), nil), 0).CreateInstancesOfDependencies(context.Background()))
	require.NoError(t, scanner.ApplyApplicationProviders(context.Background()))

	guards := c.ApplicationConfig().GlobalGuards()
	require.Len(t, guards, 1)
	assert.IsType(t, &denyAll{}, guards[0])
	assert.Equal(t, []any{passthroughPipe{}}, c.ApplicationConfig().GlobalPipes())
}

func TestDependenciesScanner_ApplicationProviderFutureFails(t *testing.T) {
	boom := errors.New("boom")
	c, scanner, err := scanned(t, scanRoot{}, func(r *MetadataRegistry) {
		r.Module(scanRoot{}, ModuleMetadata{
			Providers: []any{ValueProvider{Provide: AppInterceptor, UseValue: NewFuture(func() (any, error) {
				return nil, boom
			})}},
		})
	})
	require.NoError(t, err)
	require.NoError(t, NewInstanceLoader(c, NewInjector(c.Metadata(), nil), 0).CreateInstancesOfDependencies(context.Background()))

	err = scanner.ApplyApplicationProviders(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, c.ApplicationConfig().GlobalInterceptors())
}
