package modinject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	ctx := context.Background()

	t.Run("settles with the function result", func(t *testing.T) {
		f := NewFuture(func() (any, error) { return 42, nil })
		value, err := f.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
		<-f.Done()
	})

	t.Run("propagates errors", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewFuture(func() (any, error) { return nil, boom }).Await(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("recovers panics", func(t *testing.T) {
		_, err := NewFuture(func() (any, error) { panic("oops") }).Await(ctx)
		assert.ErrorContains(t, err, "future panicked: oops")
	})

	t.Run("resolved future", func(t *testing.T) {
		value, err := ResolvedFuture("ready").Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ready", value)
	})

	t.Run("await honours the context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		f := NewFuture(func() (any, error) {
			<-release
			return nil, nil
		})
		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := f.Await(short)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWithProvideToken(t *testing.T) {
	for _, provider := range []any{
		ClassProvider{Provide: "a", UseClass: newCatsRepository},
		&ClassProvider{Provide: "a", UseClass: newCatsRepository},
		ValueProvider{Provide: "a", UseValue: 1},
		&ValueProvider{Provide: "a", UseValue: 1},
		FactoryProvider{Provide: "a", UseFactory: newCatsRepository},
		&FactoryProvider{Provide: "a", UseFactory: newCatsRepository},
		newCatsRepository,
	} {
		bound, err := withProvideToken(provider, "b")
		require.NoError(t, err)
		token, ok := providerToken(bound)
		require.True(t, ok)
		assert.Equal(t, "b", token)
	}

	original := &ValueProvider{Provide: "a", UseValue: 1}
	_, err := withProvideToken(original, "b")
	require.NoError(t, err)
	assert.Equal(t, "a", original.Provide)

	_, err = withProvideToken("nope", "b")
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestWrapperCollection(t *testing.T) {
	c := NewWrapperCollection()
	first := &InstanceWrapper{Name: "b"}
	c.Set("b", first)
	c.Set("a", &InstanceWrapper{Name: "a"})
	replacement := &InstanceWrapper{Name: "b"}
	c.Set("b", replacement)

	assert.Equal(t, []string{"b", "a"}, c.Names())
	assert.Equal(t, 2, c.Len())
	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.False(t, c.Has("c"))
}

func TestInstanceWrapper_ClaimAndFinish(t *testing.T) {
	w := &InstanceWrapper{Name: "svc"}

	owned, _, resolved := w.claim()
	require.True(t, owned)
	require.False(t, resolved)
	assert.True(t, w.IsPending())

	again, wait, _ := w.claim()
	assert.False(t, again)
	require.NotNil(t, wait)

	boom := errors.New("boom")
	w.finish(nil, false, boom)
	<-wait
	assert.Equal(t, boom, w.lastError())
	assert.False(t, w.IsResolved())

	owned, _, _ = w.claim()
	require.True(t, owned)
	assert.NoError(t, w.lastError())
	w.finish("instance", true, nil)
	assert.True(t, w.IsResolved())
	assert.Equal(t, "resolved", w.state.String())

	_, _, resolved = w.claim()
	assert.True(t, resolved)
}
