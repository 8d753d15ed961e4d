package backpack

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ n int64 }

func TestContainer_SingletonBuildsOnce(t *testing.T) {
	c := NewContainer()
	var calls atomic.Int64
	c.Singleton("w", func(*Container) (any, error) {
		return &widget{n: calls.Add(1)}, nil
	})

	var wg sync.WaitGroup
	results := make([]*widget, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = MustResolve[*widget](c, "w")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, w := range results {
		assert.Same(t, results[0], w)
	}
}

func TestContainer_BindBuildsEveryTime(t *testing.T) {
	c := NewContainer()
	c.Bind("w", func(*Container) (any, error) { return &widget{}, nil })

	a, err := Resolve[*widget](c, "w")
	require.NoError(t, err)
	b, err := Resolve[*widget](c, "w")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestContainer_Errors(t *testing.T) {
	c := NewContainer()
	_, err := c.Make("missing")
	assert.ErrorIs(t, err, ErrNotBound)

	c.Instance("n", 42)
	_, err = Resolve[string](c, "n")
	assert.ErrorIs(t, err, ErrBindingType)
	n, err := Resolve[int](c, "n")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	boom := errors.New("boom")
	c.Singleton("bad", func(*Container) (any, error) { return nil, boom })
	_, err = c.Make("bad")
	assert.ErrorIs(t, err, boom)
	assert.Panics(t, func() { MustResolve[int](c, "bad") })
}

func TestContainer_DependenciesResolveThroughContainer(t *testing.T) {
	c := NewContainer()
	c.Instance("base", 2)
	c.Singleton("double", func(c *Container) (any, error) {
		base, err := Resolve[int](c, "base")
		return base * 2, err
	})

	assert.Equal(t, 4, MustResolve[int](c, "double"))
	assert.Equal(t, []string{"base", "double"}, c.Names())
	assert.True(t, c.Bound("base"))
}
