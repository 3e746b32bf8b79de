package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ganttguild/pkg/cerr"
)

func TestSafe(t *testing.T) {
	t.Run("passes errors through", func(t *testing.T) {
		want := errors.New("boom")
		err := Safe(func() error { return want })()
		assert.ErrorIs(t, err, want)
	})

	t.Run("nil on success", func(t *testing.T) {
		assert.NoError(t, Safe(func() error { return nil })())
	})

	t.Run("converts panics", func(t *testing.T) {
		err := Safe(func() error { panic("bad index") })()
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.Internal))
		assert.Contains(t, err.Error(), "bad index")

		var e *cerr.Error
		require.ErrorAs(t, err, &e)
		assert.NotEmpty(t, e.Stack)
	})
}

func TestSafeContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	var got any
	err := SafeContext(func(ctx context.Context) error {
		got = ctx.Value(key{})
		var m map[string]int
		m["x"] = 1
		return nil
	})(ctx)
	assert.Equal(t, "v", got)
	assert.True(t, cerr.IsCode(err, cerr.Internal))
}
