package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardStart(t *testing.T) {
	t.Run("panic becomes error", func(t *testing.T) {
		dsn, err := guardStart(func(context.Context) (string, error) {
			panic("rootless Docker not found")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rootless Docker not found")
		assert.Empty(t, dsn)
	})

	t.Run("error passes through", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := guardStart(func(context.Context) (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("dsn passes through", func(t *testing.T) {
		dsn, err := guardStart(func(context.Context) (string, error) {
			return "postgres://test@localhost/postgres?sslmode=disable", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "postgres://test@localhost/postgres?sslmode=disable", dsn)
	})
}
