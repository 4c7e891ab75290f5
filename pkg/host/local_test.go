package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMaintenance(t *testing.T) {
	ctx := context.Background()
	m := NewFileMaintenance(filepath.Join(t.TempDir(), ".maintenance"))
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	on, err := m.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, m.Enable(ctx))
	on, err = m.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	content, err := os.ReadFile(m.Path)
	require.NoError(t, err)
	assert.Equal(t, "<?php $upgrading = 1700000000; ?>", string(content))

	require.NoError(t, m.Disable(ctx))
	require.NoError(t, m.Disable(ctx), "disabling twice is not an error")

	on, err = m.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestNoLocalization(t *testing.T) {
	ctx := context.Background()
	var l Localization = NoLocalization{}

	assert.False(t, l.IsActive())
	id, err := l.DefaultLanguagePost(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	mode, err := l.PostTypeTranslationMode(ctx, "book")
	require.NoError(t, err)
	assert.Equal(t, NotTranslatable, mode)
	assert.Equal(t, "display as translated", DisplayAsTranslated.String())
}
