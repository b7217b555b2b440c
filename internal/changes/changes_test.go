package changes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasChanged(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore(), nil)
	content := []byte("schedule image bytes")

	changed, err := d.HasChanged(ctx, "image:hoe:2026-10-15", content)
	require.NoError(t, err)
	assert.True(t, changed, "first observation is a change")

	changed, err = d.HasChanged(ctx, "image:hoe:2026-10-15", content)
	require.NoError(t, err)
	assert.False(t, changed, "identical content is not a change")

	changed, err = d.HasChanged(ctx, "image:hoe:2026-10-15", []byte("corrected image"))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.HasChanged(ctx, "image:hoe:2026-10-15", []byte("corrected image"))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSourcesAreIndependent(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore(), nil)
	content := []byte("same bytes")

	first, err := d.HasChanged(ctx, Key("page", "announcements"), content)
	require.NoError(t, err)
	second, err := d.HasChanged(ctx, Key("page", "emergency", "rem4"), content)
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, second, "unrelated sources must not share cache entries")
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore(), nil)

	_, err := d.HasChanged(ctx, "src", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "src"))

	changed, err := d.HasChanged(ctx, "src", []byte("x"))
	require.NoError(t, err)
	assert.True(t, changed)
}

type failingStore struct{ MemoryStore }

func (*failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store down")
}

func TestHasChangedStoreError(t *testing.T) {
	d := NewDetector(&failingStore{}, nil)
	changed, err := d.HasChanged(context.Background(), "src", []byte("x"))
	assert.Error(t, err)
	assert.False(t, changed)
}

func TestHashIs128Bit(t *testing.T) {
	assert.Len(t, Hash([]byte("abc")), 32)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Hash([]byte("abc")))
	assert.Equal(t, "image:hoe:2026-10-15", Key("image", "hoe", "2026-10-15"))
}

func TestBaseline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDetector(store, nil)

	_, ok, err := d.Baseline(ctx, "page:hoe")
	require.NoError(t, err)
	assert.False(t, ok)

	paragraphs := []string{"перший абзац", "другий абзац"}
	require.NoError(t, d.SetBaseline(ctx, "page:hoe", paragraphs))
	paragraphs[0] = "змінено"

	got, ok, err := NewDetector(store, nil).Baseline(ctx, "page:hoe")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"перший абзац", "другий абзац"}, got)

	require.NoError(t, d.SetBaseline(ctx, "empty", nil))
	got, ok, err = d.Baseline(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}
