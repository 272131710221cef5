package token

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreEmpty(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	v, ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestEnsureAllocatesOnce(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	ctx := context.Background()

	first, err := s.Ensure(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "ensure must not rotate an existing token")

	restored, ok, err := s.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, restored)
}

func TestPersistReplacesAndClearDrops(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	ctx := context.Background()

	_, err := s.Ensure(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Persist(ctx, "server-assigned"))
	v, ok, err := s.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "server-assigned", v)

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an already-empty slot is not an error.
	require.NoError(t, s.Clear(ctx))
}

func TestPersistRejectsEmptyToken(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	require.Error(t, s.Persist(context.Background(), ""))
}

func TestFileStorageSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "token.json")
	ctx := context.Background()

	first := NewStore(NewFileStorage(path))
	tok, err := first.Ensure(ctx)
	require.NoError(t, err)

	// A new store over the same file sees the token, like a page reload.
	second := NewStore(NewFileStorage(path))
	restored, ok, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tok, restored)

	require.NoError(t, second.Clear(ctx))
	_, ok, err = first.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorageCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewStore(NewFileStorage(path))
	_, ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
