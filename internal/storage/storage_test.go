package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAndDelete(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	locator, err := store.Upload(ctx, []byte("image bytes"), "books/1/page_3.png")
	require.NoError(t, err)
	assert.Equal(t, "books/1/page_3.png", locator)

	require.NoError(t, store.Delete(ctx, locator))
}

func TestDeleteMissingArtifactIsNoOp(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "books/99/page_1.png"))
}

func TestUploadSanitizesTraversal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewFileStore(root, nil)
	require.NoError(t, err)

	locator, err := store.Upload(context.Background(), []byte("x"), "../../etc/passwd")
	require.NoError(t, err)

	// The stored file must stay under the root.
	assert.FileExists(t, filepath.Join(root, locator))
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadRejectsEmptyName(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), []byte("x"), "")
	assert.Error(t, err)
}

func TestUploadCancelledContext(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Upload(ctx, []byte("x"), "a.png")
	assert.ErrorIs(t, err, context.Canceled)
}
