package blob_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/blob/blobtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestUploadFolder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "A")
	writeFile(t, filepath.Join(dir, "b", "c.txt"), "C")

	store := blobtest.NewMemoryStore("bkt")
	n, err := blob.UploadFolder(context.Background(), store, "bkt", "up/", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"up/a.txt", "up/b/c.txt"}, store.Keys("bkt"))
}

func TestUploadFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "x", "one.txt")
	b := filepath.Join(dir, "y", "two.txt")
	writeFile(t, a, "1")
	writeFile(t, b, "2")

	store := blobtest.NewMemoryStore("bkt")
	n, err := blob.UploadFiles(context.Background(), store, "bkt", "flat", []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"flat/one.txt", "flat/two.txt"}, store.Keys("bkt"))
}

func TestUploadFile_MissingFile(t *testing.T) {
	store := blobtest.NewMemoryStore("bkt")
	_, err := blob.UploadFile(context.Background(), store, "bkt", "k", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownloadTo(t *testing.T) {
	store := blobtest.NewMemoryStore("bkt")
	store.Put("bkt", "deep/file.txt", []byte("hello"))

	target := filepath.Join(t.TempDir(), "x", "y", "file.txt")
	digest, err := blob.DownloadTo(context.Background(), store, "bkt", "deep/file.txt", target)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", digest)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = blob.DownloadTo(context.Background(), store, "bkt", "nope", target)
	assert.ErrorIs(t, err, blob.ErrObjectNotFound)
}

func TestGetPreview(t *testing.T) {
	store := blobtest.NewMemoryStore("bkt")
	store.Put("bkt", "readme.md", []byte("# title"))
	store.Put("bkt", "big.bin", []byte(strings.Repeat("x", blob.MaxPreviewSize+1)))

	p, err := blob.GetPreview(context.Background(), store, "bkt", "readme.md")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", p.ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("# title")), p.Base64)
	assert.EqualValues(t, 7, p.Size)

	_, err = blob.GetPreview(context.Background(), store, "bkt", "big.bin")
	assert.ErrorIs(t, err, blob.ErrPreviewTooLarge)
}

func TestCreateFolder(t *testing.T) {
	store := blobtest.NewMemoryStore("bkt")
	require.NoError(t, blob.CreateFolder(context.Background(), store, "bkt", "photos/2024"))
	assert.Equal(t, []string{"photos/2024/"}, store.Keys("bkt"))

	err := blob.CreateFolder(context.Background(), store, "bkt", "../up")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
}
