package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/blob/blobtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "test-bucket"

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReconciler_LocalToRemote(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "b/c.txt", "charlie")

	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "backup/remote-only.txt", []byte("keep me"))
	r := NewReconciler(store)
	loc := Locator{Bucket: testBucket, Prefix: "backup"}

	result, err := r.LocalToRemote(context.Background(), loc, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Uploaded: 2}, result)
	assert.Equal(t, []string{"backup/a.txt", "backup/b/c.txt", "backup/remote-only.txt"}, store.Keys(testBucket))

	data, ok := store.Data(testBucket, "backup/b/c.txt")
	require.True(t, ok)
	assert.Equal(t, "charlie", string(data))

	// a second pass over unchanged files transfers nothing
	result, err = r.LocalToRemote(context.Background(), loc, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Skipped: 2}, result)
	assert.EqualValues(t, 2, store.PutCalls.Load())
}

func TestReconciler_LocalToRemote_ChangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")

	store := blobtest.NewMemoryStore(testBucket)
	r := NewReconciler(store)
	loc := Locator{Bucket: testBucket}

	_, err := r.LocalToRemote(context.Background(), loc, root)
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "v2")
	result, err := r.LocalToRemote(context.Background(), loc, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Uploaded: 1}, result)

	data, _ := store.Data(testBucket, "a.txt")
	assert.Equal(t, "v2", string(data))
}

func TestReconciler_LocalToRemote_MultipartTagReuploads(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.bin", "payload")

	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "big.bin", []byte("payload"))
	store.SetETag(testBucket, "big.bin", `"0123456789abcdef0123456789abcdef-3"`)

	result, err := NewReconciler(store).LocalToRemote(context.Background(), Locator{Bucket: testBucket}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Uploaded: 1}, result)
}

func TestReconciler_LocalToRemote_Ignores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, IgnoreFileName, "build/\n*.log\n")
	writeFile(t, root, "keep.txt", "k")
	writeFile(t, root, "debug.log", "x")
	writeFile(t, root, "build/out.bin", "x")
	writeFile(t, root, "doc.txt.bsync.tmp.123", "x")
	writeFile(t, root, ".DS_Store", "x")

	store := blobtest.NewMemoryStore(testBucket)
	result, err := NewReconciler(store).LocalToRemote(context.Background(), Locator{Bucket: testBucket}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Uploaded: 2}, result)
	assert.Equal(t, []string{IgnoreFileName, "keep.txt"}, store.Keys(testBucket))
}

func TestReconciler_LocalToRemote_FailsFast(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")

	store := blobtest.NewMemoryStore(testBucket)
	store.PutErr = errors.New("access denied")

	result, err := NewReconciler(store).LocalToRemote(context.Background(), Locator{Bucket: testBucket}, root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, SyncResult{}, result)
	assert.EqualValues(t, 1, store.PutCalls.Load())
}

func TestReconciler_LocalToRemote_MissingRoot(t *testing.T) {
	store := blobtest.NewMemoryStore(testBucket)
	_, err := NewReconciler(store).LocalToRemote(context.Background(), Locator{Bucket: testBucket}, filepath.Join(t.TempDir(), "gone"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestReconciler_LocalToRemote_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := blobtest.NewMemoryStore(testBucket)
	_, err := NewReconciler(store).LocalToRemote(ctx, Locator{Bucket: testBucket}, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.Keys(testBucket))
}

func TestReconciler_RemoteToLocal(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fresh")

	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "data/x.txt", []byte("x-remote"))
	store.Put(testBucket, "data/nested/y.txt", []byte("y"))
	store.Put(testBucket, "data/empty/", nil)
	store.Put(testBucket, "other/z.txt", []byte("z"))
	r := NewReconciler(store)
	loc := Locator{Bucket: testBucket, Prefix: "data/"}

	result, err := r.RemoteToLocal(context.Background(), loc, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 2}, result)

	got, err := os.ReadFile(filepath.Join(root, "nested", "y.txt"))
	require.NoError(t, err)
	assert.Equal(t, "y", string(got))
	assert.NoDirExists(t, filepath.Join(root, "empty"))
	assert.NoFileExists(t, filepath.Join(root, "z.txt"))

	result, err = r.RemoteToLocal(context.Background(), loc, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Skipped: 2}, result)
}

func TestReconciler_RemoteToLocal_OverwritesAndKeepsLocalOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.txt", "x-local")
	writeFile(t, root, "mine.txt", "only here")

	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "x.txt", []byte("x-remote"))

	result, err := NewReconciler(store).RemoteToLocal(context.Background(), Locator{Bucket: testBucket}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 1}, result)

	got, _ := os.ReadFile(filepath.Join(root, "x.txt"))
	assert.Equal(t, "x-remote", string(got))
	assert.FileExists(t, filepath.Join(root, "mine.txt"))
	assert.Equal(t, []string{"x.txt"}, store.Keys(testBucket))
}

func TestReconciler_RemoteToLocal_SkipsUnsafeKeys(t *testing.T) {
	root := t.TempDir()
	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "../escape.txt", []byte("nope"))
	store.Put(testBucket, "ok.txt", []byte("ok"))

	result, err := NewReconciler(store).RemoteToLocal(context.Background(), Locator{Bucket: testBucket}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 1}, result)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escape.txt"))
}

func TestReconciler_RoundTripsUnusualNames(t *testing.T) {
	src := t.TempDir()
	names := []string{"v1..2.txt", "notes/..draft", "dir/a\\b.txt"}
	for _, name := range names {
		writeFile(t, src, name, "content of "+name)
	}

	store := blobtest.NewMemoryStore(testBucket)
	loc := Locator{Bucket: testBucket, Prefix: "p"}
	r := NewReconciler(store)

	up, err := r.LocalToRemote(context.Background(), loc, src)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Uploaded: 3}, up)

	dst := t.TempDir()
	down, err := r.RemoteToLocal(context.Background(), loc, dst)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 3}, down)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, "content of "+name, string(data))
	}
}

func TestReconciler_RemoteToLocal_PrefixStopsAtSlash(t *testing.T) {
	root := t.TempDir()
	store := blobtest.NewMemoryStore(testBucket)
	store.Put(testBucket, "docs/a.txt", []byte("a"))
	store.Put(testBucket, "docs-old/x.txt", []byte("x"))

	result, err := NewReconciler(store).RemoteToLocal(context.Background(), Locator{Bucket: testBucket, Prefix: "docs"}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 1}, result)
	assert.FileExists(t, filepath.Join(root, "a.txt"))
	assert.NoFileExists(t, filepath.Join(root, "-old", "x.txt"))
}

// pagedStore serves a fixed number of keys in pages and records the tokens it saw.
type pagedStore struct {
	pages  []int
	tokens []string
	gets   map[string]int
}

func (p *pagedStore) ListObjects(_ context.Context, params *blob.ListObjectsParams) (*blob.ListObjectsResult, error) {
	p.tokens = append(p.tokens, params.ContinuationToken)
	page := len(p.tokens) - 1

	res := &blob.ListObjectsResult{}
	for i := 0; i < p.pages[page]; i++ {
		res.Entries = append(res.Entries, blob.NewRemoteEntry(fmt.Sprintf("p%d/k%04d", page, i), 1, nil, `"x"`))
	}
	if page < len(p.pages)-1 {
		res.IsTruncated = true
		res.NextContinuationToken = fmt.Sprintf("token-%d", page+1)
	}
	return res, nil
}

func (p *pagedStore) GetObject(_ context.Context, _, key string) (*blob.GetObjectResponse, error) {
	if p.gets == nil {
		p.gets = make(map[string]int)
	}
	p.gets[key]++
	return &blob.GetObjectResponse{Body: io.NopCloser(strings.NewReader(key)), ETag: `"x"`}, nil
}

func (p *pagedStore) PutObject(context.Context, *blob.PutObjectParams) (*blob.PutObjectResponse, error) {
	return nil, errors.New("not implemented")
}

func TestListRemote_Paginates(t *testing.T) {
	store := &pagedStore{pages: []int{1000, 1000, 42}}
	entries, err := listRemote(context.Background(), store, Locator{Bucket: testBucket})
	require.NoError(t, err)
	assert.Len(t, entries, 2042)
	assert.Equal(t, []string{"", "token-1", "token-2"}, store.tokens)
}

func TestReconciler_RemoteToLocal_AllPages(t *testing.T) {
	root := t.TempDir()
	store := &pagedStore{pages: []int{1000, 1000, 42}}

	result, err := NewReconciler(store).RemoteToLocal(context.Background(), Locator{Bucket: testBucket}, root)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Downloaded: 2042}, result)
	assert.Len(t, store.gets, 2042)
	for key, n := range store.gets {
		assert.Equal(t, 1, n, key)
	}
	assert.FileExists(t, filepath.Join(root, "p2", "k0041"))
}

type stuckStore struct {
	pagedStore
}

func (s *stuckStore) ListObjects(_ context.Context, params *blob.ListObjectsParams) (*blob.ListObjectsResult, error) {
	return &blob.ListObjectsResult{IsTruncated: true}, nil
}

func TestListRemote_TruncatedWithoutToken(t *testing.T) {
	_, err := listRemote(context.Background(), &stuckStore{}, Locator{Bucket: testBucket})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "continuation token")
}
