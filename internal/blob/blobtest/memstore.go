// Package blobtest provides an in-memory blob.Store for tests.
package blobtest

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/bucketsync/internal/blob"
)

type object struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
}

// MemoryStore keeps buckets and objects in maps. ETags are quoted md5 digests like S3 returns.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*object
	created map[string]time.Time

	// PutErr, when set, is returned by every PutObject call
	PutErr error

	ListCalls atomic.Int64
	PutCalls  atomic.Int64
	GetCalls  atomic.Int64
}

func NewMemoryStore(buckets ...string) *MemoryStore {
	m := &MemoryStore{
		buckets: make(map[string]map[string]*object),
		created: make(map[string]time.Time),
	}
	for _, b := range buckets {
		m.buckets[b] = make(map[string]*object)
		m.created[b] = time.Now()
	}
	return m
}

// Put stores data directly without counting a call.
func (m *MemoryStore) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(bucket, key, data, "")
}

// SetETag overrides the stored tag, e.g. with a multipart style "abc-3".
func (m *MemoryStore) SetETag(bucket, key, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.buckets[bucket][key]; ok {
		obj.etag = etag
	}
}

// Data returns a copy of an object's bytes.
func (m *MemoryStore) Data(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns the sorted keys of a bucket.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedKeys(bucket)
}

func (m *MemoryStore) ListBuckets(ctx context.Context) ([]*blob.BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]*blob.BucketInfo, 0, len(names))
	for _, name := range names {
		created := m.created[name]
		out = append(out, &blob.BucketInfo{Name: name, CreationTime: &created})
	}
	return out, nil
}

func (m *MemoryStore) CreateBucket(ctx context.Context, params *blob.CreateBucketParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[params.Name]; ok {
		return fmt.Errorf("bucket %s already exists", params.Name)
	}
	m.buckets[params.Name] = make(map[string]*object)
	m.created[params.Name] = time.Now()
	return nil
}

// ListObjects pages through keys in lexical order. The continuation token is the last key
// of the previous page.
func (m *MemoryStore) ListObjects(ctx context.Context, params *blob.ListObjectsParams) (*blob.ListObjectsResult, error) {
	m.ListCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.buckets[params.Bucket]; !ok {
		return nil, fmt.Errorf("list %s: %w", params.Bucket, blob.ErrBucketNotFound)
	}

	maxKeys := int(params.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	result := &blob.ListObjectsResult{Entries: []blob.RemoteEntry{}, CommonPrefixes: []string{}}
	seenPrefix := map[string]bool{}
	count := 0
	var last string
	for _, key := range m.sortedKeys(params.Bucket) {
		if !strings.HasPrefix(key, params.Prefix) {
			continue
		}
		if params.ContinuationToken != "" && key <= params.ContinuationToken {
			continue
		}
		if count == maxKeys {
			result.IsTruncated = true
			result.NextContinuationToken = last
			break
		}

		if params.Delimiter != "" {
			rest := strings.TrimPrefix(key, params.Prefix)
			if idx := strings.Index(rest, params.Delimiter); idx >= 0 {
				cp := params.Prefix + rest[:idx+len(params.Delimiter)]
				if !seenPrefix[cp] {
					seenPrefix[cp] = true
					result.CommonPrefixes = append(result.CommonPrefixes, cp)
					count++
				}
				// sorts after every key under cp
				last = cp + "\U0010FFFF"
				continue
			}
		}

		obj := m.buckets[params.Bucket][key]
		lm := obj.lastModified
		result.Entries = append(result.Entries, blob.NewRemoteEntry(key, int64(len(obj.data)), &lm, obj.etag))
		count++
		last = key
	}
	return result, nil
}

func (m *MemoryStore) GetObject(ctx context.Context, bucket, key string) (*blob.GetObjectResponse, error) {
	m.GetCalls.Add(1)
	obj, err := m.get(bucket, key)
	if err != nil {
		return nil, err
	}
	return &blob.GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		ETag:         obj.etag,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryStore) HeadObject(ctx context.Context, bucket, key string) (*blob.ObjectMetadata, error) {
	obj, err := m.get(bucket, key)
	if err != nil {
		return nil, err
	}
	lm := obj.lastModified
	return &blob.ObjectMetadata{
		ContentType:  obj.contentType,
		Length:       int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: &lm,
	}, nil
}

func (m *MemoryStore) PutObject(ctx context.Context, params *blob.PutObjectParams) (*blob.PutObjectResponse, error) {
	m.PutCalls.Add(1)
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[params.Bucket]; !ok {
		return nil, fmt.Errorf("put %s: %w", params.Bucket, blob.ErrBucketNotFound)
	}
	obj := m.put(params.Bucket, params.Key, data, params.ContentType)
	return &blob.PutObjectResponse{Key: params.Key, ETag: obj.etag}, nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryStore) DeleteObjects(ctx context.Context, bucket string, keys []string) (*blob.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &blob.DeleteResult{Errors: []blob.KeyError{}}
	for _, key := range keys {
		if _, ok := m.buckets[bucket][key]; !ok {
			result.Errors = append(result.Errors, blob.KeyError{Key: key, Message: "NoSuchKey"})
			continue
		}
		delete(m.buckets[bucket], key)
		result.Deleted++
	}
	return result, nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := m.get(bucket, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, int(ttl.Seconds())), nil
}

func (m *MemoryStore) get(bucket, key string) (*object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, blob.ErrObjectNotFound)
	}
	return obj, nil
}

func (m *MemoryStore) put(bucket, key string, data []byte, contentType string) *object {
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]*object)
		m.created[bucket] = time.Now()
	}
	obj := &object{
		data:         bytes.Clone(data),
		etag:         fmt.Sprintf("\"%x\"", md5.Sum(data)),
		contentType:  contentType,
		lastModified: time.Now().UTC(),
	}
	m.buckets[bucket][key] = obj
	return obj
}

func (m *MemoryStore) sortedKeys(bucket string) []string {
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ blob.Store = (*MemoryStore)(nil)
