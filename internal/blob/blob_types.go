package blob

import (
	"context"
	"io"
	"strings"
	"time"
)

// Store is the object storage capability used by the sync engine, the daemon and the CLI.
type Store interface {
	// ListBuckets returns every bucket visible to the credentials
	ListBuckets(ctx context.Context) ([]*BucketInfo, error)

	// CreateBucket creates a bucket in the given region, optionally world readable
	CreateBucket(ctx context.Context, params *CreateBucketParams) error

	// ListObjects returns a single page of entries under a prefix
	ListObjects(ctx context.Context, params *ListObjectsParams) (*ListObjectsResult, error)

	// GetObject streams an object. The caller must close the body
	GetObject(ctx context.Context, bucket, key string) (*GetObjectResponse, error)

	// HeadObject returns object metadata without the body
	HeadObject(ctx context.Context, bucket, key string) (*ObjectMetadata, error)

	// PutObject uploads an object, overwriting whatever is there
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)

	// DeleteObject removes a single object
	DeleteObject(ctx context.Context, bucket, key string) error

	// DeleteObjects removes keys in batches and reports per key failures
	DeleteObjects(ctx context.Context, bucket string, keys []string) (*DeleteResult, error)

	// PresignGet returns a time limited download url
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type BucketInfo struct {
	Name         string     `json:"name"`
	CreationTime *time.Time `json:"creationTime,omitempty"`
}

type CreateBucketParams struct {
	Name   string
	Region string
	Public bool
}

// RemoteEntry is a single listed object. ETag is kept exactly as the store returned it.
type RemoteEntry struct {
	Key            string     `json:"key"`
	Size           int64      `json:"size"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
	ETag           string     `json:"etag,omitempty"`
	IsFolderMarker bool       `json:"isFolderMarker"`
}

func NewRemoteEntry(key string, size int64, lastModified *time.Time, etag string) RemoteEntry {
	return RemoteEntry{
		Key:            key,
		Size:           size,
		LastModified:   lastModified,
		ETag:           etag,
		IsFolderMarker: IsFolderKey(key),
	}
}

// IsFolderKey reports whether key is a folder marker, e.g. "photos/2024/".
func IsFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

type ListObjectsParams struct {
	Bucket            string
	Prefix            string
	ContinuationToken string
	MaxKeys           int32
	// Delimiter groups keys into CommonPrefixes. Empty lists recursively.
	Delimiter string
}

type ListObjectsResult struct {
	Entries               []RemoteEntry `json:"entries"`
	CommonPrefixes        []string      `json:"commonPrefixes"`
	NextContinuationToken string        `json:"nextContinuationToken,omitempty"`
	IsTruncated           bool          `json:"isTruncated"`
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

type ObjectMetadata struct {
	ContentType  string     `json:"contentType,omitempty"`
	Length       int64      `json:"length"`
	ETag         string     `json:"etag,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

type PutObjectParams struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	// ContentMD5 is the base64 md5 of Body. When set the store rejects a corrupted upload.
	ContentMD5 string
}

type PutObjectResponse struct {
	Key     string `json:"key"`
	ETag    string `json:"etag"`
	Version string `json:"version,omitempty"`
}

type KeyError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

type DeleteResult struct {
	Deleted int        `json:"deleted"`
	Errors  []KeyError `json:"errors"`
}

type Preview struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Base64      string `json:"content"`
	Size        int64  `json:"size"`
}
