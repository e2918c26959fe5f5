package blob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3API struct {
	mock.Mock
}

func (m *MockS3API) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.ListBucketsOutput), args.Error(1)
}

func (m *MockS3API) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *MockS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func (m *MockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3API) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func (m *MockS3API) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.DeleteObjectsOutput), args.Error(1)
}

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	args := m.Called(ctx, params, opts.Expires)
	return args.Get(0).(*v4.PresignedHTTPRequest), args.Error(1)
}

func TestS3Store_ListObjects(t *testing.T) {
	api := new(MockS3API)
	store := NewS3Store(api, nil)
	ctx := context.Background()
	modified := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	api.On("ListObjectsV2", ctx, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "bkt" &&
			aws.ToString(in.Prefix) == "docs/" &&
			aws.ToString(in.ContinuationToken) == "tok-1" &&
			aws.ToInt32(in.MaxKeys) == 1000 &&
			aws.ToString(in.Delimiter) == "/"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("docs/"), Size: aws.Int64(0), ETag: aws.String(`"d41d8cd98f00b204e9800998ecf8427e"`)},
			{Key: aws.String("docs/a.txt"), Size: aws.Int64(3), ETag: aws.String(`"abc"`), LastModified: &modified},
		},
		CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("docs/img/")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("tok-2"),
	}, nil)

	res, err := store.ListObjects(ctx, &ListObjectsParams{
		Bucket:            "bkt",
		Prefix:            "docs/",
		ContinuationToken: "tok-1",
		MaxKeys:           1000,
		Delimiter:         "/",
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	assert.True(t, res.Entries[0].IsFolderMarker)
	assert.False(t, res.Entries[1].IsFolderMarker)
	assert.Equal(t, `"abc"`, res.Entries[1].ETag, "etag is kept as returned")
	assert.Equal(t, modified, *res.Entries[1].LastModified)
	assert.Equal(t, []string{"docs/img/"}, res.CommonPrefixes)
	assert.True(t, res.IsTruncated)
	assert.Equal(t, "tok-2", res.NextContinuationToken)
	api.AssertExpectations(t)
}

func TestS3Store_CreateBucket(t *testing.T) {
	tests := []struct {
		name           string
		params         CreateBucketParams
		wantConstraint types.BucketLocationConstraint
		wantACL        types.BucketCannedACL
	}{
		{name: "us-east-1 has no constraint", params: CreateBucketParams{Name: "a", Region: "us-east-1"}},
		{name: "empty region", params: CreateBucketParams{Name: "a"}},
		{name: "other region", params: CreateBucketParams{Name: "a", Region: "eu-west-1"}, wantConstraint: "eu-west-1"},
		{name: "public", params: CreateBucketParams{Name: "a", Public: true}, wantACL: types.BucketCannedACLPublicRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockS3API)
			store := NewS3Store(api, nil)

			api.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
				var constraint types.BucketLocationConstraint
				if in.CreateBucketConfiguration != nil {
					constraint = in.CreateBucketConfiguration.LocationConstraint
				}
				return constraint == tt.wantConstraint && in.ACL == tt.wantACL
			})).Return(&s3.CreateBucketOutput{}, nil)

			require.NoError(t, store.CreateBucket(context.Background(), &tt.params))
			api.AssertExpectations(t)
		})
	}

	t.Run("missing name", func(t *testing.T) {
		store := NewS3Store(new(MockS3API), nil)
		assert.ErrorIs(t, store.CreateBucket(context.Background(), &CreateBucketParams{}), ErrInvalidBucketArg)
	})
}

func TestS3Store_DeleteObjectsBatches(t *testing.T) {
	api := new(MockS3API)
	store := NewS3Store(api, nil)

	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = fmt.Sprintf("k/%04d", i)
	}

	var batchSizes []int
	api.On("DeleteObjects", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(*s3.DeleteObjectsInput)
			batchSizes = append(batchSizes, len(in.Delete.Objects))
		}).
		Return(&s3.DeleteObjectsOutput{
			Deleted: make([]types.DeletedObject, 10),
			Errors:  []types.Error{{Key: aws.String("k/0001"), Message: aws.String("AccessDenied")}},
		}, nil)

	res, err := store.DeleteObjects(context.Background(), "bkt", keys)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1000, 500}, batchSizes)
	assert.Equal(t, 30, res.Deleted)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, KeyError{Key: "k/0001", Message: "AccessDenied"}, res.Errors[0])
}

func TestS3Store_GetObjectNotFound(t *testing.T) {
	api := new(MockS3API)
	store := NewS3Store(api, nil)

	api.On("GetObject", mock.Anything, mock.Anything).
		Return((*s3.GetObjectOutput)(nil), &types.NoSuchKey{Message: aws.String("missing")})
	api.On("HeadObject", mock.Anything, mock.Anything).
		Return((*s3.HeadObjectOutput)(nil), &smithy.GenericAPIError{Code: "NotFound"})

	_, err := store.GetObject(context.Background(), "bkt", "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.HeadObject(context.Background(), "bkt", "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Store_PutObjectRejectsInvalidKey(t *testing.T) {
	api := new(MockS3API)
	store := NewS3Store(api, nil)

	for _, key := range []string{"", "/abs/key", "bad\xff"} {
		_, err := store.PutObject(context.Background(), &PutObjectParams{Bucket: "bkt", Key: key})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	api.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}

func TestS3Store_PutObjectAcceptsDotsAndBackslashes(t *testing.T) {
	api := new(MockS3API)
	store := NewS3Store(api, nil)

	for _, key := range []string{"p/v1..2.txt", "p/dir/a\\b.txt"} {
		api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Key) == key
		})).Return(&s3.PutObjectOutput{ETag: aws.String(`"e"`)}, nil).Once()

		resp, err := store.PutObject(context.Background(), &PutObjectParams{Bucket: "bkt", Key: key})
		require.NoError(t, err)
		assert.Equal(t, key, resp.Key)
	}
	api.AssertExpectations(t)
}

func TestS3Store_PresignGet(t *testing.T) {
	presigner := new(MockPresigner)
	store := NewS3Store(new(MockS3API), presigner)
	ctx := context.Background()

	presigner.On("PresignGetObject", ctx, mock.Anything, 15*time.Minute).
		Return(&v4.PresignedHTTPRequest{URL: "https://example.com/bkt/a?sig"}, nil)

	url, err := store.PresignGet(ctx, "bkt", "a", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/bkt/a?sig", url)

	_, err = store.PresignGet(ctx, "bkt", "a", 0)
	assert.Error(t, err)
	_, err = store.PresignGet(ctx, "bkt", "a", 8*24*time.Hour)
	assert.Error(t, err)
	presigner.AssertNumberOfCalls(t, "PresignGetObject", 1)
}

func TestWrapErr(t *testing.T) {
	assert.Nil(t, wrapErr("op", nil))

	plain := errors.New("connection reset")
	err := wrapErr("list objects", plain)
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, "list objects: connection reset", err.Error())

	err = wrapErr("list objects", &types.NoSuchBucket{})
	assert.ErrorIs(t, err, ErrBucketNotFound)
}
