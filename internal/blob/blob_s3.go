package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/openmined/bucketsync/internal/profile"
)

const (
	// S3 accepts at most this many keys per DeleteObjects request
	deleteBatchSize = 1000
	maxPresignTTL   = 7 * 24 * time.Hour
)

// S3Store implements Store on any S3 compatible service. It carries no per request
// state and is safe to share between goroutines.
type S3Store struct {
	client    S3API
	presigner S3Presigner
}

func NewS3Store(client S3API, presigner S3Presigner) *S3Store {
	return &S3Store{
		client:    client,
		presigner: presigner,
	}
}

// NewS3StoreFromProfile builds an S3 client from a connection profile.
func NewS3StoreFromProfile(ctx context.Context, p *profile.Profile) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	region := p.Region
	if region == "" {
		region = profile.DefaultRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, ""),
		),
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if p.SignatureVersion == profile.SignatureV2 {
		slog.Warn("signature v2 is not supported by the s3 client, signing with v4", "profile", p.Name)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if p.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.Endpoint)
		}
		o.UsePathStyle = p.UsePathStyle()
		if p.Provider != profile.ProviderAWS {
			// most S3 compatible providers reject the flexible checksum trailers
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return NewS3Store(client, s3.NewPresignClient(client)), nil
}

// ===================================================================================================

func (s *S3Store) ListBuckets(ctx context.Context) ([]*BucketInfo, error) {
	resp, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, wrapErr("list buckets", err)
	}

	buckets := make([]*BucketInfo, 0, len(resp.Buckets))
	for _, b := range resp.Buckets {
		buckets = append(buckets, &BucketInfo{
			Name:         aws.ToString(b.Name),
			CreationTime: b.CreationDate,
		})
	}
	return buckets, nil
}

func (s *S3Store) CreateBucket(ctx context.Context, params *CreateBucketParams) error {
	if params.Name == "" {
		return ErrInvalidBucketArg
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(params.Name),
	}
	// us-east-1 is the implicit location and rejects an explicit constraint
	if params.Region != "" && params.Region != profile.DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(params.Region),
		}
	}
	if params.Public {
		input.ACL = types.BucketCannedACLPublicRead
	}

	_, err := s.client.CreateBucket(ctx, input)
	return wrapErr("create bucket", err)
}

// ===================================================================================================

func (s *S3Store) ListObjects(ctx context.Context, params *ListObjectsParams) (*ListObjectsResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(params.Bucket),
	}
	if params.Prefix != "" {
		input.Prefix = aws.String(params.Prefix)
	}
	if params.ContinuationToken != "" {
		input.ContinuationToken = aws.String(params.ContinuationToken)
	}
	if params.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(params.MaxKeys)
	}
	if params.Delimiter != "" {
		input.Delimiter = aws.String(params.Delimiter)
	}

	resp, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapErr("list objects", err)
	}

	result := &ListObjectsResult{
		Entries:               make([]RemoteEntry, 0, len(resp.Contents)),
		CommonPrefixes:        make([]string, 0, len(resp.CommonPrefixes)),
		NextContinuationToken: aws.ToString(resp.NextContinuationToken),
		IsTruncated:           aws.ToBool(resp.IsTruncated),
	}
	for _, obj := range resp.Contents {
		result.Entries = append(result.Entries,
			NewRemoteEntry(aws.ToString(obj.Key), aws.ToInt64(obj.Size), obj.LastModified, aws.ToString(obj.ETag)),
		)
	}
	for _, cp := range resp.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return result, nil
}

// ===================================================================================================

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (*GetObjectResponse, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapErr("get object", err)
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Store) HeadObject(ctx context.Context, bucket, key string) (*ObjectMetadata, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapErr("head object", err)
	}

	return &ObjectMetadata{
		ContentType:  aws.ToString(resp.ContentType),
		Length:       aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		LastModified: resp.LastModified,
	}, nil
}

// ===================================================================================================

func (s *S3Store) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidObjectKey(params.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, params.Key)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(params.Bucket),
		Key:           aws.String(params.Key),
		Body:          params.Body,
		ContentLength: aws.Int64(params.Size),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}
	if params.ContentMD5 != "" {
		input.ContentMD5 = aws.String(params.ContentMD5)
	}

	resp, err := s.client.PutObject(ctx, input)
	if err != nil {
		return nil, wrapErr("put object", err)
	}

	return &PutObjectResponse{
		Key:     params.Key,
		ETag:    aws.ToString(resp.ETag),
		Version: aws.ToString(resp.VersionId),
	}, nil
}

// ===================================================================================================

func (s *S3Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return wrapErr("delete object", err)
}

func (s *S3Store) DeleteObjects(ctx context.Context, bucket string, keys []string) (*DeleteResult, error) {
	result := &DeleteResult{Errors: []KeyError{}}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		resp, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(false)},
		})
		if err != nil {
			return nil, wrapErr("delete objects", err)
		}

		result.Deleted += len(resp.Deleted)
		for _, e := range resp.Errors {
			result.Errors = append(result.Errors, KeyError{
				Key:     aws.ToString(e.Key),
				Message: aws.ToString(e.Message),
			})
		}
	}

	return result, nil
}

// ===================================================================================================

func (s *S3Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > maxPresignTTL {
		return "", fmt.Errorf("presign ttl must be within (0, %s]", maxPresignTTL)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", wrapErr("presign get", err)
	}
	return req.URL, nil
}

// ===================================================================================================

// drain discards what is left of body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

var _ Store = (*S3Store)(nil)
