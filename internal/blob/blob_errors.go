package blob

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrObjectNotFound   = errors.New("object not found")
	ErrBucketNotFound   = errors.New("bucket not found")
	ErrPreviewTooLarge  = errors.New("object too large to preview")
	ErrInvalidBucketArg = errors.New("bucket name required")
)

// wrapErr attaches the operation name and maps well known store errors to sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("%s: %w: %w", op, ErrObjectNotFound, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%s: %w: %w", op, ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w: %w", op, ErrObjectNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%s: %w: %w", op, ErrBucketNotFound, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
