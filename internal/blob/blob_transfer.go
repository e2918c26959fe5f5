package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/bucketsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	MaxPreviewSize = 10 << 20
	uploadWorkers  = 8
)

// UploadFile uploads a local file to bucket/key.
func UploadFile(ctx context.Context, store Store, bucket, key, path string) (*PutObjectResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return store.PutObject(ctx, &PutObjectParams{
		Bucket:      bucket,
		Key:         key,
		Body:        f,
		Size:        info.Size(),
		ContentType: DetectFileContentType(key, path),
	})
}

// CreateFolder puts an empty folder marker at key + "/".
func CreateFolder(ctx context.Context, store Store, bucket, key string) error {
	key = strings.TrimRight(key, "/") + "/"
	if !ValidateKey(key) {
		return fmt.Errorf("create folder %q: %w", key, ErrInvalidKey)
	}
	_, err := store.PutObject(ctx, &PutObjectParams{
		Bucket: bucket,
		Key:    key,
		Body:   bytes.NewReader(nil),
		Size:   0,
	})
	return err
}

// UploadFiles uploads each path under prefix using the file's base name as the key.
func UploadFiles(ctx context.Context, store Store, bucket, prefix string, paths []string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)

	for _, p := range paths {
		key := JoinKey(prefix, filepath.Base(p))
		g.Go(func() error {
			_, err := UploadFile(gctx, store, bucket, key, p)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(paths), nil
}

// UploadFolder uploads every regular file below dir, keyed by prefix plus the path relative to dir.
func UploadFolder(ctx context.Context, store Store, bucket, prefix, dir string) (int, error) {
	start := time.Now()

	type job struct{ key, path string }
	var jobs []job
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := utils.SlashRel(dir, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, job{key: JoinKey(prefix, rel), path: path})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)
	for _, j := range jobs {
		g.Go(func() error {
			_, err := UploadFile(gctx, store, bucket, j.key, j.path)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Debug("upload folder", "bucket", bucket, "prefix", prefix, "files", len(jobs), "took", time.Since(start))
	return len(jobs), nil
}

// DownloadTo writes an object to path atomically, creating parent directories.
// It returns the md5 digest of the bytes written.
func DownloadTo(ctx context.Context, store Store, bucket, key, path string) (string, error) {
	resp, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	defer drain(resp.Body)

	_, digest, err := utils.WriteFileAtomic(path, resp.Body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return digest, nil
}

// GetPreview returns an object base64 encoded with its content type.
// Objects larger than MaxPreviewSize are refused.
func GetPreview(ctx context.Context, store Store, bucket, key string) (*Preview, error) {
	meta, err := store.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if meta.Length > MaxPreviewSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPreviewTooLarge, meta.Length)
	}

	resp, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPreviewSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) > MaxPreviewSize {
		return nil, ErrPreviewTooLarge
	}

	return &Preview{
		Key:         key,
		ContentType: DetectContentType(key, data),
		Base64:      base64.StdEncoding.EncodeToString(data),
		Size:        int64(len(data)),
	}, nil
}
