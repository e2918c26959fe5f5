package sync

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/utils"
)

// ListPageSize is the number of keys requested per listing call.
const ListPageSize = 1000

// Reconciler runs one-way passes between a local directory and a bucket prefix.
// A pass either completes and returns its counters or stops at the first error.
type Reconciler struct {
	store ObjectStore
}

func NewReconciler(store ObjectStore) *Reconciler {
	return &Reconciler{store: store}
}

// LocalToRemote uploads every local file whose content differs from the remote object at
// the same key. Remote objects without a local counterpart are left alone.
func (r *Reconciler) LocalToRemote(ctx context.Context, loc Locator, localRoot string) (SyncResult, error) {
	start := time.Now()
	ignore := NewIgnoreList(localRoot)

	locals, err := scanLocal(localRoot, ignore)
	if err != nil {
		return SyncResult{}, err
	}

	remote, err := listRemote(ctx, r.store, loc)
	if err != nil {
		return SyncResult{}, err
	}
	byKey := make(map[string]*blob.RemoteEntry, len(remote))
	for i := range remote {
		byKey[remote[i].Key] = &remote[i]
	}

	plan := make([]*PlanEntry, 0, len(locals))
	for i := range locals {
		local := &locals[i]
		entry := &PlanEntry{RelativePath: local.RelativePath, local: local}

		digest, err := LocalDigest(local.AbsolutePath)
		if err != nil {
			return SyncResult{}, err
		}
		entry.LocalFingerprint = &digest

		if re, ok := byKey[blob.JoinKey(loc.Prefix, local.RelativePath)]; ok {
			entry.remote = re
			entry.RemoteTag = &re.ETag
		}
		entry.Action = LocalToRemote.Decide(entry.LocalFingerprint, entry.RemoteTag)
		plan = append(plan, entry)
	}

	result, err := r.execute(ctx, loc, localRoot, plan)
	if err != nil {
		return SyncResult{}, err
	}

	slog.Info("sync pass", "direction", LocalToRemote, "bucket", loc.Bucket, "prefix", loc.Prefix,
		"local", localRoot, "uploaded", result.Uploaded, "skipped", result.Skipped, "took", time.Since(start))
	return result, nil
}

// RemoteToLocal downloads every remote object whose content differs from the local file at
// the same relative path. Local files without a remote counterpart are left alone.
func (r *Reconciler) RemoteToLocal(ctx context.Context, loc Locator, localRoot string) (SyncResult, error) {
	start := time.Now()

	if err := os.MkdirAll(localRoot, 0o755); err != nil {
		return SyncResult{}, fmt.Errorf("%w: create %s: %w", ErrIO, localRoot, err)
	}
	ignore := NewIgnoreList(localRoot)

	remote, err := listRemote(ctx, r.store, loc)
	if err != nil {
		return SyncResult{}, err
	}

	plan := make([]*PlanEntry, 0, len(remote))
	for i := range remote {
		re := &remote[i]
		if re.IsFolderMarker {
			continue
		}

		rel := blob.RelKey(loc.Prefix, re.Key)
		if !blob.LocalRelPath(rel) {
			slog.Warn("sync skipping key outside local root", "bucket", loc.Bucket, "key", re.Key)
			continue
		}
		if ignore.ShouldIgnore(rel) {
			continue
		}

		local := &LocalFileRecord{RelativePath: rel, AbsolutePath: filepath.Join(localRoot, filepath.FromSlash(rel))}
		entry := &PlanEntry{RelativePath: rel, RemoteTag: &re.ETag, local: local, remote: re}

		if utils.FileExists(local.AbsolutePath) {
			digest, err := LocalDigest(local.AbsolutePath)
			if err != nil {
				return SyncResult{}, err
			}
			entry.LocalFingerprint = &digest
		}
		entry.Action = RemoteToLocal.Decide(entry.LocalFingerprint, entry.RemoteTag)
		plan = append(plan, entry)
	}

	result, err := r.execute(ctx, loc, localRoot, plan)
	if err != nil {
		return SyncResult{}, err
	}

	slog.Info("sync pass", "direction", RemoteToLocal, "bucket", loc.Bucket, "prefix", loc.Prefix,
		"local", localRoot, "downloaded", result.Downloaded, "skipped", result.Skipped, "took", time.Since(start))
	return result, nil
}

func (r *Reconciler) execute(ctx context.Context, loc Locator, localRoot string, plan []*PlanEntry) (SyncResult, error) {
	var result SyncResult
	for _, entry := range plan {
		if err := ctx.Err(); err != nil {
			return SyncResult{}, err
		}

		switch entry.Action {
		case ActionSkip:
			result.Skipped++
		case ActionUpload:
			if err := r.upload(ctx, loc, entry); err != nil {
				return SyncResult{}, err
			}
			result.Uploaded++
		case ActionDownload:
			if err := r.download(ctx, loc, entry); err != nil {
				return SyncResult{}, err
			}
			result.Downloaded++
		default:
			return SyncResult{}, fmt.Errorf("unsupported action %s for %s", entry.Action, entry.RelativePath)
		}
	}
	return result, nil
}

func (r *Reconciler) upload(ctx context.Context, loc Locator, entry *PlanEntry) error {
	key := blob.JoinKey(loc.Prefix, entry.RelativePath)

	f, err := os.Open(entry.local.AbsolutePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, entry.local.AbsolutePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrIO, entry.local.AbsolutePath, err)
	}

	params := &blob.PutObjectParams{
		Bucket:      loc.Bucket,
		Key:         key,
		Body:        f,
		Size:        info.Size(),
		ContentType: blob.DetectFileContentType(key, entry.local.AbsolutePath),
	}
	if entry.LocalFingerprint != nil {
		if raw, err := hex.DecodeString(*entry.LocalFingerprint); err == nil {
			params.ContentMD5 = base64.StdEncoding.EncodeToString(raw)
		}
	}

	if _, err := r.store.PutObject(ctx, params); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	slog.Debug("sync upload", "key", key, "size", info.Size())
	return nil
}

func (r *Reconciler) download(ctx context.Context, loc Locator, entry *PlanEntry) error {
	resp, err := r.store.GetObject(ctx, loc.Bucket, entry.remote.Key)
	if err != nil {
		return fmt.Errorf("download %s: %w", entry.remote.Key, err)
	}
	defer resp.Body.Close()

	n, _, err := utils.WriteFileAtomic(entry.local.AbsolutePath, resp.Body)
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, entry.local.AbsolutePath, err)
	}
	slog.Debug("sync download", "key", entry.remote.Key, "size", n)
	return nil
}

// scanLocal walks root and returns every regular file not matched by ignore.
func scanLocal(root string, ignore *IgnoreList) ([]LocalFileRecord, error) {
	var records []LocalFileRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := utils.SlashRel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignore.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.ShouldIgnore(rel) {
			return nil
		}

		records = append(records, LocalFileRecord{RelativePath: rel, AbsolutePath: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: local root %s: %w", ErrIO, root, err)
		}
		return nil, fmt.Errorf("%w: scan %s: %w", ErrIO, root, err)
	}
	return records, nil
}

// listRemote follows continuation tokens until the listing is complete. Nothing is
// decided on a partial listing.
func listRemote(ctx context.Context, store ObjectStore, loc Locator) ([]blob.RemoteEntry, error) {
	var entries []blob.RemoteEntry
	token := ""
	for page := 1; ; page++ {
		res, err := store.ListObjects(ctx, &blob.ListObjectsParams{
			Bucket:            loc.Bucket,
			Prefix:            blob.ListPrefix(loc.Prefix),
			ContinuationToken: token,
			MaxKeys:           ListPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", loc, page, err)
		}
		entries = append(entries, res.Entries...)

		if !res.IsTruncated {
			return entries, nil
		}
		if res.NextContinuationToken == "" || res.NextContinuationToken == token {
			return nil, fmt.Errorf("list %s page %d: truncated listing without a new continuation token", loc, page)
		}
		token = res.NextContinuationToken
	}
}
