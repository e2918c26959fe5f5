package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/bucketsync/internal/blob"
	"github.com/spf13/cobra"
)

const defaultPresignTTL = time.Hour

func init() {
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newPresignCmd())
}

type listing struct {
	Entries []blob.RemoteEntry
	Folders []string
}

// listObjects pages through a prefix. Without recursive, keys are grouped by "/".
// A non empty match keeps only keys (and folders) matching the doublestar glob.
func listObjects(ctx context.Context, store blob.Store, bucket, prefix string, recursive bool, match string) (*listing, error) {
	if match != "" && !doublestar.ValidatePattern(match) {
		return nil, fmt.Errorf("invalid pattern %q", match)
	}

	params := &blob.ListObjectsParams{Bucket: bucket, Prefix: prefix}
	if !recursive {
		params.Delimiter = "/"
	}

	out := &listing{}
	for {
		page, err := store.ListObjects(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Entries {
			if matchKey(match, entry.Key) {
				out.Entries = append(out.Entries, entry)
			}
		}
		for _, folder := range page.CommonPrefixes {
			if matchKey(match, folder) {
				out.Folders = append(out.Folders, folder)
			}
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			return out, nil
		}
		params.ContinuationToken = page.NextContinuationToken
	}
}

func matchKey(pattern, key string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := doublestar.Match(pattern, key)
	return ok
}

func newLsCmd() *cobra.Command {
	var match string
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls BUCKET [PREFIX]",
		Short: "List objects in a bucket",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}

			res, err := listObjects(cmd.Context(), store, args[0], prefix, recursive, match)
			if err != nil {
				return err
			}
			if len(res.Entries) == 0 && len(res.Folders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no objects"))
				return nil
			}

			rows := make([][]string, 0, len(res.Folders)+len(res.Entries))
			for _, folder := range res.Folders {
				rows = append(rows, []string{cyan.Render(folder), "DIR", ""})
			}
			for _, entry := range res.Entries {
				rows = append(rows, []string{entry.Key, formatSize(entry.Size), formatTime(entry.LastModified)})
			}
			renderTable(cmd.OutOrStdout(), []string{"KEY", "SIZE", "MODIFIED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&match, "match", "m", "", "only keys matching this glob, e.g. 'photos/**/*.jpg'")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list every key below the prefix")
	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm BUCKET KEY...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			res, err := store.DeleteObjects(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			for _, keyErr := range res.Errors {
				printWarn(cmd.ErrOrStderr(), "%s: %s", keyErr.Key, keyErr.Message)
			}
			printSuccess(cmd.OutOrStdout(), "deleted %d object(s)", res.Deleted)
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d object(s) could not be deleted", len(res.Errors))
			}
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir BUCKET KEY",
		Short: "Create a folder marker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}
			if err := blob.CreateFolder(cmd.Context(), store, args[0], args[1]); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "folder %s created", bold.Render(args[1]))
			return nil
		},
	}
}

// downloadPath is where `get` writes key. A directory destination keeps the key's base name.
func downloadPath(key, dest string) string {
	name := path.Base(key)
	if dest == "" {
		return name
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, name)
	}
	return dest
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get BUCKET KEY [DEST]",
		Short: "Download an object",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			dest := ""
			if len(args) == 3 {
				dest = args[2]
			}
			target := downloadPath(args[1], dest)
			if _, err := blob.DownloadTo(cmd.Context(), store, args[0], args[1], target); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "%s → %s", args[1], target)
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var prefix, key string

	cmd := &cobra.Command{
		Use:   "put BUCKET PATH...",
		Short: "Upload files or a folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			bucket, paths := args[0], args[1:]
			n, err := upload(cmd.Context(), store, bucket, prefix, key, paths)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "uploaded %d file(s) to %s", n, bucket)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix for the uploaded files")
	cmd.Flags().StringVar(&key, "key", "", "exact key, only with a single file")
	return cmd
}

func upload(ctx context.Context, store blob.Store, bucket, prefix, key string, paths []string) (int, error) {
	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return 0, err
		}
		if info.IsDir() {
			if key != "" {
				return 0, errors.New("--key cannot be used with a folder")
			}
			return blob.UploadFolder(ctx, store, bucket, prefix, paths[0])
		}
		if key != "" {
			if _, err := blob.UploadFile(ctx, store, bucket, key, paths[0]); err != nil {
				return 0, err
			}
			return 1, nil
		}
	} else if key != "" {
		return 0, errors.New("--key needs exactly one file")
	}
	return blob.UploadFiles(ctx, store, bucket, prefix, paths)
}

func newPreviewCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "preview BUCKET KEY",
		Short: "Show an object's content type and content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			preview, err := blob.GetPreview(cmd.Context(), store, args[0], args[1])
			if err != nil {
				return err
			}
			if !raw {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", bold.Render(preview.Key), lightGray.Render(preview.ContentType), formatSize(preview.Size))
				fmt.Fprintln(cmd.OutOrStdout(), preview.Base64)
				return nil
			}

			data, err := base64.StdEncoding.DecodeString(preview.Base64)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "write the decoded content instead of base64")
	return cmd
}

func newPresignCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "presign BUCKET KEY",
		Short: "Print a time limited download url",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			url, err := store.PresignGet(cmd.Context(), args[0], args[1], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", defaultPresignTTL, "how long the url stays valid")
	return cmd
}
