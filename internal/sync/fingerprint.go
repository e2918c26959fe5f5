package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const digestChunkSize = 8192

// LocalDigest returns the lowercase hex md5 of a file, read in fixed size chunks.
func LocalDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	hasher := md5.New()
	buf := make([]byte, digestChunkSize)
	if _, err := io.CopyBuffer(hasher, onlyReader{f}, buf); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// onlyReader hides WriterTo so CopyBuffer really uses the chunk buffer.
type onlyReader struct {
	io.Reader
}

// NormalizeRemoteTag strips the quotes S3 puts around entity tags.
func NormalizeRemoteTag(tag string) string {
	return strings.Trim(strings.TrimSpace(tag), `"`)
}

// IsMultipartTag reports whether a tag was produced by a multipart upload ("<md5>-<parts>").
// Such tags are not a content hash of the whole object.
func IsMultipartTag(tag string) bool {
	return strings.Contains(NormalizeRemoteTag(tag), "-")
}

// ContentsEqual compares a local digest with a remote entity tag. A multipart tag never
// compares equal, so those objects are always transferred again rather than risking a
// skipped change.
func ContentsEqual(localDigest, remoteTag string) bool {
	if IsMultipartTag(remoteTag) {
		return false
	}
	tag := NormalizeRemoteTag(remoteTag)
	if tag == "" || localDigest == "" {
		return false
	}
	return strings.EqualFold(localDigest, tag)
}
