package blob

import (
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Match: starts with one or more / OR contains \ OR contains ..
var regexForbiddenPatterns = regexp.MustCompile(`^/+|\\+|\.\.`)

// ValidateKey reports whether a user supplied key is safe both as an object key and as
// a local relative path. Keys found in a bucket go through ValidObjectKey and LocalRelPath.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 {
		return false
	} else if key == "." || key == ".." {
		return false
	}

	if regexForbiddenPatterns.MatchString(key) {
		return false
	}

	return utf8.ValidString(key)
}

// ValidObjectKey reports whether key is acceptable to S3 at all.
func ValidObjectKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 || strings.HasPrefix(key, "/") {
		return false
	}
	return utf8.ValidString(key)
}

// LocalRelPath reports whether rel, a slash separated path relative to a local root,
// stays inside that root. Names like "v1..2.txt" are fine, "../x" is not.
func LocalRelPath(rel string) bool {
	if rel == "" || !utf8.ValidString(rel) {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(rel))
}

// ListPrefix is the listing prefix for a sync root. A non-empty prefix always ends at a
// "/" so that "docs" does not also match "docs-old/".
func ListPrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// JoinKey joins a prefix and a slash separated relative path into an object key.
func JoinKey(prefix, rel string) string {
	prefix = strings.TrimRight(prefix, "/")
	rel = strings.TrimLeft(rel, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// RelKey strips prefix from key and returns the remaining relative path.
func RelKey(prefix, key string) string {
	rel := strings.TrimPrefix(key, prefix)
	return strings.TrimLeft(rel, "/")
}

// DetectContentType guesses a content type from the key extension and falls back to
// sniffing head when the extension is unknown.
func DetectContentType(key string, head []byte) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	if len(head) > 0 {
		return mimetype.Detect(head).String()
	}
	return "application/octet-stream"
}

// DetectFileContentType is DetectContentType for a file on disk.
func DetectFileContentType(key, filePath string) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func isTextLike(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml", ".toml", ".md", ".log":
		return true
	}
	return false
}
