package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/bucketsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const IgnoreFileName = ".bucketsyncignore"

var defaultIgnoreLines = []string{
	// our own partial downloads
	"*.bsync.tmp.*",
	// editors
	"*.swp",
	"*~",
	".~lock.*",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList matches slash separated paths relative to a sync root against the default
// rules plus the root's .bucketsyncignore file.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.Load()
	return il
}

// Load (re)compiles the rules. An unreadable ignore file falls back to the defaults.
func (il *IgnoreList) Load() {
	ignorePath := filepath.Join(il.baseDir, IgnoreFileName)
	lines := append([]string(nil), defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		custom, err := readIgnoreFile(ignorePath)
		if err != nil {
			slog.Warn("ignore file unreadable", "path", ignorePath, "error", err)
		} else {
			lines = append(lines, custom...)
			slog.Debug("ignore file loaded", "path", ignorePath, "rules", len(custom))
		}
	}

	il.ignore = gitignore.CompileIgnoreLines(lines...)
}

// ShouldIgnore accepts either a path relative to the root or an absolute path inside it.
func (il *IgnoreList) ShouldIgnore(path string) bool {
	if filepath.IsAbs(path) {
		rel, err := utils.SlashRel(il.baseDir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return false
		}
		path = rel
	}
	return il.ignore.MatchesPath(filepath.ToSlash(path))
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
