package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/blob/blobtest"
	"github.com/openmined/bucketsync/internal/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const testBucket = "test-bucket"

// cliEnv is an isolated config dir plus an in-memory object store behind every profile.
type cliEnv struct {
	dir        string
	configPath string
	store      *blobtest.MemoryStore
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	config := `{"dir": "` + filepath.ToSlash(dir) + `", "daemon": {"addr": "127.0.0.1:1"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	store := blobtest.NewMemoryStore(testBucket)
	prevFactory := appStoreFactory
	appStoreFactory = func(ctx context.Context, p *profile.Profile) (blob.Store, error) {
		return store, nil
	}

	viper.Reset()
	t.Cleanup(func() {
		appStoreFactory = prevFactory
		viper.Reset()
	})

	return &cliEnv{dir: dir, configPath: configPath, store: store}
}

// newTestRoot mirrors rootCmd with fresh subcommands so flag state does not leak between runs.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use: "bucketsync",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addRootFlags(root)
	root.AddCommand(
		newVersionCmd(),
		newProfileCmd(),
		newBucketsCmd(),
		newLsCmd(),
		newRmCmd(),
		newMkdirCmd(),
		newGetCmd(),
		newPutCmd(),
		newPreviewCmd(),
		newPresignCmd(),
		newSyncCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newSessionCmd(),
	)
	return root
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(context.Background(), &bytes.Buffer{}, args...)
}

func (e *cliEnv) runContext(ctx context.Context, out interface{ Write([]byte) (int, error) }, args ...string) (string, error) {
	viper.Reset()
	root := newTestRoot()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--config=" + e.configPath}, args...))
	err := root.ExecuteContext(ctx)
	if buf, ok := out.(*bytes.Buffer); ok {
		return buf.String(), err
	}
	return "", err
}

// mustRun fails the test when the command errors.
func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (e *cliEnv) addProfile(t *testing.T, name string) {
	t.Helper()
	e.mustRun(t, "profile", "add", name,
		"--provider", "min_i_o",
		"--endpoint", "http://localhost:9000",
		"--access-key", "AKIDEXAMPLE",
		"--secret-key", "secret",
	)
}

// syncBuffer is a bytes.Buffer safe for a command writing in the background.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
