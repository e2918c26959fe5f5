package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/bucketsync/internal/controlplane"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addRootFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestReadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"dir": "`+filepath.ToSlash(dir)+`",
		"profile": "work",
		"daemon": {"addr": "127.0.0.1:9999", "token": "from-file"},
		"watch": {"auto_sync": true},
		"history": {"enabled": false}
	}`), 0o644))

	v := viper.New()
	require.NoError(t, readConfig(v, configCmd(t, "--config", path)))

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, "127.0.0.1:9999", cfg.DaemonAddr)
	assert.Equal(t, "from-file", cfg.DaemonToken)
	assert.True(t, cfg.AutoSync)
	assert.False(t, cfg.HistoryEnabled)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.DaemonURL())
}

func TestReadConfig_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	v := viper.New()
	require.NoError(t, readConfig(v, configCmd(t, "--config", path)))

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, defaultDir, cfg.Dir)
	assert.Equal(t, controlplane.DefaultAddr, cfg.DaemonAddr)
	assert.False(t, cfg.AutoSync)
	assert.True(t, cfg.HistoryEnabled)
}

func TestReadConfig_EnvAndFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"profile": "file", "daemon": {"token": "from-file"}}`), 0o644))
	t.Setenv("BUCKETSYNC_DAEMON_TOKEN", "from-env")

	v := viper.New()
	require.NoError(t, readConfig(v, configCmd(t, "--config", path, "--profile", "flag")))

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "flag", cfg.Profile)
	assert.Equal(t, "from-env", cfg.DaemonToken)
}

func TestReadConfig_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	err := readConfig(viper.New(), configCmd(t, "--config", path))
	assert.ErrorContains(t, err, "config read")
}

func TestConfig_DaemonURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:7938", "http://127.0.0.1:7938"},
		{":7938", "http://127.0.0.1:7938"},
		{"localhost:80", "http://localhost:80"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := &Config{Dir: "/tmp", DaemonAddr: tt.addr}
			assert.Equal(t, tt.want, cfg.DaemonURL())
		})
	}
}
