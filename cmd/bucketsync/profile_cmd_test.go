package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/bucketsync/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "profile", "list")
	assert.Contains(t, out, "no profiles")

	env.addProfile(t, "minio")
	out = env.mustRun(t, "profile", "list")
	assert.Contains(t, out, "minio")
	assert.Contains(t, out, "min_i_o")
	assert.Contains(t, out, "AKID*****")
	assert.NotContains(t, out, "secret")

	_, err := env.run(t, "profile", "add", "minio", "--provider", "aws_s3", "--access-key", "a", "--secret-key", "b")
	assert.ErrorIs(t, err, profile.ErrDuplicateName)

	_, err = env.run(t, "profile", "add", "bad", "--provider", "nope", "--access-key", "a", "--secret-key", "b")
	assert.ErrorContains(t, err, "unknown provider")

	out = env.mustRun(t, "profile", "export", "--format", "yaml")
	assert.Contains(t, out, "name: minio")

	exported := filepath.Join(t.TempDir(), "profiles.yaml")
	env.mustRun(t, "profile", "export", "--format", "yaml", "--out", exported)

	out = env.mustRun(t, "profile", "rm", "minio")
	assert.Contains(t, out, "removed")
	out = env.mustRun(t, "profile", "list")
	assert.Contains(t, out, "no profiles")

	_, err = env.run(t, "profile", "rm", "minio")
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)

	out = env.mustRun(t, "profile", "import", exported)
	assert.Contains(t, out, "imported 1 profile(s)")
	out = env.mustRun(t, "profile", "list")
	assert.Contains(t, out, "minio")
}

func TestProfileAdd_SecretFromEnv(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("BUCKETSYNC_SECRET_ACCESS_KEY", "env-secret")

	env.mustRun(t, "profile", "add", "aws", "--access-key", "AKIDEXAMPLE")

	store, err := profile.NewStoreInDir(env.dir)
	require.NoError(t, err)
	p, err := store.Resolve("aws")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", p.SecretAccessKey)
	assert.Equal(t, profile.ProviderAWS, p.Provider)
	assert.Equal(t, profile.DefaultRegion, p.Region)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFormatFromExt(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"profiles.yaml", "yaml"},
		{"profiles.YML", "yaml"},
		{"profiles.json", "json"},
		{"profiles", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, formatFromExt(tt.path))
		})
	}
}
