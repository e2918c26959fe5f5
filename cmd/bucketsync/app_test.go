package main

import (
	"context"
	"testing"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/blob/blobtest"
	"github.com/openmined/bucketsync/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, defaultProfile string, names ...string) (*app, map[string]*profile.Profile) {
	t.Helper()

	cfg := &Config{Dir: t.TempDir(), DaemonAddr: "127.0.0.1:1", Profile: defaultProfile}
	factory := func(ctx context.Context, p *profile.Profile) (blob.Store, error) {
		return blobtest.NewMemoryStore(p.Name), nil
	}
	a, err := newApp(cfg, withStoreFactory(factory))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	created := map[string]*profile.Profile{}
	for _, name := range names {
		p, err := a.profiles.Create(profile.Profile{
			Name:            name,
			Provider:        profile.ProviderAWS,
			AccessKeyID:     "AK",
			SecretAccessKey: "SK",
		})
		require.NoError(t, err)
		created[name] = p
	}
	return a, created
}

func TestApp_ResolveProfile(t *testing.T) {
	tests := []struct {
		name     string
		profiles []string
		config   string
		ref      string
		want     string
		wantErr  error
	}{
		{name: "no profiles", wantErr: errNoProfile},
		{name: "single profile is the default", profiles: []string{"only"}, want: "only"},
		{name: "several profiles need a choice", profiles: []string{"a", "b"}, wantErr: errNoProfile},
		{name: "configured default", profiles: []string{"a", "b"}, config: "b", want: "b"},
		{name: "reference wins over config", profiles: []string{"a", "b"}, config: "b", ref: "a", want: "a"},
		{name: "unknown reference", profiles: []string{"a"}, ref: "zzz", wantErr: profile.ErrProfileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, tt.config, tt.profiles...)
			p, err := a.resolveProfile(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestApp_StoreForAndLocator(t *testing.T) {
	a, created := newTestApp(t, "", "first", "second")

	store, err := a.StoreFor(context.Background(), created["second"].ID)
	require.NoError(t, err)
	buckets, err := store.(blob.Store).ListBuckets(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "second", buckets[0].Name)

	// names resolve too, and the cache hands back the same store
	again, err := a.StoreFor(context.Background(), "second")
	require.NoError(t, err)
	assert.Same(t, store, again)

	_, err = a.StoreFor(context.Background(), "")
	assert.ErrorIs(t, err, errNoProfile)

	loc, err := a.locator("first", "bucket", "prefix")
	require.NoError(t, err)
	assert.Equal(t, created["first"].ID, loc.ProfileID)

	_, err = a.locator("first", "", "prefix")
	assert.Error(t, err)
}

func TestApp_HistoryOnlyWhenRequested(t *testing.T) {
	cfg := &Config{Dir: t.TempDir(), DaemonAddr: "127.0.0.1:1", HistoryEnabled: true}

	a, err := newApp(cfg)
	require.NoError(t, err)
	assert.Nil(t, a.history)

	b, err := newApp(cfg, withHistory())
	require.NoError(t, err)
	defer b.Close()
	assert.NotNil(t, b.history)

	cfg.HistoryEnabled = false
	c, err := newApp(cfg, withHistory())
	require.NoError(t, err)
	assert.Nil(t, c.history)
}
