package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

const (
	digestA = "0cc175b9c0f1b6a831c399e269772661"
	digestB = "92eb5ffee6ae2fec3ad71c777531578f"
)

func TestDecideAction(t *testing.T) {
	tests := []struct {
		name   string
		local  *string
		remote *string
		want   Action
	}{
		{"equal", ptr(digestA), ptr(`"` + digestA + `"`), ActionSkip},
		{"differ", ptr(digestA), ptr(`"` + digestB + `"`), ActionUpload},
		{"local only", ptr(digestA), nil, ActionUpload},
		{"remote only", nil, ptr(digestB), ActionDownload},
		{"neither", nil, nil, ActionSkip},
		{"multipart", ptr(digestA), ptr(digestA + "-4"), ActionUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideAction(tt.local, tt.remote))
		})
	}
}

func TestDirectionDecide(t *testing.T) {
	tests := []struct {
		name   string
		dir    Direction
		local  *string
		remote *string
		want   Action
	}{
		{"push equal", LocalToRemote, ptr(digestA), ptr(digestA), ActionSkip},
		{"push differ", LocalToRemote, ptr(digestA), ptr(digestB), ActionUpload},
		{"push local only", LocalToRemote, ptr(digestA), nil, ActionUpload},
		{"push remote only", LocalToRemote, nil, ptr(digestB), ActionSkip},
		{"pull equal", RemoteToLocal, ptr(digestA), ptr(digestA), ActionSkip},
		{"pull differ", RemoteToLocal, ptr(digestA), ptr(digestB), ActionDownload},
		{"pull remote only", RemoteToLocal, nil, ptr(digestB), ActionDownload},
		{"pull local only", RemoteToLocal, ptr(digestA), nil, ActionSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.dir.Decide(tt.local, tt.remote)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, ActionDeleteLocal, got)
			assert.NotEqual(t, ActionDeleteRemote, got)
		})
	}
}

func TestParseDirection(t *testing.T) {
	dir, err := ParseDirection("local_to_remote")
	require.NoError(t, err)
	assert.Equal(t, LocalToRemote, dir)

	dir, err = ParseDirection("remote_to_local")
	require.NoError(t, err)
	assert.Equal(t, RemoteToLocal, dir)

	_, err = ParseDirection("both")
	assert.Error(t, err)
}

func TestSyncResultAdd(t *testing.T) {
	total := SyncResult{Uploaded: 1, Skipped: 2}
	total.Add(SyncResult{Uploaded: 2, Downloaded: 3, Skipped: 1})
	assert.Equal(t, SyncResult{Uploaded: 3, Downloaded: 3, Skipped: 3}, total)
}
