package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmined/bucketsync/internal/blob"
)

var (
	ErrIO            = errors.New("io error")
	ErrWatch         = errors.New("watch error")
	ErrNotFound      = errors.New("sync session not found")
	ErrAlreadyExists = errors.New("sync session already exists for path")
)

// ObjectStore is what the reconciler needs from a blob store.
type ObjectStore interface {
	ListObjects(ctx context.Context, params *blob.ListObjectsParams) (*blob.ListObjectsResult, error)
	GetObject(ctx context.Context, bucket, key string) (*blob.GetObjectResponse, error)
	PutObject(ctx context.Context, params *blob.PutObjectParams) (*blob.PutObjectResponse, error)
}

// StoreResolver returns the store for a profile.
type StoreResolver interface {
	StoreFor(ctx context.Context, profileID string) (ObjectStore, error)
}

// Locator points at a prefix inside a bucket reachable through a profile.
type Locator struct {
	ProfileID string `json:"profileId"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s", l.Bucket, l.Prefix)
}

type Direction string

const (
	LocalToRemote Direction = "local_to_remote"
	RemoteToLocal Direction = "remote_to_local"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case LocalToRemote, RemoteToLocal:
		return d, nil
	}
	return "", fmt.Errorf("invalid sync direction %q", s)
}

type Action string

const (
	ActionUpload       Action = "upload"
	ActionDownload     Action = "download"
	ActionSkip         Action = "skip"
	ActionDeleteLocal  Action = "delete_local"
	ActionDeleteRemote Action = "delete_remote"
)

// DecideAction picks the action for a path from what exists on each side.
// A nil pointer means the side has no file. Unequal contents favour the local copy.
func DecideAction(localFingerprint, remoteTag *string) Action {
	switch {
	case localFingerprint != nil && remoteTag != nil:
		if ContentsEqual(*localFingerprint, *remoteTag) {
			return ActionSkip
		}
		return ActionUpload
	case localFingerprint != nil:
		return ActionUpload
	case remoteTag != nil:
		return ActionDownload
	default:
		return ActionSkip
	}
}

// Decide narrows DecideAction to what a one-way pass may do. The source side wins a
// content mismatch and nothing is ever deleted.
func (d Direction) Decide(localFingerprint, remoteTag *string) Action {
	action := DecideAction(localFingerprint, remoteTag)
	switch d {
	case LocalToRemote:
		if action == ActionDownload {
			return ActionSkip
		}
	case RemoteToLocal:
		if remoteTag == nil {
			return ActionSkip
		}
		if action == ActionUpload {
			return ActionDownload
		}
	}
	return action
}

type LocalFileRecord struct {
	RelativePath string
	AbsolutePath string
}

type PlanEntry struct {
	RelativePath     string
	LocalFingerprint *string
	RemoteTag        *string
	Action           Action

	local  *LocalFileRecord
	remote *blob.RemoteEntry
}

type SyncResult struct {
	Uploaded   uint64 `json:"uploaded"`
	Downloaded uint64 `json:"downloaded"`
	Deleted    uint64 `json:"deleted"`
	Skipped    uint64 `json:"skipped"`
}

func (r *SyncResult) Add(other SyncResult) {
	r.Uploaded += other.Uploaded
	r.Downloaded += other.Downloaded
	r.Deleted += other.Deleted
	r.Skipped += other.Skipped
}

// SessionState is the externally visible state of a keep-in-sync session.
type SessionState struct {
	ID           string     `json:"id"`
	Locator      Locator    `json:"locator"`
	LocalPath    string     `json:"localPath"`
	IsActive     bool       `json:"isActive"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

// PassReport describes one finished reconciliation pass.
type PassReport struct {
	SessionID  string
	Locator    Locator
	LocalPath  string
	Direction  Direction
	Result     SyncResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// PassRecorder persists pass reports. Failures are logged by the caller and never fail a pass.
type PassRecorder interface {
	RecordPass(ctx context.Context, report *PassReport) error
}
