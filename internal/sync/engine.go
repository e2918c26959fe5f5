package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/bucketsync/internal/utils"
)

// StoreResolverFunc adapts a function to StoreResolver.
type StoreResolverFunc func(ctx context.Context, profileID string) (ObjectStore, error)

func (f StoreResolverFunc) StoreFor(ctx context.Context, profileID string) (ObjectStore, error) {
	return f(ctx, profileID)
}

// StaticStore resolves every profile to the same store.
func StaticStore(store ObjectStore) StoreResolver {
	return StoreResolverFunc(func(context.Context, string) (ObjectStore, error) {
		return store, nil
	})
}

type EngineOption func(*Engine)

// WithRecorder persists a report for every pass.
func WithRecorder(recorder PassRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// Engine runs reconciliation passes for any locator. It is safe for concurrent use.
type Engine struct {
	resolver StoreResolver
	recorder PassRecorder
}

func NewEngine(resolver StoreResolver, opts ...EngineOption) *Engine {
	e := &Engine{resolver: resolver}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncOnce runs a single pass in one direction.
func (e *Engine) SyncOnce(ctx context.Context, loc Locator, localPath string, dir Direction) (SyncResult, error) {
	path, err := utils.ResolvePath(localPath)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return e.runPass(ctx, "", loc, path, dir)
}

func (e *Engine) runPass(ctx context.Context, sessionID string, loc Locator, localPath string, dir Direction) (SyncResult, error) {
	startedAt := time.Now()
	result, err := e.pass(ctx, loc, localPath, dir)

	if e.recorder != nil {
		report := &PassReport{
			SessionID:  sessionID,
			Locator:    loc,
			LocalPath:  localPath,
			Direction:  dir,
			Result:     result,
			Err:        err,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		}
		// the pass may have been cancelled, the record should still land
		if rerr := e.recorder.RecordPass(context.WithoutCancel(ctx), report); rerr != nil {
			slog.Warn("sync record pass", "error", rerr)
		}
	}

	if err != nil {
		return SyncResult{}, err
	}
	return result, nil
}

func (e *Engine) pass(ctx context.Context, loc Locator, localPath string, dir Direction) (SyncResult, error) {
	if loc.Bucket == "" {
		return SyncResult{}, errors.New("bucket required")
	}

	store, err := e.resolver.StoreFor(ctx, loc.ProfileID)
	if err != nil {
		return SyncResult{}, err
	}

	reconciler := NewReconciler(store)
	switch dir {
	case LocalToRemote:
		return reconciler.LocalToRemote(ctx, loc, localPath)
	case RemoteToLocal:
		return reconciler.RemoteToLocal(ctx, loc, localPath)
	default:
		return SyncResult{}, fmt.Errorf("invalid sync direction %q", dir)
	}
}
