package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/openmined/bucketsync/internal/history"
	"github.com/openmined/bucketsync/internal/profile"
	bsync "github.com/openmined/bucketsync/internal/sync"
)

var errNoProfile = errors.New("no profile selected, pass --profile or add one with `bucketsync profile add`")

// app holds the services a command needs. Commands build one per invocation.
type app struct {
	config   *Config
	profiles *profile.Store
	stores   *blob.StoreCache
	history  *history.Store
}

type appOption func(*appOptions)

type appOptions struct {
	factory     blob.StoreFactory
	withHistory bool
}

// withStoreFactory swaps the S3 client factory, tests use an in-memory store.
func withStoreFactory(factory blob.StoreFactory) appOption {
	return func(o *appOptions) {
		o.factory = factory
	}
}

// withHistory opens the history database when the config enables it.
func withHistory() appOption {
	return func(o *appOptions) {
		o.withHistory = true
	}
}

func newApp(cfg *Config, opts ...appOption) (*app, error) {
	options := &appOptions{factory: appStoreFactory}
	for _, opt := range opts {
		opt(options)
	}

	profiles, err := profile.NewStoreInDir(cfg.Dir)
	if err != nil {
		return nil, err
	}

	stores, err := blob.NewStoreCache(0, options.factory)
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, profiles: profiles, stores: stores}

	if options.withHistory && cfg.HistoryEnabled {
		hist := history.NewStore(filepath.Join(cfg.Dir, history.FileName))
		if err := hist.Open(); err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = hist
	}

	return a, nil
}

// appStoreFactory is overridden by tests.
var appStoreFactory blob.StoreFactory = blob.DefaultFactory

// loadApp builds the app from the global config.
func loadApp(opts ...appOption) (*app, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, opts...)
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("close history", "error", err)
		}
	}
}

// resolveProfile picks the profile by reference, then the configured default, then the
// only profile when exactly one exists.
func (a *app) resolveProfile(ref string) (*profile.Profile, error) {
	if ref == "" {
		ref = a.config.Profile
	}
	if ref != "" {
		return a.profiles.Resolve(ref)
	}

	all, err := a.profiles.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 1 {
		return &all[0], nil
	}
	return nil, errNoProfile
}

// storeFor connects to the store behind a profile reference.
func (a *app) storeFor(ctx context.Context, ref string) (blob.Store, *profile.Profile, error) {
	p, err := a.resolveProfile(ref)
	if err != nil {
		return nil, nil, err
	}
	store, err := a.stores.Get(ctx, p)
	if err != nil {
		return nil, nil, fmt.Errorf("connect profile %s: %w", p.Name, err)
	}
	return store, p, nil
}

// StoreFor lets the sync engine resolve locators through the profile store.
func (a *app) StoreFor(ctx context.Context, profileID string) (bsync.ObjectStore, error) {
	store, _, err := a.storeFor(ctx, profileID)
	return store, err
}

// newEngine returns a sync engine that records passes when history is open.
func (a *app) newEngine() *bsync.Engine {
	var opts []bsync.EngineOption
	if a.history != nil {
		opts = append(opts, bsync.WithRecorder(a.history))
	}
	return bsync.NewEngine(a, opts...)
}

// locator resolves the profile reference so that history rows carry the profile id.
func (a *app) locator(ref, bucket, prefix string) (bsync.Locator, error) {
	if bucket == "" {
		return bsync.Locator{}, errors.New("bucket required")
	}
	p, err := a.resolveProfile(ref)
	if err != nil {
		return bsync.Locator{}, err
	}
	return bsync.Locator{ProfileID: p.ID, Bucket: bucket, Prefix: prefix}, nil
}

var _ bsync.StoreResolver = (*app)(nil)
