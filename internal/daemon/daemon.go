// Package daemon runs the sync registry behind the local control plane.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/bucketsync/internal/controlplane"
	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	bsync "github.com/openmined/bucketsync/internal/sync"
	"golang.org/x/sync/errgroup"
)

const (
	LockFileName    = "daemon.lock"
	shutdownTimeout = 10 * time.Second
)

var ErrAlreadyRunning = errors.New("another daemon is already running")

type Config struct {
	Dir       string // holds the single instance lock
	Addr      string
	AuthToken string
	RateLimit string
	Registry  bsync.RegistryOptions
}

type Daemon struct {
	config   *Config
	bus      *bsync.EventBus
	registry *bsync.Registry
	server   *controlplane.Server
	lock     *flock.Flock
}

// New wires a registry and event bus around engine. history may be nil.
func New(config *Config, engine *bsync.Engine, history handlers.HistoryLister) (*Daemon, error) {
	if config.Dir == "" {
		return nil, errors.New("daemon dir required")
	}
	if config.RateLimit == "" {
		config.RateLimit = controlplane.DefaultRateLimit
	}

	bus := bsync.NewEventBus()
	registry := bsync.NewRegistry(engine, bus, config.Registry)

	server, err := controlplane.New(&controlplane.Config{
		Addr:      config.Addr,
		AuthToken: config.AuthToken,
		RateLimit: config.RateLimit,
	}, &controlplane.Deps{
		Sessions: registry,
		Syncer:   engine,
		Events:   bus,
		History:  history,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		config:   config,
		bus:      bus,
		registry: registry,
		server:   server,
		lock:     flock.New(filepath.Join(config.Dir, LockFileName)),
	}, nil
}

// URL is the control plane base url. It is final after Listen.
func (d *Daemon) URL() string {
	return d.server.URL()
}

func (d *Daemon) Registry() *bsync.Registry {
	return d.registry
}

// Listen takes the single instance lock and binds the control plane address.
func (d *Daemon) Listen() error {
	if err := os.MkdirAll(d.config.Dir, 0o755); err != nil {
		return fmt.Errorf("create daemon dir: %w", err)
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}

	if err := d.server.Listen(); err != nil {
		d.unlock()
		return err
	}
	return nil
}

// Start serves until ctx is cancelled, then stops every session and the server.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	defer d.unlock()

	slog.Info("daemon start", "url", d.URL(), "autoSync", d.config.Registry.AutoSync)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.server.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

// Stop ends all sessions, then closes the bus so open event streams finish after
// delivering the completed events, then shuts the server down.
func (d *Daemon) Stop(ctx context.Context) error {
	d.registry.StopAll()
	d.bus.Close()
	if err := d.server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop control plane: %w", err)
	}
	return nil
}

func (d *Daemon) unlock() {
	if !d.lock.Locked() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		slog.Warn("daemon unlock", "error", err)
		return
	}
	os.Remove(d.lock.Path())
}
