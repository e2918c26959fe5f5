package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	"github.com/openmined/bucketsync/internal/ctlclient"
	bsync "github.com/openmined/bucketsync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWatchCmd())
}

type locatorFlags struct {
	bucket string
	prefix string
	local  string
}

func (f *locatorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.bucket, "bucket", "b", "", "bucket name")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().StringVarP(&f.local, "local", "l", "", "local folder")
	cmd.MarkFlagRequired("bucket")
	cmd.MarkFlagRequired("local")
}

func newSyncCmd() *cobra.Command {
	var loc locatorFlags
	var direction string
	var viaDaemon bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass between a folder and a bucket prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := bsync.ParseDirection(direction)
			if err != nil {
				return err
			}

			if viaDaemon {
				cfg, err := currentConfig()
				if err != nil {
					return err
				}
				client, err := ctlclient.New(cfg.DaemonURL(), cfg.DaemonToken)
				if err != nil {
					return err
				}
				res, err := client.Sync(cmd.Context(), &handlers.SyncRequest{
					ProfileID: cfg.Profile,
					Bucket:    loc.bucket,
					Prefix:    loc.prefix,
					LocalPath: loc.local,
					Direction: string(dir),
				})
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "%s", formatResult(*res))
				return nil
			}

			a, err := loadApp(withHistory())
			if err != nil {
				return err
			}
			defer a.Close()

			locator, err := a.locator("", loc.bucket, loc.prefix)
			if err != nil {
				return err
			}

			start := time.Now()
			res, err := a.newEngine().SyncOnce(cmd.Context(), locator, loc.local, dir)
			if err != nil {
				return err
			}
			slog.Debug("sync", "locator", locator, "direction", dir, "took", time.Since(start))
			printSuccess(cmd.OutOrStdout(), "%s %s", formatResult(res), gray.Render(time.Since(start).Round(time.Millisecond).String()))
			return nil
		},
	}

	loc.register(cmd)
	cmd.Flags().StringVarP(&direction, "direction", "d", string(bsync.LocalToRemote), "local_to_remote or remote_to_local")
	cmd.Flags().BoolVar(&viaDaemon, "daemon", false, "run the pass inside the running daemon")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var loc locatorFlags
	var autoSync bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a folder in sync with a bucket prefix until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(withHistory())
			if err != nil {
				return err
			}
			defer a.Close()

			locator, err := a.locator("", loc.bucket, loc.prefix)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("auto-sync") {
				autoSync = a.config.AutoSync
			}

			bus := bsync.NewEventBus()
			defer bus.Close()
			events := bus.Subscribe()

			registry := bsync.NewRegistry(a.newEngine(), bus, bsync.RegistryOptions{
				AutoSync:        autoSync,
				DebounceTimeout: debounce,
			})
			defer registry.StopAll()

			id, err := registry.Start(cmd.Context(), locator, loc.local)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", cyan.Render("watching"), loc.local, gray.Render("→"), locator)
			if !autoSync {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("auto sync is off, changes are reported only"))
			}

			for {
				select {
				case <-cmd.Context().Done():
					if err := registry.Stop(id); err != nil && !errors.Is(err, bsync.ErrNotFound) {
						return err
					}
					// drain the completed event
					for {
						select {
						case event := <-events:
							printEvent(cmd.OutOrStdout(), event)
							if event.Type == bsync.EventSyncCompleted {
								return nil
							}
						case <-time.After(time.Second):
							return nil
						}
					}
				case event := <-events:
					printEvent(cmd.OutOrStdout(), event)
				}
			}
		},
	}

	loc.register(cmd)
	cmd.Flags().BoolVar(&autoSync, "auto-sync", false, "upload changes after they settle, defaults to watch.auto_sync")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "watcher debounce window")
	return cmd
}

func printEvent(w io.Writer, event bsync.Event) {
	ts := gray.Render(event.Time.Local().Format(time.TimeOnly))
	switch d := event.Data.(type) {
	case bsync.StartedPayload:
		fmt.Fprintf(w, "%s %s session %s\n", ts, green.Render("started"), d.SessionID)
	case bsync.ProgressPayload:
		fmt.Fprintf(w, "%s %s %s\n", ts, cyan.Render("changed"), d.CurrentFile)
	case bsync.CompletedPayload:
		fmt.Fprintf(w, "%s %s %d uploaded, %d downloaded\n", ts, green.Render("stopped"), d.FilesUploaded, d.FilesDownloaded)
	case bsync.ErrorPayload:
		fmt.Fprintf(w, "%s %s %s\n", ts, red.Render("error"), d.Error)
	default:
		fmt.Fprintf(w, "%s %s\n", ts, event.Type)
	}
}

// printStreamEvent renders an event received from the daemon.
func printStreamEvent(w io.Writer, event *ctlclient.StreamEvent) {
	ts := gray.Render(event.Time.Local().Format(time.TimeOnly))
	switch bsync.EventType(event.Type) {
	case bsync.EventSyncStarted:
		fmt.Fprintf(w, "%s %s session %s %v\n", ts, green.Render("started"), event.SessionID(), event.Data["localPath"])
	case bsync.EventSyncProgress:
		fmt.Fprintf(w, "%s %s %s %v\n", ts, cyan.Render("changed"), event.SessionID(), event.Data["currentFile"])
	case bsync.EventSyncCompleted:
		fmt.Fprintf(w, "%s %s session %s, %v uploaded\n", ts, green.Render("stopped"), event.SessionID(), event.Data["filesUploaded"])
	case bsync.EventSyncError:
		fmt.Fprintf(w, "%s %s %s %v\n", ts, red.Render("error"), event.SessionID(), event.Data["error"])
	default:
		fmt.Fprintf(w, "%s %s\n", ts, event.Type)
	}
}
