package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/openmined/bucketsync/internal/controlplane"
	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	"github.com/openmined/bucketsync/internal/daemon"
	bsync "github.com/openmined/bucketsync/internal/sync"
	"github.com/openmined/bucketsync/internal/utils"
	"github.com/openmined/bucketsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var addr string
	var authToken string
	var rateLimit string
	var autoSync bool

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the bucketsync daemon with its local http api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("bucketsync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			a, err := loadApp(withHistory())
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.config.DaemonAddr
			}
			if authToken == "" {
				authToken = a.config.DaemonToken
			}
			if authToken == "" {
				authToken = uuid.NewString()
				slog.Warn("no daemon token configured, generated one for this run", "token", authToken)
			}
			if !cmd.Flags().Changed("auto-sync") {
				autoSync = a.config.AutoSync
			}

			var hist handlers.HistoryLister
			if a.history != nil {
				hist = a.history
			}

			d, err := daemon.New(&daemon.Config{
				Dir:       a.config.Dir,
				Addr:      addr,
				AuthToken: authToken,
				RateLimit: rateLimit,
				Registry:  bsync.RegistryOptions{AutoSync: autoSync},
			}, a.newEngine(), hist)
			if err != nil {
				return err
			}

			slog.Info("daemon using", "dir", a.config.Dir, "token", utils.MaskSecret(authToken))

			defer slog.Info("Bye!")
			if err := d.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVarP(&addr, "addr", "a", "", "address to bind the local http server, defaults to daemon.addr")
	daemonCmd.Flags().StringVarP(&authToken, "token", "t", "", "access token for the local http server, defaults to daemon.token")
	daemonCmd.Flags().StringVar(&rateLimit, "rate-limit", controlplane.DefaultRateLimit, "request rate limit, e.g. 20-S")
	daemonCmd.Flags().BoolVar(&autoSync, "auto-sync", false, "upload changes in every session, defaults to watch.auto_sync")

	return daemonCmd
}
