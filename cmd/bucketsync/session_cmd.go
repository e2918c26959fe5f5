package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	"github.com/openmined/bucketsync/internal/ctlclient"
	bsync "github.com/openmined/bucketsync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSessionCmd())
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage keep-in-sync sessions in the running daemon",
	}
	cmd.AddCommand(newSessionStartCmd())
	cmd.AddCommand(newSessionStopCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionEventsCmd())
	return cmd
}

// daemonClient connects to the daemon named in the config.
func daemonClient() (*ctlclient.Client, *Config, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := ctlclient.New(cfg.DaemonURL(), cfg.DaemonToken)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// explainDaemonErr adds a hint for the common connection failures.
func explainDaemonErr(err error) error {
	switch {
	case errors.Is(err, ctlclient.ErrNoDaemon):
		return fmt.Errorf("%w, start one with `bucketsync daemon`", err)
	case errors.Is(err, ctlclient.ErrUnauthorized):
		return fmt.Errorf("%w, check daemon.token", err)
	}
	return err
}

func newSessionStartCmd() *cobra.Command {
	var loc locatorFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start watching a folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := daemonClient()
			if err != nil {
				return err
			}
			id, err := client.StartSession(cmd.Context(), &handlers.StartSessionRequest{
				ProfileID: cfg.Profile,
				Bucket:    loc.bucket,
				Prefix:    loc.prefix,
				LocalPath: loc.local,
			})
			if err != nil {
				return explainDaemonErr(err)
			}
			printSuccess(cmd.OutOrStdout(), "session %s started", bold.Render(id))
			return nil
		},
	}
	loc.register(cmd)
	return cmd
}

func newSessionStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := daemonClient()
			if err != nil {
				return err
			}
			if err := client.StopSession(cmd.Context(), args[0]); err != nil {
				return explainDaemonErr(err)
			}
			printSuccess(cmd.OutOrStdout(), "session %s stopped", bold.Render(args[0]))
			return nil
		},
	}
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := daemonClient()
			if err != nil {
				return err
			}
			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return explainDaemonErr(err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no active sessions"))
				return nil
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "LOCAL", "REMOTE", "LAST SYNC"}, sessionRows(sessions))
			return nil
		},
	}
}

func sessionRows(sessions []bsync.SessionState) [][]string {
	slices.SortFunc(sessions, func(a, b bsync.SessionState) int {
		return strings.Compare(a.LocalPath, b.LocalPath)
	})
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{s.ID, s.LocalPath, s.Locator.String(), formatTime(s.LastSyncTime)})
	}
	return rows
}

func newSessionEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events [ID]",
		Short: "Follow sync events, optionally for one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := daemonClient()
			if err != nil {
				return err
			}
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			}
			err = client.StreamEvents(cmd.Context(), sessionID, func(event *ctlclient.StreamEvent) error {
				printStreamEvent(cmd.OutOrStdout(), event)
				return nil
			})
			if err != nil && cmd.Context().Err() == nil {
				return explainDaemonErr(err)
			}
			return nil
		},
	}
}
