package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openmined/bucketsync/internal/history"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var viaDaemon bool
	var prune int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if viaDaemon {
				client, _, err := daemonClient()
				if err != nil {
					return err
				}
				res, err := client.History(cmd.Context(), limit)
				if err != nil {
					return explainDaemonErr(err)
				}
				printHistory(cmd.OutOrStdout(), res.Entries)
				return nil
			}

			a, err := loadApp(withHistory())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.history == nil {
				return errors.New("history is disabled, set history.enabled")
			}

			if prune > 0 {
				n, err := a.history.Prune(cmd.Context(), prune)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "pruned %d entries", n)
				return nil
			}

			entries, err := a.history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "number of passes to show")
	cmd.Flags().BoolVar(&viaDaemon, "daemon", false, "read the history of the running daemon")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the newest N entries")
	return cmd
}

func printHistory(w io.Writer, entries []*history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, gray.Render("no sync history"))
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := green.Render("ok")
		if e.Failed() {
			status = red.Render(e.Error)
		}
		finished := e.FinishedAt
		rows = append(rows, []string{
			formatTime(&finished),
			string(e.Direction),
			e.Bucket + "/" + e.Prefix,
			e.LocalPath,
			fmt.Sprintf("%d/%d/%d", e.Uploaded, e.Downloaded, e.Skipped),
			e.Duration().Round(time.Millisecond).String(),
			status,
		})
	}
	renderTable(w, []string{"WHEN", "DIRECTION", "REMOTE", "LOCAL", "UP/DOWN/SKIP", "TOOK", "STATUS"}, rows)
}
