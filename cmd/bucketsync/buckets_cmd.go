package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/openmined/bucketsync/internal/blob"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newBucketsCmd())
}

func newBucketsCmd() *cobra.Command {
	var params blob.CreateBucketParams

	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "List buckets, or create one with --create",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			store, p, err := a.storeFor(cmd.Context(), "")
			if err != nil {
				return err
			}

			if params.Name != "" {
				if params.Region == "" {
					params.Region = p.Region
				}
				if err := store.CreateBucket(cmd.Context(), &params); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "bucket %s created in %s", bold.Render(params.Name), params.Region)
				return nil
			}

			buckets, err := store.ListBuckets(cmd.Context())
			if err != nil {
				return err
			}
			if len(buckets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no buckets"))
				return nil
			}
			slices.SortFunc(buckets, func(a, b *blob.BucketInfo) int {
				return strings.Compare(a.Name, b.Name)
			})

			rows := make([][]string, 0, len(buckets))
			for _, b := range buckets {
				rows = append(rows, []string{b.Name, formatTime(b.CreationTime)})
			}
			renderTable(cmd.OutOrStdout(), []string{"NAME", "CREATED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Name, "create", "", "create a bucket with this name")
	cmd.Flags().StringVar(&params.Region, "region", "", "region for --create, defaults to the profile region")
	cmd.Flags().BoolVar(&params.Public, "public", false, "make the new bucket publicly readable")
	return cmd
}
