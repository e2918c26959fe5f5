package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/bucketsync/internal/profile"
	"github.com/openmined/bucketsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newProfileCmd())
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage object store connection profiles",
	}
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileRemoveCmd())
	cmd.AddCommand(newProfileExportCmd())
	cmd.AddCommand(newProfileImportCmd())
	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var p profile.Profile
	var provider, addressing, signature string

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p.Name = args[0]
			p.Provider = profile.Provider(provider)
			p.AddressingStyle = profile.AddressingStyle(addressing)
			p.SignatureVersion = profile.SignatureVersion(signature)
			if p.SecretAccessKey == "" {
				p.SecretAccessKey = os.Getenv("BUCKETSYNC_SECRET_ACCESS_KEY")
			}

			created, err := a.profiles.Create(p)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "profile %s added (%s)", bold.Render(created.Name), gray.Render(created.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", string(profile.ProviderAWS), "one of "+providerList())
	cmd.Flags().StringVar(&p.Endpoint, "endpoint", "", "custom endpoint url, required for self hosted providers")
	cmd.Flags().StringVar(&p.Region, "region", profile.DefaultRegion, "bucket region")
	cmd.Flags().StringVar(&p.AccessKeyID, "access-key", "", "access key id")
	cmd.Flags().StringVar(&p.SecretAccessKey, "secret-key", "", "secret access key, defaults to $BUCKETSYNC_SECRET_ACCESS_KEY")
	cmd.Flags().StringVar(&addressing, "addressing", "", "path or virtual_hosted")
	cmd.Flags().StringVar(&signature, "signature", "", "v2 or v4")
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			profiles, err := a.profiles.List()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no profiles"))
				return nil
			}

			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				endpoint := p.Endpoint
				if endpoint == "" {
					endpoint = "-"
				}
				rows = append(rows, []string{p.ID, p.Name, string(p.Provider), p.Region, endpoint, utils.MaskSecret(p.AccessKeyID)})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "PROVIDER", "REGION", "ENDPOINT", "ACCESS KEY"}, rows)
			return nil
		},
	}
}

func newProfileRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID|NAME",
		Aliases: []string{"remove"},
		Short:   "Remove a profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.profiles.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.profiles.Delete(p.ID); err != nil {
				return err
			}
			a.stores.Forget(p.ID)
			printSuccess(cmd.OutOrStdout(), "profile %s removed", bold.Render(p.Name))
			return nil
		},
	}
}

func newProfileExportCmd() *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export profiles as json or yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return a.profiles.Export(w, profile.Format(format))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(profile.FormatJSON), "json or yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	return cmd
}

func newProfileImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import profiles, replacing those with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if format == "" {
				format = formatFromExt(args[0])
			}
			n, err := a.profiles.Import(f, profile.Format(format))
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "imported %d profile(s)", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml, guessed from the file extension when empty")
	return cmd
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return string(profile.FormatYAML)
	default:
		return string(profile.FormatJSON)
	}
}

func providerList() string {
	names := make([]string, 0, len(profile.Providers()))
	for _, p := range profile.Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
