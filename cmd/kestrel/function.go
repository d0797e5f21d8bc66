package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kestrelfaas/kestrel/internal/assetstore"
)

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <manifest.json>",
		Short: "Register a function from an upload manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			manifest, err := assetstore.ParseManifest(raw)
			if err != nil {
				return err
			}

			assets, err := getAssetStore(cfg)
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			asset, err := assets.ToAsset(cwd, manifest)
			if err != nil {
				return err
			}
			if err := assets.Save(asset); err != nil {
				return err
			}
			fmt.Printf("registered %s (%s, entry %q, %d deps)\n",
				asset.ID, asset.LanguageID, asset.FunctionName, len(asset.DependencyNames()))
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			assets, err := getAssetStore(cfg)
			if err != nil {
				return err
			}
			list, err := assets.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLANGUAGE\tENTRY\tDEPS")
			for _, a := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.LanguageID, a.FunctionName, strings.Join(a.DependencyNames(), ","))
			}
			return w.Flush()
		},
	}
}
