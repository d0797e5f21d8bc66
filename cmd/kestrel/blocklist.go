package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelfaas/kestrel/internal/blocklist"
)

func blocklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocklist",
		Short: "Build and inspect egress blocklist files",
	}
	cmd.AddCommand(blocklistBuildCmd())
	return cmd
}

func blocklistBuildCmd() *cobra.Command {
	var src, dest, format string

	c := &cobra.Command{
		Use:   "build",
		Short: "Compile a CIDR-per-line source file into a TRI1 (or RNG1) blocklist artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if src == "" || dest == "" {
				return fmt.Errorf("--src and --dest are required")
			}
			if err := blocklist.WriteFromFile(format, src, dest); err != nil {
				return fmt.Errorf("build blocklist: %w", err)
			}
			fmt.Printf("wrote %s from %s\n", dest, src)
			return nil
		},
	}
	c.Flags().StringVar(&src, "src", "", "path to a CIDR-per-line source file")
	c.Flags().StringVar(&dest, "dest", "", "path to write the compiled blocklist artifact")
	c.Flags().StringVar(&format, "format", blocklist.MagicTRI1, "output format: TRI1 or RNG1")
	return c
}
