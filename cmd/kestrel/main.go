// Command kestrel runs the function-as-a-service host: a CLI for
// registering and listing functions, and a "serve" subcommand that
// starts the HTTP dispatcher over the asset store, resource store, and
// invocation engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir    string
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kestrel",
		Short: "kestrel - polyglot function-as-a-service host",
		Long:  "Upload and invoke JavaScript, Python, and Ruby functions behind a sandboxed HTTP dispatcher.",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".faas", "directory holding function manifests, resource records, and the blocklist file")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON config file (optional, env vars and flags still apply)")

	rootCmd.AddCommand(
		uploadCmd(),
		listCmd(),
		serveCmd(),
		blocklistCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
