// Command nodespaced hosts the library-shaped core: it wires storage, the
// event bus, the node service, the persistence coordinator, and the
// MCP/HTTP transports together under a cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "nodespaced",
	Short:         "NodeSpace core engine host",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to nodespace.yaml (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nodespaced:", err)
		os.Exit(1)
	}
}
