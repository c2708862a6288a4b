// Package cli implements the glimmer command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glimmer-live/glimmer/internal/api"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "glimmer",
	Short: "Reward-event engine for live broadcasts",
	Long: `Glimmer turns viewer activity into currency and experience, runs the
leveling curve and reward rules, and drains voiced effects through a
sequential queue. Configuration lives in a TOML file; every setting has
a working default.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to glimmer.toml")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the glimmer version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("glimmer", api.Version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
