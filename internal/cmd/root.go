// Package cmd provides CLI commands for the gg tool.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "gg",
	Short:   "Gas Gauge - quota monitor for AI coding CLIs",
	Version: Version,
	Long: `Gas Gauge (gg) watches the usage quotas of AI coding assistants.

It drives each provider's own CLI through a pseudo-terminal, reads the
quota report the CLI shows its users, and turns it into structured
data: one-shot status checks, continuous monitoring, usage history,
and a small web dashboard.`,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		// Errors already printed by cobra
		return 1
	}
	return 0
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupMonitor = "monitor"
	GroupData    = "data"
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupMonitor, Title: "Monitoring:"},
		&cobra.Group{ID: GroupData, Title: "Data:"},
	)

	rootCmd.SetHelpCommandGroupID(GroupData)
	rootCmd.SetCompletionCommandGroupID(GroupData)
}
