package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/gasgauge/internal/config"
	"github.com/steveyegge/gasgauge/internal/style"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupData,
	Short:   "Inspect or initialize gg configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.DefaultPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()

	if _, err := config.Load(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	} else if !errors.Is(err, config.ErrNotFound) {
		return err
	}

	cfg := config.Default()
	// Seed the provider table so the file documents what is tunable.
	cfg.Providers["claude"] = config.ProviderConfig{}
	cfg.Providers["codex"] = config.ProviderConfig{}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s Wrote %s\n", style.Success.Render("✓"), path)
	return nil
}
