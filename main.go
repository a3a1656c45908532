package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
)

type rootFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "companion",
		Short: "Game companion chat with per-game threads and insight tabs",
		Long: `companion is a terminal chat client for a game companion assistant.

Conversations are sorted into one thread per game as soon as the assistant
recognizes it, each thread keeps its own context (progress, inventory,
objective) and a set of insight tabs. History is saved locally and, when
configured, to a remote PostgreSQL store.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Debug logging")

	rootCmd.AddCommand(newChatCommand(flags))
	rootCmd.AddCommand(newThreadsCommand(flags))
	rootCmd.AddCommand(newExportCommand(flags))
	rootCmd.AddCommand(newImportCommand(flags))
	rootCmd.AddCommand(newSearchCommand(flags))
	rootCmd.AddCommand(newStatsCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Game Companion v%s\n", version)
		},
	}
}
