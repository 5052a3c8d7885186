// Package commands implements the blockpack CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

// rootCmd is the base command when blockpack is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "blockpack",
	Short: "blockpack - a content-addressed block dedup and packing demo",
	Long: `blockpack drives a demo backup run through the Data Block Processor:
it reads files from a directory, splits them into fixed-size candidate
blocks, deduplicates them against a block index, packs accepted blocks into
compressed volumes, and hands closed volumes to an uploader.

Use "blockpack [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./blockpack.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
