package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockpack/blockpack/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample blockpack configuration file.

By default the file is written to ./blockpack.yaml. Use --config to pick a
different path.

Examples:
  # Initialize with default location
  blockpack init

  # Initialize with custom path
  blockpack init --config /etc/blockpack/config.yaml

  # Overwrite an existing file
  blockpack init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = "blockpack.yaml"
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to point at your index and remote store")
	fmt.Printf("  2. Run a demo backup: blockpack run --config %s <directory>\n", path)
	return nil
}
