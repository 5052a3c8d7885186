// Command blockpack drives a demo backup run through the Data Block
// Processor: it splits files under a directory into fixed-size candidate
// blocks, deduplicates them against a block index, packs accepted blocks
// into compressed volumes, and hands closed volumes to an uploader.
package main

import (
	"fmt"
	"os"

	"github.com/blockpack/blockpack/cmd/blockpack/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
