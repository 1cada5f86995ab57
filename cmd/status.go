package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe and print the local neighbor table once",
	Long: `Status is a convenience alias for "neighbors": it has no long-running
daemon to query, so it probes and waits the same short window before
printing what it found.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("probing for neighbors...")
	time.Sleep(50 * time.Millisecond)
	return runNeighbors(cmd, args)
}
