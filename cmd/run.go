package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/linkchat/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Link-Chat agent in the foreground",
	Long: `Run starts the agent's dispatcher, its periodic discovery-probe
goroutine, its retransmission sweeper and (if enabled) Prometheus metrics
server, printing delivered chat messages and blobs to stdout until
interrupted.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(configFile)
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	go printEvents(d)

	return d.Run(context.Background())
}

func printEvents(d *daemon.Daemon) {
	for ev := range d.Events() {
		switch {
		case ev.Chat != nil:
			fmt.Printf("[chat] %s: %s\n", ev.Chat.Src, ev.Chat.Text)
		case ev.Blob != nil:
			fmt.Printf("[blob] %s: %d bytes\n", ev.Blob.Src, len(ev.Blob.Data))
		case ev.Err != nil:
			fmt.Printf("[error] %s\n", ev.Err.Message)
		}
	}
}
