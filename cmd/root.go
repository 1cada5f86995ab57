// Package cmd implements the Link-Chat CLI using the cobra framework,
// mirroring the teacher's root-command-with-persistent-flags shape
// (cmd/root.go) scaled down to Link-Chat's much smaller command surface:
// no daemon-control RPC, each subcommand opens its own link endpoint.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "linkchat",
	Short:   "Link-Chat - reliable messaging over raw Ethernet frames",
	Version: "0.1.0",
	Long: `Link-Chat runs a reliable unicast/broadcast messaging protocol directly
on raw Ethernet frames (layer 2, no IP): neighbor discovery, fragmentation
with per-fragment ACK and bounded retransmission, and CRC-32 integrity.`,
}

// Execute adds all child commands to the root command and runs it. It is
// called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/linkchat/config.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(neighborsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
