package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/linkchat/internal/config"
	"firestige.xyz/linkchat/internal/daemon"
	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/logging"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Broadcast a discovery probe and exit",
	Long: `Probe sends a single broadcast DISCOVERY frame and returns immediately
without waiting for replies. Replies are not recorded anywhere; run
"linkchat neighbors" to send a fresh probe and print who answers it.`,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("load config", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, FilePath: cfg.Log.FilePath})
	if err != nil {
		exitWithError("init logging", err)
	}

	link, err := daemon.OpenLink(cfg)
	if err != nil {
		exitWithError("open link", err)
	}
	defer link.Close()

	ttl, err := daemon.DiscoveryTTL(cfg)
	if err != nil {
		exitWithError("discovery config", err)
	}

	disc := discovery.New(link, log, ttl)
	if err := disc.Probe(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	fmt.Println("discovery probe sent")
	return nil
}
