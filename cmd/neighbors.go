package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/linkchat/internal/config"
	"firestige.xyz/linkchat/internal/daemon"
	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/logging"
	"firestige.xyz/linkchat/internal/wire"
)

const neighborsWait = 650 * time.Millisecond

var neighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "Probe and print the known neighbor table",
	Long: `Neighbors broadcasts a DISCOVERY frame, waits briefly for REPLY frames to
arrive, and prints every address that answered.`,
	RunE: runNeighbors,
}

func runNeighbors(cmd *cobra.Command, args []string) error {
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
	stop := make(chan struct{})
	go pumpDiscoveryFrames(link, disc, stop)

	if err := disc.Probe(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	time.Sleep(neighborsWait)
	close(stop)
	link.Close()

	neighbors := disc.Neighbors()
	if len(neighbors) == 0 {
		fmt.Println("no neighbors found")
		return nil
	}
	for _, n := range neighbors {
		fmt.Println(n)
	}
	return nil
}

// pumpDiscoveryFrames drains link until stop is closed or Recv errors
// (the endpoint was closed), handing every DISCOVERY/REPLY frame to disc.
func pumpDiscoveryFrames(link linklayer.Endpoint, disc *discovery.Discovery, stop <-chan struct{}) {
	for {
		frame, err := link.Recv()
		if err != nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		src, _, etherType, body, err := wire.ParseFrame(frame)
		if err != nil || etherType != wire.EtherType {
			continue
		}
		h, _, err := wire.UnpackHeader(body)
		if err != nil {
			continue
		}
		if h.MsgType == wire.MsgDiscovery || h.MsgType == wire.MsgReply {
			_ = disc.OnFrame(src, h)
		}
	}
}
