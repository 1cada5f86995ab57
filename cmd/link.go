package cmd

import (
	"fmt"

	"firestige.xyz/linkchat/internal/config"
	"firestige.xyz/linkchat/internal/daemon"
	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/dispatcher"
	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/logging"
	"firestige.xyz/linkchat/internal/receiver"
	"firestige.xyz/linkchat/internal/sender"
	"firestige.xyz/linkchat/internal/sink"
)

// cliNode wires the full core (minus the metrics server) for one-shot CLI
// commands that need ACKs and replies routed back to them while they run:
// send, and chat when the text needs more than one fragment, block on a
// sender call that only completes once the dispatcher has fed OnAck from
// the wire.
type cliNode struct {
	link linklayer.Endpoint
	disc *discovery.Discovery
	recv *receiver.Receiver
	send *sender.Sender
	sink *sink.ChannelSink
	disp *dispatcher.Dispatcher
}

func openNode(configPath string) (*cliNode, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, FilePath: cfg.Log.FilePath})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	link, err := daemon.OpenLink(cfg)
	if err != nil {
		return nil, fmt.Errorf("open link: %w", err)
	}

	ttl, err := daemon.DiscoveryTTL(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery config: %w", err)
	}
	senderOpts, err := daemon.SenderOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport config: %w", err)
	}

	n := &cliNode{
		link: link,
		disc: discovery.New(link, log, ttl),
		recv: receiver.New(link, log),
		send: sender.New(link, log, senderOpts),
		sink: sink.NewChannelSink(32),
	}
	n.disp = dispatcher.New(link, n.disc, n.recv, n.send, n.sink, log)
	n.send.StartSweeper()
	go n.disp.Run()
	return n, nil
}

func (n *cliNode) close() {
	n.send.Close()
	n.link.Close()
}
