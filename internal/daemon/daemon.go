// Package daemon owns the Link-Chat agent's process lifecycle: opening
// the link endpoint, wiring the core components, starting the
// dispatcher/sweeper/metrics-server goroutines, and handling
// SIGTERM/SIGINT for graceful shutdown. Generalizes the signal-driven
// Run/Stop shape of the teacher's own internal/daemon package down from a
// task-manager/UDS/Kafka-command-plane daemon to Link-Chat's simpler
// four-goroutine model (spec.md §5).
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/config"
	"firestige.xyz/linkchat/internal/discovery"
	"firestige.xyz/linkchat/internal/dispatcher"
	"firestige.xyz/linkchat/internal/linklayer"
	"firestige.xyz/linkchat/internal/linklayer/afpacket"
	"firestige.xyz/linkchat/internal/linklayer/sim"
	"firestige.xyz/linkchat/internal/logging"
	"firestige.xyz/linkchat/internal/metrics"
	"firestige.xyz/linkchat/internal/receiver"
	"firestige.xyz/linkchat/internal/sender"
	"firestige.xyz/linkchat/internal/sink"
)

// Daemon owns one running Link-Chat agent: a link endpoint, the core
// components built on top of it, and the background goroutines that keep
// them alive until shutdown.
type Daemon struct {
	cfg *config.Config
	log *logrus.Logger

	link          linklayer.Endpoint
	discovery     *discovery.Discovery
	sender        *sender.Sender
	receiver      *receiver.Receiver
	dispatcher    *dispatcher.Dispatcher
	sink          sink.Sink
	channelSink   *sink.ChannelSink
	kafkaSink     *sink.KafkaSink // non-nil only when cfg.Sink.Kafka.Enabled
	metricsServer *metrics.Server // nil when metrics disabled

	probeInterval time.Duration
	proberStop    chan struct{}
	proberDone    chan struct{}
}

// New loads configuration from configPath, opens the configured link
// endpoint (afpacket or, in demo mode, an in-memory sim bus of one node),
// and wires the full core: discovery, sender, receiver, dispatcher.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		JSON:     cfg.Log.JSON,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: init logging: %w", err)
	}

	link, err := OpenLink(cfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: open link endpoint: %w", err)
	}

	ttl, err := DiscoveryTTL(cfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	probeInterval, err := time.ParseDuration(cfg.Discovery.ProbeInterval)
	if err != nil {
		return nil, fmt.Errorf("daemon: discovery.probe_interval: %w", err)
	}
	senderOpts, err := SenderOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("daemon: transport options: %w", err)
	}

	channelSink := sink.NewChannelSink(256)
	var destSink sink.Sink = channelSink
	var kafkaSink *sink.KafkaSink
	if cfg.Sink.Kafka.Enabled {
		kcfg, kerr := kafkaSinkConfig(cfg)
		if kerr != nil {
			return nil, fmt.Errorf("daemon: kafka sink config: %w", kerr)
		}
		kafkaSink, err = sink.NewKafkaSink(kcfg, log)
		if err != nil {
			return nil, fmt.Errorf("daemon: open kafka sink: %w", err)
		}
		destSink = sink.NewMultiSink(channelSink, kafkaSink)
	}

	d := &Daemon{
		cfg:           cfg,
		log:           log,
		link:          link,
		discovery:     discovery.New(link, log, ttl),
		sender:        sender.New(link, log, senderOpts),
		receiver:      receiver.New(link, log),
		sink:          destSink,
		channelSink:   channelSink,
		kafkaSink:     kafkaSink,
		probeInterval: probeInterval,
		proberStop:    make(chan struct{}),
		proberDone:    make(chan struct{}),
	}
	d.dispatcher = dispatcher.New(link, d.discovery, d.receiver, d.sender, d.sink, log)

	if cfg.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, log)
	}

	return d, nil
}

// OpenLink binds the configured interface or, in demo mode, a single
// in-memory sim.Endpoint on its own private bus.
func OpenLink(cfg *config.Config) (linklayer.Endpoint, error) {
	if cfg.Demo {
		bus := sim.NewBus()
		demoAddr := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
		return bus.NewEndpoint(demoAddr)
	}
	return afpacket.Open(cfg.Interface, afpacket.DefaultOptions())
}

// DiscoveryTTL parses the configured neighbor liveness window. Exported
// for the same reason as SenderOptions.
func DiscoveryTTL(cfg *config.Config) (time.Duration, error) {
	ttl, err := time.ParseDuration(cfg.Discovery.TTL)
	if err != nil {
		return 0, fmt.Errorf("discovery.ttl: %w", err)
	}
	return ttl, nil
}

// SenderOptions translates the configured transport knobs into
// sender.Options, the only place the parsed durations/retry count reach
// the transmit loop that actually uses them. Exported for the CLI's
// one-shot commands (cmd/link.go), which wire their own sender without
// going through a full Daemon.
func SenderOptions(cfg *config.Config) (sender.Options, error) {
	timeout, err := time.ParseDuration(cfg.Transport.FragmentTimeout)
	if err != nil {
		return sender.Options{}, fmt.Errorf("transport.fragment_timeout: %w", err)
	}
	sweep, err := time.ParseDuration(cfg.Transport.SweepInterval)
	if err != nil {
		return sender.Options{}, fmt.Errorf("transport.sweep_interval: %w", err)
	}
	return sender.Options{
		Timeout:       timeout,
		SweepInterval: sweep,
		MaxRetries:    cfg.Transport.MaxRetries,
	}, nil
}

func kafkaSinkConfig(cfg *config.Config) (sink.KafkaConfig, error) {
	kcfg := sink.DefaultKafkaConfig()
	kcfg.Brokers = cfg.Sink.Kafka.Brokers
	kcfg.Topic = cfg.Sink.Kafka.Topic
	kcfg.Compression = cfg.Sink.Kafka.Compression
	if cfg.Sink.Kafka.BatchSize > 0 {
		kcfg.BatchSize = cfg.Sink.Kafka.BatchSize
	}
	if cfg.Sink.Kafka.MaxAttempts > 0 {
		kcfg.MaxAttempts = cfg.Sink.Kafka.MaxAttempts
	}
	if cfg.Sink.Kafka.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.Sink.Kafka.BatchTimeout)
		if err != nil {
			return kcfg, fmt.Errorf("sink.kafka.batch_timeout: %w", err)
		}
		kcfg.BatchTimeout = d
	}
	return kcfg, nil
}

// Events returns the default channel sink's event stream, for CLI
// commands that print deliveries as they arrive. The channel sink is
// always present, even when a Kafka audit sink is also wired in via
// MultiSink.
func (d *Daemon) Events() <-chan sink.Event {
	return d.channelSink.Events()
}

// Discovery exposes the discovery component for CLI commands (probe,
// neighbors) driven from the same process as the running daemon.
func (d *Daemon) Discovery() *discovery.Discovery { return d.discovery }

// Sender exposes the sender component for CLI commands (chat, send).
func (d *Daemon) Sender() *sender.Sender { return d.sender }

// Run starts the dispatcher, sweeper and periodic discovery-probe
// goroutines and the metrics server, then blocks until a shutdown signal
// or the dispatcher exits because the link endpoint was closed.
func (d *Daemon) Run(ctx context.Context) error {
	d.sender.StartSweeper()
	go d.proberLoop()
	if d.metricsServer != nil {
		d.metricsServer.Start()
	}

	dispatchErr := make(chan error, 1)
	go func() { dispatchErr <- d.dispatcher.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.log.WithField("signal", sig).Info("daemon: received shutdown signal")
	case <-ctx.Done():
		d.log.Info("daemon: context cancelled")
	case err := <-dispatchErr:
		d.log.WithError(err).Warn("daemon: dispatcher exited unexpectedly")
	}

	return d.Stop()
}

// proberLoop sends a discovery probe every probeInterval until Stop closes
// proberStop, keeping the neighbor table fresh without the caller having to
// drive "linkchat probe" itself.
func (d *Daemon) proberLoop() {
	defer close(d.proberDone)
	ticker := time.NewTicker(d.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.proberStop:
			return
		case <-ticker.C:
			if err := d.discovery.Probe(); err != nil {
				d.log.WithError(err).Warn("daemon: periodic discovery probe failed")
			}
		}
	}
}

// Stop gracefully shuts the daemon down: stops the sweeper and prober,
// closes the metrics server, closes the link endpoint (unblocking the
// dispatcher's blocking recv), and flushes the optional Kafka sink.
func (d *Daemon) Stop() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	d.sender.Close()

	close(d.proberStop)
	<-d.proberDone

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		note(d.metricsServer.Stop(shutdownCtx))
	}

	note(d.link.Close())

	if d.kafkaSink != nil {
		note(d.kafkaSink.Close())
	}

	d.log.Info("daemon: stopped")
	return firstErr
}
