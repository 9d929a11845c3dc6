// Package main implements protosignal-relay, which mirrors protobuf signals
// between processes over NATS and prints the signals it holds as JSON lines.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	ossignal "os/signal"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/c360/protosignal/config"
	"github.com/c360/protosignal/metric"
	"github.com/c360/protosignal/natsclient"
	"github.com/c360/protosignal/pkg/queue"
	"github.com/c360/protosignal/relay"
	"github.com/c360/protosignal/signal"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "protosignal-relay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "config_path", cli.ConfigPath)
		return nil
	}

	logger.Info("Starting protosignal relay",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cli.ConfigPath)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cli, stdout, logger)
}

// loadConfig loads the config file, if any, on top of the defaults and
// applies the log flags.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve runs the relay, the metrics server and the printer until ctx is
// done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, cli *CLIConfig, stdout io.Writer, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	store := signal.NewCachingStore(
		signal.WithName("relay"),
		signal.WithLogger(logger),
		signal.WithMetrics(registry),
	)
	defer store.Close()

	relayOpts, err := relayOptions(cfg, registry, logger)
	if err != nil {
		return err
	}

	client, err := newNATSClient(cfg, cli, registry, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	r, err := relay.New(store, client, relayOpts...)
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}

	var sub *signal.Subscription
	if !cli.Quiet {
		if sub, err = subscribe(store, cfg, registry); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			return server.Stop()
		})
		logger.Info("Metrics server listening", "address", server.Address())
	}

	g.Go(func() error {
		if err := client.ConnectWithRetry(gctx); err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		logger.Info("Relay running", "origin", r.Origin(), "format", cfg.Relay.Format)
		return r.Run(gctx)
	})

	if sub != nil {
		g.Go(func() error {
			return consume(sub.Queue(), newPrinter(stdout), logger)
		})
		g.Go(func() error {
			<-gctx.Done()
			return sub.Close()
		})
	}

	err = g.Wait()
	logger.Info("Shutting down", "reason", context.Cause(gctx))

	closeCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
	defer cancel()
	if cerr := client.Close(closeCtx); cerr != nil {
		logger.Warn("NATS close failed", "error", cerr)
	}

	stats := r.Publisher().Stats()
	in := r.Subscriber().Stats()
	logger.Info("Relay stopped",
		"sent", stats.Sent,
		"received", in.Received,
		"echoes", in.Echoes,
		"failures", stats.Failures+in.Failures)

	// A shutdown signal during connect surfaces as a cancellation.
	if err != nil && ctx.Err() != nil && stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func relayOptions(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) ([]relay.Option, error) {
	opts := []relay.Option{
		relay.WithSubjectPrefix(cfg.Relay.SubjectPrefix),
		relay.WithFormat(relay.Format(cfg.Relay.Format)),
		relay.WithTopics(cfg.Relay.Topics...),
		relay.WithLogger(logger),
		relay.WithMetrics(registry),
	}
	if cfg.Relay.DescriptorSet != "" {
		types, err := loadTypes(cfg.Relay.DescriptorSet)
		if err != nil {
			return nil, fmt.Errorf("load payload types: %w", err)
		}
		logger.Info("Loaded payload types",
			"descriptor_set", cfg.Relay.DescriptorSet,
			"messages", types.NumMessages())
		opts = append(opts, relay.WithResolver(types))
	}
	return opts, nil
}

func newNATSClient(cfg *config.Config, cli *CLIConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(cfg.Relay.MaxReconnects),
		natsclient.WithReconnectWait(cfg.Relay.ReconnectWait),
		natsclient.WithDrainTimeout(cli.ShutdownTimeout),
		natsclient.WithCompression(cfg.Relay.Compression),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
		natsclient.WithConnectionLostCallback(func(err error) {
			logger.Error("NATS connection lost", "error", err)
		}),
	}
	if cfg.Relay.ClientName != "" {
		opts = append(opts, natsclient.WithName(cfg.Relay.ClientName))
	}
	if cfg.Relay.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Relay.Username, cfg.Relay.Password))
	}
	if cfg.Relay.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Relay.Token))
	}
	if cfg.Relay.TLSEnabled() {
		opts = append(opts, natsclient.WithTLS(cfg.Relay.TLSCert, cfg.Relay.TLSKey, cfg.Relay.TLSCA))
	}
	return natsclient.NewClient(strings.Join(cfg.Relay.URLs, ","), opts...)
}

// subscribe attaches the printer's queue to the store. The store is empty
// at this point, so nothing is replayed.
func subscribe(store *signal.CachingStore, cfg *config.Config, registry *metric.MetricsRegistry) (*signal.Subscription, error) {
	opts := []signal.SubscribeOption{
		signal.WithQueueOptions(queue.WithMetrics[signal.Signal](registry, "printer")),
	}
	if cfg.Queue.Backend == config.BackendBlocking {
		opts = append(opts, signal.WithBlockingQueue())
	}
	sub, err := signal.Subscribe(store, signal.Filter{}, cfg.Queue.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("subscribe printer: %w", err)
	}
	return sub, nil
}
