// Package main is the entry point for the BZZ exchange CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fd1az/bzz-exchange/business/exchange"
	exchangeDI "github.com/fd1az/bzz-exchange/business/exchange/di"
	"github.com/fd1az/bzz-exchange/internal/apm"
	"github.com/fd1az/bzz-exchange/internal/config"
	"github.com/fd1az/bzz-exchange/internal/health"
	"github.com/fd1az/bzz-exchange/internal/logger"
	"github.com/fd1az/bzz-exchange/internal/metrics"
	"github.com/fd1az/bzz-exchange/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: bzzx [flags] <command> [command flags]

commands:
  buy           buy BZZ with DAI, USDC or USDT
  sell          sell BZZ for DAI, USDC or USDT
  quote         compare every coin and venue for an amount
  fee           set the exchange fee as the owner
  demo          round-trip every coin and venue, then sweep the fees
  remote-quote  read buyPrice/sellReward from a deployed curve

flags:
`)
	flag.PrintDefaults()
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("bzzx %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.NewConsoleWriter(os.Stderr), logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, apm.TraceID)
	log.Debug(ctx, "starting bzzx", "version", version, "environment", cfg.App.Environment)

	if cfg.Telemetry.Enabled {
		shutdown, err := startTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&exchange.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	if cfg.Telemetry.Enabled {
		hs := health.NewServer(version)
		exchange.RegisterHealthChecks(hs, mono.Services())
		go func() {
			if err := hs.Serve(ctx, cfg.Telemetry.HealthPort, log); err != nil {
				log.Warn(ctx, "health server stopped", "error", err)
			}
		}()
	}

	c := &cli{
		cfg:    cfg,
		log:    log,
		mono:   mono,
		env:    exchangeDI.GetEnv(mono.Services()),
		ex:     exchangeDI.GetExchange(mono.Services()),
		acct:   exchangeDI.GetAccount(mono.Services()),
		out:    os.Stdout,
		linger: cfg.Telemetry.Enabled,
	}
	return c.dispatch(ctx, args[0], args[1:])
}

// startTelemetry installs tracing and metrics and serves /metrics in the
// background.
func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
	if err != nil {
		return nil, err
	}

	tp, err := apm.NewTraceProvider(ctx, apm.Provider(cfg.Telemetry.TraceProvider), apm.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if cfg.Telemetry.TraceProvider == string(apm.OTLPGRPCProvider) && cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, headers, metrics.SecureOtel)))
	}
	mp, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		_ = tp.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go func() {
		if err := metrics.ServePrometheusMetrics(ctx, log, metrics.WithPort(strconv.Itoa(port))); err != nil {
			log.Error(ctx, "metrics server stopped", "error", err)
		}
	}()

	return func() {
		_ = mp.Shutdown(context.Background())
		if err := tp.Stop(); err != nil {
			log.Warn(ctx, "trace provider shutdown", "error", err)
		}
	}, nil
}
