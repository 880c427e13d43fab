// Package main runs the Pyth push-oracle updater: it keeps Pyth price feeds
// on one or more EVM networks fresh by pushing Hermes price updates whenever
// a feed deviates or its heartbeat expires.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/archon-research/oracle-pusher/db"
	"github.com/archon-research/oracle-pusher/db/migrator"
	httpadapter "github.com/archon-research/oracle-pusher/internal/adapters/inbound/http"
	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/evm"
	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/hermes"
	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/postgres"
	snsadapter "github.com/archon-research/oracle-pusher/internal/adapters/outbound/sns"
	"github.com/archon-research/oracle-pusher/internal/adapters/outbound/telemetry"
	"github.com/archon-research/oracle-pusher/internal/config"
	"github.com/archon-research/oracle-pusher/internal/pkg/env"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
	"github.com/archon-research/oracle-pusher/internal/services/oracle_pusher"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

const shutdownTimeout = 25 * time.Second

func main() {
	// A missing .env file is fine; the environment may be set by the platform.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	configPath  string
	healthAddr  string
	showVersion bool
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("oracle-pusher", flag.ContinueOnError)
	configPath := fs.String("config", env.Get("CONFIG_PATH", "config.json"), "Path to the JSON or YAML configuration file")
	healthAddr := fs.String("health-addr", env.Get("HEALTH_ADDR", ":8080"), "Address of the health and status HTTP server")
	showVersion := fs.Bool("version", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cliConfig{
		configPath:  *configPath,
		healthAddr:  *healthAddr,
		showVersion: *showVersion,
	}, nil
}

// runtimeConfig holds the optional tuning knobs read from the environment.
type runtimeConfig struct {
	callTimeout           time.Duration
	confirmTimeout        time.Duration
	maxConcurrentNetworks int
	topicARN              string
	databaseURL           string
}

func parseRuntimeConfig() (runtimeConfig, error) {
	callTimeout, err := env.Seconds("CALL_TIMEOUT_SECONDS", 0)
	if err != nil {
		return runtimeConfig{}, err
	}
	confirmTimeout, err := env.Seconds("CONFIRM_TIMEOUT_SECONDS", 0)
	if err != nil {
		return runtimeConfig{}, err
	}
	maxConcurrent, err := env.Int("MAX_CONCURRENT_NETWORKS", 0)
	if err != nil {
		return runtimeConfig{}, err
	}
	if maxConcurrent < 0 {
		return runtimeConfig{}, fmt.Errorf("MAX_CONCURRENT_NETWORKS must not be negative, got %d", maxConcurrent)
	}
	return runtimeConfig{
		callTimeout:           callTimeout,
		confirmTimeout:        confirmTimeout,
		maxConcurrentNetworks: maxConcurrent,
		topicARN:              env.Get("UPDATE_RECORDS_TOPIC_ARN", ""),
		databaseURL:           env.Get("DATABASE_URL", ""),
	}, nil
}

// newLogger writes text logs to stdout and, when LOG_FILE is set, to a
// rotating file as well. The returned closer flushes the file.
func newLogger(stdout io.Writer) (*slog.Logger, io.Closer) {
	var (
		out    = stdout
		closer io.Closer
	)
	if path := env.Get("LOG_FILE", ""); path != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(stdout, fileLogger)
		closer = fileLogger
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	return logger, closer
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cli, err := parseFlags(args)
	if err != nil {
		return err
	}

	if cli.showVersion {
		fmt.Fprintf(stdout, "oracle-pusher\n")
		fmt.Fprintf(stdout, "  Commit:     %s\n", GitCommit)
		fmt.Fprintf(stdout, "  Branch:     %s\n", GitBranch)
		fmt.Fprintf(stdout, "  Build Time: %s\n", BuildTime)
		return nil
	}

	logger, logCloser := newLogger(stdout)
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := parseRuntimeConfig()
	if err != nil {
		return err
	}

	logger.Info("starting oracle pusher", "commit", GitCommit, "config", cfg)

	shutdownTelemetry, metrics, err := setupTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	networks, closeNetworks, err := dialNetworks(ctx, cfg, rt, logger)
	if err != nil {
		return err
	}
	defer closeNetworks()

	source, err := hermes.NewClient(hermes.ClientConfig{
		BaseURL: cfg.HermesURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating hermes client: %w", err)
	}

	sink, closeSinkDeps, err := buildSink(ctx, rt, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing record sinks", "error", err)
		}
		closeSinkDeps()
	}()

	store := memory.NewFeedStateStore(cfg.Feeds)
	logger.Info("feed state declared", "feeds", len(cfg.Feeds), "pairs", store.PairCount())

	service, err := oracle_pusher.NewService(
		oracle_pusher.Config{
			PollInterval:          cfg.PollInterval,
			CallTimeout:           rt.callTimeout,
			MaxConcurrentNetworks: rt.maxConcurrentNetworks,
			Logger:                logger,
		},
		cfg.Feeds,
		networks,
		source,
		store,
		sink,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	var shuttingDown atomic.Bool
	health := httpadapter.NewHealthServer(httpadapter.HealthServerConfig{
		Addr:   cli.healthAddr,
		Logger: logger,
		Routes: httpadapter.NewHandler(service, logger).RegisterRoutes,
	}, service, &shuttingDown)
	if err := health.Start(); err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	shuttingDown.Store(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := service.Stop(); err != nil {
			logger.Error("error stopping service", "error", err)
		}
	}()

	select {
	case <-shutdownDone:
	case <-shutdownCtx.Done():
		return errors.New("shutdown timed out")
	}

	if err := health.Shutdown(5 * time.Second); err != nil {
		logger.Warn("health server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func setupTelemetry(ctx context.Context) (func(context.Context) error, outbound.MetricsRecorder, error) {
	endpoint := env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	res := telemetry.Resource{
		ServiceName:    telemetry.DefaultServiceName,
		ServiceVersion: GitCommit,
		Environment:    env.Get("ENVIRONMENT", "development"),
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Resource:     res,
		OTLPEndpoint: endpoint,
		Stdout:       env.Bool("OTEL_TRACES_STDOUT"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracer: %w", err)
	}

	shutdownMeter, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		Resource:     res,
		OTLPEndpoint: endpoint,
	})
	if err != nil {
		_ = shutdownTracer(ctx)
		return nil, nil, fmt.Errorf("initializing metrics: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telemetry.DefaultServiceName)
	if err != nil {
		_ = shutdownTracer(ctx)
		_ = shutdownMeter(ctx)
		return nil, nil, fmt.Errorf("creating metrics: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(shutdownMeter(ctx), shutdownTracer(ctx))
	}
	return shutdown, metrics, nil
}

func dialNetworks(ctx context.Context, cfg *config.Config, rt runtimeConfig, logger *slog.Logger) ([]oracle_pusher.Network, func(), error) {
	var clients []*ethclient.Client
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	networks := make([]oracle_pusher.Network, 0, len(cfg.Networks))
	for _, spec := range cfg.Networks {
		client, err := ethclient.DialContext(ctx, spec.RPCURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting to %s RPC: %w", spec.Name, err)
		}
		clients = append(clients, client)

		oracle, err := evm.NewOracle(client, evm.Config{
			Network:        spec.Name,
			ChainID:        spec.ChainID,
			OracleAddress:  spec.OracleAddress,
			PrivateKey:     cfg.PrivateKey,
			ConfirmTimeout: rt.confirmTimeout,
			Logger:         logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("creating oracle for %s: %w", spec.Name, err)
		}

		logger.Info("network configured",
			"network", spec.Name,
			"chainId", spec.ChainID,
			"oracle", spec.OracleAddress.Hex(),
			"sender", oracle.From().Hex())

		networks = append(networks, oracle_pusher.Network{Spec: spec, Oracle: oracle})
	}
	return networks, closeAll, nil
}

// buildSink wires the configured record sinks: SNS when a topic is set and
// PostgreSQL when a database URL is set. Without a database, the last records
// are kept in memory for the status endpoint. The returned cleanup releases
// the database pool and must run after the sinks are closed.
func buildSink(ctx context.Context, rt runtimeConfig, logger *slog.Logger) (*oracle_pusher.MultiSink, func(), error) {
	var sinks []outbound.UpdateRecordSink
	cleanup := func() {}

	if rt.topicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}

		var snsOptFns []func(*awssns.Options)
		if endpoint := env.Get("AWS_SNS_ENDPOINT", ""); endpoint != "" {
			snsOptFns = append(snsOptFns, func(o *awssns.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		}

		snsSink, err := snsadapter.NewRecordSink(awssns.NewFromConfig(awsCfg, snsOptFns...), snsadapter.Config{
			TopicARN: rt.topicARN,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating SNS record sink: %w", err)
		}
		sinks = append(sinks, snsSink)
		logger.Info("publishing update records to SNS", "topic", rt.topicARN)
	}

	if rt.databaseURL == "" {
		sinks = append(sinks, memory.NewRecordSink(memory.DefaultRecordLimit))
		return oracle_pusher.NewMultiSink(sinks...), cleanup, nil
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(rt.databaseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrator.NewFS(pool, db.Migrations(), logger).ApplyAll(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("applying migrations: %w", err)
	}
	repo, err := postgres.NewUpdateRecordRepository(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating update record repository: %w", err)
	}
	sinks = append(sinks, repo)
	logger.Info("storing update records in PostgreSQL")

	return oracle_pusher.NewMultiSink(sinks...), pool.Close, nil
}
