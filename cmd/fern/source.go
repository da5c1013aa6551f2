package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/rewriter"
	"github.com/Ramsey-B/fern/pkg/source"
	"github.com/Ramsey-B/fern/pkg/sourcing"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

var (
	dryRun      bool
	noDownload  bool
	collections []string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Run one sourcing pass over the site",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSource(ctx, cfg, logger)
	},
}

func init() {
	sourceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write nodes as JSON lines to stdout instead of the configured sinks")
	sourceCmd.Flags().BoolVar(&noDownload, "no-download", false, "Do not download assets")
	sourceCmd.Flags().StringSliceVar(&collections, "collections", nil, "Collections to fetch (content, shop, channels)")
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	return cfg.Override(func(cfg *config.Config) {
		if noDownload {
			cfg.DownloadAssets = false
		}
		if cmd.Flags().Changed("collections") {
			cfg.IncludeCollections = collections
		}
		if dryRun {
			cfg.GraphSinks = []string{"stdout"}
		}
	})
}

func runSource(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	httpClient := httpclient.NewClient(httpclient.Config{
		Timeout:         cfg.HTTPTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}, logger)

	src, err := source.NewClient(httpClient, source.Config{
		BaseURL:  cfg.NimbuAPIURL,
		Token:    cfg.NimbuAccessToken,
		PageSize: cfg.PaginationSize,
	}, logger)
	if err != nil {
		return err
	}

	site, err := src.Site(ctx)
	if err != nil {
		if source.IsRequestError(err) {
			logger.WithError(err).Error("Failed to look up the Nimbu site")
			return nil
		}
		return err
	}
	siteLogger := logger.WithField("site", site)

	deps := startup.New(siteLogger, cfg.StartupMaxAttempts)
	checker := health.NewChecker(version)

	cache, locker, err := buildCache(cfg, deps, checker, logger)
	if err != nil {
		return err
	}
	sink, err := buildSink(cfg, site, deps, logger)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		server := health.NewServer(cfg.MetricsAddr, cfg.AppName, checker, logger)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to stop ops server")
			}
		}()
	}

	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := deps.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to stop dependencies")
		}
	}()

	store := assets.NewFileStore(httpClient, cfg.AssetDir, cfg.AssetPublicPath, logger)
	downloader := assets.NewDownloader(cache, store, sink, logger, cfg.DownloadAssets)
	rw := rewriter.New(downloader, cfg.CDNPrefix, logger)
	res := resolver.New(downloader, rw, cfg.MaxNestingDepth, logger)
	m := materializer.New(res, logger)

	runner := sourcing.NewRunner(src, m, sink, downloader, sourcing.Options{
		Site:            site,
		Groups:          models.ParseGroups(cfg.IncludeCollections),
		IncludeChannels: cfg.IncludeChannels,
		ExcludeChannels: cfg.ExcludeChannels,
		Verbose:         cfg.Verbose,
	}, logger)
	if locker != nil {
		runner.WithLock(locker, cfg.RunLockTTL)
	}

	checker.SetReady(true)
	report, err := runner.Run(ctx)
	if report != nil {
		checker.SetLastRun(report)
		siteLogger.WithFields(map[string]any{
			"nodes":      report.Nodes,
			"downloads":  report.Assets.Downloads,
			"cache_hits": report.Assets.CacheHits,
			"failures":   report.Assets.Failures,
			"duration":   report.Duration,
			"aborted":    report.Aborted,
		}).Info("Run report")
	}
	return err
}

// buildCache selects the persistent asset cache. The run lock is only
// available with redis.
func buildCache(cfg *config.Config, deps *startup.Startup, checker *health.Checker, logger ectologger.Logger) (assets.Cache, sourcing.Locker, error) {
	switch cfg.CacheDriver {
	case "redis":
		client := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		deps.Add(client)
		checker.AddProbe("redis", func(context.Context) error { return client.Ping() })
		return assets.NewRedisCache(client, cfg.CacheTTL), redis.NewLocker(client, "fern:"), nil

	case database.DriverPostgres, database.DriverSQLite:
		dbCfg := database.Config{
			Driver:       cfg.CacheDriver,
			DSN:          cfg.CacheSQLitePath,
			MaxOpenConns: cfg.DatabaseMaxOpenConns,
			Migrate:      cfg.DatabaseMigrate,
		}
		if cfg.CacheDriver == database.DriverPostgres {
			dbCfg.DSN = database.PostgresDSN(cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)
		}

		db, err := database.Open(dbCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Add(db)
		checker.AddProbe("database", func(ctx context.Context) error { return db.PingContext(ctx) })
		return assets.NewSQLCache(db), nil, nil

	default:
		return assets.NewMemoryCache(), nil, nil
	}
}

func buildSink(cfg *config.Config, site string, deps *startup.Startup, logger ectologger.Logger) (graph.Sink, error) {
	var sinks graph.MultiSink
	for _, name := range cfg.GraphSinks {
		switch name {
		case "neo4j":
			client, err := graph.NewClient(graph.Config{
				Host:     cfg.GraphDBHost,
				Port:     cfg.GraphDBPort,
				Username: cfg.GraphDBUser,
				Password: cfg.GraphDBPassword,
			}, logger)
			if err != nil {
				return nil, err
			}
			deps.Add(client)
			sinks = append(sinks, graph.NewNeo4jSink(client, logger))

		case "kafka":
			producer := kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaNodeTopic,
				BatchTimeout: 50 * time.Millisecond,
				RequiredAcks: 1,
			}, logger)
			deps.Add(producer)
			sinks = append(sinks, kafka.NewSink(producer, site))

		case "stdout":
			sinks = append(sinks, graph.NewJSONSink(os.Stdout))

		default:
			return nil, fmt.Errorf("unknown graph sink %q", name)
		}
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	if !cfg.OTLPEnabled {
		return func() {}, nil
	}

	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.AppName))),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}
