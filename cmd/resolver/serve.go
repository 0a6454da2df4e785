package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hollomancer/sbir-analytics-sub004/internal/container"
	"github.com/hollomancer/sbir-analytics-sub004/internal/database"
	"github.com/hollomancer/sbir-analytics-sub004/internal/ingest"
	"github.com/hollomancer/sbir-analytics-sub004/internal/metrics"
	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/crosswalkrecord"
	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/reviewcandidate"
	"github.com/hollomancer/sbir-analytics-sub004/internal/server"
	"github.com/hollomancer/sbir-analytics-sub004/internal/startup"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing/exporters"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/cache"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/events"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/graph"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/kafka"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/health"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the resolution API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

// infra holds the backing services. Each field is nil when its backend is
// disabled.
type infra struct {
	db       database.DB
	graph    *graph.Client
	producer *kafka.Producer
	redis    *cache.Redis
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg, logger := root.cfg, root.logger

	var exporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		exp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = exp
	}
	shutdownTracing := tracing.Setup(cfg.AppName, exporter)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	deps := &infra{}
	infraStartup := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	addInfra(infraStartup, root, deps)
	if err := infraStartup.Start(ctx); err != nil {
		return err
	}
	stopCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	}
	defer func() {
		ctx, cancel := stopCtx()
		defer cancel()
		if err := infraStartup.Stop(ctx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	m := metrics.New()
	svc := newService(root, deps, m)
	defer func() {
		ctx, cancel := stopCtx()
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			logger.WithError(err).Error("Failed to drain crosswalk changes")
		}
	}()

	checker := health.NewChecker(cfg.Version, svc.Ready)
	if deps.db != nil {
		checker.AddCheck("postgres", deps.db.SQL())
	}
	if deps.graph != nil {
		checker.AddCheck("graph", health.PingFunc(deps.graph.VerifyConnectivity))
	}
	if deps.redis != nil {
		checker.AddCheck("redis", health.PingFunc(deps.redis.Ping))
	}

	di, err := container.New(cfg.AppName, svc, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server(), di.GetContainerID(), checker, m.Handler(), logger)

	app := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	app.AddDependency(&startup.Func{
		Name: "references",
		StartFunc: func(ctx context.Context) error {
			return loadReferences(ctx, svc, cfg.ReferencePath)
		},
	})
	app.AddDependency(&startup.Func{
		Name: "snapshot",
		StartFunc: func(ctx context.Context) error {
			return loadSnapshot(ctx, svc, cfg.CrosswalkSnapshotPath)
		},
		StopFunc: func(ctx context.Context) error {
			if cfg.CrosswalkSnapshotPath == "" {
				return nil
			}
			return svc.SaveSnapshot(ctx)
		},
	})
	app.AddDependency(srv)
	if err := app.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-srv.Errors():
		logger.WithError(runErr).Error("HTTP server stopped unexpectedly")
	}

	sctx, cancel := stopCtx()
	defer cancel()
	return errors.Join(runErr, app.Stop(sctx))
}

func addInfra(s *startup.Startup, root *rootOptions, deps *infra) {
	cfg, logger := root.cfg, root.logger

	if cfg.DatabaseEnabled() {
		s.AddDependency(&startup.Func{
			Name: "postgres",
			StartFunc: func(ctx context.Context) error {
				db, err := database.Connect(ctx, cfg.Database(), logger)
				if err != nil {
					return err
				}
				deps.db = db
				return nil
			},
			StopFunc: func(context.Context) error {
				if deps.db == nil {
					return nil
				}
				return deps.db.SQL().Close()
			},
		})
		s.AddDependency(&startup.Func{
			Name:     "migrations",
			Requires: []string{"postgres"},
			StartFunc: func(context.Context) error {
				return database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(deps.db, cfg.DatabaseName)
			},
		})
	}

	if cfg.GraphDBEnabled {
		s.AddDependency(&startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("graph database unreachable: %w", err)
				}
				deps.graph = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if deps.graph == nil {
					return nil
				}
				return deps.graph.Close(ctx)
			},
		})
	}

	if cfg.KafkaEnabled {
		s.AddDependency(&startup.Func{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				deps.producer = kafka.NewProducer(cfg.Producer(), logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if deps.producer == nil {
					return nil
				}
				return deps.producer.Close()
			},
		})
	}

	if cfg.RedisEnabled {
		s.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				r := cache.NewRedis(cfg.Redis())
				if err := r.Ping(ctx); err != nil {
					_ = r.Close()
					return fmt.Errorf("redis unreachable: %w", err)
				}
				deps.redis = r
				return nil
			},
			StopFunc: func(context.Context) error {
				if deps.redis == nil {
					return nil
				}
				return deps.redis.Close()
			},
		})
	}
}

func newService(root *rootOptions, deps *infra, m *metrics.Metrics) *resolver.Service {
	cfg, logger := root.cfg, root.logger

	opts := []resolver.Option{
		resolver.WithWorkers(cfg.MatchWorkers, cfg.MatchChunkSize),
		resolver.WithRecorder(m),
		resolver.WithSnapshotPath(cfg.CrosswalkSnapshotPath),
	}

	if deps.redis != nil {
		opts = append(opts, resolver.WithCache(deps.redis, cfg.CacheTTL))
	} else if mem, err := cache.NewMemory(cfg.MemoryCacheSize); err == nil {
		opts = append(opts, resolver.WithCache(mem, cfg.CacheTTL))
	} else {
		logger.WithError(err).Warn("Match cache disabled")
	}

	if deps.db != nil {
		opts = append(opts,
			resolver.WithReviewStore(reviewcandidate.NewRepository(deps.db, logger)),
			resolver.WithMirror(crosswalkrecord.NewRepository(deps.db, logger)),
		)
	} else {
		opts = append(opts, resolver.WithReviewStore(reviewcandidate.NewMemory()))
	}
	if deps.graph != nil {
		opts = append(opts, resolver.WithMirror(graph.NewOrganizationService(deps.graph, logger)))
	}
	if deps.producer != nil {
		opts = append(opts, resolver.WithEvents(events.NewEmitter(deps.producer, logger)))
	}

	return resolver.New(matching.NewMatcher(root.matcher, logger), logger, opts...)
}

func loadReferences(ctx context.Context, svc *resolver.Service, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open reference file: %w", err)
	}
	defer f.Close()

	orgs, err := ingest.ReadReferences(ctx, f)
	if err != nil {
		return err
	}
	_, err = svc.LoadReferences(ctx, orgs)
	return err
}

// loadSnapshot restores the crosswalk when a snapshot exists. A missing file
// means a fresh deployment.
func loadSnapshot(ctx context.Context, svc *resolver.Service, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	_, err := svc.LoadSnapshot(ctx)
	return err
}
