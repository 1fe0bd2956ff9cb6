package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semblog/config"
	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/gateway/graphql"
	"github.com/c360/semblog/graph/resolver"
	"github.com/c360/semblog/graph/seed"
	"github.com/c360/semblog/graph/store"
	"github.com/c360/semblog/health"
	"github.com/c360/semblog/metric"
	"github.com/c360/semblog/natsclient"
	"github.com/c360/semblog/pkg/retry"
	"github.com/c360/semblog/pubsub"
)

// app holds the wired components of a running server
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics       *metric.MetricsRegistry
	metricsServer *metric.Server
	nats          *natsclient.Client
	store         *store.Store
	broker        *pubsub.Broker
	resolver      *resolver.Resolver
	server        *graphql.Server
}

// newApp builds every component from cfg without starting anything
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewMetricsRegistry()
	}

	snapshot := store.Snapshot{}
	if cfg.Seed.Enabled {
		var err error
		if snapshot, err = seed.Generate(cfg.SeedConfig()); err != nil {
			return nil, errors.Wrap(err, "App", "newApp", "generate seed data")
		}
		logger.Info("Seed data generated",
			"users", len(snapshot.Users), "posts", len(snapshot.Posts), "comments", len(snapshot.Comments))
	}
	a.store = store.FromSnapshot(snapshot)

	brokerOpts := []pubsub.Option{pubsub.WithLogger(logger)}
	if a.metrics != nil {
		brokerOpts = append(brokerOpts, pubsub.WithMetrics(a.metrics))
	}
	if cfg.NATS.Enabled {
		client, err := a.newNATSClient()
		if err != nil {
			return nil, err
		}
		a.nats = client
		brokerOpts = append(brokerOpts,
			pubsub.WithMirror(pubsub.NewNATSMirror(client, cfg.NATS.SubjectPrefix, logger)))
	}

	broker, err := pubsub.NewBroker(cfg.BrokerConfig(), brokerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "App", "newApp", "create broker")
	}
	a.broker = broker

	a.resolver, err = resolver.New(resolver.Dependencies{
		Store:              a.store,
		Events:             broker,
		Metrics:            a.metrics,
		Logger:             logger,
		SubscriptionBuffer: cfg.Subscriptions.BufferSize,
	})
	if err != nil {
		return nil, err
	}

	schema, err := graphql.LoadSchema()
	if err != nil {
		return nil, err
	}
	executor, err := graphql.NewExecutor(schema, a.resolver, cfg.GraphQL.MaxQueryDepth, logger)
	if err != nil {
		return nil, err
	}

	reporters := []health.Reporter{a.broker, a.resolver}
	if a.nats != nil {
		reporters = append(reporters, a.nats)
	}
	serverOpts := []graphql.ServerOption{graphql.WithHealthReporters(reporters...)}
	if a.metrics != nil {
		if cfg.Metrics.Address == "" {
			serverOpts = append(serverOpts, graphql.WithHandler(cfg.Metrics.Path, a.metrics.Handler()))
		} else {
			a.metricsServer = metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, a.metrics)
		}
	}

	a.server, err = graphql.NewServer(cfg.GraphQL, executor, logger, serverOpts...)
	if err != nil {
		return nil, err
	}
	if err := a.server.Setup(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) newNATSClient() (*natsclient.Client, error) {
	opts := append(a.cfg.NATS.ClientOptions(),
		natsclient.WithLogger(a.logger),
		natsclient.WithClientName(appName))
	if a.metrics != nil {
		core := a.metrics.CoreMetrics()
		opts = append(opts, natsclient.WithHealthChangeCallback(core.RecordNATSStatus))
	}
	client, err := natsclient.NewClient(a.cfg.NATS.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "App", "newNATSClient", "create client")
	}
	return client, nil
}

// run serves until ctx is cancelled or a component fails, then shuts down
// in reverse start order
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	// The delivery pool outlives ctx so queued events drain on Close
	brokerCtx, stopBroker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBroker()
	if err := a.broker.Start(brokerCtx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(gctx, nil)
	})

	if a.metricsServer != nil {
		g.Go(a.metricsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.metricsServer.Stop(stopCtx)
		})
		a.logger.Info("Metrics server enabled", "url", a.metricsServer.Address())
	}

	if a.nats != nil {
		g.Go(func() error {
			a.connectNATS(gctx)
			return nil
		})
	}

	a.logger.Info("semblog started", "address", a.cfg.GraphQL.BindAddress, "path", a.cfg.GraphQL.Path)
	err := g.Wait()

	a.logger.Info("Shutting down")
	if closeErr := a.broker.Close(); closeErr != nil {
		a.logger.Warn("Broker did not drain", "error", closeErr)
	}
	if a.nats != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if closeErr := a.nats.Close(closeCtx); closeErr != nil {
			a.logger.Warn("NATS close failed", "error", closeErr)
		}
		cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connectNATS retries until the mirror is connected or ctx ends. Mutations
// keep working while the mirror is down.
func (a *app) connectNATS(ctx context.Context) {
	wait := a.cfg.NATS.ReconnectWait.Duration()
	if wait <= 0 {
		wait = 2 * time.Second
	}
	policy := retry.Forever(wait, max(wait, 30*time.Second))
	policy.OnRetry = func(attempt int, err error, next time.Duration) {
		a.logger.Warn("NATS mirror unavailable, retrying",
			"attempt", attempt, "error", err, "retry_in", next)
	}

	err := retry.Do(ctx, policy, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.NATS.ConnectTimeout.Duration()+time.Second)
		defer cancel()
		return a.nats.Connect(attemptCtx)
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Error("NATS mirror disabled", "error", err)
	}
}
