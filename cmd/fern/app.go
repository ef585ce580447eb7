package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/accessgrant"
	"github.com/Ramsey-B/fern/internal/repositories/account"
	"github.com/Ramsey-B/fern/internal/repositories/accountdomain"
	"github.com/Ramsey-B/fern/internal/repositories/approval"
	"github.com/Ramsey-B/fern/internal/repositories/call"
	"github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/internal/repositories/crmevent"
	"github.com/Ramsey-B/fern/internal/repositories/integration"
	"github.com/Ramsey-B/fern/internal/repositories/mergerun"
	"github.com/Ramsey-B/fern/internal/repositories/participant"
	"github.com/Ramsey-B/fern/internal/repositories/story"
	"github.com/Ramsey-B/fern/internal/repositories/transcript"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/httpjson"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/syncer"
)

const syncLockPrefix = "fern:sync:"

// app owns every long-lived component. Infrastructure comes up through
// startup so a slow database or broker is retried; services are wired once
// the infrastructure they need is connected.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	boot   *startup.Startup

	db         database.DB
	redis      *redis.Client
	graph      *graph.Client
	events     *kafka.Producer
	publisher  jobs.Publisher
	closer     io.Closer
	dispatcher *jobs.Dispatcher

	resolver *resolver.Resolver
	syncer   *syncer.Syncer
	review   *review.Service
	merging  *merging.Service
}

// infra selects which optional dependencies a command needs.
type infra struct {
	migrate bool
	// services connects the optional backends and wires the domain services.
	services   bool
	dispatcher bool
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		boot:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
}

// start connects the infrastructure and wires the services.
func (a *app) start(ctx context.Context, want infra) error {
	a.boot.AddDependency(&startup.Dependency{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			if a.db != nil {
				return nil
			}
			db, err := database.Connect(ctx, database.ConnectionConfig{
				Host:            a.cfg.DatabaseHost,
				Port:            a.cfg.DatabasePort,
				User:            a.cfg.DatabaseUserName,
				Password:        a.cfg.DatabasePassword,
				Name:            a.cfg.DatabaseName,
				SSLMode:         a.cfg.DatabaseSSLMode,
				MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		StopFunc: func(context.Context) error {
			return a.db.Close()
		},
	})

	if want.migrate {
		a.boot.AddDependency(&startup.Dependency{
			Name:      "migrations",
			Requires:  []string{"postgres"},
			StartFunc: func(context.Context) error { return a.migrate() },
		})
	}

	if want.services && a.cfg.RedisEnabled {
		a.boot.AddDependency(&startup.Dependency{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Addr:     a.cfg.RedisAddr,
					Password: a.cfg.RedisPassword,
					DB:       a.cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFunc: func(context.Context) error { return a.redis.Close() },
		})
	}

	if want.services && a.cfg.GraphEnabled {
		a.boot.AddDependency(&startup.Dependency{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     a.cfg.GraphDBHost,
					Port:     a.cfg.GraphDBPort,
					Username: a.cfg.GraphDBUser,
					Password: a.cfg.GraphDBPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("graph database unreachable: %w", err)
				}
				a.graph = client
				return nil
			},
			StopFunc: func(ctx context.Context) error { return a.graph.Close(ctx) },
		})
	}

	if want.services && a.cfg.KafkaEventsEnabled {
		a.boot.AddDependency(&startup.Dependency{
			Name: "account-events",
			StartFunc: func(context.Context) error {
				a.events = kafka.NewProducer(a.producerConfig(a.cfg.KafkaAccountEventTopic), a.logger)
				return nil
			},
			StopFunc: func(context.Context) error { return a.events.Close() },
		})
	}

	if want.dispatcher {
		a.boot.AddDependency(&startup.Dependency{
			Name:      "processing-queue",
			StartFunc: a.startDispatcher,
			StopFunc: func(ctx context.Context) error {
				err := a.dispatcher.Stop(ctx)
				return errors.Join(err, a.closer.Close())
			},
		})
	}

	if err := a.boot.Start(ctx); err != nil {
		return err
	}
	if !want.services {
		return nil
	}
	return a.wire()
}

func (a *app) stop(ctx context.Context) error {
	return a.boot.Stop(ctx)
}

func (a *app) migrate() error {
	svc := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return svc.Migrate(a.cfg.DatabaseName, a.db.SQL())
}

func (a *app) producerConfig(topic string) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        topic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeoutMs) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}
}

// startDispatcher picks the processing queue backend and starts the worker.
func (a *app) startDispatcher(ctx context.Context) error {
	backend := a.cfg.ProcessingQueueBackend
	switch backend {
	case jobs.BackendKafka:
		producer := kafka.NewProducer(a.producerConfig(a.cfg.KafkaProcessingTopic), a.logger)
		a.publisher, a.closer = jobs.NewKafkaPublisher(producer), producer
	case jobs.BackendRabbit:
		publisher, err := jobs.NewRabbitPublisher(a.cfg.RabbitURL, a.cfg.RabbitProcessingQueue)
		if err != nil {
			return err
		}
		a.publisher, a.closer = publisher, publisher
	default:
		return fmt.Errorf("unknown PROCESSING_QUEUE_BACKEND %q", backend)
	}

	retrying := jobs.NewRetryingPublisher(a.publisher, a.cfg.ProcessingJobAttempts, a.cfg.ProcessingJobBackoff, a.logger)
	a.dispatcher = jobs.NewDispatcher(retrying, backend, a.cfg.ProcessingJobBufferSize, a.logger)
	// The worker outlives the startup context.
	return a.dispatcher.Start(context.WithoutCancel(ctx))
}

// wire builds the domain services over the connected infrastructure.
func (a *app) wire() error {
	accounts := account.NewRepository(a.db, a.logger)
	domains := accountdomain.NewRepository(a.db, a.logger)
	contacts := contact.NewRepository(a.db, a.logger)
	calls := call.NewRepository(a.db, a.logger)
	participants := participant.NewRepository(a.db, a.logger)

	threshold := a.cfg.FuzzyDistanceThreshold
	a.resolver = resolver.NewResolver(a.logger, resolver.Repositories{
		Transactor:   a.db,
		Accounts:     accounts,
		Domains:      domains,
		Contacts:     contacts,
		Calls:        calls,
		Participants: participants,
	}, resolver.WithIndexFactory(func() matching.SimilarityIndex {
		return matching.NewFuzzyIndex(matching.WithThreshold(threshold))
	}))

	registry, limiters, err := a.registry()
	if err != nil {
		return err
	}

	syncOpts := []syncer.Option{
		syncer.WithLimiters(limiters),
		syncer.WithCredentialResolver(providers.PassthroughCredentials{}),
	}
	if a.redis != nil {
		syncOpts = append(syncOpts, syncer.WithLocker(redis.NewLocker(a.redis, syncLockPrefix)))
	}
	if a.dispatcher != nil {
		syncOpts = append(syncOpts, syncer.WithJobQueue(a.dispatcher))
	}
	a.syncer = syncer.NewSyncer(a.logger, syncer.Repositories{
		Transactor:   a.db,
		Integrations: integration.NewRepository(a.db, a.logger),
		Accounts:     accounts,
		Domains:      domains,
		Contacts:     contacts,
		Calls:        calls,
		Participants: participants,
		Transcripts:  transcript.NewRepository(a.db, a.logger),
		CRMEvents:    crmevent.NewRepository(a.db, a.logger),
	}, registry, a.resolver, syncer.Config{ConfigTimeout: a.cfg.SyncConfigTimeout}, syncOpts...)

	a.review = review.NewService(a.logger, review.Repositories{
		Transactor:   a.db,
		Accounts:     accounts,
		Domains:      domains,
		Calls:        calls,
		Participants: participants,
	}, a.resolver, review.Config{
		LowConfidenceThreshold: a.cfg.LowConfidenceThreshold,
		SuggestionLimit:        a.cfg.SuggestionLimit,
	})

	mergeOpts := []merging.Option{merging.WithApprovalRequired(a.cfg.MergeApprovalRequired)}
	if a.graph != nil {
		mergeOpts = append(mergeOpts, merging.WithProjector(graph.NewAccountProjection(a.graph, a.logger)))
	}
	if a.events != nil {
		mergeOpts = append(mergeOpts, merging.WithEvents(events.NewEmitter(a.events, a.logger)))
	}
	a.merging = merging.NewService(a.logger, merging.Repositories{
		Transactor:   a.db,
		Accounts:     accounts,
		Domains:      domains,
		Contacts:     contacts,
		Calls:        calls,
		Participants: participants,
		Stories:      story.NewRepository(a.db, a.logger),
		CRMEvents:    crmevent.NewRepository(a.db, a.logger),
		AccessGrants: accessgrant.NewRepository(a.db, a.logger),
		MergeRuns:    mergerun.NewRepository(a.db, a.logger),
		Approvals:    approval.NewRepository(a.db, a.logger),
	}, mergeOpts...)

	return nil
}

// registry loads the declarative providers. CRM syncs page through many
// endpoints per run, so each CRM provider is throttled by its own limiter.
func (a *app) registry() (*providers.Registry, *syncer.Limiters, error) {
	registry := providers.NewRegistry()
	limiters := syncer.NewLimiters(a.cfg.SyncPagesPerSecond, a.cfg.SyncPageBurst)
	if a.cfg.HTTPJSONProvidersFile == "" {
		a.logger.Warn("No provider definitions configured; syncs will fail for every integration")
		return registry, limiters, nil
	}

	defs, err := httpjson.LoadDefinitions(a.cfg.HTTPJSONProvidersFile)
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{Timeout: a.cfg.ProviderRequestTimeout}
	for _, def := range defs {
		opts := []httpjson.Option{httpjson.WithHTTPClient(client)}
		if def.Category == models.IntegrationCategoryCRM {
			opts = append(opts, httpjson.WithWaiter(limiters.For(def.Provider)))
		}
		httpjson.Register(registry, []httpjson.Definition{def}, a.logger, opts...)
	}
	a.logger.WithField("providers", len(defs)).Info("Registered provider definitions")
	return registry, limiters, nil
}
