package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/dependencies"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/approval"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/integration"
	"github.com/Ramsey-B/fern/pkg/routes/merge"
	"github.com/Ramsey-B/fern/pkg/routes/resolve"
	"github.com/Ramsey-B/fern/pkg/routes/review"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := bootstrap()
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.AppName, exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  cfg.TracingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}

	a := newApp(cfg, logger)
	if err := a.start(ctx, infra{migrate: cfg.DatabaseMigrateOnStart, services: true, dispatcher: true}); err != nil {
		return errors.Join(err, a.stop(context.WithoutCancel(ctx)), shutdownTracing(context.WithoutCancel(ctx)))
	}

	checker := health.NewChecker(version)
	checker.AddCheck("postgres", health.PingFunc(a.db.PingContext))
	if a.redis != nil {
		checker.AddCheck("redis", health.PingFunc(a.redis.Ping))
	}
	if a.graph != nil {
		checker.AddCheck("graph", health.PingFunc(a.graph.VerifyConnectivity))
	}

	e, err := newServer(ctx, cfg, logger, a, checker)
	if err != nil {
		return errors.Join(err, a.stop(context.WithoutCancel(ctx)), shutdownTracing(context.WithoutCancel(ctx)))
	}
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        e,
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.NewScheduler(a.syncer, cfg.SyncInterval, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", server.Addr)
		checker.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sched != nil {
		g.Go(func() error {
			return sched.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		checker.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if sched != nil {
			errs = append(errs, sched.Stop(shutdownCtx))
		}
		errs = append(errs,
			server.Shutdown(shutdownCtx),
			a.stop(shutdownCtx),
			shutdownTracing(shutdownCtx),
		)
		logger.Info("Shutdown complete")
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newServer mounts every route group on an echo instance.
func newServer(ctx context.Context, cfg *config.Config, logger ectologger.Logger, a *app, checker *health.Checker) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to configure authentication: %w", err)
		}
		api.Use(middleware.Authentication(logger, verifier))
	}
	api.Use(middleware.RequireOrganization())

	container, err := dependencies.NewContainer(cfg.AppName, logger,
		dependencies.Instance[review.Queue](a.review),
		dependencies.Instance[merge.Merger](a.merging),
		dependencies.Instance[approval.Workflow](a.merging),
		dependencies.Instance[resolve.Resolver](a.resolver),
		dependencies.Instance[integration.Syncer](a.syncer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build the dependency container: %w", err)
	}
	api.Use(middleware.Container(container.GetContainerID()))

	review.Register(api.Group("/review"))
	merge.Register(api.Group("/accounts"))
	approval.Register(api.Group("/approvals"))
	resolve.Register(api)
	integration.Register(api.Group("/integrations"))

	return e, nil
}
