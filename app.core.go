package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	redis          *redis.Client
	closers        []func() error
	cleanups       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App. Any resource opened before
// a failure is released before returning.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %w", err)
	}

	// ensure the logs folder exists and setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %w", err)
	}
	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{
		logger:   logger,
		config:   config,
		cleanups: []func() error{flusher, logWriter.Close},
	}

	storage, err := app.setupStorage()
	if err != nil {
		app.Close()
		app.Clean()
		return nil, err
	}

	queue, err := app.setupQueue(storage)
	if err != nil {
		app.Close()
		app.Clean()
		return nil, err
	}

	bookService := NewBookService(logger, config, storage, queue)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		bookService,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        apiService.CORSHandler(routerWithTimeout),
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}
	return app, nil
}

// setupStorage connects the configured storage engine.
func (app *App) setupStorage() (BookStorage, error) {
	switch app.config.Storage.Engine {
	case EngineRedis:
		client, err := app.redisClient()
		if err != nil {
			return nil, err
		}
		return NewRedisBookStorage(app.logger, client), nil

	case EnginePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Postgres.ConnectTimeout)
		defer cancel()
		pool, err := GetPostgresPool(ctx, &app.config.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres server: %w", err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		if err = MigratePostgres(pool); err != nil {
			return nil, err
		}
		return NewPostgresBookStorage(app.logger, pool), nil

	default:
		client, err := GetBoltDBClient(&app.config.BoltDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open boltdb storage: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		return NewBoltBookStorage(app.logger, &app.config.BoltDB, client), nil
	}
}

// setupQueue connects the configured change queue and registers
// the archive consumer, which reads books back from storage.
// It returns nil when no queue is configured.
func (app *App) setupQueue(storage BookStorage) (Queuer, error) {
	var queue Queuer
	switch app.config.Queue.Engine {
	case EngineRedis:
		client, err := app.redisClient()
		if err != nil {
			return nil, err
		}
		queue = NewRedisQueue(client)
	case EngineAMQP:
		q, err := NewAMQPQueue(&app.config.AMQP, CreateQueue, ToggleQueue)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, q.Close)
		queue = q
	default:
		return nil, nil
	}

	archiveClient, err := GetBoltDBClient(&app.config.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive storage: %w", err)
	}
	app.closers = append(app.closers, archiveClient.Close)
	archive := NewBoltBookStorage(app.logger, &app.config.Archive, archiveClient)
	consumer := NewArchiveConsumer(app.logger, queue, storage, archive)
	app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
		return consumer.Consume(ctx, CreateQueue, ToggleQueue)
	})
	return queue, nil
}

// redisClient connects once to redis. The storage and the queue share it.
func (app *App) redisClient() (*redis.Client, error) {
	if app.redis != nil {
		return app.redis, nil
	}
	client, err := GetRedisClient(&app.config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis server: %w", err)
	}
	app.closers = append(app.closers, client.Close)
	app.redis = client
	return client, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Close releases storage and queue clients in reverse order of creation.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("failed to close client", zap.Error(err))
		}
	}
	app.closers = nil
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		if err := f(); err != nil {
			fmt.Fprintln(os.Stderr, "cleanup:", err)
		}
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("storage.engine", app.config.Storage.Engine),
			zap.String("queue.engine", app.config.Queue.Engine),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// We proceed with a brutal shutdown if the graceful did not complete successfully.
// It returns `nil` so the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		app.Close()
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
