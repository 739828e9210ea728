package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/affiliate/internal/db"
	"github.com/nkiryanov/affiliate/internal/handlers"
	"github.com/nkiryanov/affiliate/internal/logger"
	"github.com/nkiryanov/affiliate/internal/metrics"
	"github.com/nkiryanov/affiliate/internal/repository/postgres"
	"github.com/nkiryanov/affiliate/internal/service/account"
	"github.com/nkiryanov/affiliate/internal/service/cashout"
	"github.com/nkiryanov/affiliate/internal/service/commission"
	"github.com/nkiryanov/affiliate/internal/service/eventrelay"
	"github.com/nkiryanov/affiliate/internal/service/projection"
	"github.com/nkiryanov/affiliate/internal/service/saleprocessor"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	ListenAddr string
	Handler    http.Handler

	// Nil when kafka brokers are not configured
	processor *saleprocessor.Processor
	relay     *eventrelay.Relay
	publisher *eventrelay.KafkaPublisher

	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	storage := postgres.NewStorage(pool)

	// Initialize services
	accountService, err := account.NewService(storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating account service. Err: %w", err)
	}
	commissionService := commission.NewService(storage, m, l)
	cashoutService := cashout.NewService(storage, c.CashoutPolicy(), m, l)
	projectionService := projection.NewService(storage, m, l)

	app := &App{
		ListenAddr: c.ListenAddr,
		Handler: handlers.NewRouter(
			handlers.Services{
				Account:    accountService,
				Commission: commissionService,
				Cashout:    cashoutService,
				Projection: projectionService,
			},
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			m,
			l,
		),
		pool:   pool,
		logger: l,
	}

	if len(c.KafkaBrokers) > 0 {
		app.processor = saleprocessor.New(saleprocessor.Config{
			Brokers: c.KafkaBrokers,
			Topic:   c.SalesTopic,
		}, commissionService, m, l)

		app.publisher = eventrelay.NewKafkaPublisher(c.KafkaBrokers, c.LedgerEventsTopic)
		app.relay = eventrelay.New(eventrelay.Config{}, storage, app.publisher, m, l)
	} else {
		l.Warn("Kafka brokers not set, sale consumer and event relay are disabled")
	}

	return app, nil
}

// Run http server and background workers until context cancelled or any of them failed
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.serve(ctx)
	})

	if a.processor != nil {
		g.Go(func() error {
			<-a.processor.Process(ctx)
			return nil
		})
	}

	if a.relay != nil {
		g.Go(func() error {
			<-a.relay.Run(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Listen and serve until context is cancelled; then close gracefully connections
func (a *App) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    a.ListenAddr,
		Handler: a.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			a.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		a.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	a.logger.Info("Starting server", "address", a.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Failed to close kafka publisher", "error", err)
		}
	}
	a.pool.Close()
}
