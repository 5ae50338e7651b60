package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	app "github.com/muhammadchandra19/execution-engine/internal/app/engine"
	"github.com/muhammadchandra19/execution-engine/internal/infrastructure/connector/sim"
	kafkajournal "github.com/muhammadchandra19/execution-engine/internal/infrastructure/kafka/journal"
	pgjournal "github.com/muhammadchandra19/execution-engine/internal/infrastructure/postgresql/journal"
	"github.com/muhammadchandra19/execution-engine/internal/infrastructure/redis/snapshot"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/brokerclock"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/fills"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/journal"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/orderstore"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/ratelimit"
	"github.com/muhammadchandra19/execution-engine/internal/usecase/reconciler"
	"github.com/muhammadchandra19/execution-engine/pkg/config"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	migrationpg "github.com/muhammadchandra19/execution-engine/pkg/migration-pg"
	"github.com/muhammadchandra19/execution-engine/pkg/postgresql"
	"github.com/muhammadchandra19/execution-engine/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	config.MustLoad(cfg)

	l, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Redis for advisory position snapshots
	redisConfig := &cfg.Redis
	rclient := redis.NewClient(log, redisConfig)
	if err := rclient.Connect(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_redis",
		})
		return
	}

	// PostgreSQL for the durable audit journal
	pgClient, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_postgresql",
		})
		return
	}

	// Apply schema migrations for the journal table
	migrator := migrationpg.NewRunner(ctx, pgClient, migrationpg.Config{
		MigrationDir: cfg.MigrationDir,
	})
	if err := migrator.EnsureMigrationTable(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "ensure_migration_table",
		})
		return
	}
	if err := migrator.MigrateUp(0); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "migrate",
		})
		return
	}

	// Audit journal fan-out: Kafka for consumers, PostgreSQL for durability
	kafkaSink := kafkajournal.NewPublisher(cfg.Kafka, log)
	pgSink := pgjournal.NewRepository(pgClient, log)
	recorder := journal.NewRecorder(log, cfg.JournalCap, kafkaSink, pgSink)
	recorder.Start()

	// Core components
	store := orderstore.NewStore(log)
	aggregator := fills.NewAggregator(log)
	clock := brokerclock.NewClock()
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	snapshotStore := snapshot.NewStore(rclient, redisConfig, log)

	// Broker connector. The simulation stands in for a live broker
	// session, any implementation of the connector interface plugs in here.
	connector := sim.NewConnector(log, map[string]float64{})

	recon := reconciler.NewReconciler(
		store,
		connector,
		clock,
		aggregator,
		recorder,
		log,
		cfg.Engine.StaleAfter,
	)

	engine := app.NewEngine(
		store,
		connector,
		aggregator,
		clock,
		recorder,
		recon,
		log,
		cfg,
		app.WithRateLimiter(limiter),
		app.WithSnapshotStore(snapshotStore),
	)

	if err := engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "start_engine",
		})
		return
	}

	log.Info("Execution engine started", logger.Field{
		Key:   "account",
		Value: cfg.Engine.Account,
	})

	sig := <-sigChan
	log.Info("Received shutdown signal", logger.Field{
		Key:   "signal",
		Value: sig.String(),
	})

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer shutdownCancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "stop_engine",
		})
	}

	recorder.Stop(shutdownCtx)

	if err := kafkaSink.Close(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "close_kafka_sink",
		})
	}

	pgClient.Close()

	if err := rclient.Disconnect(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "disconnect_redis",
		})
	}

	log.Info("Execution engine shutdown complete")
}
