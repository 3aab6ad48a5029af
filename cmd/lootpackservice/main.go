package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/Skylto-inc/dealmate-lootpacks/ads"
	"github.com/Skylto-inc/dealmate-lootpacks/config"
	"github.com/Skylto-inc/dealmate-lootpacks/db/redis"
	"github.com/Skylto-inc/dealmate-lootpacks/events/kafka"
	"github.com/Skylto-inc/dealmate-lootpacks/logging"
	"github.com/Skylto-inc/dealmate-lootpacks/lootpack"
	"github.com/Skylto-inc/dealmate-lootpacks/pkg/drops"
	"github.com/Skylto-inc/dealmate-lootpacks/server"
	"github.com/Skylto-inc/dealmate-lootpacks/store/postgres"
	appwire "github.com/Skylto-inc/dealmate-lootpacks/wire"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lootpackservice",
		Short: "Lootpack economy service",
		Long:  "HTTP service for listing, opening and tracking reward lootpacks.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lootpack HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Logging)

	db, err := appwire.ProvideDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	store := postgres.NewStore(db, logger)
	cache := lootpack.NewPoolCache(store, logger)

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	tracker := ads.NewTracker(redisClient, logger)

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	broadcaster := drops.NewBroadcaster(64)

	service := server.NewPackService(server.PackServiceOptions{
		Store:       store,
		Pools:       cache,
		Ads:         tracker,
		Recorder:    tracker,
		Publisher:   producerOrNil(producer),
		Broadcaster: broadcaster,
		Topic:       cfg.Kafka.PackOpenedTopic(),
		RNG:         newRNG(),
		Logger:      logger,
	})

	app := server.New(server.Options{
		Config:      cfg,
		Logger:      logger,
		PackService: service,
	})

	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterLootpackRoutes()

	// Config events keep the pool cache coherent with admin-side changes.
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.ConfigEventsTopic(),
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			Logger:        logger,
		}, cache)
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("failed to start kafka consumer: %w", err)
		}
		app.OnShutdown(func() {
			if err := consumer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Failed to stop kafka consumer")
			}
		})
	}

	if producer != nil {
		app.OnShutdown(func() {
			if err := producer.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close kafka producer")
			}
		})
	}

	return app.Run()
}

// newRNG seeds a process-local randomness source for reward rolls.
func newRNG() lootpack.RNG {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// producerOrNil converts a nil *kafka.Producer to a nil interface so the
// service's nil check works.
func producerOrNil(p *kafka.Producer) server.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
