// Package wire declares provider functions and sets for dependency wiring.
package wire

import (
	"math/rand"
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
	"github.com/google/wire"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideDB provides the PostgreSQL connection pool
func ProvideDB(cfg *config.Config) (*sqlx.DB, error) {
	return postgres.Connect(cfg.Postgres)
}

// ProvideStore provides the PostgreSQL-backed store
func ProvideStore(db *sqlx.DB, logger zerolog.Logger) *postgres.Store {
	return postgres.NewStore(db, logger)
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideAdTracker provides the rewarded-ad completion tracker
func ProvideAdTracker(redisClient *redis.Client, logger zerolog.Logger) *ads.Tracker {
	return ads.NewTracker(redisClient, logger)
}

// ProvidePoolCache provides the reward pool cache over the store
func ProvidePoolCache(store *postgres.Store, logger zerolog.Logger) *lootpack.PoolCache {
	return lootpack.NewPoolCache(store, logger)
}

// ProvideProducer provides the Kafka producer
func ProvideProducer(cfg *config.Config, logger zerolog.Logger) (*kafka.Producer, error) {
	return kafka.NewProducerWithConfig(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Logger:  logger,
	})
}

// ProvideConsumer provides the config-event consumer wired to the pool cache
func ProvideConsumer(cfg *config.Config, cache *lootpack.PoolCache, logger zerolog.Logger) *kafka.Consumer {
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.ConfigEventsTopic(),
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		Logger:        logger,
	}, cache)
}

// ProvideBroadcaster provides the rare-drop broadcaster
func ProvideBroadcaster() *drops.Broadcaster {
	return drops.NewBroadcaster(64)
}

// ProvidePackService provides the pack service
func ProvidePackService(
	cfg *config.Config,
	store *postgres.Store,
	cache *lootpack.PoolCache,
	tracker *ads.Tracker,
	producer *kafka.Producer,
	broadcaster *drops.Broadcaster,
	logger zerolog.Logger,
) *server.PackService {
	return server.NewPackService(server.PackServiceOptions{
		Store:       store,
		Pools:       cache,
		Ads:         tracker,
		Recorder:    tracker,
		Publisher:   producer,
		Broadcaster: broadcaster,
		Topic:       cfg.Kafka.PackOpenedTopic(),
		RNG:         rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:      logger,
	})
}

// ProvideApp provides the main application
func ProvideApp(cfg *config.Config, logger zerolog.Logger, service *server.PackService) *server.App {
	return server.New(server.Options{
		Config:      cfg,
		Logger:      logger,
		PackService: service,
	})
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// StorageSet is the wire provider set for PostgreSQL and Redis
var StorageSet = wire.NewSet(
	ProvideDB,
	ProvideStore,
	ProvideRedisClient,
	ProvideAdTracker,
)

// EventsSet is the wire provider set for Kafka
var EventsSet = wire.NewSet(
	ProvideProducer,
	ProvideConsumer,
)

// ServerSet is the wire provider set for the HTTP application
var ServerSet = wire.NewSet(
	ProvidePoolCache,
	ProvideBroadcaster,
	ProvidePackService,
	ProvideApp,
)

// FullSet includes all providers
var FullSet = wire.NewSet(
	LoggingSet,
	StorageSet,
	EventsSet,
	ServerSet,
)
