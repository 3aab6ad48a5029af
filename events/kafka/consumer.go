package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ConfigEvent announces an admin-side change to pack types or reward
// mappings. An empty PackTypeID means every cached pool is stale.
type ConfigEvent struct {
	Type       string    `json:"type"`
	PackTypeID string    `json:"pack_type_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PoolInvalidator evicts cached reward pools. Satisfied by lootpack.PoolCache.
type PoolInvalidator interface {
	Invalidate(packTypeID string)
	InvalidateAll()
}

// Consumer listens for config events and keeps the pool cache coherent.
type Consumer struct {
	reader      *kafka.Reader
	invalidator PoolInvalidator
	logger      zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Logger        zerolog.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig, invalidator PoolInvalidator) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader:      reader,
		invalidator: invalidator,
		logger:      config.Logger.With().Str("component", "kafka-consumer").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins consuming messages
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	c.logger.Info().Msg("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info().Msg("Stopping Kafka consumer...")
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing Kafka reader")
		return err
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return nil
}

// consume is the main consumer loop
func (c *Consumer) consume() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(c.ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				c.logger.Error().Err(err).Msg("Error fetching message from Kafka")
				time.Sleep(time.Second)
				continue
			}

			if err := c.handleMessage(msg); err != nil {
				c.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error handling message")
			}

			if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("Error committing message")
			}
		}
	}
}

// handleMessage processes a single config event
func (c *Consumer) handleMessage(msg kafka.Message) error {
	var event ConfigEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	if event.PackTypeID == "" {
		c.invalidator.InvalidateAll()
		c.logger.Info().
			Str("event_type", event.Type).
			Msg("All cached reward pools invalidated")
		return nil
	}

	c.invalidator.Invalidate(event.PackTypeID)
	c.logger.Info().
		Str("event_type", event.Type).
		Str("pack_type_id", event.PackTypeID).
		Msg("Cached reward pool invalidated")

	return nil
}
