// Package queue ingests CRM events from a Redis stream and republishes them on
// the CRM event bus. It is the ingestion path for pipeline services that push
// to Redis instead of Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dripflow/dripflow/pkg/eventbus"
	"github.com/dripflow/dripflow/pkg/events"
)

const (
	defaultStream   = "dripflow:crm:events"
	defaultGroup    = "dripflow"
	readBlock       = 5 * time.Second
	readCount       = 50
	connectTimeout  = 5 * time.Second
	errorBackoff    = time.Second
)

// Config connects the receiver to a Redis stream. Zero values fall back to
// sensible defaults; only Addr is required in production.
type Config struct {
	Addr     string
	Password string
	DB       string
	Stream   string
	Group    string
	Consumer string
}

// Receiver consumes CRM events from a Redis stream with a consumer group, so
// multiple worker instances share the stream without double-delivery. Events
// are acknowledged only after the bus accepts them.
type Receiver struct {
	config Config
	bus    eventbus.CRMEventBus
	logger *slog.Logger

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReceiver creates a Redis stream receiver publishing into the CRM bus.
func NewReceiver(config Config, bus eventbus.CRMEventBus, logger *slog.Logger) (*Receiver, error) {
	if config.Stream == "" {
		config.Stream = defaultStream
	}

	if config.Group == "" {
		config.Group = defaultGroup
	}

	if config.Consumer == "" {
		config.Consumer = "consumer-1"
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Receiver{
		config: config,
		bus:    bus,
		logger: logger.With(
			"module", "queue_receiver",
			"stream", config.Stream,
			"group", config.Group,
		),
		stopCh: make(chan struct{}),
	}, nil
}

// Start connects to Redis, ensures the consumer group exists and begins
// consuming in the background.
func (r *Receiver) Start(ctx context.Context) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	if err := r.ensureGroup(ctx); err != nil {
		return err
	}

	r.wg.Add(1)

	go r.consume(ctx)

	r.logger.InfoContext(ctx, "Queue receiver started")

	return nil
}

func (r *Receiver) connect(ctx context.Context) error {
	db := 0

	if r.config.DB != "" {
		parsed, err := strconv.Atoi(r.config.DB)
		if err != nil {
			return fmt.Errorf("invalid redis db value %q: %w", r.config.DB, err)
		}

		db = parsed
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Connected to Redis", "addr", r.config.Addr, "db", db)

	return nil
}

func (r *Receiver) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.config.Stream, r.config.Group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue receiver stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue receiver")

			return
		default:
			if err := r.readBatch(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				r.logger.ErrorContext(ctx, "Error reading from stream", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

func (r *Receiver) readBatch(ctx context.Context) error {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.config.Group,
		Consumer: r.config.Consumer,
		Streams:  []string{r.config.Stream, ">"},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			r.handleMessage(ctx, message)
		}
	}

	return nil
}

// handleMessage decodes one stream entry and forwards it to the bus. Malformed
// entries are acknowledged and dropped so they never wedge the group; bus
// failures leave the entry pending for redelivery.
func (r *Receiver) handleMessage(ctx context.Context, message redis.XMessage) {
	raw, ok := message.Values["event"].(string)
	if !ok {
		r.logger.WarnContext(ctx, "Dropping stream entry without event field", "entry_id", message.ID)
		r.ack(ctx, message.ID)

		return
	}

	var event events.CRMEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		r.logger.WarnContext(ctx, "Dropping malformed CRM event",
			"entry_id", message.ID,
			"error", err)
		r.ack(ctx, message.ID)

		return
	}

	if err := r.bus.PublishCRMEvent(ctx, &event); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish CRM event, leaving entry pending",
			"entry_id", message.ID,
			"error", err)

		return
	}

	r.ack(ctx, message.ID)
}

func (r *Receiver) ack(ctx context.Context, entryID string) {
	if err := r.client.XAck(ctx, r.config.Stream, r.config.Group, entryID).Err(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to ack stream entry", "entry_id", entryID, "error", err)
	}
}

// Stop halts consumption and closes the Redis connection.
func (r *Receiver) Stop(ctx context.Context) error {
	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	r.logger.InfoContext(ctx, "Queue receiver shut down")

	return nil
}
