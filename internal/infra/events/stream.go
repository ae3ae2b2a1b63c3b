// Package events feeds change events from a Redis stream into the batch
// manager. Producers XADD entries with actor_id and kind fields to the
// award_events stream; the daemon reads them through a consumer group and
// acks each entry once it has been handed to the manager.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/metrics"
)

const (
	// DefaultStream is the Redis stream carrying change events.
	DefaultStream = "award_events"
	// DefaultGroup is the consumer group shared by award daemons.
	DefaultGroup = "awardd"
)

// Handler receives decoded change events.
type Handler interface {
	HandleEvent(ev domain.ChangeEvent) error
}

// Config names the stream position this consumer reads from.
type Config struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration // XREADGROUP block per poll
	Count    int64         // max entries per poll
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		c.Consumer = "awardd-1"
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Count <= 0 {
		c.Count = 64
	}
	return c
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// ─── Consumer ───────────────────────────────────────────────────────────────

// Client is the slice of the Redis API the consumer needs. *redis.Client
// satisfies it.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Consumer reads change events from a Redis stream consumer group.
type Consumer struct {
	client  Client
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	readErr error // last XREADGROUP failure, nil once a read succeeds
}

// NewConsumer creates a consumer. Call EnsureGroup before Run.
func NewConsumer(client Client, cfg Config, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Consumer{
		client:  client,
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  logger.With("component", "events"),
	}
}

// EnsureGroup creates the stream and consumer group if they don't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Check reports whether the server answers and the last stream read
// succeeded. A consumer group lost to a Redis restart shows up here as a
// NOGROUP error until EnsureGroup recreates it.
func (c *Consumer) Check(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Consumer) setReadErr(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// Run polls the stream until ctx is cancelled or the handler stops
// accepting events. It first replays entries this consumer was handed
// earlier but never acked, then follows new entries.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consuming change events", "stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer)
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}
		args := &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, cursor},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}
		if cursor != ">" {
			args.Block = -1 // pending reads never block
		}
		streams, err := c.client.XReadGroup(ctx, args).Result()
		switch {
		case errors.Is(err, redis.Nil):
			c.setReadErr(nil)
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.setReadErr(err)
			c.logger.Warn("read change events", "error", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
			// Entries delivered before the failure may still be pending.
			cursor = "0"
			continue
		}
		c.setReadErr(nil)

		n := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				n++
				if err := c.handle(ctx, msg); err != nil {
					return err
				}
			}
		}
		if cursor != ">" && n == 0 {
			c.logger.Debug("pending change events replayed", "stream", c.cfg.Stream)
			cursor = ">"
		}
	}
}

// handle dispatches one entry. Undecodable and irrelevant entries are acked
// and dropped; an entry the manager refuses because it stopped stays pending.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	ev, err := Decode(msg.Values)
	if err == nil {
		err = c.handler.HandleEvent(ev)
	}
	switch {
	case errors.Is(err, domain.ErrManagerStopped):
		return err
	case err != nil:
		c.logger.Warn("change event dropped", "id", msg.ID, "error", err)
	default:
		metrics.EventsReceived.WithLabelValues("redis", string(ev.Kind)).Inc()
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Warn("ack change event", "id", msg.ID, "error", err)
	}
	return nil
}

// Publish appends a change event to the stream.
func Publish(ctx context.Context, client *redis.Client, stream string, ev domain.ChangeEvent) (string, error) {
	if stream == "" {
		stream = DefaultStream
	}
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: Encode(ev),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish change event: %w", err)
	}
	return id, nil
}

// ─── Codec ──────────────────────────────────────────────────────────────────

// Encode returns the stream fields for an event.
func Encode(ev domain.ChangeEvent) map[string]any {
	return map[string]any{
		"actor_id": ev.ActorID,
		"kind":     string(ev.Kind),
	}
}

// Decode reads an event from stream fields.
func Decode(values map[string]any) (domain.ChangeEvent, error) {
	ev := domain.ChangeEvent{
		ActorID: getString(values, "actor_id"),
		Kind:    domain.ChangeKind(getString(values, "kind")),
	}
	if ev.ActorID == "" {
		return ev, fmt.Errorf("%w: event without actor_id", domain.ErrActorNotFound)
	}
	if !ev.Kind.Relevant() {
		return ev, fmt.Errorf("%w: %q", domain.ErrUnknownChangeKind, ev.Kind)
	}
	return ev, nil
}

func getString(values map[string]any, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
