// Package kafkaconsumer drops cached shadow masks when the mask pipeline
// announces regenerated tiles.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Tslilon/kinspariscoffeeshades/internal/cache/keys"
	obs "github.com/Tslilon/kinspariscoffeeshades/internal/core/observability"
	"github.com/Tslilon/kinspariscoffeeshades/internal/invalidation"
	mylog "github.com/Tslilon/kinspariscoffeeshades/internal/logger"
)

// KeyDeleter drops cache entries across both tiers.
type KeyDeleter interface {
	Del(ctx context.Context, keys ...string)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  KeyDeleter
	dedupe *versionDedupe
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, c KeyDeleter) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		dedupe: newVersionDedupe(0),
	}
}

// Start joins the consumer group and processes events until the context is
// canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache dependency")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	zl := mylog.Build(mylog.Config{
		Level:     "info",
		Component: "kafka_consumer",
	}, nil)
	c.zlog = &zl

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("mask invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("mask invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single invalidation message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.ObserveInvalidation(time.Since(start), err)
		c.logger.Error("invalidation decode failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		// a malformed event is logged and acked: replaying it cannot succeed
		obs.ObserveInvalidation(time.Since(start), err)
		c.logger.Warn("invalid invalidation event skipped", "err", err, "offset", msg.Offset)
		return nil
	}

	if !c.dedupe.shouldApply(dedupeKey(ev), ev.Version) {
		c.logger.Debug("stale invalidation event skipped",
			"tile", ev.TileID, "version", ev.Version)
		return nil
	}

	delKeys := keysForEvent(ev)
	c.cache.Del(ctx, delKeys...)

	obs.ObserveInvalidation(time.Since(start), nil)
	c.logger.Debug("invalidated masks",
		"tile", ev.TileID, "op", ev.Op, "keys", len(delKeys))
	return nil
}

func dedupeKey(ev invalidation.Event) string {
	return ev.TileID + ":" + strconv.Itoa(ev.Month) + ":" + ev.Slot
}

// keysForEvent expands the event scope into cache keys. The tile directory
// document is always dropped so the next request reloads mask references.
func keysForEvent(ev invalidation.Event) []string {
	months := []int{ev.Month}
	if ev.Month == 0 {
		months = months[:0]
		for m := 1; m <= 12; m++ {
			months = append(months, m)
		}
	}
	slots := []string{ev.Slot}
	if ev.Slot == "" {
		slots = []string{"morning", "noon", "afternoon"}
	}

	out := make([]string, 0, len(months)*len(slots)+1)
	for _, m := range months {
		for _, s := range slots {
			out = append(out, keys.Mask(ev.TileID, m, s))
		}
	}
	out = append(out, keys.TileMetadata())
	return out
}
