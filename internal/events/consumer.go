// Package events ingests product-view events from Kafka and applies
// them to the per-visitor recently-viewed history, so views recorded
// by other channels (apps, server-rendered pages) reach the widget.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"Storefront/internal/recent"
)

const recentKeyPrefix = "recently_viewed:"

// ViewEvent is one product view on some storefront surface.
type ViewEvent struct {
	VisitorID string         `json:"visitor_id"`
	Product   recent.Product `json:"product"`
}

type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	DLQTopic string // "" disables the dead-letter queue

	MinBytes         int
	MaxBytes         int
	MaxWait          time.Duration
	ReadErrorBackoff time.Duration
}

type Consumer struct {
	reader *kafkago.Reader
	dlq    *kafkago.Writer
	kv     recent.KV
	log    *zap.Logger

	backoff time.Duration
}

func NewConsumer(cfg Config, kv recent.KV, log *zap.Logger) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 10e3
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 2 * time.Second
	}
	if cfg.ReadErrorBackoff == 0 {
		cfg.ReadErrorBackoff = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
		// Offsets are committed manually after a successful apply.
		CommitInterval: 0,
	})

	var w *kafkago.Writer
	if cfg.DLQTopic != "" {
		w = &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafkago.LeastBytes{},
		}
	}

	return &Consumer{
		reader:  r,
		dlq:     w,
		kv:      kv,
		log:     log,
		backoff: cfg.ReadErrorBackoff,
	}
}

func (c *Consumer) Close() error {
	var errReader, errDLQ error
	if c.reader != nil {
		errReader = c.reader.Close()
	}
	if c.dlq != nil {
		errDLQ = c.dlq.Close()
	}
	if errReader != nil {
		return errReader
	}
	return errDLQ
}

func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("view event consumer started",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group", c.reader.Config().GroupID),
	)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.log.Warn("kafka fetch error", zap.Error(err), zap.Duration("backoff", c.backoff))
			time.Sleep(c.backoff)
			continue
		}

		if err := c.processMessage(ctx, m); err != nil {
			// Offset stays uncommitted; the message comes back later.
			c.log.Warn("process view event failed",
				zap.Int64("offset", m.Offset), zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// processMessage applies one event. View events are advisory data, so
// garbage is never retried: it moves to the DLQ when one is
// configured, otherwise it is dropped with a log line.
func (c *Consumer) processMessage(ctx context.Context, m kafkago.Message) error {
	var ev ViewEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Warn("invalid view event json", zap.Int64("offset", m.Offset), zap.Error(err))
		return c.reject(ctx, m)
	}

	if ev.VisitorID == "" || ev.Product.Handle == "" {
		c.log.Warn("view event missing visitor_id or handle", zap.Int64("offset", m.Offset))
		return c.reject(ctx, m)
	}

	cache := recent.NewCache(c.kv, recentKeyPrefix+ev.VisitorID, c.log)
	cache.Record(ctx, ev.Product)
	return nil
}

// reject parks the message in the DLQ if one exists. Returning nil
// lets the caller commit the offset either way.
func (c *Consumer) reject(ctx context.Context, m kafkago.Message) error {
	if c.dlq == nil {
		return nil
	}
	return c.dlq.WriteMessages(ctx, kafkago.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
	})
}
