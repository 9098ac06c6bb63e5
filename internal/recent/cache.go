// Package recent owns the recently-viewed-product history: a small
// per-visitor list kept in persistent key-value storage with lazy
// time-based expiry, plus the HTML renderer for the storefront widget.
package recent

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxEntries bounds the stored history. More than the widget ever
	// shows, so exclusion filtering still has material to work with.
	MaxEntries = 15

	// Expiry is the age after which a stored list counts as stale.
	// Checked lazily on read, never by a timer.
	Expiry = time.Hour
)

// Product is one viewed product. Identity is Handle; prices are the
// storefront's display strings and are never parsed here.
type Product struct {
	Handle         string `json:"handle"`
	Title          string `json:"title"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compare_at_price,omitempty"`
	Image          string `json:"image,omitempty"`
	URL            string `json:"url"`
}

// envelope pairs the product list with the moment of the last write.
// The timestamp is per envelope, not per entry.
type envelope struct {
	Timestamp int64     `json:"timestamp"`
	Products  []Product `json:"products"`
}

// Cache reads and writes one visitor's history under a fixed key.
// Storage failures degrade to "no history"; callers never see them.
type Cache struct {
	kv  KV
	key string
	log *zap.Logger
	now func() time.Time
}

func NewCache(kv KV, key string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		kv:  kv,
		key: key,
		log: log,
		now: time.Now,
	}
}

// Record puts p at the front of the history, dropping any older entry
// with the same handle and truncating to MaxEntries. The envelope is
// rewritten wholesale, so the write timestamp always moves forward.
func (c *Cache) Record(ctx context.Context, p Product) {
	if p.Handle == "" {
		return
	}

	products := c.List(ctx)

	kept := make([]Product, 0, len(products)+1)
	kept = append(kept, p)
	for _, existing := range products {
		if existing.Handle == p.Handle {
			continue
		}
		kept = append(kept, existing)
	}
	if len(kept) > MaxEntries {
		kept = kept[:MaxEntries]
	}

	raw, err := json.Marshal(envelope{
		Timestamp: c.now().UnixMilli(),
		Products:  kept,
	})
	if err != nil {
		c.log.Warn("recent: marshal failed", zap.Error(err))
		return
	}

	if err := c.kv.Set(ctx, c.key, string(raw)); err != nil {
		c.log.Warn("recent: write failed", zap.String("key", c.key), zap.Error(err))
	}
}

// List returns the stored history, or an empty list when the key is
// absent, expired or unparseable. Expired and corrupt envelopes are
// removed on the spot; corruption is a cache miss, never an error.
func (c *Cache) List(ctx context.Context) []Product {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		c.log.Warn("recent: read failed", zap.String("key", c.key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.log.Warn("recent: corrupt envelope", zap.String("key", c.key), zap.Error(err))
		c.remove(ctx)
		return nil
	}

	if c.now().UnixMilli()-env.Timestamp > Expiry.Milliseconds() {
		c.remove(ctx)
		return nil
	}

	return env.Products
}

func (c *Cache) remove(ctx context.Context) {
	if err := c.kv.Remove(ctx, c.key); err != nil {
		c.log.Warn("recent: remove failed", zap.String("key", c.key), zap.Error(err))
	}
}
