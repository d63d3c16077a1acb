package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const (
	keyPrefix     = "traceability"
	generationKey = keyPrefix + ":generation"
)

// TraceKey addresses one cached query result. Entries are keyed by the
// generation current when they were written, so a generation bump makes
// every older entry unreachable without scanning for it.
func TraceKey(lotCode, direction string, depth int, generation int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:g%d", keyPrefix, lotCode, direction, depth, generation)
}

// ReportKey addresses the stored deep genealogy report for a lot. Like
// TraceKey it carries the generation, since a report lists every ancestor and
// descendant and goes stale on any link or status change in its tree.
func ReportKey(lotCode string, generation int64) string {
	return fmt.Sprintf("%s:%s:report:g%d", keyPrefix, lotCode, generation)
}

// TraceCache is the redis-backed traceability cache. A nil *TraceCache, or
// one without a client, misses every read and drops every write.
type TraceCache struct {
	rdb     *goredis.Client
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewTraceCache(rdb *goredis.Client, log *logger.Logger, metrics *observability.Metrics) *TraceCache {
	return &TraceCache{rdb: rdb, log: log.With("cache", "Traceability"), metrics: metrics}
}

func (c *TraceCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Generation returns the current invalidation generation (0 before the
// first bump).
func (c *TraceCache) Generation(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	n, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *TraceCache) Bump(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	err := c.rdb.Incr(ctx, generationKey).Err()
	c.metrics.IncCache("bump", resultOf(err))
	return err
}

// Get decodes the entry at key into dst and reports whether it was found.
func (c *TraceCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		c.metrics.IncCache("get", "miss")
		return false, nil
	}
	if err != nil {
		c.metrics.IncCache("get", "error")
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.metrics.IncCache("get", "error")
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	c.metrics.IncCache("get", "hit")
	return true, nil
}

func (c *TraceCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.rdb.Set(ctx, key, raw, ttl).Err()
	c.metrics.IncCache("set", resultOf(err))
	return err
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// AuditAppended retires cached reports when an inspection or temperature
// reading is recorded, since reports embed both.
func (c *TraceCache) AuditAppended(ctx context.Context, ev *production.AuditEvent) error {
	if !c.Enabled() || ev == nil {
		return nil
	}
	switch ev.EntityType {
	case production.EntityQCInspection, production.EntityTemperatureLog:
		return c.Bump(ctx)
	}
	return nil
}

// GenealogyChanged retires every cached query and report. Any lot upstream
// or downstream of the link may have one.
func (c *TraceCache) GenealogyChanged(ctx context.Context, _, _ *production.Lot, _ *production.GenealogyLink) error {
	return c.Bump(ctx)
}

// LotChanged retires cached queries and reports, since both carry lot status.
func (c *TraceCache) LotChanged(ctx context.Context, _ *production.Lot) error {
	return c.Bump(ctx)
}
