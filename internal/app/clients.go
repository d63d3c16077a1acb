package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lotline-backend/internal/platform/logger"
	"github.com/yungbote/lotline-backend/internal/platform/neo4jdb"
	"github.com/yungbote/lotline-backend/internal/platform/redisdb"
	"github.com/yungbote/lotline-backend/internal/realtime/bus"
	"github.com/yungbote/lotline-backend/internal/temporalx"
)

// Clients holds the optional infrastructure connections. Any of them may be
// nil when its address is not configured.
type Clients struct {
	Redis    *goredis.Client
	AuditBus bus.Bus
	Neo4j    *neo4jdb.Client
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	rdb, err := redisdb.NewFromEnv(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	out.Redis = rdb
	if rdb != nil {
		b, err := bus.NewRedisBus(log, rdb, cfg.AuditChannel)
		if err != nil {
			out.Close(log)
			return Clients{}, fmt.Errorf("init audit bus: %w", err)
		}
		out.AuditBus = b
	} else {
		log.Warn("REDIS_ADDR unset; traceability cache and audit bus disabled")
	}

	n4j, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		out.Close(log)
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	out.Neo4j = n4j

	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		out.Close(log)
		return Clients{}, fmt.Errorf("init temporal: %w", err)
	}
	out.Temporal = tc
	if tc == nil {
		log.Warn("TEMPORAL_ADDRESS unset; reports run in-process and archive sweeps are manual")
	}
	return out, nil
}

func (c *Clients) Close(log *logger.Logger) {
	if c.Temporal != nil {
		c.Temporal.Close()
		c.Temporal = nil
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Neo4j.Close(ctx); err != nil {
			log.Warn("neo4j close failed", "error", err)
		}
		cancel()
		c.Neo4j = nil
	}
	// The audit bus shares the redis client and closes it.
	switch {
	case c.AuditBus != nil:
		if err := c.AuditBus.Close(); err != nil {
			log.Warn("audit bus close failed", "error", err)
		}
	case c.Redis != nil:
		_ = c.Redis.Close()
	}
	c.AuditBus = nil
	c.Redis = nil
}
