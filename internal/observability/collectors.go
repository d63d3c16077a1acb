package observability

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/envutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second, nil)
	if d < time.Second {
		return time.Second
	}
	return d
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	every(ctx, scrapeInterval(), func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
		m.dbStats.Set(float64(stats.InUse), "in_use")
		m.dbStats.Set(float64(stats.Idle), "idle")
		m.dbStats.Set(float64(stats.WaitCount), "wait_count")
		m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	every(ctx, scrapeInterval(), func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) StartProductionCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	every(ctx, scrapeInterval(), func() {
		if err := m.CollectProduction(ctx, db); err != nil && log != nil {
			log.Warn("metrics: production status query failed", "error", err)
		}
	})
}

type statusCount struct {
	Status string
	Count  int64
}

// CollectProduction refreshes the run, lot and buffer load gauges once.
func (m *Metrics) CollectProduction(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var runs []statusCount
	if err := db.WithContext(ctx).Model(&production.ProductionRun{}).
		Select("status, count(*) as count").Group("status").Scan(&runs).Error; err != nil {
		return err
	}
	for _, s := range []string{production.RunIdle, production.RunRunning, production.RunHold, production.RunCompleted, production.RunAborted, production.RunArchived} {
		m.runsByStatus.Set(0, s)
	}
	for _, row := range runs {
		m.runsByStatus.Set(float64(row.Count), orUnknown(row.Status))
	}

	var lots []statusCount
	if err := db.WithContext(ctx).Model(&production.Lot{}).
		Select("status, count(*) as count").Group("status").Scan(&lots).Error; err != nil {
		return err
	}
	for _, s := range []string{production.LotCreated, production.LotQuarantine, production.LotReleased,
		production.LotHold, production.LotRejected, production.LotConsumed, production.LotFinished} {
		m.lotsByStatus.Set(0, s)
	}
	for _, row := range lots {
		m.lotsByStatus.Set(float64(row.Count), orUnknown(row.Status))
	}

	var loads []struct {
		BufferCode string
		LoadKg     float64
	}
	if err := db.WithContext(ctx).Table("buffer b").
		Select("b.buffer_code, coalesce(sum(i.quantity_kg), 0) as load_kg").
		Joins("LEFT JOIN inventory_item i ON i.buffer_id = b.id AND i.exited_at IS NULL").
		Group("b.buffer_code").Scan(&loads).Error; err != nil {
		return err
	}
	for _, row := range loads {
		m.bufferLoad.Set(row.LoadKg, strings.TrimSpace(row.BufferCode))
	}
	return nil
}
