package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/model"
)

// MonthStatus maps a date to its availability summary.
type MonthStatus map[string]model.DayStatus

// MonthCache caches month views keyed by (kind, year, month).  Entries
// live in Redis when a client is configured and in process memory
// otherwise.  Concurrent misses for one key share a single load, and a
// load that overlaps an invalidation is not stored.
type MonthCache struct {
	cfg   config.CacheConfig
	rdb   *redis.Client
	log   *zap.Logger
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	mem      map[string]memEntry
	versions map[string]uint64 // per month, bumped on invalidation
}

type memEntry struct {
	value   MonthStatus
	expires time.Time
}

// NewMonthCache returns a cache.  rdb may be nil.
func NewMonthCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *MonthCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &MonthCache{
		cfg:      cfg,
		rdb:      rdb,
		log:      log,
		now:      time.Now,
		mem:      map[string]memEntry{},
		versions: map[string]uint64{},
	}
}

func monthID(year, month int) string { return fmt.Sprintf("%04d-%02d", year, month) }

func (c *MonthCache) key(kind model.ReservationKind, year, month int) string {
	return c.cfg.Prefix + ":" + string(kind) + ":" + monthID(year, month)
}

// Load returns the cached month or calls load and caches its result.
// force skips the lookup but still refreshes the entry.
func (c *MonthCache) Load(ctx context.Context, kind model.ReservationKind, year, month int, force bool,
	load func(context.Context) (MonthStatus, error)) (MonthStatus, error) {
	if c == nil || !c.cfg.Enabled {
		return load(ctx)
	}
	key := c.key(kind, year, month)
	if !force {
		if v, ok := c.get(ctx, key); ok {
			return v, nil
		}
	}
	flightKey := key
	if force {
		flightKey += ":force"
	}
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		version := c.version(year, month)
		ms, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.version(year, month) == version {
			c.set(ctx, key, ms)
		}
		return ms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(MonthStatus), nil
}

// Invalidate drops both kinds of the given month.
func (c *MonthCache) Invalidate(ctx context.Context, year, month int) {
	if c == nil {
		return
	}
	keys := []string{c.key(model.KindPrivate, year, month), c.key(model.KindGroup, year, month)}
	c.mu.Lock()
	c.versions[monthID(year, month)]++
	for _, k := range keys {
		delete(c.mem, k)
	}
	c.mu.Unlock()
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn("month cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
		}
	}
}

// InvalidateDate invalidates the month containing a YYYY-MM-DD date.
func (c *MonthCache) InvalidateDate(ctx context.Context, date string) {
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return
	}
	c.Invalidate(ctx, d.Year(), int(d.Month()))
}

func (c *MonthCache) version(year, month int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[monthID(year, month)]
}

func (c *MonthCache) get(ctx context.Context, key string) (MonthStatus, bool) {
	if c.rdb != nil {
		bs, err := c.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.log.Warn("month cache read failed", zap.String("key", key), zap.Error(err))
			}
			return nil, false
		}
		var ms MonthStatus
		if err := json.Unmarshal(bs, &ms); err != nil {
			return nil, false
		}
		return ms, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem[key]
	if !ok || c.now().After(e.expires) {
		delete(c.mem, key)
		return nil, false
	}
	return e.value, true
}

func (c *MonthCache) set(ctx context.Context, key string, ms MonthStatus) {
	if c.rdb != nil {
		bs, err := json.Marshal(ms)
		if err != nil {
			return
		}
		if err := c.rdb.SetEx(ctx, key, bs, c.cfg.TTL).Err(); err != nil {
			c.log.Warn("month cache write failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	c.mu.Lock()
	c.mem[key] = memEntry{value: ms, expires: c.now().Add(c.cfg.TTL)}
	c.mu.Unlock()
}
