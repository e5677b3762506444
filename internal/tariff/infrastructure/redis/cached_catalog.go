package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"derivatio-energy/internal/observability/logging"
	"derivatio-energy/internal/observability/metrics"
	tariff "derivatio-energy/internal/tariff/domain"
)

const (
	defaultTTL   = 10 * time.Minute
	operatorsKey = "tariffs:operators"
)

// ErrReadOnly is returned by Save when the wrapped catalog cannot store tariffs.
var ErrReadOnly = errors.New("tariff cache: wrapped catalog is read-only")

// CachedCatalog serves tariff rows from redis, falling back to the wrapped catalog.
// Cache failures degrade to direct reads.
type CachedCatalog struct {
	next   tariff.Catalog
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog wraps next with a redis cache. ttl <= 0 uses the default.
func NewCachedCatalog(next tariff.Catalog, client *redis.Client, ttl time.Duration, logger *zap.Logger) (*CachedCatalog, error) {
	if next == nil {
		return nil, errors.New("tariff cache: nil catalog")
	}
	if client == nil {
		return nil, errors.New("tariff cache: nil redis client")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: logging.OrNop(logger)}, nil
}

func operatorKey(operator string) string {
	return fmt.Sprintf("tariffs:operator:%s", strings.ToLower(strings.TrimSpace(operator)))
}

// ListByOperator implements tariff.Catalog.
func (c *CachedCatalog) ListByOperator(ctx context.Context, operator string) ([]tariff.GridTariff, error) {
	key := operatorKey(operator)
	var rows []tariff.GridTariff
	if c.get(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := c.next.ListByOperator(ctx, operator)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, rows)
	return rows, nil
}

// ListOperators implements tariff.Catalog.
func (c *CachedCatalog) ListOperators(ctx context.Context) ([]string, error) {
	var ops []string
	if c.get(ctx, operatorsKey, &ops) {
		return ops, nil
	}
	ops, err := c.next.ListOperators(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, operatorsKey, ops)
	return ops, nil
}

// Save writes through to the wrapped catalog and drops the operator's cached rows.
func (c *CachedCatalog) Save(ctx context.Context, t *tariff.GridTariff) error {
	repo, ok := c.next.(tariff.Repository)
	if !ok {
		return ErrReadOnly
	}
	if err := repo.Save(ctx, t); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, t.Operator); err != nil {
		c.logger.Warn("tariff cache invalidate failed", zap.String("operator", t.Operator), zap.Error(err))
	}
	return nil
}

// Invalidate drops the cached rows of operator and the operator list.
func (c *CachedCatalog) Invalidate(ctx context.Context, operator string) error {
	return c.client.Del(ctx, operatorKey(operator), operatorsKey).Err()
}

func (c *CachedCatalog) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("tariff cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.IncTariffCache(metrics.CacheMiss)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("tariff cache entry corrupt", zap.String("key", key), zap.Error(err))
		metrics.IncTariffCache(metrics.CacheMiss)
		return false
	}
	metrics.IncTariffCache(metrics.CacheHit)
	return true
}

func (c *CachedCatalog) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("tariff cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("tariff cache write failed", zap.String("key", key), zap.Error(err))
	}
}
