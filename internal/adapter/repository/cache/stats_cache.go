package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/domain"
	"github.com/partshub/review-service/internal/platform/logger"
)

const (
	statsKeyPrefix = "seller_stats:"
	statsTTL       = 5 * time.Minute
)

// SellerStatsCache keeps aggregated seller ratings in Redis so hot sellers do
// not hit the aggregation pipeline on every read. Misses and Redis failures
// are soft: callers fall through to the database.
type SellerStatsCache struct {
	client *redis.Client
	logger *logger.Logger
}

func NewSellerStatsCache(client *redis.Client, log *logger.Logger) *SellerStatsCache {
	return &SellerStatsCache{
		client: client,
		logger: log.Named("SellerStatsCache"),
	}
}

func statsKey(sellerID primitive.ObjectID) string {
	return statsKeyPrefix + sellerID.Hex()
}

// Get returns the cached stats for a seller, or (nil, nil) on a cache miss.
func (c *SellerStatsCache) Get(ctx context.Context, sellerID primitive.ObjectID) (*domain.SellerStats, error) {
	val, err := c.client.Get(ctx, statsKey(sellerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stats domain.SellerStats
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		c.logger.Warn("Failed to unmarshal cached seller stats, treating as miss",
			zap.String("seller_id", sellerID.Hex()), zap.Error(err))
		return nil, nil
	}
	return &stats, nil
}

func (c *SellerStatsCache) Set(ctx context.Context, stats *domain.SellerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal seller stats: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(stats.SellerID), data, statsTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats after a write changes the underlying reviews.
func (c *SellerStatsCache) Invalidate(ctx context.Context, sellerID primitive.ObjectID) error {
	if err := c.client.Del(ctx, statsKey(sellerID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
