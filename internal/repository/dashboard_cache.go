package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/redis"
)

// DashboardCache stores computed dashboard summaries in Redis with a TTL
type DashboardCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewDashboardCache creates a new dashboard cache
func NewDashboardCache(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *DashboardCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardCache{redis: redisClient, ttl: ttl, logger: logger}
}

func dashboardKey(orgID string, months int) string {
	return fmt.Sprintf("dashboard:%s:%d", orgID, months)
}

// Get returns a cached summary; ok is false on a miss
func (c *DashboardCache) Get(ctx context.Context, orgID string, months int) (*domain.DashboardSummary, bool, error) {
	var s domain.DashboardSummary
	err := c.redis.GetJSON(ctx, dashboardKey(orgID, months), &s)
	if errors.Is(err, redis.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read dashboard cache: %w", err)
	}
	return &s, true, nil
}

// Set stores a summary
func (c *DashboardCache) Set(ctx context.Context, s *domain.DashboardSummary, months int) error {
	if err := c.redis.SetJSON(ctx, dashboardKey(s.OrganizationID, months), s, c.ttl); err != nil {
		return fmt.Errorf("failed to store dashboard cache: %w", err)
	}
	c.logger.Debug("dashboard cached", slog.String("org_id", s.OrganizationID), slog.Int("months", months))
	return nil
}

// Invalidate drops every cached window for an organization
func (c *DashboardCache) Invalidate(ctx context.Context, orgID string) error {
	if _, err := c.redis.DeleteByPrefix(ctx, "dashboard:"+orgID+":"); err != nil {
		return fmt.Errorf("failed to invalidate dashboard cache: %w", err)
	}
	return nil
}
