package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

func decisionKey(questionHash string) string {
	return fmt.Sprintf("route:%s", questionHash)
}

func (c *Client) SetDecision(ctx context.Context, questionHash string, decision models.RoutingDecision, ttl time.Duration) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal routing decision: %w", err)
	}

	err = c.client.Set(ctx, decisionKey(questionHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set routing cache: %w", err)
	}

	logger.Debug("Routing decision cached", zap.String("question_hash", questionHash), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetDecision(ctx context.Context, questionHash string) (*models.RoutingDecision, bool, error) {
	data, err := c.client.Get(ctx, decisionKey(questionHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get routing cache: %w", err)
	}

	var decision models.RoutingDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal routing decision: %w", err)
	}

	logger.Debug("Routing cache hit", zap.String("question_hash", questionHash))
	return &decision, true, nil
}
