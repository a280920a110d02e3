package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockdesk/backend/internal/storage/models"
)

const (
	dailyKeyTTL   = 48 * time.Hour
	monthlyKeyTTL = 400 * 24 * time.Hour
)

// incrementBelow increments KEYS[1] only while it is below ARGV[1].
var incrementBelow = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

func dailyKey(userID, dateKey string) string {
	return fmt.Sprintf("quota:%s:%s", dateKey, userID)
}

func monthlyKey(periodKey string) string {
	return fmt.Sprintf("usage:%s", periodKey)
}

func (c *Client) IncrementDaily(ctx context.Context, userID, dateKey string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	granted, err := incrementBelow.Run(ctx, c.client, []string{dailyKey(userID, dateKey)}, limit, dailyKeyTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return granted == 1, nil
}

func (c *Client) DailyCount(ctx context.Context, userID, dateKey string) (int, error) {
	count, err := c.client.Get(ctx, dailyKey(userID, dateKey)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily counter: %w", err)
	}
	return count, nil
}

func (c *Client) AddMonthlyUsage(ctx context.Context, periodKey string, inputTokens, outputTokens int64, cost float64) error {
	if inputTokens < 0 || outputTokens < 0 || cost < 0 {
		return fmt.Errorf("usage must not be negative")
	}
	key := monthlyKey(periodKey)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "input_tokens", inputTokens)
		pipe.HIncrBy(ctx, key, "output_tokens", outputTokens)
		pipe.HIncrByFloat(ctx, key, "total_cost", cost)
		pipe.Expire(ctx, key, monthlyKeyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add monthly usage: %w", err)
	}
	return nil
}

func (c *Client) MonthlyUsage(ctx context.Context, periodKey string) (*models.UsageCounter, error) {
	values, err := c.client.HGetAll(ctx, monthlyKey(periodKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read monthly usage: %w", err)
	}

	usage := &models.UsageCounter{PeriodKey: periodKey}
	if v, ok := values["input_tokens"]; ok {
		if usage.InputTokens, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt input_tokens: %w", err)
		}
	}
	if v, ok := values["output_tokens"]; ok {
		if usage.OutputTokens, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt output_tokens: %w", err)
		}
	}
	if v, ok := values["total_cost"]; ok {
		if usage.TotalCost, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("corrupt total_cost: %w", err)
		}
	}
	return usage, nil
}
