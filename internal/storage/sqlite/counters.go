package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stockdesk/backend/internal/storage/models"
)

// IncrementDaily consumes one question from the user's quota for dateKey.
// It reports false without changing anything when the count is already at limit.
func (c *Client) IncrementDaily(ctx context.Context, userID, dateKey string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	query := `
		INSERT INTO user_usage_counters (user_id, date_key, count)
		VALUES (?, ?, 1)
		ON CONFLICT(user_id, date_key) DO UPDATE SET
			count = count + 1
		WHERE user_usage_counters.count < ?
	`

	res, err := c.db.ExecContext(ctx, query, userID, dateKey, limit)
	if err != nil {
		return false, fmt.Errorf("failed to increment daily counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (c *Client) DailyCount(ctx context.Context, userID, dateKey string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT count FROM user_usage_counters WHERE user_id = ? AND date_key = ?`,
		userID, dateKey,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily counter: %w", err)
	}
	return count, nil
}

func (c *Client) AddMonthlyUsage(ctx context.Context, periodKey string, inputTokens, outputTokens int64, cost float64) error {
	if inputTokens < 0 || outputTokens < 0 || cost < 0 {
		return fmt.Errorf("usage must be non-negative")
	}

	query := `
		INSERT INTO usage_counters (period_key, input_tokens, output_tokens, total_cost)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(period_key) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_cost = total_cost + excluded.total_cost
	`

	if _, err := c.db.ExecContext(ctx, query, periodKey, inputTokens, outputTokens, cost); err != nil {
		return fmt.Errorf("failed to add monthly usage: %w", err)
	}
	return nil
}

func (c *Client) MonthlyUsage(ctx context.Context, periodKey string) (*models.UsageCounter, error) {
	usage := models.UsageCounter{PeriodKey: periodKey}
	err := c.db.QueryRowContext(ctx,
		`SELECT input_tokens, output_tokens, total_cost FROM usage_counters WHERE period_key = ?`,
		periodKey,
	).Scan(&usage.InputTokens, &usage.OutputTokens, &usage.TotalCost)
	if errors.Is(err, sql.ErrNoRows) {
		return &usage, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monthly usage: %w", err)
	}
	return &usage, nil
}
