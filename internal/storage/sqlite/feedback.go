package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

func (c *Client) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	query := `
		INSERT INTO feedback (id, user_id, conversation_id, description, expected, actual, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var rating sql.NullInt64
	if fb.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*fb.Rating), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query,
		fb.FeedbackID,
		fb.UserID,
		fb.ConversationID,
		fb.Description,
		fb.Expected,
		fb.Actual,
		rating,
		toMillis(fb.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("feedback_id", fb.FeedbackID),
		zap.String("conversation_id", fb.ConversationID),
	)
	return nil
}

// ListFeedback returns the user's feedback newest first, optionally for one conversation.
func (c *Client) ListFeedback(ctx context.Context, userID, conversationID string, limit int) ([]models.Feedback, error) {
	query := `SELECT id, user_id, conversation_id, description, expected, actual, rating, created_at
		FROM feedback WHERE user_id = ?`
	args := []any{userID}
	if conversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	items := []models.Feedback{}
	for rows.Next() {
		var fb models.Feedback
		var rating sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&fb.FeedbackID, &fb.UserID, &fb.ConversationID, &fb.Description,
			&fb.Expected, &fb.Actual, &rating, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if rating.Valid {
			r := int(rating.Int64)
			fb.Rating = &r
		}
		fb.CreatedAt = fromMillis(createdAt)
		items = append(items, fb)
	}
	return items, rows.Err()
}
