package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

// Conversations past expire_at are treated as absent by every read here,
// whether or not the sweeper has removed them yet.

// UpsertConversation creates the conversation with title, or only pushes its
// expiry forward when it already exists. An expired leftover is replaced.
func (c *Client) UpsertConversation(ctx context.Context, userID, conversationID, title string, expireAt, now time.Time) (*models.Conversation, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND conversation_id = ? AND expire_at <= ?`,
		userID, conversationID, toMillis(now),
	); err != nil {
		return nil, fmt.Errorf("failed to drop expired conversation: %w", err)
	}

	query := `
		INSERT INTO conversations (user_id, conversation_id, title, expire_at, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, conversation_id) DO UPDATE SET
			expire_at = excluded.expire_at
	`
	if _, err := tx.ExecContext(ctx, query,
		userID, conversationID, title, toMillis(expireAt), toMillis(now), toMillis(now),
	); err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}

	conv, err := loadConversation(ctx, tx, userID, conversationID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation: %w", err)
	}
	return conv, nil
}

func (c *Client) GetConversation(ctx context.Context, userID, conversationID string, now time.Time) (*models.Conversation, error) {
	return loadConversation(ctx, c.db, userID, conversationID, now)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadConversation(ctx context.Context, q querier, userID, conversationID string, now time.Time) (*models.Conversation, error) {
	conv := models.Conversation{UserID: userID, ConversationID: conversationID}
	var expireAt, updatedAt, createdAt int64

	err := q.QueryRowContext(ctx, `
		SELECT title, expire_at, updated_at, created_at FROM conversations
		WHERE user_id = ? AND conversation_id = ? AND expire_at > ?`,
		userID, conversationID, toMillis(now),
	).Scan(&conv.Title, &expireAt, &updatedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv.ExpireAt = fromMillis(expireAt)
	conv.UpdatedAt = fromMillis(updatedAt)
	conv.CreatedAt = fromMillis(createdAt)

	rows, err := q.QueryContext(ctx, `
		SELECT role, content, created_at FROM conversation_messages
		WHERE user_id = ? AND conversation_id = ?
		ORDER BY id`,
		userID, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []models.Message{}
	for rows.Next() {
		var m models.Message
		var at int64
		if err := rows.Scan(&m.Role, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.CreatedAt = fromMillis(at)
		conv.Messages = append(conv.Messages, m)
	}
	return &conv, rows.Err()
}

// AppendMessages inserts rows and slides the expiry in one transaction, so
// concurrent appends to one conversation never overwrite each other.
func (c *Client) AppendMessages(ctx context.Context, userID, conversationID string, messages []models.Message, expireAt, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET expire_at = ?, updated_at = ?
		WHERE user_id = ? AND conversation_id = ? AND expire_at > ?`,
		toMillis(expireAt), toMillis(now), userID, conversationID, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversation_messages (user_id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		if _, err := stmt.ExecContext(ctx, userID, conversationID, m.Role, m.Content, toMillis(m.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (c *Client) ListConversations(ctx context.Context, userID string, limit int, now time.Time) ([]models.ConversationSummary, error) {
	query := `
		SELECT c.conversation_id, c.title, c.updated_at, c.expire_at, m.role, m.content, m.created_at
		FROM conversations c
		LEFT JOIN conversation_messages m ON m.id = (
			SELECT MAX(id) FROM conversation_messages
			WHERE user_id = c.user_id AND conversation_id = c.conversation_id
		)
		WHERE c.user_id = ? AND c.expire_at > ?
		ORDER BY c.updated_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var s models.ConversationSummary
		var updatedAt, expireAt int64
		var role, content sql.NullString
		var at sql.NullInt64
		if err := rows.Scan(&s.ConversationID, &s.Title, &updatedAt, &expireAt, &role, &content, &at); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.UpdatedAt = fromMillis(updatedAt)
		s.ExpireAt = fromMillis(expireAt)
		if role.Valid {
			s.LastMessage = &models.Message{Role: role.String, Content: content.String, CreatedAt: fromMillis(at.Int64)}
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (c *Client) DeleteConversation(ctx context.Context, userID, conversationID string, now time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND conversation_id = ? AND expire_at > ?`,
		userID, conversationID, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (c *Client) ClearMessages(ctx context.Context, userID, conversationID string, expireAt, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET expire_at = ?, updated_at = ?
		WHERE user_id = ? AND conversation_id = ? AND expire_at > ?`,
		toMillis(expireAt), toMillis(now), userID, conversationID, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID,
	); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

func (c *Client) UpdateConversationTitle(ctx context.Context, userID, conversationID, title string, now time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ?
		WHERE user_id = ? AND conversation_id = ? AND expire_at > ?`,
		title, toMillis(now), userID, conversationID, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every conversation whose expiry is at or before now.
func (c *Client) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE expire_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		logger.Debug("Expired conversations deleted", zap.Int64("count", n))
	}
	return n, nil
}
