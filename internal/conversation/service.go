package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
	"github.com/stockdesk/backend/pkg/utils"
)

const TitleMaxRunes = 60

// Repository persists conversations. Reads ignore conversations whose
// expiry is at or before now.
type Repository interface {
	UpsertConversation(ctx context.Context, userID, conversationID, title string, expireAt, now time.Time) (*models.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string, now time.Time) (*models.Conversation, error)
	AppendMessages(ctx context.Context, userID, conversationID string, messages []models.Message, expireAt, now time.Time) error
	ListConversations(ctx context.Context, userID string, limit int, now time.Time) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, userID, conversationID string, now time.Time) error
	ClearMessages(ctx context.Context, userID, conversationID string, expireAt, now time.Time) error
	UpdateConversationTitle(ctx context.Context, userID, conversationID, title string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// Page is a window of history. NextCursor is the index of the first message
// in the window, nil once the window reaches the start.
type Page struct {
	Messages   []models.Message `json:"messages"`
	NextCursor *int             `json:"nextCursor"`
	Total      int              `json:"total"`
}

func NewService(repo Repository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests and the CLI.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func Title(question string) string {
	return utils.TruncateRunes(strings.Join(strings.Fields(question), " "), TitleMaxRunes)
}

// GetOrCreate loads the conversation or creates it titled after firstQuestion.
// Either way its expiry slides to now plus the TTL.
func (s *Service) GetOrCreate(ctx context.Context, userID, conversationID, firstQuestion string) (*models.Conversation, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	now := s.now()
	conv, err := s.repo.UpsertConversation(ctx, userID, conversationID, Title(firstQuestion), now.Add(s.ttl), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) Append(ctx context.Context, conv *models.Conversation, messages ...models.Message) error {
	now := s.now()
	for i := range messages {
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = now
		}
	}
	expireAt := now.Add(s.ttl)
	if err := s.repo.AppendMessages(ctx, conv.UserID, conv.ConversationID, messages, expireAt, now); err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	conv.Messages = append(conv.Messages, messages...)
	conv.ExpireAt = expireAt
	conv.UpdatedAt = now
	return nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error) {
	return s.repo.ListConversations(ctx, userID, limit, s.now())
}

// History pages backwards: the window ends at cursor (or the last message)
// and holds at most limit messages.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit int, cursor *int) (*Page, error) {
	conv, err := s.repo.GetConversation(ctx, userID, conversationID, s.now())
	if err != nil {
		return nil, err
	}
	return Paginate(conv.Messages, limit, cursor), nil
}

func Paginate(messages []models.Message, limit int, cursor *int) *Page {
	total := len(messages)
	end := total
	if cursor != nil && *cursor < end {
		end = *cursor
	}
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := &Page{Messages: append([]models.Message{}, messages[start:end]...), Total: total}
	if start > 0 {
		next := start
		page.NextCursor = &next
	}
	return page
}

// RecentMessages is the history window handed to the model.
func RecentMessages(conv *models.Conversation, window int) []models.Message {
	if window <= 0 || len(conv.Messages) <= window {
		return conv.Messages
	}
	return conv.Messages[len(conv.Messages)-window:]
}

func (s *Service) Delete(ctx context.Context, userID, conversationID string) error {
	return s.repo.DeleteConversation(ctx, userID, conversationID, s.now())
}

// Clear empties the message log and restarts the expiry window.
func (s *Service) Clear(ctx context.Context, userID, conversationID string) error {
	now := s.now()
	return s.repo.ClearMessages(ctx, userID, conversationID, now.Add(s.ttl), now)
}

func (s *Service) UpdateTitle(ctx context.Context, userID, conversationID, title string) error {
	return s.repo.UpdateConversationTitle(ctx, userID, conversationID, Title(title), s.now())
}

func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.ConversationsSwept.Add(float64(n))
	return n, nil
}

// RunSweeper deletes expired conversations every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid sweep interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Conversation sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Conversation sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				logger.Error("Conversation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Expired conversations swept", zap.Int64("count", n))
			}
		}
	}
}
