package query

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/conversation"
	"github.com/stockdesk/backend/internal/facts"
	"github.com/stockdesk/backend/internal/guard"
	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	maxIDLength      = 128
)

type Router interface {
	Route(ctx context.Context, question string) models.RoutingDecision
}

type FactBuilder interface {
	Build(ctx context.Context, domain models.Domain, question string) (*facts.Fact, error)
}

type Guard interface {
	AssertDailyLimit(ctx context.Context, userID string) error
	DailyUsage(ctx context.Context, userID string) (*guard.DailyUsage, error)
	EnsureMonthlyBudget(ctx context.Context) (float64, error)
	CheckCallBudget(promptChars int, remaining float64) (float64, error)
}

type Gateway interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Conversations interface {
	GetOrCreate(ctx context.Context, userID, conversationID, firstQuestion string) (*models.Conversation, error)
	Append(ctx context.Context, conv *models.Conversation, messages ...models.Message) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error)
	History(ctx context.Context, userID, conversationID string, limit int, cursor *int) (*conversation.Page, error)
	Delete(ctx context.Context, userID, conversationID string) error
	Clear(ctx context.Context, userID, conversationID string) error
	UpdateTitle(ctx context.Context, userID, conversationID, title string) error
}

type FeedbackStore interface {
	InsertFeedback(ctx context.Context, fb *models.Feedback) error
	ListFeedback(ctx context.Context, userID, conversationID string, limit int) ([]models.Feedback, error)
}

type Deps struct {
	Router        Router
	Facts         FactBuilder
	Guard         Guard
	Gateway       Gateway
	Conversations Conversations
	Feedback      FeedbackStore
}

type Options struct {
	MaxQuestionLength int
	HistoryWindow     int
}

type Engine struct {
	router        Router
	facts         FactBuilder
	guard         Guard
	gateway       Gateway
	conversations Conversations
	feedback      FeedbackStore
	opts          Options
	now           func() time.Time
}

type AskRequest struct {
	Question       string
	UserID         string
	ConversationID string
}

type AskResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
}

type FeedbackInput struct {
	ConversationID string `json:"conversationId"`
	Description    string `json:"description"`
	Expected       string `json:"expected"`
	Actual         string `json:"actual"`
	Rating         *int   `json:"rating"`
}

type FeedbackReceipt struct {
	FeedbackID     string    `json:"feedbackId"`
	ConversationID string    `json:"conversationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.MaxQuestionLength <= 0 {
		opts.MaxQuestionLength = 500
	}
	return &Engine{
		router:        deps.Router,
		facts:         deps.Facts,
		guard:         deps.Guard,
		gateway:       deps.Gateway,
		conversations: deps.Conversations,
		feedback:      deps.Feedback,
		opts:          opts,
		now:           time.Now,
	}
}

// Ask answers one question grounded on stored data. The daily quota is
// consumed before the model call, so a failed call still counts.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (resp *AskResponse, err error) {
	startTime := time.Now()
	r := &run{id: uuid.New().String(), userID: req.UserID}
	domain := models.DomainUnknown

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Ask panicked",
				zap.String("ask_id", r.id),
				zap.String("state", string(r.state)),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			resp, err = nil, ErrInternal
		}
		if err != nil {
			final := r.terminate()
			metrics.AskTotal.WithLabelValues(string(final)).Inc()
			return
		}
		metrics.AskTotal.WithLabelValues(string(StateDone)).Inc()
		metrics.AskDuration.WithLabelValues(string(domain)).Observe(time.Since(startTime).Seconds())
	}()

	r.enter(StateValidating)
	question := strings.TrimSpace(req.Question)
	if err := e.validateQuestion(question, req.UserID, req.ConversationID); err != nil {
		return nil, err
	}

	r.enter(StateQuotaChecking)
	if err := e.guard.AssertDailyLimit(ctx, req.UserID); err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateBudgetChecking)
	remaining, err := e.guard.EnsureMonthlyBudget(ctx)
	if err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateConversationLoading)
	conv, err := e.conversations.GetOrCreate(ctx, req.UserID, req.ConversationID, question)
	if err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateRouting)
	decision := e.router.Route(ctx, question)
	domain = decision.Domain

	r.enter(StateFactBuilding)
	fact, err := e.facts.Build(ctx, decision.Domain, question)
	if err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateCostEstimating)
	userPrompt, err := buildUserPrompt(question, fact)
	if err != nil {
		return nil, e.boundary(r, err)
	}
	history := conversation.RecentMessages(conv, e.opts.HistoryWindow)
	promptChars := utf8.RuneCountInString(systemPrompt) + utf8.RuneCountInString(userPrompt)
	for _, m := range history {
		promptChars += utf8.RuneCountInString(m.Content)
	}
	if _, err := e.guard.CheckCallBudget(promptChars, remaining); err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateCalling)
	completion, err := e.gateway.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		History:      history,
	})
	if err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StatePersisting)
	now := e.now()
	answer := strings.TrimSpace(completion.Content)
	if err := e.conversations.Append(ctx, conv,
		models.Message{Role: models.RoleUser, Content: question, CreatedAt: now},
		models.Message{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	); err != nil {
		return nil, e.boundary(r, err)
	}

	r.enter(StateDone)
	logger.Info("Question answered",
		zap.String("ask_id", r.id),
		zap.String("user_id", req.UserID),
		zap.String("conversation_id", conv.ConversationID),
		zap.String("domain", string(decision.Domain)),
		zap.Float64("route_confidence", decision.Confidence),
		zap.String("fact_type", string(fact.Type)),
		zap.Bool("fact_found", fact.Found),
		zap.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	return &AskResponse{Answer: answer, ConversationID: conv.ConversationID}, nil
}

// boundary lets public sentinels through and replaces anything else with
// ErrInternal after logging it.
func (e *Engine) boundary(r *run, err error) error {
	if IsPublic(err) {
		logger.Debug("Ask stopped",
			zap.String("ask_id", r.id),
			zap.String("state", string(r.state)),
			zap.Error(err),
		)
		return err
	}
	logger.Error("Ask failed",
		zap.String("ask_id", r.id),
		zap.String("state", string(r.state)),
		zap.String("user_id", r.userID),
		zap.Error(err),
	)
	return ErrInternal
}

func (e *Engine) validateQuestion(question, userID, conversationID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	if question == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(question) > e.opts.MaxQuestionLength {
		return fmt.Errorf("%w: question exceeds %d characters", ErrInvalidInput, e.opts.MaxQuestionLength)
	}
	if len(conversationID) > maxIDLength {
		return fmt.Errorf("%w: conversation id is too long", ErrInvalidInput)
	}
	return nil
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	if len(userID) > maxIDLength {
		return fmt.Errorf("%w: user id is too long", ErrInvalidInput)
	}
	return nil
}

func validateConversation(userID, conversationID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	if strings.TrimSpace(conversationID) == "" || len(conversationID) > maxIDLength {
		return fmt.Errorf("%w: invalid conversation id", ErrInvalidInput)
	}
	return nil
}

// NormalizeLimit applies the list default and ceiling. Negative limits are invalid.
func NormalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	case limit == 0:
		return DefaultListLimit, nil
	case limit > MaxListLimit:
		return MaxListLimit, nil
	default:
		return limit, nil
	}
}

func (e *Engine) DailyUsage(ctx context.Context, userID string) (*guard.DailyUsage, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	usage, err := e.guard.DailyUsage(ctx, userID)
	if err != nil {
		return nil, e.opError("daily_usage", err)
	}
	return usage, nil
}

func (e *Engine) ListConversations(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	list, err := e.conversations.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, e.opError("list_conversations", err)
	}
	return list, nil
}

func (e *Engine) ConversationHistory(ctx context.Context, userID, conversationID string, limit int, cursor *int) (*conversation.Page, error) {
	if err := validateConversation(userID, conversationID); err != nil {
		return nil, err
	}
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if cursor != nil && *cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", ErrInvalidInput)
	}
	page, err := e.conversations.History(ctx, userID, conversationID, limit, cursor)
	if err != nil {
		return nil, e.opError("conversation_history", err)
	}
	return page, nil
}

func (e *Engine) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := validateConversation(userID, conversationID); err != nil {
		return err
	}
	if err := e.conversations.Delete(ctx, userID, conversationID); err != nil {
		return e.opError("delete_conversation", err)
	}
	return nil
}

func (e *Engine) ClearConversationHistory(ctx context.Context, userID, conversationID string) error {
	if err := validateConversation(userID, conversationID); err != nil {
		return err
	}
	if err := e.conversations.Clear(ctx, userID, conversationID); err != nil {
		return e.opError("clear_conversation", err)
	}
	return nil
}

func (e *Engine) UpdateConversationTitle(ctx context.Context, userID, conversationID, title string) error {
	if err := validateConversation(userID, conversationID); err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidInput)
	}
	if err := e.conversations.UpdateTitle(ctx, userID, conversationID, title); err != nil {
		return e.opError("update_title", err)
	}
	return nil
}

func (e *Engine) CreateFeedback(ctx context.Context, userID string, in FeedbackInput) (*FeedbackReceipt, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if len(in.ConversationID) > maxIDLength {
		return nil, fmt.Errorf("%w: conversation id is too long", ErrInvalidInput)
	}

	fb := &models.Feedback{
		FeedbackID:     uuid.New().String(),
		UserID:         userID,
		ConversationID: strings.TrimSpace(in.ConversationID),
		Description:    description,
		Expected:       strings.TrimSpace(in.Expected),
		Actual:         strings.TrimSpace(in.Actual),
		Rating:         in.Rating,
		CreatedAt:      e.now().UTC(),
	}
	if err := e.feedback.InsertFeedback(ctx, fb); err != nil {
		return nil, e.opError("create_feedback", err)
	}
	if fb.Rating != nil {
		metrics.FeedbackRating.Observe(float64(*fb.Rating))
	}

	return &FeedbackReceipt{FeedbackID: fb.FeedbackID, ConversationID: fb.ConversationID, CreatedAt: fb.CreatedAt}, nil
}

func (e *Engine) ListFeedback(ctx context.Context, userID, conversationID string, limit int) ([]models.Feedback, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	items, err := e.feedback.ListFeedback(ctx, userID, conversationID, limit)
	if err != nil {
		return nil, e.opError("list_feedback", err)
	}
	return items, nil
}

func (e *Engine) opError(op string, err error) error {
	if IsPublic(err) {
		return err
	}
	logger.Error("Assistant operation failed", zap.String("op", op), zap.Error(err))
	return ErrInternal
}
