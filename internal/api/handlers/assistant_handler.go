package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/conversation"
	"github.com/stockdesk/backend/internal/guard"
	"github.com/stockdesk/backend/internal/middleware/auth"
	"github.com/stockdesk/backend/internal/middleware/validation"
	"github.com/stockdesk/backend/internal/query"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

// Assistant is the orchestrator surface the transport needs.
type Assistant interface {
	Ask(ctx context.Context, req query.AskRequest) (*query.AskResponse, error)
	DailyUsage(ctx context.Context, userID string) (*guard.DailyUsage, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]models.ConversationSummary, error)
	ConversationHistory(ctx context.Context, userID, conversationID string, limit int, cursor *int) (*conversation.Page, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	ClearConversationHistory(ctx context.Context, userID, conversationID string) error
	UpdateConversationTitle(ctx context.Context, userID, conversationID, title string) error
	CreateFeedback(ctx context.Context, userID string, in query.FeedbackInput) (*query.FeedbackReceipt, error)
	ListFeedback(ctx context.Context, userID, conversationID string, limit int) ([]models.Feedback, error)
}

type AssistantHandler struct {
	assistant Assistant
}

func NewAssistantHandler(assistant Assistant) *AssistantHandler {
	return &AssistantHandler{
		assistant: assistant,
	}
}

// Register mounts the assistant routes on router.
func (h *AssistantHandler) Register(router fiber.Router) {
	router.Post("/ask", h.Ask)
	router.Get("/usage", h.Usage)
	router.Get("/conversations", h.ListConversations)
	router.Get("/conversations/:id/messages", h.History)
	router.Delete("/conversations/:id/messages", h.ClearHistory)
	router.Delete("/conversations/:id", h.DeleteConversation)
	router.Patch("/conversations/:id", h.UpdateTitle)
	router.Post("/feedback", h.CreateFeedback)
	router.Get("/feedback", h.ListFeedback)
}

func (h *AssistantHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Question       string `json:"question"`
		ConversationID string `json:"conversationId"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse ask body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	question := req.Question
	if sanitized, ok := c.Locals(validation.SanitizedQuestionKey).(string); ok {
		question = sanitized
	}

	response, err := h.assistant.Ask(c.UserContext(), query.AskRequest{
		Question:       question,
		UserID:         auth.UserID(c),
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(response)
}

func (h *AssistantHandler) Usage(c *fiber.Ctx) error {
	usage, err := h.assistant.DailyUsage(c.UserContext(), auth.UserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(usage)
}

func (h *AssistantHandler) ListConversations(c *fiber.Ctx) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return writeError(c, err)
	}

	list, err := h.assistant.ListConversations(c.UserContext(), auth.UserID(c), limit)
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	return c.JSON(fiber.Map{
		"conversations": list,
	})
}

func (h *AssistantHandler) History(c *fiber.Ctx) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return writeError(c, err)
	}

	var cursor *int
	if raw := c.Query("cursor"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return writeError(c, query.ErrInvalidInput)
		}
		cursor = &v
	}

	page, err := h.assistant.ConversationHistory(c.UserContext(), auth.UserID(c), c.Params("id"), limit, cursor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

func (h *AssistantHandler) DeleteConversation(c *fiber.Ctx) error {
	if err := h.assistant.DeleteConversation(c.UserContext(), auth.UserID(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AssistantHandler) ClearHistory(c *fiber.Ctx) error {
	if err := h.assistant.ClearConversationHistory(c.UserContext(), auth.UserID(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AssistantHandler) UpdateTitle(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.assistant.UpdateConversationTitle(c.UserContext(), auth.UserID(c), c.Params("id"), req.Title); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AssistantHandler) CreateFeedback(c *fiber.Ctx) error {
	var req query.FeedbackInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	receipt, err := h.assistant.CreateFeedback(c.UserContext(), auth.UserID(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(receipt)
}

func (h *AssistantHandler) ListFeedback(c *fiber.Ctx) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return writeError(c, err)
	}

	items, err := h.assistant.ListFeedback(c.UserContext(), auth.UserID(c), c.Query("conversationId"), limit)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []models.Feedback{}
	}
	return c.JSON(fiber.Map{
		"feedback": items,
	})
}

func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, query.ErrInvalidInput
	}
	return v, nil
}
