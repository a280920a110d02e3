package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/middleware/auth"
	"github.com/stockdesk/backend/internal/middleware/validation"
	"github.com/stockdesk/backend/internal/query"
	"github.com/stockdesk/backend/pkg/logger"
)

const askTimeout = 2 * time.Minute

type WebSocketHandler struct {
	assistant Assistant
}

func NewWebSocketHandler(assistant Assistant) *WebSocketHandler {
	return &WebSocketHandler{
		assistant: assistant,
	}
}

type wsRequest struct {
	Type           string `json:"type"`
	Question       string `json:"question"`
	ConversationID string `json:"conversationId"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, _ := c.Locals(auth.LocalsKey).(string)
	logger.Info("WebSocket connection established", zap.String("user_id", userID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("user_id", userID))
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if msg.Type != "ask" {
			continue
		}

		if err := h.streamAnswer(c, userID, msg); err != nil {
			logger.Warn("Failed to stream answer", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, userID string, msg wsRequest) error {
	question := validation.SanitizeQuestion(msg.Question)
	if validation.ContainsXSS(question) {
		return h.sendError(c, query.ErrInvalidInput)
	}

	if err := h.send(c, map[string]interface{}{"type": "status", "content": "processing"}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	response, err := h.assistant.Ask(ctx, query.AskRequest{
		Question:       question,
		UserID:         userID,
		ConversationID: msg.ConversationID,
	})
	if err != nil {
		return h.sendError(c, err)
	}

	for _, chunk := range splitIntoChunks(response.Answer) {
		if err := h.send(c, map[string]interface{}{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]interface{}{
		"type":           "complete",
		"conversationId": response.ConversationID,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]interface{}) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) error {
	status, message := statusFor(err)
	return h.send(c, map[string]interface{}{
		"type":   "error",
		"status": status,
		"error":  message,
	})
}

// splitIntoChunks cuts text into words that keep their trailing whitespace,
// so joining the chunks restores the text exactly.
func splitIntoChunks(text string) []string {
	var chunks []string
	var current strings.Builder
	inSpace := false

	for _, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && inSpace {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		inSpace = isSpace
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
