package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/stockdesk/backend/internal/query"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{query.ErrInvalidInput, fiber.StatusBadRequest, ""},
	{query.ErrQuotaExceeded, fiber.StatusTooManyRequests, "Bạn đã hết lượt hỏi hôm nay. Vui lòng thử lại vào ngày mai."},
	{query.ErrBudgetExhausted, fiber.StatusPaymentRequired, "Ngân sách trợ lý tháng này đã hết."},
	{query.ErrNotFound, fiber.StatusNotFound, "Không tìm thấy cuộc hội thoại."},
	{query.ErrModelUnavailable, fiber.StatusServiceUnavailable, "Trợ lý tạm thời không khả dụng. Vui lòng thử lại sau."},
	{query.ErrMisconfigured, fiber.StatusServiceUnavailable, "Trợ lý chưa được cấu hình."},
}

const internalMessage = "Đã xảy ra lỗi. Vui lòng thử lại sau."

// statusFor maps an engine error to an HTTP status and a user-facing message.
// Invalid input keeps its own message since it only describes the request.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.message == "" {
				return m.status, err.Error()
			}
			return m.status, m.message
		}
	}
	return fiber.StatusInternalServerError, internalMessage
}

func writeError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
