package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQuestionLength: 20, AskPaths: []string{"/ask"}}))
	app.Post("/ask", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(SanitizedQuestionKey).(string))
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "valid", body: `{"question":"Tồn kho ABC123?"}`, contentType: "application/json", wantStatus: 200},
		{name: "missing", body: `{}`, contentType: "application/json", wantStatus: 400},
		{name: "too long", body: `{"question":"` + strings.Repeat("a", 21) + `"}`, contentType: "application/json", wantStatus: 400},
		{name: "xss", body: `{"question":"<script>x</script>"}`, contentType: "application/json", wantStatus: 400},
		{name: "bad json", body: `{`, contentType: "application/json", wantStatus: 400},
		{name: "wrong type", body: `question`, contentType: "text/plain", wantStatus: 415},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestSanitizeQuestion(t *testing.T) {
	assert.Equal(t, "Tồn kho", SanitizeQuestion("  Tồn\x00 kho \n"))
}
