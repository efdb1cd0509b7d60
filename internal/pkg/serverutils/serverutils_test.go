package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ai-consultation-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Message string `json:"message" validate:"required,max=5"`
	TopK    int    `json:"top_k" validate:"omitempty,min=1"`
}

func TestValidateRequestUsesJSONNames(t *testing.T) {
	err := ValidateRequest(sampleRequest{TopK: -1})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "message", verr.Fields[0].Field)
	assert.Equal(t, "required", verr.Fields[0].Rule)
	assert.Equal(t, "top_k", verr.Fields[1].Field)
	assert.Equal(t, "top_k must be at least 1", verr.Fields[1].Message)

	assert.NoError(t, ValidateRequest(sampleRequest{Message: "hi"}))
}

func newApp(handler fiber.Handler, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(logger.NewNopLogger()))
	for _, m := range middleware {
		app.Use(m)
	}
	app.Get("/", handler)
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var res ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&res))
	return res
}

func TestErrorHandlerMapsErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"fiber error", fiber.NewError(fiber.StatusNotFound, "Session not found"), 404, "Session not found"},
		{"validation", &ValidationError{Fields: []FieldError{{Field: "message"}}}, 400, "Validation failed"},
		{"internal", errors.New("disk on fire"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(func(*fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			body := decodeError(t, resp.Body)
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestJwtMiddlewareOpenWithoutSecret(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { return c.SendString("ok") }, NewJwtMiddleware(""))

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestJwtMiddleware(t *testing.T) {
	secret := "test-secret"
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	app := newApp(func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	}, NewJwtMiddleware(secret))

	t.Run("missing", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed+"x")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "user-1", string(body))
	})

	t.Run("query", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/?token="+signed, nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}
