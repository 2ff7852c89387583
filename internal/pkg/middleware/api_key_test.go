package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestExtractAPIKeyFromHeader(t *testing.T) {
	app := fiber.New()
	app.Get("/guarded", func(c *fiber.Ctx) error {
		return c.SendString(extractAPIKeyFromHeader(c))
	})

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-api-key", map[string]string{"X-API-Key": "sp_key_1"}, "sp_key_1"},
		{"x-api-key trimmed", map[string]string{"X-API-Key": "  sp_key_1  "}, "sp_key_1"},
		{"bearer", map[string]string{"Authorization": "Bearer sp_key_2"}, "sp_key_2"},
		{"bearer case insensitive", map[string]string{"Authorization": "bearer sp_key_2"}, "sp_key_2"},
		{"x-api-key wins over bearer", map[string]string{"X-API-Key": "sp_a", "Authorization": "Bearer sp_b"}, "sp_a"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, ""},
		{"no headers", nil, ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/guarded", nil)
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		assert.NoError(t, err, tc.name)

		body, err := io.ReadAll(resp.Body)
		assert.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, string(body), tc.name)
	}
}
