package controllers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerateRequest
		wantErr bool
	}{
		{
			name: "valid blog post request",
			req:  GenerateRequest{ContentType: "blog_post", Prompt: "Write about Go testing", Tone: "casual", MaxWords: 500},
		},
		{
			name:    "missing prompt",
			req:     GenerateRequest{ContentType: "email"},
			wantErr: true,
		},
		{
			name:    "unsupported content type",
			req:     GenerateRequest{ContentType: "press_release", Prompt: "Announce our launch"},
			wantErr: true,
		},
		{
			name:    "prompt too short",
			req:     GenerateRequest{ContentType: "email", Prompt: "hi"},
			wantErr: true,
		},
		{
			name:    "max words out of range",
			req:     GenerateRequest{ContentType: "email", Prompt: "Write a follow-up email", MaxWords: 20000},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(&tc.req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandleGenerateRequiresAuthentication(t *testing.T) {
	app := fiber.New()
	app.Post("/api/v1/generate", HandleGenerate)

	body := `{"content_type":"blog_post","prompt":"Write about Go testing"}`
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
