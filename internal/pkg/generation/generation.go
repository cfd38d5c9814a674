package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nanbonsmr/quickwriteai-sub001/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
)

// Generator produces content for a user prompt. Implementations must be safe
// for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

type Request struct {
	ContentType string
	Prompt      string
	Tone        string
	MaxWords    int
}

type Response struct {
	Text  string
	Model string
	Words int
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	APIKey     string
	APIBaseURL string
	Model      string

	HTTPClient *http.Client
}

func NewOpenAIClientFromEnv() *OpenAIClient {
	return &OpenAIClient{
		APIKey:     strings.TrimSpace(env.GetEnv("OPENAI_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("OPENAI_API_BASE_URL", defaultAPIBaseURL), "/"),
		Model:      strings.TrimSpace(env.GetEnv("OPENAI_MODEL", defaultModel)),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Generate(ctx context.Context, genReq *Request) (*Response, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	if genReq == nil || strings.TrimSpace(genReq.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	body := chatCompletionRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(genReq)},
			{Role: "user", Content: strings.TrimSpace(genReq.Prompt)},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/chat/completions", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, errors.New("completion response contained no content")
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	model := out.Model
	if model == "" {
		model = c.Model
	}
	return &Response{
		Text:  text,
		Model: model,
		Words: CountWords(text),
	}, nil
}

func systemPrompt(req *Request) string {
	var b strings.Builder
	switch strings.ToLower(strings.TrimSpace(req.ContentType)) {
	case "blog_post":
		b.WriteString("You are a professional blog writer. Write a well-structured blog post.")
	case "product_description":
		b.WriteString("You are a conversion copywriter. Write a compelling product description.")
	case "social_media":
		b.WriteString("You are a social media manager. Write an engaging social media post.")
	case "email":
		b.WriteString("You are an email copywriter. Write a clear, effective email.")
	default:
		b.WriteString("You are a professional content writer.")
	}
	if tone := strings.TrimSpace(req.Tone); tone != "" {
		fmt.Fprintf(&b, " Use a %s tone.", tone)
	}
	if req.MaxWords > 0 {
		fmt.Fprintf(&b, " Keep the result under %d words.", req.MaxWords)
	}
	return b.String()
}

// CountWords counts whitespace-separated tokens, which is how generated
// content is billed against a user's word limit.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
