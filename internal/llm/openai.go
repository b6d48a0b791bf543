package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPError is a non-200 response from the API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm: http %d: %s", e.Status, e.Body)
}

// retryable reports whether the request may succeed on a later attempt.
func (e *HTTPError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client implements Provider and Embedder for OpenAI-compatible APIs.
type Client struct {
	apiKey         string
	apiBase        string
	model          string
	embeddingModel string
	temperature    float64
	http           *http.Client
	maxAttempts    int
	backoff        time.Duration
	log            zerolog.Logger
}

// Opts holds parameters for creating a Client.
type Opts struct {
	APIKey         string
	APIBase        string // default https://api.openai.com/v1
	Model          string
	EmbeddingModel string
	Temperature    float64
	Timeout        time.Duration // default 60s
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// New creates a Client.
func New(opts Opts) (*Client, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:         opts.APIKey,
		apiBase:        base,
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		temperature:    opts.Temperature,
		http:           hc,
		maxAttempts:    3,
		backoff:        time.Second,
		log:            opts.Logger,
	}, nil
}

// Model returns the default chat model.
func (c *Client) Model() string { return c.model }

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatBody struct {
	Model          string            `json:"model"`
	Messages       []wireMessage     `json:"messages"`
	Tools          []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResult struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := chatBody{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		Tools:       req.Tools,
		Temperature: c.temperature,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if len(req.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
		if body.ToolChoice == "" {
			body.ToolChoice = ToolChoiceAuto
		}
	}
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var res chatResult
	if err := c.do(ctx, "/chat/completions", body, &res); err != nil {
		return nil, err
	}
	return parseChat(&res), nil
}

func toWire(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		// Assistant messages carrying tool calls omit empty content.
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			wm.Content = &content
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func parseChat(res *chatResult) *ChatResponse {
	out := &ChatResponse{FinishReason: "stop", Usage: res.Usage}
	if len(res.Choices) == 0 {
		return out
	}
	choice := res.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]interface{})
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      strings.TrimSpace(tc.Function.Name),
			Arguments: args,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out
}

type embedResult struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, fmt.Errorf("llm: embedding model is not configured")
	}
	body := map[string]interface{}{"model": c.embeddingModel, "input": text}
	var res embedResult
	if err := c.do(ctx, "/embeddings", body, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("llm: embed: empty response")
	}
	return res.Data[0].Embedding, nil
}

// do posts body to path and decodes the response into out, retrying rate
// limits and server errors.
func (c *Client) do(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			c.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("wait", wait).Msg("llm: retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.post(ctx, path, data, out)
		if lastErr == nil {
			return nil
		}
		httpErr, ok := lastErr.(*HTTPError)
		if !ok || !httpErr.retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, path string, data []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llm: decode response: %w", err)
	}
	return nil
}
