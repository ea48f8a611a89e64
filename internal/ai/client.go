package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultModel      = "llama-3.3-70b-versatile"
	DefaultBaseURL    = "https://api.groq.com/openai/v1/chat/completions"
	DefaultTimeout    = 60 * time.Second
	MaxRetries        = 3
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
)

// Client talks to an OpenAI-compatible chat completions API
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// ChatMessage represents a message in the chat conversation. Content is
// either a plain string or a slice of content parts when an image is
// attached.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// TextMessage builds a plain text chat message
func TextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: text}
}

// ImageMessage builds a chat message carrying text plus an attached image
// as a data URL content part.
func ImageMessage(role, text, dataURL string) ChatMessage {
	return ChatMessage{Role: role, Content: []contentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	}}
}

// ChatRequest represents a request to the chat completions API
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// ChatResponse represents a response from the chat completions API
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient creates a new chat completions client
func NewClient(apiKey string) *Client {
	return NewClientWithOptions(apiKey, "", 0)
}

// NewClientWithOptions creates a new client with custom options
func NewClientWithOptions(apiKey string, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// Chat sends a chat completion request with retry logic: rate limits and
// server errors are retried with truncated exponential backoff, anything
// else fails fast.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}

	var lastErr error
	backoff := InitialBackoff

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * BackoffMultiplier)
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", MaxRetries, lastErr)
}

// doRequest performs the actual HTTP request
func (c *Client) doRequest(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody apiErrorBody
		if err := json.Unmarshal(respBody, &errBody); err == nil && errBody.Error.Message != "" {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    errBody.Error.Message,
				Type:       errBody.Error.Type,
				Code:       errBody.Error.Code,
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &chatResp, nil
}

// APIError represents an API error with status code and message
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("model API error (%d): %s - %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("model API error (%d): %s", e.StatusCode, e.Message)
}

// IsRateLimitError checks if the error is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError checks if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// isRetryableError checks if an error should be retried
func isRetryableError(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.IsRateLimitError() || apiErr.IsServerError()
	}
	return false
}

// GetMessageContent extracts the content from the first choice in the response
func (r *ChatResponse) GetMessageContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
