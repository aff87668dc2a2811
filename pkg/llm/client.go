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
)

// Client manages requests against an OpenAI-compatible chat-completions
// deployment. The endpoint may be the real service or a forwarding proxy.
type Client struct {
	endpoint       string
	apiKey         string
	apiVersion     string
	deploymentName string
	httpClient     *http.Client
}

// NewClient creates a chat-completions client.
func NewClient(endpoint, apiKey, apiVersion, deploymentName string) *Client {
	return &Client{
		endpoint:       endpoint,
		apiKey:         apiKey,
		apiVersion:     apiVersion,
		deploymentName: deploymentName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ChatMessage is one turn of a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for the completions endpoint.
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

// ChatCompletionResponse is the response body from the completions endpoint.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
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

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// APIError is a non-2xx response from the completions endpoint. Callers
// inspect StatusCode to decide between retrying and giving up.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the error looks like a rate-limit or overload
// condition that a backoff retry could clear.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusBadGateway ||
		e.StatusCode == http.StatusGatewayTimeout ||
		e.StatusCode == http.StatusInternalServerError
}

// AuthFailure reports whether the error means the credentials are wrong or
// missing, which no amount of retrying will fix.
func (e *APIError) AuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ChatCompletion runs one chat completion and returns the first choice's text.
func (c *Client) ChatCompletion(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("llm api key is not configured")
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(c.endpoint, "/"), c.deploymentName, c.apiVersion)

	request := ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        0.95,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
		}
		return "", apiErr
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	return response.Choices[0].Message.Content, nil
}
