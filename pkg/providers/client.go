package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	fallbackHTTPTimeout = 30 * time.Second
	maxResponseBytes    = 1 << 20
	maxErrorRunes       = 500
)

// Client sends completion requests to one OpenAI-compatible endpoint with
// the model and sampling settings of the generator it was built for.
type Client struct {
	provider    string
	url         string
	model       string
	maxTokens   int
	temperature float64
	auth        AuthStrategy
	header      http.Header
	http        *http.Client
}

// Provider is the canonical provider name, e.g. "openrouter".
func (c *Client) Provider() string { return c.provider }

// Model is the model every request is sent with.
func (c *Client) Model() string { return c.model }

// AuthMode names how requests are authenticated.
func (c *Client) AuthMode() string { return c.auth.Mode() }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content messageContent `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// messageContent accepts a plain string or the content-parts array some
// gateways return.
type messageContent string

func (m *messageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = messageContent(text)
		return nil
	}
	var parts []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content is neither text nor parts: %w", err)
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Text != "" {
			b.WriteString(p.Text)
		} else {
			b.WriteString(p.Content)
		}
	}
	*m = messageContent(b.String())
	return nil
}

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Provider string
	Status   int
	Message  string // includes a configuration hint when one applies
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed: status=%d error=%s", e.Provider, e.Status, e.Message)
}

// Complete posts one chat completion and returns its first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	body := chatRequest{Model: c.model, Messages: req.Messages, MaxTokens: c.maxTokens}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if c.temperature > 0 {
		t := c.temperature
		body.Temperature = &t
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal %s request: %w", c.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return Completion{}, fmt.Errorf("create %s request: %w", c.provider, err)
	}
	for name, values := range c.header {
		httpReq.Header[name] = values
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.auth.Apply(ctx, httpReq); err != nil {
		return Completion{}, fmt.Errorf("apply %s auth: %w", c.provider, err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("send %s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("read %s response: %w", c.provider, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Completion{}, &APIError{
			Provider: c.provider,
			Status:   resp.StatusCode,
			Message:  augmentProviderError(c.provider, apiErrorMessage(raw)),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Completion{}, fmt.Errorf("parse %s response: %w", c.provider, err)
	}
	if len(decoded.Choices) == 0 {
		return Completion{Usage: decoded.Usage}, nil
	}
	choice := decoded.Choices[0]
	return Completion{
		Text:         string(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage:        decoded.Usage,
	}, nil
}

// apiErrorMessage pulls the human-readable part out of an error body. Both
// {"error":{"message":...}} and {"error":"..."} shapes occur in the wild.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		var flat string
		if json.Unmarshal(payload.Error, &flat) == nil && strings.TrimSpace(flat) != "" {
			return strings.TrimSpace(flat)
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	if runes := []rune(text); len(runes) > maxErrorRunes {
		return string(runes[:maxErrorRunes]) + "..."
	}
	return text
}

func newHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = fallbackHTTPTimeout
	}
	client := &http.Client{Timeout: timeout}
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return client, nil
}
