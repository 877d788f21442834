package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"helmsman/internal/logger"
)

// ChatClient talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, DeepSeek, Qwen). One instance per configured model.
type ChatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	httpc *http.Client
}

func NewChatClient(baseURL, apiKey, model string, timeout time.Duration) *ChatClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Timeout:    timeout,
		MaxRetries: 2,
		httpc:      &http.Client{Timeout: timeout},
	}
}

func (c *ChatClient) Decide(ctx context.Context, req Request) (string, error) {
	user, err := BuildUserPrompt(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.call(ctx, systemPrompt, user)
}

func (c *ChatClient) call(ctx context.Context, system, user string) (string, error) {
	messages := []map[string]string{
		{"role": "system", "content": system},
		{"role": "user", "content": user},
	}
	body, _ := json.Marshal(map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": 0.5,
	})

	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, retryAfter, err := c.once(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if retryAfter < 0 || attempt == maxRetries {
			break
		}
		if retryAfter == 0 {
			retryAfter = (800 * time.Millisecond) << attempt
			if retryAfter > 8*time.Second {
				retryAfter = 8 * time.Second
			}
		}
		logger.Warnf("oracle %s: retry %d/%d in %s: %v", c.Model, attempt+1, maxRetries, retryAfter, err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(retryAfter):
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// once performs a single request. retryAfter is -1 when the failure is not
// retryable, 0 when the server gave no hint, positive otherwise.
func (c *ChatClient) once(ctx context.Context, body []byte) (out string, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", -1, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Transport failures (timeouts included) are worth one more try.
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		var r struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&r); derr != nil {
			return "", -1, derr
		}
		if len(r.Choices) == 0 {
			return "", -1, fmt.Errorf("empty choices")
		}
		return r.Choices[0].Message.Content, 0, nil
	}

	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&eresp)
	msg := strings.TrimSpace(eresp.Error.Message)
	if msg == "" {
		msg = resp.Status
	}
	err = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		wait := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		return "", wait, err
	default:
		return "", -1, err
	}
}

func (c *ChatClient) endpoint() string {
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	// Tolerate configs that already include the full path.
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}
