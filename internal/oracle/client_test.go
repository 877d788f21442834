package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/analysis/indicator"
)

func testRequest() Request {
	return Request{
		Snapshot: indicator.Snapshot{
			Symbol:    "ETH/USDT:USDT",
			Timeframe: "5m",
			Price:     2450.5,
			RSI:       61.2,
		},
		Position: &PositionBrief{Side: "long", Size: "6", EntryPrice: "2400", Leverage: 2},
		CanAdd:   true,
	}
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestChatClientDecide(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(completionBody(`{"action":"HOLD","confidence":"LOW"}`)))
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "sk-test", "deepseek-chat", 5*time.Second)
	out, err := c.Decide(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, out, `"action":"HOLD"`)
	assert.Equal(t, "deepseek-chat", gotBody["model"])

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, "ETH/USDT:USDT")
	assert.Contains(t, user, `"side": "long"`)
}

func TestChatClientRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "", "m", 5*time.Second)
	out, err := c.Decide(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestChatClientGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "", "m", 5*time.Second)
	c.MaxRetries = 1
	_, err := c.Decide(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestChatClientClientErrorIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad api key"}}`))
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "", "m", 5*time.Second)
	_, err := c.Decide(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "bad api key")
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestChatClientEndpointNormalization(t *testing.T) {
	c := &ChatClient{BaseURL: "https://api.example.com/v1/"}
	assert.Equal(t, "https://api.example.com/v1/chat/completions", c.endpoint())

	c.BaseURL = "https://api.example.com/v1/chat/completions"
	assert.Equal(t, "https://api.example.com/v1/chat/completions", c.endpoint())

	c.BaseURL = ""
	assert.True(t, strings.HasPrefix(c.endpoint(), "https://api.openai.com/v1"))
}

func TestBuildUserPromptWithoutPosition(t *testing.T) {
	req := testRequest()
	req.Position = nil

	out, err := BuildUserPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, out, `"position": null`)
	assert.NotContains(t, out, "adding_allowed")
}
