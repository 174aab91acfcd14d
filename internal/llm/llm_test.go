package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/working-memory/internal/config"
)

func TestNew(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(config.LLMConfig{Provider: "openai", MaxTokens: 10})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	c, err = New(config.LLMConfig{Provider: "anthropic", MaxTokens: 10, Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = New(config.LLMConfig{Provider: "palm"})
	assert.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`[{"a":1}]`, `[{"a":1}]`, true},
		{"```json\n{\"summary\":\"x\"}\n```", `{"summary":"x"}`, true},
		{`Sure! Here you go: ["a","b"] hope that helps`, `["a","b"]`, true},
		{"no json here", "", false},
		{"{ unterminated", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractJSON(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOpenAICompleteAgainstStub(t *testing.T) {
	var gotSystem, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			switch m.Role {
			case "system":
				gotSystem = m.Content
			case "user":
				gotUser = m.Content
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  pong  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "test-key", "test-model", 16)
	out, err := c.Complete(context.Background(), "be brief", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "be brief", gotSystem)
	assert.Equal(t, "ping", gotUser)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "k", "m", 16).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrUnavailable)
}
