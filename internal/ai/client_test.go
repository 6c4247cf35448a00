package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/explorations/internal/model"
)

func newTestClient(serverURL string) *Client {
	client := NewClient(
		http.DefaultClient,
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		ClientConfig{
			APIKey:       "test-key",
			Model:        "claude-sonnet-4-20250514",
			MaxTokens:    1024,
			SystemPrompt: "あなたは探求の案内役です。",
		},
		nil,
	)
	client.endpoint = serverURL
	return client
}

func TestComplete(t *testing.T) {
	var gotBody apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": [{"text": "応答テキスト"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	reply, err := client.Complete(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "質問です"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "応答テキスト" {
		t.Errorf("reply = %q", reply)
	}

	if gotBody.Model != "claude-sonnet-4-20250514" {
		t.Errorf("request model = %q", gotBody.Model)
	}
	if gotBody.MaxTokens != 1024 {
		t.Errorf("request max_tokens = %d", gotBody.MaxTokens)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v", gotBody.Messages)
	}
	if gotBody.System != "あなたは探求の案内役です。" {
		t.Errorf("request system = %q", gotBody.System)
	}
}

func TestComplete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "質問です"},
	})
	if err == nil {
		t.Error("Complete = nil, want error")
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "質問です"},
	})
	if err == nil {
		t.Error("Complete = nil, want error")
	}
}

func TestComplete_NoMessages(t *testing.T) {
	client := newTestClient("http://unused")
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Error("Complete(nil) = nil, want error")
	}
}
