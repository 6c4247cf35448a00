package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/explorations/internal/conversation"
	"github.com/hitoshi/explorations/internal/middleware"
	"github.com/hitoshi/explorations/internal/model"
)

type mockTurnService struct {
	turnFn    func(ctx context.Context, sessionID, userMessage string) (string, error)
	historyFn func(ctx context.Context, sessionID string) ([]model.Message, error)
}

func (m *mockTurnService) Turn(ctx context.Context, sessionID, userMessage string) (string, error) {
	return m.turnFn(ctx, sessionID, userMessage)
}

func (m *mockTurnService) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	return m.historyFn(ctx, sessionID)
}

var _ TurnServiceInterface = (*mockTurnService)(nil)

type countingTurnMetrics struct {
	turns int
}

func (c *countingTurnMetrics) RecordTurn() { c.turns++ }

// newChatRequest はchiのURLパラメータと認証済みコンテキストを持つリクエストを作る。
func newChatRequest(method, explorationID, email, body string) *http.Request {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", explorationID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if email != "" {
		ctx = middleware.ContextWithEmail(ctx, email)
	}
	return req.WithContext(ctx)
}

func TestChat_Turn(t *testing.T) {
	metrics := &countingTurnMetrics{}
	h := NewChatHandler(
		&mockResolver{
			resolveFn: func(ctx context.Context, email, explorationID string) (*conversation.AccessResult, error) {
				if email != "alice@example.com" || explorationID != "exp-1" {
					t.Errorf("resolve args = %q, %q", email, explorationID)
				}
				return &conversation.AccessResult{Allowed: true, Email: email, SessionID: "session-1"}, nil
			},
		},
		&mockTurnService{
			turnFn: func(ctx context.Context, sessionID, userMessage string) (string, error) {
				if sessionID != "session-1" {
					t.Errorf("sessionID = %q", sessionID)
				}
				if userMessage != "質問です" {
					t.Errorf("userMessage = %q", userMessage)
				}
				return "応答テキスト", nil
			},
		},
		metrics,
	)

	rec := httptest.NewRecorder()
	h.Chat(rec, newChatRequest(http.MethodPost, "exp-1", "alice@example.com", `{"message": "質問です"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "応答テキスト" || resp.SessionID != "session-1" {
		t.Errorf("response = %+v", resp)
	}
	if metrics.turns != 1 {
		t.Errorf("turn metric = %d, want 1", metrics.turns)
	}
}

func TestChat_Unauthenticated(t *testing.T) {
	h := NewChatHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, newChatRequest(http.MethodPost, "exp-1", "", `{"message": "質問です"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestChat_AccessDenied(t *testing.T) {
	h := NewChatHandler(
		&mockResolver{
			resolveFn: func(ctx context.Context, email, explorationID string) (*conversation.AccessResult, error) {
				return &conversation.AccessResult{Allowed: false}, nil
			},
		},
		&mockTurnService{
			turnFn: func(ctx context.Context, sessionID, userMessage string) (string, error) {
				t.Fatal("turn should not run without access")
				return "", nil
			},
		},
		nil,
	)

	rec := httptest.NewRecorder()
	h.Chat(rec, newChatRequest(http.MethodPost, "exp-2", "alice@example.com", `{"message": "質問です"}`))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	h := NewChatHandler(
		&mockResolver{
			resolveFn: func(ctx context.Context, email, explorationID string) (*conversation.AccessResult, error) {
				return &conversation.AccessResult{Allowed: true, Email: email, SessionID: "session-1"}, nil
			},
		},
		&mockTurnService{
			turnFn: func(ctx context.Context, sessionID, userMessage string) (string, error) {
				return "", model.NewValidationError("メッセージが空です")
			},
		},
		nil,
	)

	rec := httptest.NewRecorder()
	h.Chat(rec, newChatRequest(http.MethodPost, "exp-1", "alice@example.com", `{"message": ""}`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMessages_ReturnsHistoryInOrder(t *testing.T) {
	createdAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	h := NewChatHandler(
		&mockResolver{
			resolveFn: func(ctx context.Context, email, explorationID string) (*conversation.AccessResult, error) {
				return &conversation.AccessResult{Allowed: true, Email: email, SessionID: "session-1"}, nil
			},
		},
		&mockTurnService{
			historyFn: func(ctx context.Context, sessionID string) ([]model.Message, error) {
				return []model.Message{
					{ID: "m1", Role: model.RoleUser, Content: "質問です", CreatedAt: createdAt},
					{ID: "m2", Role: model.RoleAssistant, Content: "応答テキスト", CreatedAt: createdAt.Add(time.Second)},
				}, nil
			},
		},
		nil,
	)

	rec := httptest.NewRecorder()
	h.Messages(rec, newChatRequest(http.MethodGet, "exp-1", "alice@example.com", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SessionID string            `json:"session_id"`
		Messages  []messageResponse `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "session-1" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Role != "user" || resp.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", resp.Messages[0].Role, resp.Messages[1].Role)
	}
	if resp.Messages[0].CreatedAt != "2026-08-30T12:00:00Z" {
		t.Errorf("created_at = %q", resp.Messages[0].CreatedAt)
	}
}

func TestMessages_Unauthenticated(t *testing.T) {
	h := NewChatHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Messages(rec, newChatRequest(http.MethodGet, "exp-1", "", ""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
