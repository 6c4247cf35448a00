package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/explorations/internal/middleware"
	"github.com/hitoshi/explorations/internal/model"
)

// TurnServiceInterface は会話ハンドラーが必要とするサービスインターフェース。
type TurnServiceInterface interface {
	// Turn は1ターンを実行し、アシスタントの応答テキストを返す。
	Turn(ctx context.Context, sessionID, userMessage string) (string, error)
	// History はセッションの全メッセージを挿入順で返す。
	History(ctx context.Context, sessionID string) ([]model.Message, error)
}

// TurnMetrics は会話ターンのメトリクス収集インターフェース。
// metrics.Collectorの部分集合として定義する。nilの場合は記録しない。
type TurnMetrics interface {
	RecordTurn()
}

// ChatHandler は会話のHTTPハンドラー。
// すべてのエンドポイントはアイデンティティミドルウェアの内側に配置され、
// リクエストごとにアクセス解決（購入確認とセッション解決）を通す。
type ChatHandler struct {
	resolver AccessResolverInterface
	turns    TurnServiceInterface
	metrics  TurnMetrics
}

// NewChatHandler はChatHandlerを生成する。metricsはnilでもよい。
func NewChatHandler(resolver AccessResolverInterface, turns TurnServiceInterface, metrics TurnMetrics) *ChatHandler {
	return &ChatHandler{
		resolver: resolver,
		turns:    turns,
		metrics:  metrics,
	}
}

// chatRequest は会話ターンリクエストのボディ。
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse は会話ターンのレスポンス。
type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// messageResponse は会話ログ1件のレスポンス表現。
type messageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Chat は会話の1ターンを処理する。
// POST /api/explorations/{id}/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	email, err := middleware.EmailFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	explorationID := chi.URLParam(r, "id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	result, err := h.resolver.ResolveAccess(r.Context(), email, explorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !result.Allowed {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
		return
	}

	reply, err := h.turns.Turn(r.Context(), result.SessionID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTurn()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		Reply:     reply,
		SessionID: result.SessionID,
	})
}

// Messages は会話ログを挿入順で返す。
// 再訪時のフロントエンドが会話を復元するために使う。
// GET /api/explorations/{id}/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	email, err := middleware.EmailFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	explorationID := chi.URLParam(r, "id")

	result, err := h.resolver.ResolveAccess(r.Context(), email, explorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !result.Allowed {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
		return
	}

	messages, err := h.turns.History(r.Context(), result.SessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": result.SessionID,
		"messages":   out,
	})
}
