package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/payment"
)

// PurchaseServiceInterface は購入ハンドラーが必要とするサービスインターフェース。
type PurchaseServiceInterface interface {
	// HandleWebhookEvent は決済完了Webhookイベントを処理する。
	HandleWebhookEvent(ctx context.Context, event *payment.WebhookEvent) error
	// ConfirmFromClient はクライアント検証経路の購入確認を処理し、
	// 購入者の正規化済みメールアドレスを返す。
	ConfirmFromClient(ctx context.Context, stripeSession, explorationID string) (string, error)
}

// PurchaseHandler は決済確認のHTTPハンドラー。
// Webhook経路とクライアント検証経路の両方を受け、どちらも同じ台帳に収束する。
type PurchaseHandler struct {
	service     PurchaseServiceInterface
	resolver    AccessResolverInterface
	credentials CredentialIssuer
	config      AuthHandlerConfig
}

// NewPurchaseHandler はPurchaseHandlerを生成する。
func NewPurchaseHandler(
	service PurchaseServiceInterface,
	resolver AccessResolverInterface,
	credentials CredentialIssuer,
	config AuthHandlerConfig,
) *PurchaseHandler {
	return &PurchaseHandler{
		service:     service,
		resolver:    resolver,
		credentials: credentials,
		config:      config,
	}
}

// verifyRequest はクライアント検証リクエストのボディ。
type verifyRequest struct {
	StripeSession string `json:"stripe_session"`
	ExplorationID string `json:"exploration_id"`
}

// Webhook は決済完了Webhookを処理する。
// 同一イベントの再送は台帳側の冪等挿入で吸収されるため、
// 処理済み・重複のいずれも200を返す（再送を止めるため）。
// 解析できないペイロードのみ400を返す。
// POST /api/stripe/webhook
func (h *PurchaseHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeInvalidRequestBody(w)
		return
	}

	event, err := payment.ParseWebhook(body)
	if err != nil {
		slog.Warn("undecodable webhook payload", slog.String("error", err.Error()))
		writeInvalidRequestBody(w)
		return
	}

	// 対象外のイベントタイプは何もせず受領する
	if event != nil {
		if err := h.service.HandleWebhookEvent(r.Context(), event); err != nil {
			// 台帳書き込みの失敗は500を返し、Stripeの再送に委ねる
			handleServiceError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"received": true})
}

// Verify はクライアント検証経路の購入確認を処理する。
// Webhookが未着のままユーザーが決済完了ページに戻ってきた場合に呼ばれる。
// Stripeに決済状態を照会し、購入を記録した上でアクセスを確立する。
// POST /api/stripe/verify
func (h *PurchaseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	email, err := h.service.ConfirmFromClient(r.Context(), req.StripeSession, req.ExplorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.resolver.ResolveAccess(r.Context(), email, req.ExplorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !result.Allowed {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPurchaseNotFoundError())
		return
	}

	credential, err := h.credentials.Issue(result.Email)
	if err != nil {
		slog.Error("failed to issue identity credential", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	setIdentityCookieWith(w, credential, h.config)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accessResponse{
		OK:        true,
		Email:     result.Email,
		SessionID: result.SessionID,
	})
}
