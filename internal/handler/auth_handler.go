// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/explorations/internal/auth"
	"github.com/hitoshi/explorations/internal/conversation"
	"github.com/hitoshi/explorations/internal/model"
)

// AccessResolverInterface はアクセス解決に必要なサービスインターフェース。
type AccessResolverInterface interface {
	// ResolveAccess はメールアドレスとExplorationの組に対して
	// アクセス可否と会話セッションを解決する。
	ResolveAccess(ctx context.Context, email, explorationID string) (*conversation.AccessResult, error)
}

// MagicLinkServiceInterface はマジックリンクの発行と消費のインターフェース。
type MagicLinkServiceInterface interface {
	Issue(ctx context.Context, email, explorationID string) (string, error)
	Redeem(ctx context.Context, token string) (*model.MagicLink, error)
}

// CredentialIssuer はアイデンティティ資格情報の発行・検証のインターフェース。
// auth.CredentialServiceの部分集合として定義する。
type CredentialIssuer interface {
	Issue(email string) (string, error)
	Parse(credential string) (string, error)
}

// PurchaseCheckerInterface は購入済み判定のインターフェース。
type PurchaseCheckerInterface interface {
	HasPurchased(ctx context.Context, email, explorationID string) (bool, error)
}

// MagicLinkSender はアクセスリンクメール送信のインターフェース。
type MagicLinkSender interface {
	SendMagicLink(to, explorationID, link string) error
}

// LinkMetrics はマジックリンク関連のメトリクス収集インターフェース。
// metrics.Collectorの部分集合として定義する。nilの場合は記録しない。
type LinkMetrics interface {
	RecordLinkIssued()
	RecordLinkRedeemed()
	RecordLinkRejected()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL        string
	CookieDomain   string
	CookieSecure   bool
	IdentityMaxAge int // アイデンティティCookieの有効期間（秒）。設計値は約1年
}

// AuthHandler はメールアイデンティティとマジックリンクのHTTPハンドラー。
type AuthHandler struct {
	credentials CredentialIssuer
	links       MagicLinkServiceInterface
	purchases   PurchaseCheckerInterface
	resolver    AccessResolverInterface
	mailer      MagicLinkSender
	metrics     LinkMetrics
	config      AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(
	credentials CredentialIssuer,
	links MagicLinkServiceInterface,
	purchases PurchaseCheckerInterface,
	resolver AccessResolverInterface,
	mailer MagicLinkSender,
	metrics LinkMetrics,
	config AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		links:       links,
		purchases:   purchases,
		resolver:    resolver,
		mailer:      mailer,
		metrics:     metrics,
		config:      config,
	}
}

// claimRequest はアクセス請求リクエストのボディ。
type claimRequest struct {
	Email         string `json:"email"`
	ExplorationID string `json:"exploration_id"`
}

// requestLinkRequest はアクセスリンク発行リクエストのボディ。
type requestLinkRequest struct {
	Email         string `json:"email"`
	ExplorationID string `json:"exploration_id"`
}

// verifyLinkRequest はアクセスリンク検証リクエストのボディ。
type verifyLinkRequest struct {
	Token string `json:"token"`
}

// accessResponse はアクセス確立成功時のレスポンス。
type accessResponse struct {
	OK        bool   `json:"ok"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

// Claim はメールアドレスによるアクセス請求を処理する。
// 購入記録が確認できればアイデンティティCookieを設定して会話セッションを返す。
// 確認できない場合は、該当メールアドレスの登録有無を漏らさない一般的な404を返す。
// POST /api/auth/claim
func (h *AuthHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if model.NormalizeEmail(req.Email) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスが空です"))
		return
	}
	if req.ExplorationID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Exploration IDが空です"))
		return
	}

	result, err := h.resolver.ResolveAccess(r.Context(), req.Email, req.ExplorationID)
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

	h.setIdentityCookie(w, credential)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accessResponse{
		OK:        true,
		Email:     result.Email,
		SessionID: result.SessionID,
	})
}

// RequestLink はアクセスリンクの発行を処理する。
// 購入記録の有無にかかわらず常に同じ一般的なレスポンスを返し、
// メールアドレスの登録有無を漏らさない。実際のトークン発行とメール送信は
// 購入済みの場合にのみ行う。
// POST /api/auth/request-link
func (h *AuthHandler) RequestLink(w http.ResponseWriter, r *http.Request) {
	var req requestLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	normalized := model.NormalizeEmail(req.Email)
	if normalized == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("メールアドレスが空です"))
		return
	}
	if req.ExplorationID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Exploration IDが空です"))
		return
	}

	purchased, err := h.purchases.HasPurchased(r.Context(), normalized, req.ExplorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if purchased {
		// 購入済みの場合のみ発行する。エンタイトルメント確認後の失敗を
		// エラーとして返すと登録有無が漏れるため、ログのみ残して
		// 一般的なレスポンスに畳み込む。
		if err := h.issueAndSendLink(r.Context(), normalized, req.ExplorationID); err != nil {
			slog.Error("failed to issue access link",
				slog.String("exploration_id", req.ExplorationID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      true,
		"message": "購入記録が確認できた場合、アクセスリンクをメールで送信します。",
	})
}

// issueAndSendLink はトークンを発行し、アクセスリンクをメールで送信する。
func (h *AuthHandler) issueAndSendLink(ctx context.Context, email, explorationID string) error {
	token, err := h.links.Issue(ctx, email, explorationID)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/explorations/%s?token=%s", h.config.BaseURL, explorationID, token)
	if err := h.mailer.SendMagicLink(email, explorationID, link); err != nil {
		return err
	}

	if h.metrics != nil {
		h.metrics.RecordLinkIssued()
	}

	return nil
}

// VerifyLink はアクセスリンクのトークンを消費してアクセスを確立する。
// トークンの消費は単一の条件付き更新であり、同じトークンで成功するのは1回だけ。
// 「存在しない」「使用済み」「期限切れ」は同一のエラーレスポンスに畳み込む。
// POST /api/auth/verify-link
func (h *AuthHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	var req verifyLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	link, err := h.links.Redeem(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidLink) {
			if h.metrics != nil {
				h.metrics.RecordLinkRejected()
			}
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidLinkError())
			return
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLinkRedeemed()
	}

	result, err := h.resolver.ResolveAccess(r.Context(), link.Email, link.ExplorationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !result.Allowed {
		// トークンは有効だが購入記録が消えている稀なケース
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPurchaseNotFoundError())
		return
	}

	credential, err := h.credentials.Issue(result.Email)
	if err != nil {
		slog.Error("failed to issue identity credential", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	h.setIdentityCookie(w, credential)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accessResponse{
		OK:        true,
		Email:     result.Email,
		SessionID: result.SessionID,
	})
}

// Session はアイデンティティCookieの状態を返す。
// 未認証でもエラーにせずauthenticated=falseを返す（フロントエンドの初期表示用）。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(auth.IdentityCookieName)
	if err != nil || cookie.Value == "" {
		json.NewEncoder(w).Encode(map[string]interface{}{"authenticated": false})
		return
	}

	email, err := h.credentials.Parse(cookie.Value)
	if err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"authenticated": false})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"authenticated": true,
		"email":         email,
	})
}

// Logout はアイデンティティCookieをクリアする。
// サーバー側に破棄すべき状態はない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearIdentityCookie(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}

// setIdentityCookie はアイデンティティCookieを設定する（HTTP Only）。
func (h *AuthHandler) setIdentityCookie(w http.ResponseWriter, credential string) {
	setIdentityCookieWith(w, credential, h.config)
}

// setIdentityCookieWith は指定された設定でアイデンティティCookieを設定する。
// 決済検証ハンドラーと共用する。
func setIdentityCookieWith(w http.ResponseWriter, credential string, config AuthHandlerConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.IdentityCookieName,
		Value:    credential,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.IdentityMaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearIdentityCookie はアイデンティティCookieをクリアする。
func (h *AuthHandler) clearIdentityCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.IdentityCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestBody はリクエストボディが解析できない場合の400レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeAccessDenied:
		return http.StatusForbidden
	case model.ErrCodePurchaseNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidLink:
		return http.StatusUnauthorized
	case model.ErrCodePaymentNotCompleted:
		return http.StatusPaymentRequired
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
