package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/explorations/internal/model"
)

// adminCookieName は管理者セッションCookieの名前。
// 購入者のアイデンティティCookieとは独立している。
const adminCookieName = "explorations_admin"

// adminSubject は管理者資格情報に埋め込む固定サブジェクト。
const adminSubject = "admin"

// AdminReportingInterface は管理レポートが必要とする購入台帳への問い合わせ。
type AdminReportingInterface interface {
	ListAll(ctx context.Context) ([]*model.Purchase, error)
	DailyTotals(ctx context.Context) ([]model.DailyTotal, error)
}

// CustomerListerInterface は管理レポートが必要とする購入者一覧への問い合わせ。
type CustomerListerInterface interface {
	ListEmails(ctx context.Context) ([]string, error)
}

// AdminHandlerConfig は管理ハンドラーの設定。
type AdminHandlerConfig struct {
	Password      string // 空の場合、管理APIは全面的に無効
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // 管理者Cookieの有効期間（秒）
}

// AdminHandler は読み取り専用の管理レポートAPIのHTTPハンドラー。
// パスワードログインで短命の管理者資格情報を発行し、以降のリクエストを検証する。
type AdminHandler struct {
	credentials CredentialIssuer
	purchases   AdminReportingInterface
	customers   CustomerListerInterface
	config      AdminHandlerConfig
}

// NewAdminHandler はAdminHandlerを生成する。
// credentialsには管理者用の短い有効期間を設定したものを渡すこと。
func NewAdminHandler(
	credentials CredentialIssuer,
	purchases AdminReportingInterface,
	customers CustomerListerInterface,
	config AdminHandlerConfig,
) *AdminHandler {
	return &AdminHandler{
		credentials: credentials,
		purchases:   purchases,
		customers:   customers,
		config:      config,
	}
}

// adminLoginRequest は管理者ログインリクエストのボディ。
type adminLoginRequest struct {
	Password string `json:"password"`
}

// orderResponse は購入1件のレスポンス表現。
type orderResponse struct {
	ID            string `json:"id"`
	CustomerEmail string `json:"customer_email"`
	ExplorationID string `json:"exploration_id"`
	StripeSession string `json:"stripe_session"`
	AmountCents   int    `json:"amount_cents"`
	CreatedAt     string `json:"created_at"`
}

// Login は管理者ログインを処理する。
// パスワードが一致した場合のみ管理者Cookieを設定する。
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.config.Password == "" {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.config.Password)) != 1 {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	credential, err := h.credentials.Issue(adminSubject)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    credential,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}

// Orders は全購入を作成日時の降順で返す。
// GET /api/admin/orders
func (h *AdminHandler) Orders(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	purchases, err := h.purchases.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, orderResponse{
			ID:            p.ID,
			CustomerEmail: p.CustomerEmail,
			ExplorationID: p.ExplorationID,
			StripeSession: p.StripeSession,
			AmountCents:   p.AmountCents,
			CreatedAt:     p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"orders": out})
}

// Customers は全購入者のメールアドレスを返す。
// GET /api/admin/customers
func (h *AdminHandler) Customers(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	emails, err := h.customers.ListEmails(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if emails == nil {
		emails = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"customers": emails})
}

// DailyTotals は日次の注文数・売上の集計を返す。
// GET /api/admin/daily-totals
func (h *AdminHandler) DailyTotals(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	totals, err := h.purchases.DailyTotals(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	type dailyTotalResponse struct {
		Date         string `json:"date"`
		OrderCount   int    `json:"order_count"`
		RevenueCents int    `json:"revenue_cents"`
	}
	out := make([]dailyTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, dailyTotalResponse{
			Date:         t.Date,
			OrderCount:   t.OrderCount,
			RevenueCents: t.RevenueCents,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"daily_totals": out})
}

// isAdmin は管理者Cookieを検証する。
func (h *AdminHandler) isAdmin(r *http.Request) bool {
	if h.config.Password == "" {
		return false
	}

	cookie, err := r.Cookie(adminCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	subject, err := h.credentials.Parse(cookie.Value)
	if err != nil {
		return false
	}

	return subject == adminSubject
}
