package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/explorations/internal/metrics"
	"github.com/hitoshi/explorations/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CredentialParser  middleware.CredentialParser
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証・アクセス確立
	Credentials CredentialIssuer
	Links       MagicLinkServiceInterface
	Purchases   PurchaseCheckerInterface
	Resolver    AccessResolverInterface
	Mailer      MagicLinkSender
	AuthConfig  AuthHandlerConfig

	// 決済確認
	PurchaseService PurchaseServiceInterface

	// 会話
	TurnService TurnServiceInterface

	// 管理レポート
	AdminCredentials CredentialIssuer
	AdminReporting   AdminReportingInterface
	CustomerLister   CustomerListerInterface
	AdminConfig      AdminHandlerConfig

	// メトリクス
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SecurityHeaders → Logging → Recovery
//	（会話ルートのみ追加で）IdentityMiddleware → RateLimit(General)
//
// 決済Webhookとアクセス確立系のルートはアイデンティティミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	// *metrics.Collectorのnilをそのままインターフェースに入れると
	// nil判定をすり抜けるため、ここで変換する
	var linkMetrics LinkMetrics
	var turnMetrics TurnMetrics
	if deps.Metrics != nil {
		linkMetrics = deps.Metrics
		turnMetrics = deps.Metrics
	}

	authHandler := NewAuthHandler(
		deps.Credentials, deps.Links, deps.Purchases, deps.Resolver,
		deps.Mailer, linkMetrics, deps.AuthConfig,
	)
	purchaseHandler := NewPurchaseHandler(
		deps.PurchaseService, deps.Resolver, deps.Credentials, deps.AuthConfig,
	)
	chatHandler := NewChatHandler(deps.Resolver, deps.TurnService, turnMetrics)
	adminHandler := NewAdminHandler(
		deps.AdminCredentials, deps.AdminReporting, deps.CustomerLister, deps.AdminConfig,
	)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	// 決済確認（Webhook経路とクライアント検証経路）
	r.Route("/api/stripe", func(r chi.Router) {
		r.Post("/webhook", purchaseHandler.Webhook)
		r.Post("/verify", purchaseHandler.Verify)
	})

	// アクセス確立（メールアイデンティティとマジックリンク）
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/claim", authHandler.Claim)
		// POST /api/auth/request-link - メール送信を伴うためIP単位の厳しいレート制限
		r.With(deps.RateLimiter.LinkRequestMiddleware()).Post("/request-link", authHandler.RequestLink)
		r.Post("/verify-link", authHandler.VerifyLink)
		r.Get("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)
	})

	// 管理レポート（パスワードログイン + 管理者Cookie）
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.Get("/orders", adminHandler.Orders)
		r.Get("/customers", adminHandler.Customers)
		r.Get("/daily-totals", adminHandler.DailyTotals)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.CredentialParser))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/explorations/{id}", func(r chi.Router) {
			r.Post("/chat", chatHandler.Chat)
			r.Get("/messages", chatHandler.Messages)
		})
	})

	return r
}
