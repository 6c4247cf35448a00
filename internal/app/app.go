// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/explorations/internal/ai"
	"github.com/hitoshi/explorations/internal/auth"
	"github.com/hitoshi/explorations/internal/config"
	"github.com/hitoshi/explorations/internal/conversation"
	"github.com/hitoshi/explorations/internal/database"
	"github.com/hitoshi/explorations/internal/email"
	"github.com/hitoshi/explorations/internal/handler"
	"github.com/hitoshi/explorations/internal/logger"
	"github.com/hitoshi/explorations/internal/metrics"
	"github.com/hitoshi/explorations/internal/middleware"
	"github.com/hitoshi/explorations/internal/payment"
	"github.com/hitoshi/explorations/internal/purchase"
	"github.com/hitoshi/explorations/internal/repository"
	"github.com/hitoshi/explorations/internal/worker/cleanup"
)

// adminSessionMaxAge は管理者Cookieの有効期間（秒）。
// 購入者のアイデンティティCookie（約1年）より大幅に短くする。
const adminSessionMaxAge = 24 * 60 * 60

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	customerRepo := repository.NewPostgresCustomerRepo(db)
	purchaseRepo := repository.NewPostgresPurchaseRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	linkRepo := repository.NewPostgresMagicLinkRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 外部コラボレーターのクライアント初期化
	stripeClient := payment.NewStripeClient(
		&http.Client{Timeout: 10 * time.Second},
		slog.Default(),
		cfg.StripeSecretKey,
	)
	aiClient := ai.NewClient(
		&http.Client{Timeout: 60 * time.Second},
		slog.Default(),
		ai.ClientConfig{
			APIKey:       cfg.AnthropicAPIKey,
			Model:        cfg.AIModel,
			MaxTokens:    cfg.AIMaxTokens,
			SystemPrompt: cfg.AISystemPrompt,
		},
		collector,
	)
	mailer := email.NewClient(cfg.ResendAPIKey, cfg.EmailFrom, slog.Default())

	// 5. ドメインサービスの初期化
	purchaseService := purchase.NewService(customerRepo, purchaseRepo, stripeClient, collector)
	resolver := conversation.NewResolver(purchaseService, sessionRepo)
	turnService := conversation.NewTurnService(messageRepo, sessionRepo, aiClient, conversation.TurnConfig{
		AnchorCount: cfg.AnchorCount,
		RecentCount: cfg.RecentCount,
	})

	credentialService := auth.NewCredentialService(cfg.SessionSecret, cfg.IdentityMaxAge, auth.AudienceIdentity)
	adminCredentials := auth.NewCredentialService(cfg.SessionSecret, adminSessionMaxAge, auth.AudienceAdmin)
	magicLinkService := auth.NewMagicLinkService(linkRepo, auth.MagicLinkConfig{
		LinkExpiry: cfg.LinkExpiry,
	})

	// 6. レート制限の初期化（configはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LinkReqRate = rate.Limit(float64(cfg.RateLimitLinkRequest) / 60.0)
	rateLimiterCfg.LinkReqBurst = cfg.RateLimitLinkRequest
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		CredentialParser:  credentialService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Credentials: credentialService,
		Links:       magicLinkService,
		Purchases:   purchaseService,
		Resolver:    resolver,
		Mailer:      mailer,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:        cfg.BaseURL,
			CookieDomain:   cfg.CookieDomain,
			CookieSecure:   cfg.CookieSecure,
			IdentityMaxAge: cfg.IdentityMaxAge,
		},

		PurchaseService: purchaseService,
		TurnService:     turnService,

		AdminCredentials: adminCredentials,
		AdminReporting:   purchaseRepo,
		CustomerLister:   customerRepo,
		AdminConfig: handler.AdminHandlerConfig{
			Password:      cfg.AdminPassword,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: adminSessionMaxAge,
		},

		Metrics:  collector,
		Gatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // AI呼び出しを含むため長めに取る
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 失効したマジックリンクの削除ジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 削除ジョブの初期化
	linkRepo := repository.NewPostgresMagicLinkRepo(db)
	purgeJob := cleanup.NewPurgeJob(linkRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting")

	// 起動直後に1回実行
	if err := purgeJob.Run(ctx); err != nil {
		slog.Error("purge job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := purgeJob.Run(ctx); err != nil {
				slog.Error("purge job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
