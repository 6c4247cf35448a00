// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Cookie
	SessionSecret  string
	IdentityMaxAge int // 秒。設計値は約1年

	// Magic Link
	LinkExpiry time.Duration

	// Payment (Stripe)
	StripeSecretKey string

	// AI Provider (Anthropic)
	AnthropicAPIKey string
	AIModel         string
	AIMaxTokens     int
	AISystemPrompt  string

	// Email (Resend)
	ResendAPIKey string
	EmailFrom    string

	// Context Window
	AnchorCount int
	RecentCount int

	// Admin
	AdminPassword string

	// Rate Limit（req/min/principal）
	RateLimitGeneral     int
	RateLimitLinkRequest int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// defaultSystemPrompt はAI_SYSTEM_PROMPT未設定時のシステムプロンプト。
// 本番ではExplorationごとの本文を環境変数で与えることを想定している。
const defaultSystemPrompt = "You are a thoughtful guide leading a structured self-exploration conversation. " +
	"Stay close to the participant's own words, ask one question at a time, " +
	"and respond in the language the participant writes in."

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}

	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if cfg.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}

	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	if cfg.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityMaxAge = getEnvInt("IDENTITY_MAX_AGE", 365*24*60*60)
	cfg.LinkExpiry = getEnvDuration("LINK_EXPIRY", time.Hour)
	cfg.AIModel = getEnvString("AI_MODEL", "claude-sonnet-4-20250514")
	cfg.AIMaxTokens = getEnvInt("AI_MAX_TOKENS", 1024)
	cfg.AISystemPrompt = getEnvString("AI_SYSTEM_PROMPT", defaultSystemPrompt)
	cfg.EmailFrom = getEnvString("EMAIL_FROM", "hello@explorations.example")
	cfg.AnchorCount = getEnvInt("CONTEXT_ANCHOR_COUNT", 6)
	cfg.RecentCount = getEnvInt("CONTEXT_RECENT_COUNT", 40)
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 60)
	cfg.RateLimitLinkRequest = getEnvInt("RATE_LIMIT_LINK_REQUEST", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
