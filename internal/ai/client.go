// Package ai はAIプロバイダー（Anthropic Messages API）のクライアントを提供する。
// プロンプトの内容や会話の演出はこのシステムの外部コラボレーターであり、
// ここでは有界の文脈ウィンドウを渡して応答テキストを得ることだけを扱う。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/explorations/internal/model"
)

const (
	// defaultEndpoint はAnthropic Messages APIのエンドポイント。
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	// apiVersion はAnthropic APIのバージョンヘッダー値。
	apiVersion = "2023-06-01"
)

// ClientConfig はAIクライアントの設定。
type ClientConfig struct {
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
}

// Metrics はAI呼び出しのメトリクス収集に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。nilの場合は記録しない。
type Metrics interface {
	RecordAIStatus(statusCode int)
	RecordAILatency(duration time.Duration)
}

// Client はAnthropic Messages APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     ClientConfig
	metrics    Metrics
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。metricsはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, config ClientConfig, metrics Metrics) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		metrics:    metrics,
		endpoint:   defaultEndpoint,
	}
}

// apiMessage はMessages APIのメッセージ表現。
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiRequest はMessages APIのリクエストボディ。
type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

// apiResponse はMessages APIのレスポンスボディのうち参照する部分。
type apiResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Complete は文脈ウィンドウを渡してアシスタントの応答テキストを得る。
// 通信失敗・エラーステータスは一時的エラーとして返す（部分コミットはしない）。
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	reqBody := apiRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    c.config.SystemPrompt,
		Messages:  make([]apiMessage, 0, len(messages)),
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, apiMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("AIリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("AIリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordAILatency(time.Since(start))
	}
	if err != nil {
		c.logger.Error("AIプロバイダーの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordAIStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("AIプロバイダーがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return "", fmt.Errorf("AI provider returned status %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("AIレスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Content) == 0 || result.Content[0].Text == "" {
		return "", fmt.Errorf("AI provider returned empty content")
	}

	return result.Content[0].Text, nil
}
