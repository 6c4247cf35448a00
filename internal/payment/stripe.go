// Package payment は決済プロセッサ（Stripe）との連携を提供する。
// 署名検証の内部や決済フロー自体はこのシステムの外部コラボレーターであり、
// ここではチェックアウトセッションの照会とWebhookペイロードの解釈のみを扱う。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultEndpoint はStripeチェックアウトセッション照会APIのエンドポイント。
const defaultEndpoint = "https://api.stripe.com/v1/checkout/sessions"

// CheckoutSession は照会したチェックアウトセッションの検証結果を表す。
type CheckoutSession struct {
	Paid        bool
	Email       string
	AmountCents int
}

// Verifier は決済完了の検証インターフェース。
// クライアント検証経路（Webhook未着時のブラウザからの確認）で使用する。
type Verifier interface {
	// VerifyCheckoutSession はチェックアウトセッションIDから決済状態を照会する。
	VerifyCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// StripeClient はStripe APIのクライアント。
type StripeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	secretKey  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewStripeClient はStripeClientの新しいインスタンスを生成する。
func NewStripeClient(httpClient *http.Client, logger *slog.Logger, secretKey string) *StripeClient {
	return &StripeClient{
		httpClient: httpClient,
		logger:     logger,
		secretKey:  secretKey,
		endpoint:   defaultEndpoint,
	}
}

// checkoutSessionResponse はStripeのチェックアウトセッションAPIレスポンスの
// うち、このシステムが参照するフィールドのみを表す。
type checkoutSessionResponse struct {
	PaymentStatus   string `json:"payment_status"`
	AmountTotal     int    `json:"amount_total"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	CustomerEmail string `json:"customer_email"`
}

// VerifyCheckoutSession はチェックアウトセッションIDから決済状態を照会する。
// 通信失敗やエラーステータスは一時的エラーとして返す（呼び出し元がリトライ判断）。
func (c *StripeClient) VerifyCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("checkout session ID is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("Stripeリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Stripe APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Stripe APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("stripe API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var session checkoutSessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("StripeレスポンスJSONのパースに失敗しました: %w", err)
	}

	// customer_details.email が現行フィールド。古いイベントはcustomer_emailを使う。
	email := session.CustomerDetails.Email
	if email == "" {
		email = session.CustomerEmail
	}

	return &CheckoutSession{
		Paid:        session.PaymentStatus == "paid",
		Email:       email,
		AmountCents: session.AmountTotal,
	}, nil
}

// compile-time interface check
var _ Verifier = (*StripeClient)(nil)
