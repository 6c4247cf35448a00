// Package email はマジックリンクメールの送信を提供する。
// 配送の実体はResendに委ねる。
package email

import (
	"fmt"
	"log/slog"

	"github.com/resendlabs/resend-go"
)

// Sender はマジックリンクメール送信のインターフェース。
type Sender interface {
	// SendMagicLink はアクセスリンクを記載したメールを送信する。
	SendMagicLink(to, explorationID, link string) error
}

// Client はResendを使用したメール送信クライアント。
type Client struct {
	resend *resend.Client
	from   string
	logger *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(apiKey, from string, logger *slog.Logger) *Client {
	return &Client{
		resend: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

// SendMagicLink はアクセスリンクを記載したメールを送信する。
// 送信失敗は一時的エラーとして返す（トークン自体は発行済みのまま）。
func (c *Client) SendMagicLink(to, explorationID, link string) error {
	text := fmt.Sprintf(
		"Here is your access link (valid for 1 hour):\n\n%s\n\nThis link can only be used once.",
		link,
	)
	html := fmt.Sprintf(
		`<p>Here is your access link, valid for 1 hour:</p>
<p><a href="%s">%s</a></p>
<p>This link can only be used once.</p>`,
		link, link,
	)

	req := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: "Your access link",
		Text:    text,
		Html:    html,
	}

	if _, err := c.resend.Emails.Send(req); err != nil {
		c.logger.Error("マジックリンクメールの送信に失敗しました",
			slog.String("exploration_id", explorationID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send magic link email: %w", err)
	}

	return nil
}

// compile-time interface check
var _ Sender = (*Client)(nil)
