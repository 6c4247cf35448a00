package payment

import (
	"encoding/json"
	"fmt"
)

// WebhookEvent は決済完了Webhookからこのシステムが取り出す情報を表す。
// 同一イベントが複数回配送されることを前提とする（台帳側で冪等に吸収する）。
type WebhookEvent struct {
	StripeSession string
	Email         string
	ExplorationID string
	AmountCents   int
}

// webhookPayload はStripeのcheckout.session.completedイベントのうち
// このシステムが参照する部分を表す。
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID              string `json:"id"`
			AmountTotal     int    `json:"amount_total"`
			CustomerDetails struct {
				Email string `json:"email"`
			} `json:"customer_details"`
			CustomerEmail string            `json:"customer_email"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhook はWebhookのJSONボディを解釈する。
// checkout.session.completed以外のイベントは(nil, nil)を返して無視する。
// 署名検証は外部コラボレーター（リバースプロキシ等）の責務であり、ここでは行わない。
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	if payload.Type != "checkout.session.completed" {
		return nil, nil
	}

	obj := payload.Data.Object

	email := obj.CustomerDetails.Email
	if email == "" {
		email = obj.CustomerEmail
	}

	return &WebhookEvent{
		StripeSession: obj.ID,
		Email:         email,
		ExplorationID: obj.Metadata["exploration_id"],
		AmountCents:   obj.AmountTotal,
	}, nil
}
