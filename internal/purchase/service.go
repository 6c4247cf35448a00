// Package purchase は購入台帳のビジネスロジックを提供する。
// 決済イベントの二重観測（Webhook再送・クライアント検証との競合）を
// 台帳側の冪等挿入で吸収するのがこのパッケージの中心的な責務。
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/payment"
	"github.com/hitoshi/explorations/internal/repository"
)

// Recorder は購入記録のメトリクス収集に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。nilの場合は記録しない。
type Recorder interface {
	RecordPurchase()
	RecordDuplicatePurchase()
}

// Service は購入台帳に関するビジネスロジックを提供する。
type Service struct {
	customerRepo repository.CustomerRepository
	purchaseRepo repository.PurchaseRepository
	verifier     payment.Verifier
	metrics      Recorder
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	customerRepo repository.CustomerRepository,
	purchaseRepo repository.PurchaseRepository,
	verifier payment.Verifier,
	metrics Recorder,
) *Service {
	return &Service{
		customerRepo: customerRepo,
		purchaseRepo: purchaseRepo,
		verifier:     verifier,
		metrics:      metrics,
	}
}

// Record は購入を台帳に記録し、購入IDを返す。
// Customerを先に確保（create-if-absent）してから台帳へ冪等挿入する。
// 同じstripeSessionで何度呼ばれても台帳行は1つで、毎回同じIDが返る。
func (s *Service) Record(ctx context.Context, email, explorationID, stripeSession string, amountCents int) (string, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return "", model.NewValidationError("メールアドレスが空です")
	}
	if explorationID == "" {
		return "", model.NewValidationError("Exploration IDが空です")
	}
	if stripeSession == "" {
		return "", model.NewValidationError("決済参照が空です")
	}
	if amountCents <= 0 {
		amountCents = model.DefaultAmountCents
	}

	if err := s.customerRepo.Ensure(ctx, normalized); err != nil {
		return "", fmt.Errorf("failed to ensure customer: %w", err)
	}

	p := &model.Purchase{
		ID:            uuid.New().String(),
		CustomerEmail: normalized,
		ExplorationID: explorationID,
		StripeSession: stripeSession,
		AmountCents:   amountCents,
		CreatedAt:     time.Now(),
	}

	id, created, err := s.purchaseRepo.RecordIdempotent(ctx, p)
	if err != nil {
		return "", fmt.Errorf("failed to record purchase: %w", err)
	}

	if created {
		if s.metrics != nil {
			s.metrics.RecordPurchase()
		}
		slog.Info("purchase recorded",
			slog.String("purchase_id", id),
			slog.String("exploration_id", explorationID),
		)
	} else {
		if s.metrics != nil {
			s.metrics.RecordDuplicatePurchase()
		}
		slog.Info("duplicate purchase observation absorbed",
			slog.String("purchase_id", id),
			slog.String("exploration_id", explorationID),
		)
	}

	return id, nil
}

// HasPurchased は指定メールアドレスがExplorationを購入済みかを返す。
func (s *Service) HasPurchased(ctx context.Context, email, explorationID string) (bool, error) {
	return s.purchaseRepo.HasPurchased(ctx, email, explorationID)
}

// HandleWebhookEvent は決済完了Webhookイベントを処理する。
// メールアドレスまたはExploration IDを欠くイベントは記録せずに破棄する
// （既定Explorationへのフォールバックは行わない）。
// 破棄はエラーではなく、警告ログのみ残して正常終了する。
func (s *Service) HandleWebhookEvent(ctx context.Context, event *payment.WebhookEvent) error {
	if event.Email == "" {
		slog.Warn("webhook event dropped: no customer email",
			slog.String("stripe_session", event.StripeSession),
		)
		return nil
	}
	if event.ExplorationID == "" {
		slog.Warn("webhook event dropped: no exploration_id in metadata",
			slog.String("stripe_session", event.StripeSession),
		)
		return nil
	}

	if _, err := s.Record(ctx, event.Email, event.ExplorationID, event.StripeSession, event.AmountCents); err != nil {
		return fmt.Errorf("failed to record webhook purchase: %w", err)
	}

	return nil
}

// ConfirmFromClient はクライアント検証経路の購入確認を処理する。
// Webhookが未着の場合にブラウザから直接呼ばれ、Stripeに決済状態を照会した上で
// Webhook経路と同じ台帳行に収束する。
// 決済未完了の場合はPaymentNotCompletedエラーを返す。
func (s *Service) ConfirmFromClient(ctx context.Context, stripeSession, explorationID string) (email string, err error) {
	if stripeSession == "" {
		return "", model.NewValidationError("決済参照が空です")
	}
	if explorationID == "" {
		return "", model.NewValidationError("Exploration IDが空です")
	}

	session, err := s.verifier.VerifyCheckoutSession(ctx, stripeSession)
	if err != nil {
		return "", fmt.Errorf("failed to verify checkout session: %w", err)
	}

	if !session.Paid {
		return "", model.NewPaymentNotCompletedError()
	}
	if session.Email == "" {
		return "", model.NewValidationError("決済に購入者メールアドレスが含まれていません")
	}

	if _, err := s.Record(ctx, session.Email, explorationID, stripeSession, session.AmountCents); err != nil {
		return "", err
	}

	return model.NormalizeEmail(session.Email), nil
}
