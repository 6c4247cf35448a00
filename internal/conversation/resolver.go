package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/repository"
)

// PurchaseChecker はアクセス解決が必要とする購入台帳への問い合わせ。
// purchase.Serviceの部分集合として定義する。
type PurchaseChecker interface {
	HasPurchased(ctx context.Context, email, explorationID string) (bool, error)
}

// AccessResult はアクセス解決の結果を表す。
type AccessResult struct {
	Allowed   bool
	Email     string
	SessionID string
}

// Resolver は「この呼び出し元はこのExplorationの会話を続けてよいか、
// 続けるならどのセッションか」という問いに答えるエントリポイント。
type Resolver struct {
	purchases   PurchaseChecker
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(purchases PurchaseChecker, sessionRepo repository.SessionRepository) *Resolver {
	return &Resolver{
		purchases:   purchases,
		sessionRepo: sessionRepo,
		now:         time.Now,
	}
}

// ResolveAccess は検証済みメールアドレスとExplorationの組に対して
// アクセス可否と会話セッションを解決する。
//
//   - メールアドレスが空（未認証）→ 拒否。
//   - 購入記録なし → 拒否（新たな購入があるまで恒久的）。
//   - 購入済み → 進行中セッションを検索し、なければ作成する。
//
// 解決に成功するたびにセッションのupdated_atを進める（運用上の目印であり、
// ロジックには使わない）。
func (r *Resolver) ResolveAccess(ctx context.Context, email, explorationID string) (*AccessResult, error) {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return &AccessResult{Allowed: false}, nil
	}
	if explorationID == "" {
		return nil, model.NewValidationError("Exploration IDが空です")
	}

	purchased, err := r.purchases.HasPurchased(ctx, normalized, explorationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}
	if !purchased {
		return &AccessResult{Allowed: false, Email: normalized}, nil
	}

	session, err := r.findOrCreateSession(ctx, normalized, explorationID)
	if err != nil {
		return nil, err
	}

	if err := r.sessionRepo.Touch(ctx, session.ID); err != nil {
		// updated_atの更新失敗はアクセス可否に影響させない
		slog.Warn("failed to touch session",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	return &AccessResult{
		Allowed:   true,
		Email:     normalized,
		SessionID: session.ID,
	}, nil
}

// findOrCreateSession は進行中セッションを検索し、なければ作成する。
// 作成は部分ユニークインデックスで保護されており、並行する初回アクセスが
// 衝突した場合は挿入がスキップされるため再取得する。
// これにより同じ組に対するセッションは決してフォークしない。
func (r *Resolver) findOrCreateSession(ctx context.Context, email, explorationID string) (*model.ConversationSession, error) {
	existing, err := r.sessionRepo.FindInProgress(ctx, email, explorationID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := r.now()
	session := &model.ConversationSession{
		ID:            uuid.New().String(),
		CustomerEmail: email,
		ExplorationID: explorationID,
		Status:        model.SessionStatusInProgress,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	created, err := r.sessionRepo.CreateInProgress(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if created {
		slog.Info("conversation session created",
			slog.String("session_id", session.ID),
			slog.String("exploration_id", explorationID),
		)
		return session, nil
	}

	// 並行リクエストが先にセッションを作成した。再取得する。
	existing, err = r.sessionRepo.FindInProgress(ctx, email, explorationID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch session: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("session creation conflicted but no in-progress session found")
	}

	return existing, nil
}
