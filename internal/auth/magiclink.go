package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/repository"
)

// ErrInvalidLink は無効なマジックリンクを表す。
// 「存在しない」「使用済み」「期限切れ」はすべてこの1つのエラーに畳み込み、
// どの条件で弾かれたかを呼び出し側に漏らさない。
var ErrInvalidLink = errors.New("invalid or expired link")

// MagicLinkConfig はマジックリンクサービスの設定。
type MagicLinkConfig struct {
	LinkExpiry time.Duration // 発行からの有効期間。設計値は1時間
}

// MagicLinkService はメール再入場用ワンタイムトークンの
// 発行・検証・消費を提供する。
// 購入済みかどうかの判定は行わない（呼び出し側が上流で確認する）。
type MagicLinkService struct {
	linkRepo repository.MagicLinkRepository
	config   MagicLinkConfig
	now      func() time.Time
}

// NewMagicLinkService はMagicLinkServiceを生成する。
func NewMagicLinkService(linkRepo repository.MagicLinkRepository, config MagicLinkConfig) *MagicLinkService {
	return &MagicLinkService{
		linkRepo: linkRepo,
		config:   config,
		now:      time.Now,
	}
}

// Issue は暗号的に推測不能なトークンを生成して保存し、トークン文字列を返す。
func (s *MagicLinkService) Issue(ctx context.Context, email, explorationID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	link := &model.MagicLink{
		Token:         token,
		Email:         model.NormalizeEmail(email),
		ExplorationID: explorationID,
		ExpiresAt:     now.Add(s.config.LinkExpiry),
		CreatedAt:     now,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		return "", fmt.Errorf("failed to save magic link: %w", err)
	}

	slog.Info("magic link issued",
		slog.String("exploration_id", explorationID),
		slog.Time("expires_at", link.ExpiresAt),
	)

	return token, nil
}

// Validate はトークンが現時点で使用可能かを検証し、紐づく情報を返す。
// 無効な場合はErrInvalidLinkを返す。状態は変更しない。
func (s *MagicLinkService) Validate(ctx context.Context, token string) (*model.MagicLink, error) {
	if token == "" {
		return nil, ErrInvalidLink
	}

	link, err := s.linkRepo.FindValid(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to validate magic link: %w", err)
	}
	if link == nil {
		return nil, ErrInvalidLink
	}

	return link, nil
}

// Redeem はトークンの検証と消費を単一の条件付き更新として実行する。
// 同じトークンに対する並行呼び出しのうち成功するのは1回だけ。
// 無効な場合はErrInvalidLinkを返す。
func (s *MagicLinkService) Redeem(ctx context.Context, token string) (*model.MagicLink, error) {
	if token == "" {
		return nil, ErrInvalidLink
	}

	link, err := s.linkRepo.Redeem(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem magic link: %w", err)
	}
	if link == nil {
		return nil, ErrInvalidLink
	}

	slog.Info("magic link redeemed",
		slog.String("exploration_id", link.ExplorationID),
	)

	return link, nil
}

// generateToken は暗号的に安全な32バイトのランダムトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
