package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/repository"
)

// Completer はAIプロバイダーへの1回の補完呼び出しのインターフェース。
// internal/aiが実装する。
type Completer interface {
	// Complete は文脈ウィンドウを渡してアシスタントの応答テキストを得る。
	Complete(ctx context.Context, messages []model.Message) (string, error)
}

// TurnConfig はターン処理の設定。
type TurnConfig struct {
	AnchorCount int
	RecentCount int
}

// TurnService は会話の1ターン（ユーザー発話の永続化 → 文脈ウィンドウ構築 →
// AI呼び出し → アシスタント発話の永続化）を統括する。
type TurnService struct {
	messageRepo repository.MessageRepository
	sessionRepo repository.SessionRepository
	completer   Completer
	config      TurnConfig
}

// NewTurnService はTurnServiceを生成する。
func NewTurnService(
	messageRepo repository.MessageRepository,
	sessionRepo repository.SessionRepository,
	completer Completer,
	config TurnConfig,
) *TurnService {
	return &TurnService{
		messageRepo: messageRepo,
		sessionRepo: sessionRepo,
		completer:   completer,
		config:      config,
	}
}

// Turn は1ターンを実行し、アシスタントの応答テキストを返す。
//
// ユーザー発話はAIプロバイダー呼び出しの前に永続化する。
// プロバイダーが失敗・タイムアウトしてもユーザー発話はログに残り、
// 失われるのはアシスタント応答だけなので安全にリトライできる。
func (s *TurnService) Turn(ctx context.Context, sessionID, userMessage string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", model.NewValidationError("メッセージが空です")
	}

	userMsg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   userMessage,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Append(ctx, userMsg); err != nil {
		return "", fmt.Errorf("failed to append user message: %w", err)
	}
	if err := s.sessionRepo.Touch(ctx, sessionID); err != nil {
		slog.Warn("failed to touch session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	history, err := s.messageRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation log: %w", err)
	}

	window := BuildContextWindow(history, s.config.AnchorCount, s.config.RecentCount)

	reply, err := s.completer.Complete(ctx, window)
	if err != nil {
		// ユーザー発話は既に永続化済み。アシスタント応答のみ欠けた状態で返す。
		return "", fmt.Errorf("AI provider call failed: %w", err)
	}

	assistantMsg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Append(ctx, assistantMsg); err != nil {
		return "", fmt.Errorf("failed to append assistant message: %w", err)
	}
	if err := s.sessionRepo.Touch(ctx, sessionID); err != nil {
		slog.Warn("failed to touch session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	return reply, nil
}

// History はセッションの全メッセージを挿入順で返す。
func (s *TurnService) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	return s.messageRepo.ListBySession(ctx, sessionID)
}
