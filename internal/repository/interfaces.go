// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/explorations/internal/model"
)

// CustomerRepository は購入者アイデンティティの永続化インターフェース。
type CustomerRepository interface {
	// Ensure はメールアドレスのCustomerを存在しなければ作成する。
	// 既に存在する場合は何もしない（冪等）。
	Ensure(ctx context.Context, email string) error

	// ListEmails は全Customerのメールアドレスを作成日時の降順で返す。
	ListEmails(ctx context.Context) ([]string, error)
}

// PurchaseRepository は購入台帳の永続化インターフェース。
type PurchaseRepository interface {
	// RecordIdempotent は購入を台帳に記録し、そのIDを返す。
	// stripeSessionに対して冪等であり、同一の決済イベントが何度観測されても
	// 1行しか作られず、2回目以降は既存行のIDとcreated=falseを返す。
	// 挿入の条件判定はDBのユニーク制約で行い、read-then-writeはしない。
	RecordIdempotent(ctx context.Context, purchase *model.Purchase) (id string, created bool, err error)

	// HasPurchased は指定メールアドレスがExplorationを購入済みかを返す。
	HasPurchased(ctx context.Context, email, explorationID string) (bool, error)

	// ListAll は全購入を作成日時の降順で返す（管理レポート用）。
	ListAll(ctx context.Context) ([]*model.Purchase, error)

	// DailyTotals は日次の注文数・売上の集計を日付降順で返す（管理レポート用）。
	DailyTotals(ctx context.Context) ([]model.DailyTotal, error)
}

// SessionRepository は会話セッションの永続化インターフェース。
type SessionRepository interface {
	// FindInProgress は指定の組の進行中セッションを返す。
	// 複数存在した場合に備えてstarted_at降順の先頭を返す（決定的なタイブレーク）。
	// 見つからない場合はnilを返す。
	FindInProgress(ctx context.Context, email, explorationID string) (*model.ConversationSession, error)

	// CreateInProgress は進行中セッションを作成する。
	// 同じ組の進行中セッションが並行して作られた場合は部分ユニークインデックスで
	// 挿入がスキップされるため、呼び出し側は戻り値falseのとき再取得すること。
	CreateInProgress(ctx context.Context, session *model.ConversationSession) (created bool, err error)

	// Touch はupdated_atを現在時刻に進める。
	Touch(ctx context.Context, sessionID string) error

	// Close はセッションをclosedに遷移させる。物理削除は行わない。
	Close(ctx context.Context, sessionID string) error
}

// MessageRepository は会話ログの永続化インターフェース。
type MessageRepository interface {
	// Append はメッセージを追記する。contentが空の場合はエラー。
	Append(ctx context.Context, msg *model.Message) error

	// ListBySession はセッションの全メッセージを挿入順で返す。
	ListBySession(ctx context.Context, sessionID string) ([]model.Message, error)
}

// MagicLinkRepository はワンタイムトークンの永続化インターフェース。
type MagicLinkRepository interface {
	// Create はマジックリンクを保存する。
	Create(ctx context.Context, link *model.MagicLink) error

	// FindValid は未使用かつ期限内のトークンを返す。
	// 存在しない・使用済み・期限切れのいずれもnilを返す（区別しない）。
	FindValid(ctx context.Context, token string) (*model.MagicLink, error)

	// Redeem はトークンを未使用→使用済みへ条件付きUPDATEで遷移させ、
	// 成功時のみ紐づくメールアドレスとExploration IDを返す。
	// 並行して同じトークンがredeemされた場合、成功するのは1回だけ。
	// 無効なトークンはnilを返す。
	Redeem(ctx context.Context, token string) (*model.MagicLink, error)

	// DeleteExpired は期限切れまたは使用済みのトークンのうち、
	// beforeより前に失効したものを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
