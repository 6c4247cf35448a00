// Package model はドメインモデルを定義する。
package model

import "time"

// MagicLink はメール経由の再入場に使うワンタイムトークンを表す。
// used は false → true に一度だけ遷移する。
// 「存在しない」「使用済み」「期限切れ」は呼び出し側からは
// 区別できない単一の無効状態として扱う（情報漏えい防止）。
type MagicLink struct {
	Token         string
	Email         string
	ExplorationID string
	Used          bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// IsValid は現在時刻nowにおいてトークンが使用可能かを返す。
func (m *MagicLink) IsValid(now time.Time) bool {
	return !m.Used && !now.After(m.ExpiresAt)
}
