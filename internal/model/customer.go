// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Customer は購入者のアイデンティティを表す。
// メールアドレスが唯一の識別子であり、パスワードは持たない。
// 初回の購入またはアクセス確認時に作成され、削除されることはない。
type Customer struct {
	Email     string
	CreatedAt time.Time
}

// NormalizeEmail はメールアドレスを正規化する（小文字化・前後空白除去）。
// Customerのメールは必ずこの形式で保存・比較する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Purchase は完了した決済の台帳レコードを表す。
// StripeSessionは決済イベントごとに一意であり、同一イベントが
// 何度観測されても台帳には1行しか作られない（冪等性の根拠）。
// 作成後は不変。
type Purchase struct {
	ID            string
	CustomerEmail string
	ExplorationID string
	StripeSession string
	AmountCents   int
	CreatedAt     time.Time
}

// DefaultAmountCents は決済イベントに金額が含まれない場合の既定額（セント）。
const DefaultAmountCents = 1800

// DailyTotal は日次の売上集計を表す（管理画面の読み取り専用レポート用）。
type DailyTotal struct {
	Date         string
	OrderCount   int
	RevenueCents int
}
