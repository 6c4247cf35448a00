// Package model はドメインモデルを定義する。
package model

import "time"

// SessionStatus は会話セッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusInProgress は進行中の会話セッション。
	// (customer_email, exploration_id) の組に対して同時に1つしか存在できない。
	SessionStatusInProgress SessionStatus = "in_progress"
	// SessionStatusClosed は終了した会話セッション。
	SessionStatusClosed SessionStatus = "closed"
)

// ConversationSession は1人の購入者と1つのExplorationの間の
// 永続的・再開可能な会話スレッドを表す。
// Cookieベースのログインセッションとは別の概念。
// 物理削除されることはない。
type ConversationSession struct {
	ID            string
	CustomerEmail string
	ExplorationID string
	Status        SessionStatus
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Role はメッセージの発話者を表す。
type Role string

const (
	// RoleUser は購入者の発話。
	RoleUser Role = "user"
	// RoleAssistant はAIの発話。
	RoleAssistant Role = "assistant"
)

// Message は会話セッション内の1ターンを表す。
// 追記専用で、挿入後の編集・並べ替えは行われない。
// セッション内では作成時刻順に厳密に並ぶ。
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}
