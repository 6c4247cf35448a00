// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodePurchaseNotFound    = "PURCHASE_NOT_FOUND"
	ErrCodeInvalidLink         = "INVALID_LINK"
	ErrCodePaymentNotCompleted = "PAYMENT_NOT_COMPLETED"
	ErrCodeUpstreamFailed      = "UPSTREAM_FAILED"
)

// NewValidationError は入力検証エラーを生成する。
// ストアへの書き込み前に弾かれるエラーで、reasonには欠落・不正なフィールドを示す。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "購入時のメールアドレスでアクセスを再開してください。",
	}
}

// NewAccessDeniedError はアクセス拒否エラーを生成する。
// 該当メールアドレスの存在有無を漏らさないよう、理由は常に一般的な文言にする。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "このExplorationへのアクセスが確認できませんでした。",
		Category: "auth",
		Action:   "購入時のメールアドレスを確認するか、新規に購入してください。",
	}
}

// NewPurchaseNotFoundError は購入記録が見つからない場合のエラーを生成する。
// アクセス拒否と同様、メールアドレスの登録有無は文言から判別できない。
func NewPurchaseNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePurchaseNotFound,
		Message:  "このメールアドレスとExplorationの組み合わせで購入記録が見つかりませんでした。",
		Category: "auth",
		Action:   "購入時のメールアドレスを確認してください。",
	}
}

// NewInvalidLinkError は無効なアクセスリンクのエラーを生成する。
// 「存在しない」「使用済み」「期限切れ」は意図的に同一の文言に畳み込む。
func NewInvalidLinkError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLink,
		Message:  "アクセスリンクが無効または期限切れです。",
		Category: "auth",
		Action:   "新しいアクセスリンクをリクエストしてください。",
	}
}

// NewPaymentNotCompletedError は決済未完了エラーを生成する。
func NewPaymentNotCompletedError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotCompleted,
		Message:  "決済が完了していません。",
		Category: "payment",
		Action:   "決済を完了してから再度お試しください。",
	}
}

// NewUpstreamError は外部サービス（AI・メール・決済検証）の一時的な失敗を表す
// エラーを生成する。内部の詳細はログにのみ記録する。
func NewUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "外部サービスとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
