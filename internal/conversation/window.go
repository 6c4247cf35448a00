// Package conversation は会話セッションの解決・ログ・ターン処理を提供する。
package conversation

import "github.com/hitoshi/explorations/internal/model"

const (
	// DefaultAnchorCount は文脈ウィンドウに残す冒頭メッセージ数の既定値。
	// 会話の冒頭には当初の目的・前提が含まれることが多い。
	DefaultAnchorCount = 6
	// DefaultRecentCount は文脈ウィンドウに残す直近メッセージ数の既定値。
	DefaultRecentCount = 40
)

// bridgeContent は省略された中間部の代わりに挿入する合成メッセージの本文。
const bridgeContent = "[Earlier parts of our conversation have been summarized to maintain focus. The exploration continues.]"

// BuildContextWindow は長い会話ログからAIプロバイダーへ渡す有界の
// メッセージ列を導出する読み取り時の射影。
//
//   - 総数が anchor+recent 以下ならそのまま返す。
//   - 超える場合は冒頭anchor件 + 合成ブリッジ1件 + 直近recent件を返し、
//     中間部は完全に捨てる（モデル呼び出しによる要約は行わない設計）。
//
// 結果は永続化されず、元のログは変更されない。
func BuildContextWindow(messages []model.Message, anchorCount, recentCount int) []model.Message {
	if anchorCount <= 0 {
		anchorCount = DefaultAnchorCount
	}
	if recentCount <= 0 {
		recentCount = DefaultRecentCount
	}

	if len(messages) <= anchorCount+recentCount {
		return messages
	}

	window := make([]model.Message, 0, anchorCount+1+recentCount)
	window = append(window, messages[:anchorCount]...)
	window = append(window, model.Message{
		Role:    model.RoleAssistant,
		Content: bridgeContent,
	})
	window = append(window, messages[len(messages)-recentCount:]...)

	return window
}
