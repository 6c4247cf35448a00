// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/explorations/internal/auth"
	"github.com/hitoshi/explorations/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// emailContextKey はリクエストコンテキストに検証済みメールアドレスを格納するためのキー。
var emailContextKey = contextKey("customer_email")

// CredentialParser はアイデンティティ資格情報の検証に必要なインターフェース。
// auth.CredentialServiceの部分集合として定義する。
type CredentialParser interface {
	Parse(credential string) (string, error)
}

// NewIdentityMiddleware はHTTP Only Cookieから署名付きアイデンティティ資格情報を
// 読み取り、検証するミドルウェアを返す。
// 検証済みメールアドレスをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
// グローバルなセッションオブジェクトは持たず、以降の処理は常にコンテキスト経由で
// アイデンティティを受け渡す。
func NewIdentityMiddleware(parser CredentialParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieから資格情報を取得
			cookie, err := r.Cookie(auth.IdentityCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 2. 署名と有効期限を検証
			email, err := parser.Parse(cookie.Value)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 3. 検証済みメールアドレスをコンテキストに注入
			ctx := context.WithValue(r.Context(), emailContextKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmailFromContext はリクエストコンテキストから検証済みメールアドレスを取得する。
// アイデンティティミドルウェアを通過したリクエストでのみ有効。
func EmailFromContext(ctx context.Context) (string, error) {
	email, ok := ctx.Value(emailContextKey).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("customer email not found in context")
	}
	return email, nil
}

// ContextWithEmail はコンテキストに検証済みメールアドレスを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey, email)
}
