// Package auth はアイデンティティCookieの発行・検証とマジックリンクのライフサイクルを提供する。
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityCookieName はアイデンティティCookieの名前。
const IdentityCookieName = "explorations_identity"

// 資格情報の種別（audクレーム）。
// 購入者アイデンティティと管理者で署名鍵を共有するため、
// audの検証によって2種類のトークンが相互に流用できないことを保証する。
const (
	// AudienceIdentity は購入者アイデンティティ資格情報のaud値。
	AudienceIdentity = "identity"
	// AudienceAdmin は管理者資格情報のaud値。
	AudienceAdmin = "admin"
)

// CredentialService は検証済みサブジェクト（メールアドレスまたは管理者）を
// 保持する署名付き資格情報（Cookie値）を発行・検証する。
// 会話セッション（ConversationSession）とは別物で、サーバー側に状態を持たない。
// Parseは自身のaudienceを持つ資格情報のみを受け付ける。
type CredentialService struct {
	secret   []byte
	maxAge   time.Duration
	audience string
	now      func() time.Time
}

// NewCredentialService はCredentialServiceを生成する。
// maxAgeSecondsは資格情報の有効期間（秒）。購入者アイデンティティの設計値は約1年。
// audienceにはAudienceIdentityまたはAudienceAdminを渡す。
func NewCredentialService(secret string, maxAgeSeconds int, audience string) *CredentialService {
	return &CredentialService{
		secret:   []byte(secret),
		maxAge:   time.Duration(maxAgeSeconds) * time.Second,
		audience: audience,
		now:      time.Now,
	}
}

// identityClaims はアイデンティティ資格情報のJWTクレーム。
type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue は検証済みメールアドレスに対する署名付き資格情報を発行する。
func (s *CredentialService) Issue(email string) (string, error) {
	now := s.now()
	claims := identityClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity credential: %w", err)
	}

	return signed, nil
}

// Parse は資格情報を検証し、保持されているメールアドレスを返す。
// 署名不正・期限切れ・不正な形式・audience不一致はすべてエラーになる。
func (s *CredentialService) Parse(credential string) (string, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithAudience(s.audience))
	if err != nil {
		return "", fmt.Errorf("failed to parse identity credential: %w", err)
	}
	if !token.Valid || claims.Email == "" {
		return "", fmt.Errorf("invalid identity credential")
	}

	return claims.Email, nil
}
