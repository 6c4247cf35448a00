package auth

import (
	"strings"
	"testing"
	"time"
)

func TestCredentialRoundTrip(t *testing.T) {
	svc := NewCredentialService("test-secret", 3600, AudienceIdentity)

	credential, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	email, err := svc.Parse(credential)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want %q", email, "alice@example.com")
	}
}

func TestCredentialRejectsTamperedSignature(t *testing.T) {
	svc := NewCredentialService("test-secret", 3600, AudienceIdentity)

	credential, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// 署名部分を改ざんする
	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected credential format: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]

	if _, err := svc.Parse(tampered); err == nil {
		t.Error("Parse(tampered) = nil, want error")
	}
}

func TestCredentialRejectsWrongSecret(t *testing.T) {
	issuer := NewCredentialService("secret-a", 3600, AudienceIdentity)
	verifier := NewCredentialService("secret-b", 3600, AudienceIdentity)

	credential, err := issuer.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := verifier.Parse(credential); err == nil {
		t.Error("Parse with wrong secret = nil, want error")
	}
}

func TestCredentialRejectsExpired(t *testing.T) {
	svc := NewCredentialService("test-secret", 3600, AudienceIdentity)

	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	credential, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// 有効期限（1時間）を過ぎた時点で検証する
	svc.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }

	if _, err := svc.Parse(credential); err == nil {
		t.Error("Parse(expired) = nil, want error")
	}
}

func TestCredentialRejectsOtherAudience(t *testing.T) {
	// 購入者アイデンティティと管理者は同じ鍵で署名されるため、
	// audの検証だけが両者の流用を防ぐ。
	identity := NewCredentialService("test-secret", 365*24*60*60, AudienceIdentity)
	admin := NewCredentialService("test-secret", 3600, AudienceAdmin)

	// メールアドレス欄に"admin"を入れた長期アイデンティティ資格情報が
	// 管理者資格情報として通ってはならない
	credential, err := identity.Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := admin.Parse(credential); err == nil {
		t.Error("admin.Parse(identity credential) = nil, want error")
	}

	// 逆方向も同様
	adminCredential, err := admin.Issue("admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := identity.Parse(adminCredential); err == nil {
		t.Error("identity.Parse(admin credential) = nil, want error")
	}

	// 自身のaudienceは通常どおり受け付ける
	subject, err := admin.Parse(adminCredential)
	if err != nil {
		t.Fatalf("admin.Parse(admin credential): %v", err)
	}
	if subject != "admin" {
		t.Errorf("subject = %q, want %q", subject, "admin")
	}
}

func TestCredentialAcceptsLongLived(t *testing.T) {
	// 設計値は約1年。11ヶ月後でも有効であること。
	svc := NewCredentialService("test-secret", 365*24*60*60, AudienceIdentity)

	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	credential, err := svc.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(11 * 30 * 24 * time.Hour) }

	email, err := svc.Parse(credential)
	if err != nil {
		t.Fatalf("Parse after 11 months: %v", err)
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want %q", email, "alice@example.com")
	}
}
