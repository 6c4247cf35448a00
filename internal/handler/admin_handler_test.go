package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/explorations/internal/model"
)

type mockAdminReporting struct {
	listAllFn     func(ctx context.Context) ([]*model.Purchase, error)
	dailyTotalsFn func(ctx context.Context) ([]model.DailyTotal, error)
}

func (m *mockAdminReporting) ListAll(ctx context.Context) ([]*model.Purchase, error) {
	return m.listAllFn(ctx)
}

func (m *mockAdminReporting) DailyTotals(ctx context.Context) ([]model.DailyTotal, error) {
	return m.dailyTotalsFn(ctx)
}

type mockCustomerLister struct {
	listEmailsFn func(ctx context.Context) ([]string, error)
}

func (m *mockCustomerLister) ListEmails(ctx context.Context) ([]string, error) {
	return m.listEmailsFn(ctx)
}

var (
	_ AdminReportingInterface = (*mockAdminReporting)(nil)
	_ CustomerListerInterface = (*mockCustomerLister)(nil)
)

func testAdminConfig(password string) AdminHandlerConfig {
	return AdminHandlerConfig{
		Password:      password,
		CookieSecure:  true,
		SessionMaxAge: 24 * 60 * 60,
	}
}

// adminCredentials は固定トークンを発行・検証するモック。
func adminCredentials() *mockCredentialIssuer {
	return &mockCredentialIssuer{
		issueFn: func(subject string) (string, error) {
			return "admin-token", nil
		},
		parseFn: func(credential string) (string, error) {
			if credential == "admin-token" {
				return "admin", nil
			}
			return "", errSendFailed
		},
	}
}

func TestAdminLogin_CorrectPassword(t *testing.T) {
	h := NewAdminHandler(adminCredentials(), nil, nil, testAdminConfig("s3cret"))

	rec := postJSON(t, h.Login, `{"password": "s3cret"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	cookie := findCookie(t, rec, adminCookieName)
	if cookie == nil {
		t.Fatal("admin cookie not set")
	}
	if !cookie.HttpOnly || cookie.MaxAge != 24*60*60 {
		t.Errorf("cookie = %+v", cookie)
	}
}

func TestAdminLogin_WrongPassword(t *testing.T) {
	h := NewAdminHandler(adminCredentials(), nil, nil, testAdminConfig("s3cret"))

	rec := postJSON(t, h.Login, `{"password": "wrong"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if findCookie(t, rec, adminCookieName) != nil {
		t.Error("admin cookie set for wrong password")
	}
}

func TestAdminLogin_DisabledWithoutPassword(t *testing.T) {
	h := NewAdminHandler(adminCredentials(), nil, nil, testAdminConfig(""))

	rec := postJSON(t, h.Login, `{"password": ""}`)

	// パスワード未設定時は管理APIが全面的に無効
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func adminGet(t *testing.T, handlerFn http.HandlerFunc, withCookie bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if withCookie {
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: "admin-token"})
	}
	rec := httptest.NewRecorder()
	handlerFn(rec, req)
	return rec
}

func TestAdminOrders(t *testing.T) {
	createdAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	h := NewAdminHandler(
		adminCredentials(),
		&mockAdminReporting{
			listAllFn: func(ctx context.Context) ([]*model.Purchase, error) {
				return []*model.Purchase{
					{
						ID:            "purchase-1",
						CustomerEmail: "alice@example.com",
						ExplorationID: "exp-1",
						StripeSession: "cs_test_123",
						AmountCents:   1800,
						CreatedAt:     createdAt,
					},
				}, nil
			},
		},
		nil,
		testAdminConfig("s3cret"),
	)

	// 未認証は401
	if rec := adminGet(t, h.Orders, false); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec := adminGet(t, h.Orders, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	for _, want := range []string{"purchase-1", "alice@example.com", "cs_test_123", "1800"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("body missing %q: %s", want, rec.Body.String())
		}
	}
}

func TestAdminCustomers_EmptyListNotNull(t *testing.T) {
	h := NewAdminHandler(
		adminCredentials(),
		nil,
		&mockCustomerLister{
			listEmailsFn: func(ctx context.Context) ([]string, error) {
				return nil, nil
			},
		},
		testAdminConfig("s3cret"),
	)

	rec := adminGet(t, h.Customers, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"customers":[]`) {
		t.Errorf("body = %s, want empty array not null", rec.Body.String())
	}
}

func TestAdminDailyTotals(t *testing.T) {
	h := NewAdminHandler(
		adminCredentials(),
		&mockAdminReporting{
			dailyTotalsFn: func(ctx context.Context) ([]model.DailyTotal, error) {
				return []model.DailyTotal{
					{Date: "2026-08-30", OrderCount: 3, RevenueCents: 5400},
				}, nil
			},
		},
		nil,
		testAdminConfig("s3cret"),
	)

	rec := adminGet(t, h.DailyTotals, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{`"date":"2026-08-30"`, `"order_count":3`, `"revenue_cents":5400`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("body missing %q: %s", want, rec.Body.String())
		}
	}
}

func TestAdminReports_DisabledWithoutPassword(t *testing.T) {
	h := NewAdminHandler(adminCredentials(), nil, nil, testAdminConfig(""))

	// 有効なCookieがあってもパスワード未設定なら拒否する
	if rec := adminGet(t, h.Orders, true); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
