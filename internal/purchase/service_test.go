package purchase

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/explorations/internal/model"
	"github.com/hitoshi/explorations/internal/payment"
	"github.com/hitoshi/explorations/internal/repository"
)

// --- モック ---

type mockCustomerRepo struct {
	ensured []string
}

func (m *mockCustomerRepo) Ensure(ctx context.Context, email string) error {
	m.ensured = append(m.ensured, email)
	return nil
}
func (m *mockCustomerRepo) ListEmails(ctx context.Context) ([]string, error) {
	return m.ensured, nil
}

var _ repository.CustomerRepository = (*mockCustomerRepo)(nil)

// mockPurchaseRepo は台帳の冪等挿入をメモリ上で再現する。
type mockPurchaseRepo struct {
	bySession map[string]*model.Purchase
	hasFn     func(ctx context.Context, email, explorationID string) (bool, error)
}

func newMockPurchaseRepo() *mockPurchaseRepo {
	return &mockPurchaseRepo{bySession: make(map[string]*model.Purchase)}
}

func (m *mockPurchaseRepo) RecordIdempotent(ctx context.Context, p *model.Purchase) (string, bool, error) {
	if existing, ok := m.bySession[p.StripeSession]; ok {
		return existing.ID, false, nil
	}
	m.bySession[p.StripeSession] = p
	return p.ID, true, nil
}
func (m *mockPurchaseRepo) HasPurchased(ctx context.Context, email, explorationID string) (bool, error) {
	if m.hasFn != nil {
		return m.hasFn(ctx, email, explorationID)
	}
	for _, p := range m.bySession {
		if p.CustomerEmail == email && p.ExplorationID == explorationID {
			return true, nil
		}
	}
	return false, nil
}
func (m *mockPurchaseRepo) ListAll(ctx context.Context) ([]*model.Purchase, error) {
	return nil, nil
}
func (m *mockPurchaseRepo) DailyTotals(ctx context.Context) ([]model.DailyTotal, error) {
	return nil, nil
}

var _ repository.PurchaseRepository = (*mockPurchaseRepo)(nil)

type mockVerifier struct {
	verifyFn func(ctx context.Context, sessionID string) (*payment.CheckoutSession, error)
}

func (m *mockVerifier) VerifyCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	return m.verifyFn(ctx, sessionID)
}

type countingRecorder struct {
	purchases  int
	duplicates int
}

func (c *countingRecorder) RecordPurchase()          { c.purchases++ }
func (c *countingRecorder) RecordDuplicatePurchase() { c.duplicates++ }

func TestRecord_IdempotentOnStripeSession(t *testing.T) {
	customerRepo := &mockCustomerRepo{}
	purchaseRepo := newMockPurchaseRepo()
	recorder := &countingRecorder{}
	svc := NewService(customerRepo, purchaseRepo, nil, recorder)

	id1, err := svc.Record(context.Background(), "alice@example.com", "exp-1", "cs_test_123", 1800)
	if err != nil {
		t.Fatalf("Record(1st): %v", err)
	}
	id2, err := svc.Record(context.Background(), "alice@example.com", "exp-1", "cs_test_123", 1800)
	if err != nil {
		t.Fatalf("Record(2nd): %v", err)
	}

	if id1 != id2 {
		t.Errorf("ids differ: %q vs %q", id1, id2)
	}
	if len(purchaseRepo.bySession) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(purchaseRepo.bySession))
	}
	if recorder.purchases != 1 || recorder.duplicates != 1 {
		t.Errorf("metrics = %d purchases / %d duplicates, want 1 / 1", recorder.purchases, recorder.duplicates)
	}
}

func TestRecord_NormalizesEmailAndDefaultsAmount(t *testing.T) {
	customerRepo := &mockCustomerRepo{}
	purchaseRepo := newMockPurchaseRepo()
	svc := NewService(customerRepo, purchaseRepo, nil, nil)

	if _, err := svc.Record(context.Background(), "  ALICE@Example.com ", "exp-1", "cs_test_123", 0); err != nil {
		t.Fatalf("Record: %v", err)
	}

	p := purchaseRepo.bySession["cs_test_123"]
	if p.CustomerEmail != "alice@example.com" {
		t.Errorf("CustomerEmail = %q, want normalized", p.CustomerEmail)
	}
	if p.AmountCents != model.DefaultAmountCents {
		t.Errorf("AmountCents = %d, want %d", p.AmountCents, model.DefaultAmountCents)
	}
	if len(customerRepo.ensured) != 1 || customerRepo.ensured[0] != "alice@example.com" {
		t.Errorf("ensured = %v, want [alice@example.com]", customerRepo.ensured)
	}
}

func TestRecord_Validation(t *testing.T) {
	svc := NewService(&mockCustomerRepo{}, newMockPurchaseRepo(), nil, nil)

	tests := []struct {
		name          string
		email         string
		explorationID string
		stripeSession string
	}{
		{"メールアドレスが空", "", "exp-1", "cs_1"},
		{"Exploration IDが空", "alice@example.com", "", "cs_1"},
		{"決済参照が空", "alice@example.com", "exp-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.email, tt.explorationID, tt.stripeSession, 1800)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("err = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestHandleWebhookEvent_DropsIncompleteEvents(t *testing.T) {
	// メールアドレスまたはExploration IDを欠くイベントは記録せず正常終了する
	tests := []struct {
		name  string
		event *payment.WebhookEvent
	}{
		{"メールアドレスなし", &payment.WebhookEvent{StripeSession: "cs_1", ExplorationID: "exp-1"}},
		{"Exploration IDなし", &payment.WebhookEvent{StripeSession: "cs_1", Email: "alice@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purchaseRepo := newMockPurchaseRepo()
			svc := NewService(&mockCustomerRepo{}, purchaseRepo, nil, nil)

			if err := svc.HandleWebhookEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("HandleWebhookEvent: %v", err)
			}
			if len(purchaseRepo.bySession) != 0 {
				t.Errorf("ledger rows = %d, want 0", len(purchaseRepo.bySession))
			}
		})
	}
}

func TestHandleWebhookEvent_RecordsCompleteEvent(t *testing.T) {
	purchaseRepo := newMockPurchaseRepo()
	svc := NewService(&mockCustomerRepo{}, purchaseRepo, nil, nil)

	event := &payment.WebhookEvent{
		StripeSession: "cs_1",
		Email:         "alice@example.com",
		ExplorationID: "exp-1",
		AmountCents:   1800,
	}
	if err := svc.HandleWebhookEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleWebhookEvent: %v", err)
	}
	if len(purchaseRepo.bySession) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(purchaseRepo.bySession))
	}
}

func TestConfirmFromClient_PaymentNotCompleted(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
			return &payment.CheckoutSession{Paid: false}, nil
		},
	}
	purchaseRepo := newMockPurchaseRepo()
	svc := NewService(&mockCustomerRepo{}, purchaseRepo, verifier, nil)

	_, err := svc.ConfirmFromClient(context.Background(), "cs_1", "exp-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePaymentNotCompleted {
		t.Errorf("err = %v, want PAYMENT_NOT_COMPLETED", err)
	}
	if len(purchaseRepo.bySession) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(purchaseRepo.bySession))
	}
}

func TestConfirmFromClient_RecordsAndReturnsEmail(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
			return &payment.CheckoutSession{
				Paid:        true,
				Email:       "ALICE@Example.com",
				AmountCents: 1800,
			}, nil
		},
	}
	purchaseRepo := newMockPurchaseRepo()
	svc := NewService(&mockCustomerRepo{}, purchaseRepo, verifier, nil)

	email, err := svc.ConfirmFromClient(context.Background(), "cs_1", "exp-1")
	if err != nil {
		t.Fatalf("ConfirmFromClient: %v", err)
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want normalized", email)
	}
	if len(purchaseRepo.bySession) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(purchaseRepo.bySession))
	}
}

func TestConfirmFromClient_ConvergesWithWebhookPath(t *testing.T) {
	// Webhook経路とクライアント検証経路が同じstripe_sessionを観測しても
	// 台帳行は1つに収束する
	verifier := &mockVerifier{
		verifyFn: func(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
			return &payment.CheckoutSession{Paid: true, Email: "alice@example.com", AmountCents: 1800}, nil
		},
	}
	purchaseRepo := newMockPurchaseRepo()
	svc := NewService(&mockCustomerRepo{}, purchaseRepo, verifier, nil)

	event := &payment.WebhookEvent{
		StripeSession: "cs_1",
		Email:         "alice@example.com",
		ExplorationID: "exp-1",
		AmountCents:   1800,
	}
	if err := svc.HandleWebhookEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleWebhookEvent: %v", err)
	}
	if _, err := svc.ConfirmFromClient(context.Background(), "cs_1", "exp-1"); err != nil {
		t.Fatalf("ConfirmFromClient: %v", err)
	}

	if len(purchaseRepo.bySession) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(purchaseRepo.bySession))
	}
}
