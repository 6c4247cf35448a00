package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/explorations/internal/model"
)

// PostgresPurchaseRepo はPostgreSQLを使用した購入台帳リポジトリ。
type PostgresPurchaseRepo struct {
	db *sql.DB
}

// NewPostgresPurchaseRepo はPostgresPurchaseRepoを生成する。
func NewPostgresPurchaseRepo(db *sql.DB) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// RecordIdempotent は購入を台帳に記録し、そのIDを返す。
// stripe_sessionのユニーク制約に対するON CONFLICT DO NOTHINGで
// 重複観測（Webhookの再送とクライアント検証の二重経路）を吸収する。
// 挿入がスキップされた場合は既存行のIDとcreated=falseを返す。
func (r *PostgresPurchaseRepo) RecordIdempotent(ctx context.Context, purchase *model.Purchase) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO purchases (id, customer_email, exploration_id, stripe_session, amount_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (stripe_session) DO NOTHING
		 RETURNING id`,
		purchase.ID, purchase.CustomerEmail, purchase.ExplorationID,
		purchase.StripeSession, purchase.AmountCents, purchase.CreatedAt,
	).Scan(&id)

	if err == sql.ErrNoRows {
		// 既に同じstripe_sessionの行が存在する。既存のIDを返す。
		err = r.db.QueryRowContext(ctx,
			`SELECT id FROM purchases WHERE stripe_session = $1`,
			purchase.StripeSession,
		).Scan(&id)
		if err != nil {
			return "", false, fmt.Errorf("failed to find existing purchase: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to record purchase: %w", err)
	}

	return id, true, nil
}

// HasPurchased は指定メールアドレスがExplorationを購入済みかを返す。
func (r *PostgresPurchaseRepo) HasPurchased(ctx context.Context, email, explorationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM purchases
		   WHERE customer_email = $1 AND exploration_id = $2
		 )`,
		model.NormalizeEmail(email), explorationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return exists, nil
}

// ListAll は全購入を作成日時の降順で返す。
func (r *PostgresPurchaseRepo) ListAll(ctx context.Context) ([]*model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer_email, exploration_id, stripe_session, amount_cents, created_at
		 FROM purchases ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*model.Purchase
	for rows.Next() {
		p := &model.Purchase{}
		if err := rows.Scan(&p.ID, &p.CustomerEmail, &p.ExplorationID,
			&p.StripeSession, &p.AmountCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return purchases, nil
}

// DailyTotals は日次の注文数・売上の集計を日付降順で返す。
func (r *PostgresPurchaseRepo) DailyTotals(ctx context.Context) ([]model.DailyTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(created_at::date, 'YYYY-MM-DD') AS date,
		        COUNT(*) AS order_count,
		        COALESCE(SUM(amount_cents), 0) AS revenue_cents
		 FROM purchases
		 GROUP BY created_at::date
		 ORDER BY created_at::date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily totals: %w", err)
	}
	defer rows.Close()

	var totals []model.DailyTotal
	for rows.Next() {
		var t model.DailyTotal
		if err := rows.Scan(&t.Date, &t.OrderCount, &t.RevenueCents); err != nil {
			return nil, fmt.Errorf("failed to scan daily total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily totals: %w", err)
	}

	return totals, nil
}

// compile-time interface check
var _ PurchaseRepository = (*PostgresPurchaseRepo)(nil)
