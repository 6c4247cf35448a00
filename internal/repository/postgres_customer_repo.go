package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/explorations/internal/model"
)

// PostgresCustomerRepo はPostgreSQLを使用した購入者リポジトリ。
type PostgresCustomerRepo struct {
	db *sql.DB
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

// Ensure はメールアドレスのCustomerを存在しなければ作成する。
// ON CONFLICT DO NOTHINGにより並行呼び出しでも安全。
func (r *PostgresCustomerRepo) Ensure(ctx context.Context, email string) error {
	normalized := model.NormalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("email is empty")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (email) VALUES ($1)
		 ON CONFLICT (email) DO NOTHING`,
		normalized,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure customer: %w", err)
	}
	return nil
}

// ListEmails は全Customerのメールアドレスを作成日時の降順で返す。
func (r *PostgresCustomerRepo) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM customers ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}

	return emails, nil
}

// compile-time interface check
var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
