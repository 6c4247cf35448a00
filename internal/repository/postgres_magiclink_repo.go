package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/explorations/internal/model"
)

// PostgresMagicLinkRepo はPostgreSQLを使用したワンタイムトークンリポジトリ。
type PostgresMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRepo はPostgresMagicLinkRepoを生成する。
func NewPostgresMagicLinkRepo(db *sql.DB) *PostgresMagicLinkRepo {
	return &PostgresMagicLinkRepo{db: db}
}

// Create はマジックリンクを保存する。
func (r *PostgresMagicLinkRepo) Create(ctx context.Context, link *model.MagicLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (token, email, exploration_id, used, expires_at, created_at)
		 VALUES ($1, $2, $3, FALSE, $4, $5)`,
		link.Token, link.Email, link.ExplorationID, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create magic link: %w", err)
	}
	return nil
}

// FindValid は未使用かつ期限内のトークンを返す。
// 存在しない・使用済み・期限切れはすべてnilで、呼び出し側からは区別できない。
func (r *PostgresMagicLinkRepo) FindValid(ctx context.Context, token string) (*model.MagicLink, error) {
	link := &model.MagicLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, email, exploration_id, used, expires_at, created_at
		 FROM magic_links
		 WHERE token = $1 AND used = FALSE AND expires_at > now()`,
		token,
	).Scan(&link.Token, &link.Email, &link.ExplorationID, &link.Used, &link.ExpiresAt, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find magic link: %w", err)
	}

	return link, nil
}

// Redeem はトークンを条件付きUPDATEで使用済みに遷移させる。
// WHERE句にused = FALSEを含む単一文のため、並行するredeemのうち
// 行を更新できるのは1つだけで、二重入場は起こらない。
// 更新できなかった場合（無効トークン）はnilを返す。
func (r *PostgresMagicLinkRepo) Redeem(ctx context.Context, token string) (*model.MagicLink, error) {
	link := &model.MagicLink{Used: true}
	err := r.db.QueryRowContext(ctx,
		`UPDATE magic_links
		 SET used = TRUE
		 WHERE token = $1 AND used = FALSE AND expires_at > now()
		 RETURNING token, email, exploration_id, expires_at, created_at`,
		token,
	).Scan(&link.Token, &link.Email, &link.ExplorationID, &link.ExpiresAt, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem magic link: %w", err)
	}

	return link, nil
}

// DeleteExpired は期限切れまたは使用済みのトークンを削除し、削除件数を返す。
// ワーカーの日次パージから呼ばれる。
func (r *PostgresMagicLinkRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM magic_links WHERE used = TRUE OR expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic links: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ MagicLinkRepository = (*PostgresMagicLinkRepo)(nil)
