package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/explorations/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用した会話セッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// FindInProgress は指定の組の進行中セッションを返す。見つからない場合はnilを返す。
// started_at降順の先頭を返すことで、万一複数行あっても結果は決定的になる。
func (r *PostgresSessionRepo) FindInProgress(ctx context.Context, email, explorationID string) (*model.ConversationSession, error) {
	session := &model.ConversationSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_email, exploration_id, status, started_at, updated_at
		 FROM conversation_sessions
		 WHERE customer_email = $1 AND exploration_id = $2 AND status = 'in_progress'
		 ORDER BY started_at DESC
		 LIMIT 1`,
		model.NormalizeEmail(email), explorationID,
	).Scan(&session.ID, &session.CustomerEmail, &session.ExplorationID,
		&session.Status, &session.StartedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in-progress session: %w", err)
	}

	return session, nil
}

// CreateInProgress は進行中セッションを作成する。
// 部分ユニークインデックスuq_sessions_in_progressへのON CONFLICT DO NOTHINGにより、
// 同じ組の初回アクセスが並行しても2つ目のセッションは作られない。
// 挿入がスキップされた場合はfalseを返すので、呼び出し側はFindInProgressで再取得する。
func (r *PostgresSessionRepo) CreateInProgress(ctx context.Context, session *model.ConversationSession) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions (id, customer_email, exploration_id, status, started_at, updated_at)
		 VALUES ($1, $2, $3, 'in_progress', $4, $5)
		 ON CONFLICT (customer_email, exploration_id) WHERE status = 'in_progress' DO NOTHING`,
		session.ID, session.CustomerEmail, session.ExplorationID,
		session.StartedAt, session.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Touch はupdated_atを現在時刻に進める。
func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversation_sessions SET updated_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Close はセッションをclosedに遷移させる。
func (r *PostgresSessionRepo) Close(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversation_sessions SET status = 'closed', updated_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
