// Package cleanup はマジックリンクの自動削除ジョブを提供する。
// 使用済みトークンと期限切れトークンを日次バッチで削除する。
// トークンの有効性判定は削除に依存しないため、削除は純粋なハウスキーピング。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/explorations/internal/repository"
)

// PurgeJob は失効したマジックリンクの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type PurgeJob struct {
	links  repository.MagicLinkRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewPurgeJob は新しいPurgeJobを生成する。
func NewPurgeJob(links repository.MagicLinkRepository, logger *slog.Logger) *PurgeJob {
	return &PurgeJob{
		links:  links,
		logger: logger,
		now:    time.Now,
	}
}

// Run は使用済みまたは期限切れのマジックリンクを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.links.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("マジックリンク削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("マジックリンク削除の実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("マジックリンク削除ジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
