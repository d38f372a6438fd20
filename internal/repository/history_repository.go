package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dmcs/internal/domain"
)

// MigrationRunModel はmigration_runsテーブルのモデル。
type MigrationRunModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	RunID       string    `gorm:"type:char(36);not null;index:idx_run_id"`
	Project     string    `gorm:"type:varchar(128);not null;index:idx_project_env"`
	Environment string    `gorm:"type:varchar(128);not null;index:idx_project_env"`
	File        string    `gorm:"type:varchar(255);not null"`
	Entrypoint  string    `gorm:"type:varchar(8);not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	Error       string    `gorm:"type:text"`
	DurationMs  int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (MigrationRunModel) TableName() string {
	return "migration_runs"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *MigrationRunModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *MigrationRunModel) toDomain() *domain.RunRecord {
	return &domain.RunRecord{
		ID:          m.ID,
		RunID:       m.RunID,
		Project:     m.Project,
		Environment: m.Environment,
		File:        m.File,
		Entrypoint:  domain.Entrypoint(m.Entrypoint),
		Status:      domain.RunStatus(m.Status),
		Error:       m.Error,
		Duration:    time.Duration(m.DurationMs) * time.Millisecond,
		CreatedAt:   m.CreatedAt,
	}
}

// HistoryRepository はエントリポイントの実行履歴を管理するリポジトリ。
// 状態ドキュメントとは独立した監査用の記録であり、適用判定には使わない。
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository は新しいHistoryRepositoryを生成する。
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AutoMigrate はmigration_runsテーブルを作成する。
func (r *HistoryRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&MigrationRunModel{})
}

// Record は実行記録を保存する。
func (r *HistoryRepository) Record(ctx context.Context, rec *domain.RunRecord) error {
	model := &MigrationRunModel{
		ID:          rec.ID,
		RunID:       rec.RunID,
		Project:     rec.Project,
		Environment: rec.Environment,
		File:        rec.File,
		Entrypoint:  string(rec.Entrypoint),
		Status:      string(rec.Status),
		Error:       rec.Error,
		DurationMs:  rec.Duration.Milliseconds(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration run",
			"operation", "record_run",
			"file", rec.File,
			"error", err,
		)
		return err
	}
	rec.ID = model.ID
	rec.CreatedAt = model.CreatedAt
	return nil
}

// FindByEnvironment は環境の実行履歴を新しい順に取得する。limitが0以下の場合は全件。
func (r *HistoryRepository) FindByEnvironment(ctx context.Context, project, env string, limit int) ([]*domain.RunRecord, error) {
	var models []MigrationRunModel
	q := r.db.WithContext(ctx).
		Where("project = ? AND environment = ?", project, env).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find migration runs",
			"operation", "find_by_environment",
			"project", project,
			"environment", env,
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.RunRecord, len(models))
	for i := range models {
		records[i] = models[i].toDomain()
	}
	return records, nil
}

// LastApplied はファイルごとの最後に成功した up の日時を返す。
func (r *HistoryRepository) LastApplied(ctx context.Context, project, env string) (map[string]time.Time, error) {
	var models []MigrationRunModel
	err := r.db.WithContext(ctx).
		Select("file", "created_at").
		Where("project = ? AND environment = ? AND entrypoint = ? AND status = ?",
			project, env, string(domain.Up), string(domain.RunStatusSucceeded)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to query last applied runs",
			"operation", "last_applied",
			"project", project,
			"environment", env,
			"error", err,
		)
		return nil, err
	}

	result := make(map[string]time.Time, len(models))
	for _, m := range models {
		result[m.File] = m.CreatedAt
	}
	return result, nil
}
